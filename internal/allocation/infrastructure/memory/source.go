package memory

import (
	"context"

	allocation "netgen-allocation/internal/allocation/domain"
)

// Source serves a fixed set of input tables.
type Source struct {
	Inputs allocation.Inputs
	Err    error
}

// Load returns the stored tables restricted to scope.
func (s *Source) Load(ctx context.Context, scope allocation.Scope) (allocation.Inputs, error) {
	_ = ctx
	if s.Err != nil {
		return allocation.Inputs{}, s.Err
	}
	return scope.Filter(s.Inputs), nil
}
