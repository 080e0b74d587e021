package allocation

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaViolation is wrapped by every SchemaViolation.
	ErrSchemaViolation = errors.New("allocation: schema violation")
	// ErrNilRepository is returned when a run is wired without persistence.
	ErrNilRepository = errors.New("allocation: nil repository")
	// ErrJobRunning is returned when a job with the same key is still running.
	ErrJobRunning = errors.New("allocation: job already running")
	// ErrReportNotFound is returned when a report cannot be found.
	ErrReportNotFound = errors.New("allocation: report not found")
	// ErrInvalidYear is returned for a report year outside the supported range.
	ErrInvalidYear = errors.New("allocation: invalid report year")
)

// SchemaViolation describes a malformed input table. It is fatal: no
// allocation runs once one is found.
type SchemaViolation struct {
	Table  string
	Column string
	// Row is the zero-based row index, or -1 when the problem is the table layout.
	Row    int
	Reason string
}

func (e *SchemaViolation) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("allocation: schema violation: table=%s column=%s: %s", e.Table, e.Column, e.Reason)
	}
	return fmt.Sprintf("allocation: schema violation: table=%s column=%s row=%d: %s", e.Table, e.Column, e.Row, e.Reason)
}

// Unwrap lets errors.Is match ErrSchemaViolation.
func (e *SchemaViolation) Unwrap() error { return ErrSchemaViolation }

func violation(table, column string, row int, reason string, args ...any) *SchemaViolation {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &SchemaViolation{Table: table, Column: column, Row: row, Reason: reason}
}
