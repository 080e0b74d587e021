package auth

import "context"

type contextKey string

const (
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
	contextKeyPlants  contextKey = "auth.plant_ids"
)

// WithIdentity stores auth identity details in context. An empty plantIDs
// grants access to every plant.
func WithIdentity(ctx context.Context, role Role, subject string, plantIDs []int) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	ctx = context.WithValue(ctx, contextKeyPlants, plantIDs)
	return ctx
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeySubject)
	if subject, ok := value.(string); ok {
		return subject
	}
	return ""
}

// PlantIDsFromContext returns the plants the caller is limited to, or nil
// when unrestricted.
func PlantIDsFromContext(ctx context.Context) []int {
	if ctx == nil {
		return nil
	}
	if ids, ok := ctx.Value(contextKeyPlants).([]int); ok {
		return ids
	}
	return nil
}

// PlantsAllowed reports whether every requested plant is visible to the
// caller. A restricted caller must name its plants explicitly.
func PlantsAllowed(ctx context.Context, requested []int) bool {
	allowed := PlantIDsFromContext(ctx)
	if len(allowed) == 0 {
		return true
	}
	if len(requested) == 0 {
		return false
	}
	set := make(map[int]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	for _, id := range requested {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
