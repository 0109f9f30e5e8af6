package auth

import "context"

type contextKey string

const (
	contextKeyHome    contextKey = "auth.home_id"
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
)

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, homeID string, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyHome, homeID)
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// HomeIDFromContext extracts the home id from context.
func HomeIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if homeID, ok := ctx.Value(contextKeyHome).(string); ok {
		return homeID
	}
	return ""
}

// RoleFromContext extracts the role from context.
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

// SubjectFromContext extracts the subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if subject, ok := ctx.Value(contextKeySubject).(string); ok {
		return subject
	}
	return ""
}
