package authz

import (
	"context"
	"net/http"
)

type contextKey string

const (
	subjectKey contextKey = "subject"
	rolesKey   contextKey = "roles"
)

// WithIdentity stores the caller's subject and roles on the context.
func WithIdentity(ctx context.Context, subject string, roles []Role) context.Context {
	if subject != "" {
		ctx = context.WithValue(ctx, subjectKey, subject)
	}
	return context.WithValue(ctx, rolesKey, NormalizeRoles(roles))
}

func SubjectFromRequest(r *http.Request) (string, bool) {
	sub, ok := r.Context().Value(subjectKey).(string)
	if !ok || sub == "" {
		return "", false
	}
	return sub, true
}

func RolesFromRequest(r *http.Request) ([]Role, bool) {
	roles, ok := r.Context().Value(rolesKey).([]Role)
	if !ok || len(roles) == 0 {
		return nil, false
	}
	return roles, true
}
