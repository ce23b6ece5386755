package authz

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// RequireRole returns a middleware that ensures the requester has at least the required role tier.
func RequireRole(required Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roles, ok := RolesFromRequest(r)
			if !ok || !HasAtLeast(roles, required) {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoleHandler applies the role middleware inline when registering routes.
func RequireRoleHandler(required Role, next http.Handler) http.Handler {
	return RequireRole(required)(next)
}

// JWTMiddleware accepts HS256 bearer tokens signed with secret.
func JWTMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}
			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}
			subject, _ := claims["sub"].(string)
			ctx := WithIdentity(r.Context(), subject, rolesFromClaims(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rolesFromClaims(claims jwt.MapClaims) []Role {
	var roles []Role
	switch v := claims["roles"].(type) {
	case []interface{}:
		for _, val := range v {
			if s, ok := val.(string); ok {
				roles = append(roles, Role(s))
			}
		}
	case string:
		roles = append(roles, Role(v))
	}
	if single, ok := claims["role"].(string); ok {
		roles = append(roles, Role(single))
	}
	return roles
}

// IssueToken signs an HS256 token for subject, valid for ttl.
func IssueToken(secret, subject string, roles []Role, ttl time.Duration) (string, error) {
	names := make([]string, 0, len(roles))
	for _, r := range NormalizeRoles(roles) {
		names = append(names, string(r))
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"roles": names,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
