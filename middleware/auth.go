package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"rolewarden/common"
)

// User is the authenticated identity carried through request contexts.
type User struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Pic   string `json:"picture,omitempty"`
}

type ctxKey string

const UserKey ctxKey = "rolewarden.user"

// AuthDisabled reports whether the deployment runs without authentication
// (ROLEWARDEN_AUTH_MODE=none). Intended for dev setups and tests.
func AuthDisabled() bool {
	return strings.EqualFold(common.Env("ROLEWARDEN_AUTH_MODE", "oidc"), "none")
}

// RequireAuth rejects requests without a live session. With auth disabled it
// injects the anonymous user instead.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AuthDisabled() {
			ctx := context.WithValue(r.Context(), UserKey, User{Sub: "anonymous", Name: "anonymous"})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		if common.SessionManager == nil {
			http.Error(w, "auth not configured", http.StatusInternalServerError)
			return
		}

		u, ok := common.SessionManager.Get(r.Context(), "user").(User)
		exp := common.SessionManager.GetInt64(r.Context(), "exp")
		if !ok || time.Now().Unix() > exp {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), UserKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentUser returns the identity stored by RequireAuth, or the zero User.
func CurrentUser(ctx context.Context) User {
	if u, ok := ctx.Value(UserKey).(User); ok {
		return u
	}
	return User{}
}

// GetUserEmail names the caller for audit rows: email, then display name,
// then subject, then "anonymous".
func GetUserEmail(ctx context.Context) string {
	u := CurrentUser(ctx)
	if u.Email != "" {
		return u.Email
	}
	if u.Name != "" {
		return u.Name
	}
	if u.Sub != "" {
		return u.Sub
	}
	return "anonymous"
}
