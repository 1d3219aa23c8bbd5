package middleware

import (
	"net/http"
	"strings"

	"equipment-inspection-diagnostics-system/shared/authx"
	"equipment-inspection-diagnostics-system/shared/httpx"
)

// AuthMiddleware verifies bearer tokens. With Optional set, requests without
// an Authorization header pass through anonymously; the handlers then record
// the default performer name. Presented tokens are always verified.
type AuthMiddleware struct {
	Verifier *authx.JWTVerifier
	Optional bool
	Skip     func(*http.Request) bool
}

func (m AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader == "" && m.Optional {
			next.ServeHTTP(w, r)
			return
		}

		if m.Verifier == nil {
			if m.Optional {
				next.ServeHTTP(w, r)
				return
			}
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "auth verifier not configured", nil)
			return
		}

		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(authHeader[len("bearer "):])
		auth, err := m.Verifier.Verify(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token", nil)
			return
		}

		ctx := authx.WithAuth(r.Context(), auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
