package httpx

import (
	"net/http"
	"strings"

	"github.com/pawzr/marketplace/internal/auth"
)

type TokenParser interface {
	Parse(token string) (auth.Identity, error)
}

// Authenticate attaches the bearer token's identity to the request context.
// Requests without a token pass through anonymously; a bad token is a 401.
func Authenticate(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(h, "Bearer ")
			if !ok {
				writeError(w, r, errUnauthorized)
				return
			}
			id, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// identity returns the caller or writes a 401.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, errUnauthorized)
	}
	return id, ok
}
