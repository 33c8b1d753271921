package middleware

import (
	"encoding/json"
	"net/http"

	persona "github.com/pilab-dev/persona-client"
)

// RequireToken wraps a handler so it only runs for requests carrying a valid
// token with scope. An empty scope only checks the token itself.
func RequireToken(v Validator, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, rejection := check(r.Context(), v, persona.NewInboundRequest(r), scope)
			if rejection != nil {
				writeRejection(w, rejection)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

func writeRejection(w http.ResponseWriter, r *Rejection) {
	w.Header().Set("Content-Type", "application/json")
	if r.Status == http.StatusUnauthorized || r.Status == http.StatusForbidden {
		w.Header().Set("WWW-Authenticate", authenticateHeader(r))
	}
	w.WriteHeader(r.Status)
	_ = json.NewEncoder(w).Encode(r)
}
