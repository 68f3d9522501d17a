package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenAuth checks the bearer token on admin requests. An empty token
// disables the check.
type TokenAuth struct {
	token string
}

func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: token}
}

// Authorize accepts "Authorization: Bearer <token>" or, for browsers that
// cannot set headers on a WebSocket handshake, a token query parameter.
func (a *TokenAuth) Authorize(r *http.Request) bool {
	if a.token == "" {
		return true
	}

	presented := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return false
		}
		presented = strings.TrimSpace(value)
	}

	return subtle.ConstantTimeCompare([]byte(presented), []byte(a.token)) == 1
}

// Wrap rejects unauthorized requests with 401 before calling next.
func (a *TokenAuth) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Authorize(r) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="kodok"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
