package middleware

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/dropgate/service/internal/response"
)

// RequireOperator returns middleware that validates the operator bearer
// token against the configured credentials. The token is the base64 basic
// form issued by the auth endpoint; it is opaque and unsigned, so the only
// check is a direct comparison.
func RequireOperator(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !operatorAuthorized(r, username, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="Dashboard"`)
				response.Unauthorized(w, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func operatorAuthorized(r *http.Request, username, password string) bool {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(authHeader[len("Basic "):])
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	return ok && user == username && pass == password
}
