package caldav

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// ErrInvalidCredentials is returned when authentication fails
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials are the username and password from a Basic auth header
type Credentials struct {
	Username string
	Password string
}

// Authenticator validates client credentials
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) error
}

// StaticAuthenticator accepts a single configured username and password
type StaticAuthenticator struct {
	Username string
	Password string
}

// Authenticate compares in constant time
func (a *StaticAuthenticator) Authenticate(_ context.Context, creds Credentials) error {
	userOK := subtle.ConstantTimeCompare([]byte(creds.Username), []byte(a.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(creds.Password), []byte(a.Password)) == 1
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// AuthMiddleware enforces Basic authentication on every path except the
// well-known redirect and the health endpoint.
func AuthMiddleware(authenticator Authenticator, realm string) func(http.Handler) http.Handler {
	if realm == "" {
		realm = "KodBox CalDAV Bridge"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/.well-known/") || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				requestAuth(w, realm)
				return
			}

			creds, err := parseBasicAuth(authHeader)
			if err != nil {
				requestAuth(w, realm)
				return
			}

			if err := authenticator.Authenticate(r.Context(), creds); err != nil {
				requestAuth(w, realm)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestAuth sends the WWW-Authenticate challenge
func requestAuth(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// parseBasicAuth parses an HTTP Basic Authentication header value
func parseBasicAuth(auth string) (Credentials, error) {
	const prefix = "Basic "
	if !strings.HasPrefix(auth, prefix) {
		return Credentials{}, errors.New("invalid authorization header format")
	}

	decoded, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return Credentials{}, errors.New("invalid base64 encoding")
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return Credentials{}, errors.New("invalid credentials format")
	}

	return Credentials{Username: parts[0], Password: parts[1]}, nil
}
