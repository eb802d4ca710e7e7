package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"gigachat-relay/internal/services"
)

type contextKey string

const IdentityKey contextKey = "identity"

// AuthFailureMessage is returned for every rejected credential pair.
const AuthFailureMessage = "Incorrect username or password"

// CompareFunc reports 1 when a and b are equal, 0 otherwise.
type CompareFunc func(a, b []byte) int

// BasicAuth verifies HTTP Basic credentials against one configured pair.
type BasicAuth struct {
	username []byte
	password []byte
	realm    string
	compare  CompareFunc
}

func NewBasicAuth(username, password, realm string) *BasicAuth {
	return &BasicAuth{
		username: []byte(username),
		password: []byte(password),
		realm:    realm,
		compare:  ConstantTimeEqual,
	}
}

// WithCompare replaces the comparison primitive.
func (a *BasicAuth) WithCompare(fn CompareFunc) *BasicAuth {
	a.compare = fn
	return a
}

// ConstantTimeEqual hashes both inputs to a fixed size before comparing them,
// so the time taken does not depend on either length.
func ConstantTimeEqual(a, b []byte) int {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return subtle.ConstantTimeCompare(ha[:], hb[:])
}

// Authenticate returns the verified username. Both fields are always
// compared; an unset secret never matches.
func (a *BasicAuth) Authenticate(username, password string) (string, error) {
	userOK := a.compare([]byte(username), a.username)
	passOK := a.compare([]byte(password), a.password)

	configured := 0
	if len(a.username) > 0 && len(a.password) > 0 {
		configured = 1
	}

	if userOK&passOK&configured != 1 {
		return "", &services.UnauthorizedError{Message: AuthFailureMessage}
	}
	return username, nil
}

// Middleware rejects requests without valid Basic credentials and attaches
// the identity to the context otherwise.
func (a *BasicAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, _ := r.BasicAuth()

		identity, err := a.Authenticate(username, password)
		if err != nil {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q, charset="UTF-8"`, a.realm))
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), r)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the authenticated username from request context
func GetIdentity(ctx context.Context) string {
	id, _ := ctx.Value(IdentityKey).(string)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
