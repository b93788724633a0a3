package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authenticator guards mutating JSON-RPC methods with a static bearer token.
// An empty token disables the check.
type Authenticator struct {
	bearerToken string
}

// NewAuthenticator constructs an authenticator for token.
func NewAuthenticator(token string) *Authenticator {
	return &Authenticator{bearerToken: strings.TrimSpace(token)}
}

// Enabled reports whether a token is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.bearerToken != ""
}

// Check verifies the Authorization header of r.
func (a *Authenticator) Check(r *http.Request) *RPCError {
	if !a.Enabled() {
		return nil
	}
	token := parseBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "authentication required"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.bearerToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	scheme, token, found := strings.Cut(trimmed, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
