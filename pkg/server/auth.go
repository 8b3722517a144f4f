package server

import (
	"crypto/subtle"
	"strings"

	"github.com/NERVsystems/osmplot/pkg/core"
)

var weakTokens = []string{
	"password", "secret", "token", "admin", "test", "default", "12345",
}

// ValidateAuthToken rejects short or guessable bearer tokens
func ValidateAuthToken(token string) error {
	if token == "" {
		return core.NewError(core.ErrMissingParameter, "authentication token cannot be empty").
			WithGuidance("Provide a bearer token or disable authentication.")
	}
	if len(token) < 16 {
		return core.NewError(core.ErrInvalidInput, "authentication token is too short").
			WithGuidance("Use a token with at least 16 characters.")
	}
	lower := strings.ToLower(token)
	for _, weak := range weakTokens {
		if strings.Contains(lower, weak) {
			return core.NewError(core.ErrInvalidInput, "authentication token appears to be weak").
				WithGuidance("Use a randomly generated token.")
		}
	}
	return nil
}

// bearerToken extracts the token from an "Authorization: Bearer" header
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// authorized compares the request's bearer token with want in constant time
func authorized(header, want string) bool {
	got, ok := bearerToken(header)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
