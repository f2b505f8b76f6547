package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/vault-aegis/sentinel/internal/pii"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// ProjectContext holds the authenticated project's configuration.
type ProjectContext struct {
	ProjectID string
	Mode      string // "detect_only", "mask" or "redact"
	Policy    *pii.PolicyConfig
}

// Authenticator validates an API key and returns project context.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*ProjectContext, error)
}

// ExtractBearer pulls the API key out of an Authorization header value.
// Accepts "Bearer vsk_..." (scheme case-insensitive per RFC 6750) or the
// bare key. Returns ErrMissingAPIKey / ErrInvalidAPIKey on bad input.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAPIKey
	}

	token := header
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = token[7:]
	}
	token = strings.TrimSpace(token)

	if !strings.HasPrefix(token, "vsk_") {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}
