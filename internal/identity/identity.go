// Package identity verifies tokens issued by the external identity provider
// and carries the verified identity through request contexts.
package identity

import (
	"context"
	"strings"
)

// Identity is an authenticated account as reported by the provider.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Verifier turns a bearer token into an Identity or ErrUnauthorized.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Name is the best display name the claims offer.
func (i Identity) Name() string {
	if n := strings.TrimSpace(i.DisplayName); n != "" {
		return n
	}
	if at := strings.Index(i.Email, "@"); at > 0 {
		return i.Email[:at]
	}
	return ""
}

type ctxKey string

var identityKey ctxKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UID != ""
}
