package credential

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

var (
	// ErrNotConnected means the doctor must (re)authorize calendar access.
	ErrNotConnected = errors.New("calendar not connected")

	ErrCredentialNotFound = errors.New("credential not found")
)

// OAuthCredential is a doctor's calendar grant. It stays behind the proxy.
type OAuthCredential struct {
	OwnerID      uuid.UUID
	AccessToken  string
	RefreshToken string
	// Expiry is zero when the provider did not report one.
	Expiry    time.Time
	Scopes    []string
	UpdatedAt time.Time
}

// Expired reports whether the access token is unusable at now, treating
// anything inside leeway of the expiry as already expired. A zero expiry
// never expires.
func (c OAuthCredential) Expired(now time.Time, leeway time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(c.Expiry)
}

func (c OAuthCredential) token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry,
	}
}

// Store persists credentials keyed by owner.
type Store interface {
	Get(ctx context.Context, owner uuid.UUID) (*OAuthCredential, error)
	Save(ctx context.Context, cred OAuthCredential) error
}
