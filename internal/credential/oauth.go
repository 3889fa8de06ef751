package credential

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

// Authorizer is the OAuth provider boundary: consent URL, code exchange and refresh.
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, owner uuid.UUID, code string) (OAuthCredential, error)
	Refresh(ctx context.Context, cred OAuthCredential) (OAuthCredential, error)
	Client(ctx context.Context, cred OAuthCredential) *http.Client
}

// GoogleOAuth implements Authorizer against Google's OAuth 2.0 endpoints.
type GoogleOAuth struct {
	cfg *oauth2.Config
}

type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides google.Endpoint, tests point it at a fake token server.
	Endpoint *oauth2.Endpoint
}

func NewGoogleOAuth(c GoogleOAuthConfig) *GoogleOAuth {
	endpoint := google.Endpoint
	if c.Endpoint != nil {
		endpoint = *c.Endpoint
	}

	return &GoogleOAuth{cfg: &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope},
		Endpoint:     endpoint,
	}}
}

// AuthCodeURL asks for offline access so the grant carries a refresh token,
// and forces consent so a reconnect issues a fresh one.
func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *GoogleOAuth) Exchange(ctx context.Context, owner uuid.UUID, code string) (OAuthCredential, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return OAuthCredential{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	return fromToken(owner, tok, g.cfg.Scopes), nil
}

// Refresh trades the stored refresh token for a new access token.
// The refresh token is carried over when the provider does not rotate it.
func (g *GoogleOAuth) Refresh(ctx context.Context, cred OAuthCredential) (OAuthCredential, error) {
	if cred.RefreshToken == "" {
		return OAuthCredential{}, fmt.Errorf("no refresh token stored for %s", cred.OwnerID)
	}

	// an empty access token forces the source to hit the token endpoint
	src := g.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return OAuthCredential{}, fmt.Errorf("refresh access token: %w", err)
	}

	next := fromToken(cred.OwnerID, tok, cred.Scopes)
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	return next, nil
}

// Client returns an HTTP client that presents cred's access token.
// Refresh is owned by the proxy, so the token source is static.
func (g *GoogleOAuth) Client(ctx context.Context, cred OAuthCredential) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(cred.token()))
}

func fromToken(owner uuid.UUID, tok *oauth2.Token, fallbackScopes []string) OAuthCredential {
	scopes := fallbackScopes
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		scopes = strings.Fields(raw)
	}

	return OAuthCredential{
		OwnerID:      owner,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
}
