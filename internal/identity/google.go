package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"gallery-app/internal/apperr"
)

const googleIssuer = "https://accounts.google.com"

// GoogleProfile is the verified subset of a Google ID token.
type GoogleProfile struct {
	Subject string
	Email   string
	Name    string
}

type googleIDClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
}

// GoogleAuth runs the OAuth2 code flow against Google and verifies the
// returned ID token with OIDC.
type GoogleAuth struct {
	oauth *oauth2.Config

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func NewGoogleAuth(clientID, clientSecret, redirectURL string) *GoogleAuth {
	return &GoogleAuth{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

// RandomState returns an unguessable value for the OAuth2 state parameter.
func RandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (g *GoogleAuth) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for tokens and returns the verified
// profile carried by the ID token.
func (g *GoogleAuth) Exchange(ctx context.Context, code string) (*GoogleProfile, error) {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Unauthenticated("failed to exchange authorization code")
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, apperr.Unauthenticated("missing id_token")
	}

	v, err := g.idVerifier(ctx)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	idToken, err := v.Verify(ctx, raw)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid id_token")
	}

	var c googleIDClaims
	if err := idToken.Claims(&c); err != nil {
		return nil, apperr.Unauthenticated("failed to decode id_token claims")
	}
	if c.Sub == "" || c.Email == "" {
		return nil, apperr.Unauthenticated("id_token is missing subject or email")
	}
	if !c.EmailVerified {
		return nil, apperr.Unauthenticated("google email is not verified")
	}
	return &GoogleProfile{Subject: c.Sub, Email: c.Email, Name: firstNonEmpty(c.Name, c.GivenName)}, nil
}

func (g *GoogleAuth) idVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifier != nil {
		return g.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery: %w", err)
	}
	g.verifier = provider.Verifier(&oidc.Config{ClientID: g.oauth.ClientID})
	return g.verifier, nil
}
