package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	DefaultGoogleIssuer      = "https://accounts.google.com"
	DefaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	DefaultGoogleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	DefaultGoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// GoogleConfig configures the Google adapter
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`

	// AllowedDomains restricts access to Google Workspace hosted domains. Empty allows
	// any Google account and disables the upstream check.
	AllowedDomains []string `yaml:"allowed_domains"`

	Issuer      string `yaml:"issuer"`
	TokenURL    string `yaml:"token_url"`
	JWKSURL     string `yaml:"jwks_url"`
	UserInfoURL string `yaml:"userinfo_url"`
}

// Enabled reports whether every required Google setting is present
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.CallbackURL != ""
}

// GoogleAdapter refreshes Google tokens and optionally enforces a hosted domain
type GoogleAdapter struct {
	config   GoogleConfig
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	upstream *Upstream
}

// NewGoogleAdapter creates a Google adapter
func NewGoogleAdapter(config GoogleConfig, upstream *Upstream) *GoogleAdapter {
	if config.Issuer == "" {
		config.Issuer = DefaultGoogleIssuer
	}
	if config.TokenURL == "" {
		config.TokenURL = DefaultGoogleTokenURL
	}
	if config.JWKSURL == "" {
		config.JWKSURL = DefaultGoogleJWKSURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = DefaultGoogleUserInfoURL
	}

	keyCtx := oidc.ClientContext(context.Background(), upstream.Client())
	keySet := oidc.NewRemoteKeySet(keyCtx, config.JWKSURL)

	return &GoogleAdapter{
		config: config,
		oauth2: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: config.TokenURL},
			RedirectURL:  config.CallbackURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: oidc.NewVerifier(config.Issuer, keySet, &oidc.Config{ClientID: config.ClientID}),
		upstream: upstream,
	}
}

func (a *GoogleAdapter) Provider() session.Provider { return session.ProviderGoogle }
func (a *GoogleAdapter) Enabled() bool              { return a.config.Enabled() }

// CheckName is "userinfo" when hosted domains are enforced
func (a *GoogleAdapter) CheckName() string {
	if len(a.config.AllowedDomains) == 0 {
		return ""
	}
	return "userinfo"
}

func (a *GoogleAdapter) NeedsRefresh(rec *session.CredentialRecord, now time.Time) bool {
	return !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now)
}

// Refresh exchanges the refresh token and, when Google returns a new ID token, checks
// that it is genuine and names the same subject.
func (a *GoogleAdapter) Refresh(ctx context.Context, rec *session.CredentialRecord, now time.Time) (session.TokenSet, error) {
	tokens, raw, err := a.upstream.refreshOAuth2(ctx, session.ProviderGoogle, a.oauth2, rec.RefreshToken, now, DefaultTokenLifetime)
	if err != nil {
		return session.TokenSet{}, err
	}

	rawIDToken, _ := raw.Extra("id_token").(string)
	if rawIDToken == "" {
		return tokens, nil
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return session.TokenSet{}, &session.AdapterError{
			Provider: session.ProviderGoogle,
			Op:       "refresh",
			Class:    session.Permanent,
			Err:      fmt.Errorf("failed to verify id_token: %w", err),
		}
	}
	if idToken.Subject != rec.ID {
		return session.TokenSet{}, &session.AdapterError{
			Provider: session.ProviderGoogle,
			Op:       "refresh",
			Class:    session.Permanent,
			Err:      fmt.Errorf("id_token subject %q does not match session", idToken.Subject),
		}
	}
	return tokens, nil
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	HostedDomain  string `json:"hd"`
}

// CheckAuthorization enforces the hosted domain allow-list when one is configured
func (a *GoogleAdapter) CheckAuthorization(ctx context.Context, rec *session.CredentialRecord, in session.Input) session.Decision {
	if len(a.config.AllowedDomains) == 0 {
		return session.Granted(session.AuthorizationFacts{})
	}

	req, err := newGet(a.config.UserInfoURL)
	if err != nil {
		return session.Unavailable("userinfo", err)
	}

	var info googleUserInfo
	if err := a.upstream.doJSON(ctx, session.ProviderGoogle, "userinfo", bearer(req, rec.AccessToken), &info); err != nil {
		return session.Unavailable("userinfo", err)
	}

	// A token answering for another account is refused without judging group access
	if info.Sub != "" && info.Sub != rec.ID {
		return session.Denied(session.ReasonUnexpectedError)
	}

	for _, d := range a.config.AllowedDomains {
		if strings.EqualFold(d, info.HostedDomain) {
			return session.Granted(session.AuthorizationFacts{Domain: info.HostedDomain})
		}
	}
	return session.Denied(session.ReasonGroupAccessDenied)
}
