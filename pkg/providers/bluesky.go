package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultBlueskyServiceURL = "https://bsky.social"

	// BlueskyRefreshLeeway triggers a refresh this long before the access token expires
	BlueskyRefreshLeeway = 60 * time.Second
)

// BlueskyConfig configures the Bluesky adapter. The OAuth client settings are only
// used to decide whether the provider is enabled; login happens elsewhere.
type BlueskyConfig struct {
	ClientMetadataURL string `yaml:"client_metadata_url"`
	JWKSURL           string `yaml:"jwks_url"`
	PrivateKey        string `yaml:"private_key"`
	KeyPairID         string `yaml:"key_pair_id"`
	CallbackURL       string `yaml:"callback_url"`

	// ServiceURL is used for records that carry no service endpoint
	ServiceURL string `yaml:"service_url"`
}

// Enabled reports whether every required Bluesky setting is present
func (c BlueskyConfig) Enabled() bool {
	return c.ClientMetadataURL != "" && c.JWKSURL != "" && c.PrivateKey != "" &&
		c.KeyPairID != "" && c.CallbackURL != ""
}

// BlueskySession is the token pair returned by a PDS
type BlueskySession struct {
	AccessJWT  string `json:"accessJwt"`
	RefreshJWT string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	DID        string `json:"did"`
}

// SessionClient refreshes AT Protocol sessions
type SessionClient interface {
	RefreshSession(ctx context.Context, serviceURL, refreshJWT string) (BlueskySession, error)
}

// XRPCClient calls com.atproto.server.refreshSession on the session's PDS
type XRPCClient struct {
	upstream *Upstream
}

// NewXRPCClient creates a SessionClient over upstream
func NewXRPCClient(upstream *Upstream) *XRPCClient {
	return &XRPCClient{upstream: upstream}
}

// RefreshSession implements SessionClient
func (c *XRPCClient) RefreshSession(ctx context.Context, serviceURL, refreshJWT string) (BlueskySession, error) {
	endpoint := strings.TrimRight(serviceURL, "/") + "/xrpc/com.atproto.server.refreshSession"
	req, err := http.NewRequest(http.MethodPost, endpoint, nil)
	if err != nil {
		return BlueskySession{}, fmt.Errorf("failed to build request: %w", err)
	}

	var out BlueskySession
	if err := c.upstream.doJSON(ctx, session.ProviderBluesky, "refresh", bearer(req, refreshJWT), &out); err != nil {
		return BlueskySession{}, err
	}
	return out, nil
}

// BlueskyAdapter keeps AT Protocol sessions alive. Bluesky has no upstream
// authorization check.
type BlueskyAdapter struct {
	config BlueskyConfig
	client SessionClient
}

// NewBlueskyAdapter creates a Bluesky adapter
func NewBlueskyAdapter(config BlueskyConfig, client SessionClient) *BlueskyAdapter {
	if config.ServiceURL == "" {
		config.ServiceURL = DefaultBlueskyServiceURL
	}
	return &BlueskyAdapter{config: config, client: client}
}

func (a *BlueskyAdapter) Provider() session.Provider { return session.ProviderBluesky }
func (a *BlueskyAdapter) Enabled() bool              { return a.config.Enabled() }
func (a *BlueskyAdapter) CheckName() string          { return "" }

// NeedsRefresh is true from one minute before expiry onwards
func (a *BlueskyAdapter) NeedsRefresh(rec *session.CredentialRecord, now time.Time) bool {
	return now.After(rec.ExpiresAt.Add(-BlueskyRefreshLeeway))
}

// Refresh implements session.Adapter
func (a *BlueskyAdapter) Refresh(ctx context.Context, rec *session.CredentialRecord, now time.Time) (session.TokenSet, error) {
	if rec.RefreshToken == "" {
		return session.TokenSet{}, &session.AdapterError{
			Provider: session.ProviderBluesky,
			Op:       "refresh",
			Class:    session.Permanent,
			Err:      errors.New("no refresh token stored"),
		}
	}

	serviceURL := rec.ServiceEndpoint
	if serviceURL == "" {
		serviceURL = a.config.ServiceURL
	}

	s, err := a.client.RefreshSession(ctx, serviceURL, rec.RefreshToken)
	if err != nil {
		return session.TokenSet{}, err
	}
	if s.DID != "" && s.DID != rec.ID {
		return session.TokenSet{}, &session.AdapterError{
			Provider: session.ProviderBluesky,
			Op:       "refresh",
			Class:    session.Permanent,
			Err:      fmt.Errorf("refreshed session belongs to %s", s.DID),
		}
	}

	return session.TokenSet{
		AccessToken:  s.AccessJWT,
		RefreshToken: s.RefreshJWT,
		ExpiresAt:    accessTokenExpiry(s.AccessJWT, now),
	}, nil
}

// CheckAuthorization grants any principal holding a live session
func (a *BlueskyAdapter) CheckAuthorization(ctx context.Context, rec *session.CredentialRecord, in session.Input) session.Decision {
	return session.Granted(session.AuthorizationFacts{})
}

// accessTokenExpiry reads exp from an access JWT without verifying it. The PDS that
// issued the token is the only party that verifies it.
func accessTokenExpiry(accessJWT string, now time.Time) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessJWT, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return now.Add(DefaultTokenLifetime)
}
