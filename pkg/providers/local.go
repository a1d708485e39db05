package providers

import (
	"context"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/google/uuid"
)

// DevConfig configures the development login provider
type DevConfig struct {
	Enabled  bool   `yaml:"enabled"`
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Avatar   string `yaml:"avatar"`

	// GuildID is reported as the dev principal's guild
	GuildID string `yaml:"guild_id"`

	TokenLifetime time.Duration `yaml:"token_lifetime"`
}

// DevAdapter issues synthetic tokens for local development. It never touches the network.
type DevAdapter struct {
	config DevConfig
}

// NewDevAdapter creates a dev adapter
func NewDevAdapter(config DevConfig) *DevAdapter {
	if config.TokenLifetime <= 0 {
		config.TokenLifetime = DefaultTokenLifetime
	}
	return &DevAdapter{config: config}
}

// Principal returns the record a dev login creates
func (a *DevAdapter) Principal(now time.Time) *session.CredentialRecord {
	id := a.config.ID
	if id == "" {
		id = "dev-id"
	}
	username := a.config.Username
	if username == "" {
		username = "DevUser"
	}
	tokens := a.issue(now)
	return &session.CredentialRecord{
		ID:           id,
		Provider:     session.ProviderDev,
		DisplayName:  username,
		AvatarRef:    a.config.Avatar,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}
}

func (a *DevAdapter) Provider() session.Provider { return session.ProviderDev }
func (a *DevAdapter) Enabled() bool              { return a.config.Enabled }
func (a *DevAdapter) CheckName() string          { return "" }

func (a *DevAdapter) NeedsRefresh(rec *session.CredentialRecord, now time.Time) bool {
	return !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now)
}

// Refresh issues a new synthetic token
func (a *DevAdapter) Refresh(ctx context.Context, rec *session.CredentialRecord, now time.Time) (session.TokenSet, error) {
	return a.issue(now), nil
}

func (a *DevAdapter) issue(now time.Time) session.TokenSet {
	return session.TokenSet{
		AccessToken:  "dev-access-" + uuid.NewString(),
		RefreshToken: "dev-refresh-" + uuid.NewString(),
		ExpiresAt:    now.Add(a.config.TokenLifetime),
	}
}

// CheckAuthorization grants the dev principal the role
func (a *DevAdapter) CheckAuthorization(ctx context.Context, rec *session.CredentialRecord, in session.Input) session.Decision {
	return session.Granted(session.AuthorizationFacts{
		GuildID: a.config.GuildID,
		InGuild: a.config.GuildID != "",
		HasRole: true,
	})
}

// AdminConfig configures the local administrator provider
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AdminAdapter accepts local administrators only from private, non-proxied origins.
// Admin sessions carry no tokens.
type AdminAdapter struct {
	config AdminConfig
}

// NewAdminAdapter creates an admin adapter
func NewAdminAdapter(config AdminConfig) *AdminAdapter {
	return &AdminAdapter{config: config}
}

func (a *AdminAdapter) Provider() session.Provider { return session.ProviderAdmin }
func (a *AdminAdapter) Enabled() bool              { return a.config.Enabled }
func (a *AdminAdapter) CheckName() string          { return "" }

func (a *AdminAdapter) NeedsRefresh(rec *session.CredentialRecord, now time.Time) bool {
	return false
}

func (a *AdminAdapter) Refresh(ctx context.Context, rec *session.CredentialRecord, now time.Time) (session.TokenSet, error) {
	return session.TokenSet{}, &session.AdapterError{
		Provider: session.ProviderAdmin,
		Op:       "refresh",
		Class:    session.Permanent,
		Err:      errAdminNoTokens,
	}
}

// CheckAuthorization ends the session when the request arrives from a remote or proxied origin
func (a *AdminAdapter) CheckAuthorization(ctx context.Context, rec *session.CredentialRecord, in session.Input) session.Decision {
	if !in.Origin.IsLocal() {
		return session.Terminate(session.ReasonRemoteAccessDenied)
	}
	return session.Granted(session.AuthorizationFacts{HasRole: true})
}
