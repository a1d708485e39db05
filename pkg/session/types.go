package session

import "time"

// Provider identifies the identity provider that issued a credential
type Provider string

const (
	ProviderDiscord  Provider = "discord"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderBluesky  Provider = "bluesky"
	ProviderDev      Provider = "dev"
	ProviderAdmin    Provider = "admin"
)

// KnownProviders lists every provider tag the engine recognizes
var KnownProviders = []Provider{
	ProviderDiscord,
	ProviderGoogle,
	ProviderFacebook,
	ProviderBluesky,
	ProviderDev,
	ProviderAdmin,
}

// Known reports whether p is one of the recognized provider tags
func (p Provider) Known() bool {
	for _, known := range KnownProviders {
		if p == known {
			return true
		}
	}
	return false
}

// AuthorizationFacts are the authorization facts last verified for a principal
type AuthorizationFacts struct {
	GuildID     string   `json:"guild_id,omitempty"`
	InGuild     bool     `json:"in_guild,omitempty"`
	HasRole     bool     `json:"has_role,omitempty"`
	Roles       []string `json:"roles,omitempty"`  // matched role ids
	Groups      []string `json:"groups,omitempty"` // matched group ids
	GroupAccess *bool    `json:"group_access,omitempty"`
	Domain      string   `json:"domain,omitempty"` // Google hosted domain
}

// AuthorizationSnapshot records facts together with the instant they were captured
type AuthorizationSnapshot struct {
	Facts      AuthorizationFacts `json:"facts"`
	CapturedAt time.Time          `json:"captured_at"`
}

// CredentialRecord is the persisted representation of a logged-in principal.
//
// One record exists per session and is owned by the session store. Provider-specific
// fields are optional and documented per provider; fields a provider does not use stay empty.
type CredentialRecord struct {
	ID       string   `json:"id"`
	Provider Provider `json:"provider"`

	DisplayName string `json:"display_name,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`

	// Email is set for google and facebook principals.
	Email string `json:"email,omitempty"`

	// Handle and ServiceEndpoint are set for bluesky principals. ServiceEndpoint is the
	// PDS that issued the session tokens.
	Handle          string `json:"handle,omitempty"`
	ServiceEndpoint string `json:"service_endpoint,omitempty"`

	// AccessToken and RefreshToken are empty for admin and synthetic for dev.
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`

	Authorization *AuthorizationSnapshot `json:"authorization,omitempty"`
}

// TokenSet is the credential material produced by a successful refresh
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// apply writes the token set into the record. An empty refresh token keeps the stored one.
func (t TokenSet) apply(rec *CredentialRecord) {
	rec.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		rec.RefreshToken = t.RefreshToken
	}
	rec.ExpiresAt = t.ExpiresAt
}

// Reason is a machine-readable cause for an unauthenticated status
type Reason string

const (
	ReasonNotLoggedIn        Reason = "not_logged_in"
	ReasonUnknownProvider    Reason = "unknown_provider"
	ReasonTokenExpired       Reason = "token_expired"
	ReasonNotInGuild         Reason = "not_in_guild"
	ReasonMissingRole        Reason = "missing_role"
	ReasonGroupAccessDenied  Reason = "group_access_denied"
	ReasonRemoteAccessDenied Reason = "remote_access_denied"
	ReasonUnexpectedError    Reason = "unexpected_error"
)

// DisabledReason returns the reason reported when a provider is switched off
func DisabledReason(p Provider) Reason {
	return Reason(string(p) + "_disabled")
}

// FetchFailedReason returns the reason reported when an upstream check could not complete
func FetchFailedReason(check string) Reason {
	return Reason(check + "_fetch_failed")
}

// Principal is the public-safe view of a credential record
type Principal struct {
	ID          string   `json:"id"`
	Provider    Provider `json:"provider"`
	Username    string   `json:"username,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	Email       string   `json:"email,omitempty"`
	Handle      string   `json:"handle,omitempty"`
	Guild       string   `json:"guild,omitempty"`
	HasRole     bool     `json:"hasRole,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	GroupAccess *bool    `json:"groupAccess,omitempty"`
	ExpiresAt   *int64   `json:"expiresAt,omitempty"` // unix milliseconds
}

// AuthStatus is the per-request authentication outcome handed to route handlers
type AuthStatus struct {
	Authenticated bool       `json:"authenticated"`
	User          *Principal `json:"user,omitempty"`
	Reason        Reason     `json:"reason,omitempty"`
	Degraded      bool       `json:"degraded,omitempty"`
}
