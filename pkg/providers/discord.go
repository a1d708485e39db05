package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"golang.org/x/oauth2"
)

const (
	DefaultDiscordAPIURL   = "https://discord.com/api"
	DefaultDiscordTokenURL = "https://discord.com/api/oauth2/token"
)

// DiscordScopes are requested at login and repeated on refresh
var DiscordScopes = []string{"identify", "guilds", "guilds.members.read"}

// DiscordConfig configures the Discord adapter
type DiscordConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	CallbackURL  string   `yaml:"callback_url"`
	GuildID      string   `yaml:"guild_id"`
	RoleIDs      []string `yaml:"role_ids"` // any one of these grants access
	APIURL       string   `yaml:"api_url"`
	TokenURL     string   `yaml:"token_url"`
}

// Enabled reports whether client credentials are configured
func (c DiscordConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Validate checks the configuration of an enabled adapter
func (c DiscordConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.GuildID == "" {
		return fmt.Errorf("discord guild_id is required")
	}
	return nil
}

// DiscordAdapter verifies guild membership and roles through the Discord REST API
type DiscordAdapter struct {
	config   DiscordConfig
	oauth2   *oauth2.Config
	upstream *Upstream
}

// NewDiscordAdapter creates a Discord adapter
func NewDiscordAdapter(config DiscordConfig, upstream *Upstream) *DiscordAdapter {
	if config.APIURL == "" {
		config.APIURL = DefaultDiscordAPIURL
	}
	if config.TokenURL == "" {
		config.TokenURL = DefaultDiscordTokenURL
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")

	return &DiscordAdapter{
		config: config,
		oauth2: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: config.CallbackURL,
			Scopes:      DiscordScopes,
		},
		upstream: upstream,
	}
}

func (a *DiscordAdapter) Provider() session.Provider { return session.ProviderDiscord }
func (a *DiscordAdapter) Enabled() bool              { return a.config.Enabled() }
func (a *DiscordAdapter) CheckName() string          { return "guild" }

// NeedsRefresh reports whether the access token has expired
func (a *DiscordAdapter) NeedsRefresh(rec *session.CredentialRecord, now time.Time) bool {
	return !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now)
}

// Refresh implements session.Adapter
func (a *DiscordAdapter) Refresh(ctx context.Context, rec *session.CredentialRecord, now time.Time) (session.TokenSet, error) {
	tokens, _, err := a.upstream.refreshOAuth2(ctx, session.ProviderDiscord, a.oauth2, rec.RefreshToken, now, DefaultTokenLifetime)
	return tokens, err
}

type discordGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type discordMember struct {
	Roles []string `json:"roles"`
}

// CheckAuthorization requires membership of the configured guild and, when role ids are
// configured, at least one of them.
func (a *DiscordAdapter) CheckAuthorization(ctx context.Context, rec *session.CredentialRecord, in session.Input) session.Decision {
	req, err := newGet(a.config.APIURL + "/users/@me/guilds")
	if err != nil {
		return session.Unavailable("guild", err)
	}

	var guilds []discordGuild
	if err := a.upstream.doJSON(ctx, session.ProviderDiscord, "guild", bearer(req, rec.AccessToken), &guilds); err != nil {
		return session.Unavailable("guild", err)
	}

	inGuild := false
	for _, g := range guilds {
		if g.ID == a.config.GuildID {
			inGuild = true
			break
		}
	}
	if !inGuild {
		return session.Denied(session.ReasonNotInGuild)
	}

	facts := session.AuthorizationFacts{
		GuildID: a.config.GuildID,
		InGuild: true,
		HasRole: true,
	}
	if len(a.config.RoleIDs) == 0 {
		return session.Granted(facts)
	}

	req, err = newGet(a.config.APIURL + "/users/@me/guilds/" + url.PathEscape(a.config.GuildID) + "/member")
	if err != nil {
		return session.Unavailable("member", err)
	}

	var member discordMember
	if err := a.upstream.doJSON(ctx, session.ProviderDiscord, "member", bearer(req, rec.AccessToken), &member); err != nil {
		return session.Unavailable("member", err)
	}

	facts.Roles = matchAny(a.config.RoleIDs, member.Roles)
	if len(facts.Roles) == 0 {
		return session.Denied(session.ReasonMissingRole)
	}
	return session.Granted(facts)
}

// matchAny returns the required ids present in held, in required order
func matchAny(required, held []string) []string {
	set := make(map[string]struct{}, len(held))
	for _, h := range held {
		set[h] = struct{}{}
	}

	var matched []string
	for _, r := range required {
		if _, ok := set[r]; ok {
			matched = append(matched, r)
		}
	}
	return matched
}
