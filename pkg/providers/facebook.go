package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"golang.org/x/oauth2"
)

const (
	DefaultFacebookGraphURL = "https://graph.facebook.com/v19.0"

	facebookGroupPageSize = 200
	facebookMaxGroupPages = 5
)

// FacebookConfig configures the Facebook adapter
type FacebookConfig struct {
	AppID       string `yaml:"app_id"`
	AppSecret   string `yaml:"app_secret"`
	CallbackURL string `yaml:"callback_url"`

	// RequiredGroupIDs must all be present in the user's groups
	RequiredGroupIDs []string `yaml:"required_group_ids"`

	GraphURL string `yaml:"graph_url"`
	TokenURL string `yaml:"token_url"`
}

// Enabled reports whether every required Facebook setting is present
func (c FacebookConfig) Enabled() bool {
	return c.AppID != "" && c.AppSecret != "" && c.CallbackURL != ""
}

// FacebookAdapter checks Facebook group membership through the Graph API
type FacebookAdapter struct {
	config   FacebookConfig
	oauth2   *oauth2.Config
	upstream *Upstream
}

// NewFacebookAdapter creates a Facebook adapter
func NewFacebookAdapter(config FacebookConfig, upstream *Upstream) *FacebookAdapter {
	if config.GraphURL == "" {
		config.GraphURL = DefaultFacebookGraphURL
	}
	config.GraphURL = strings.TrimRight(config.GraphURL, "/")
	if config.TokenURL == "" {
		config.TokenURL = config.GraphURL + "/oauth/access_token"
	}

	return &FacebookAdapter{
		config: config,
		oauth2: &oauth2.Config{
			ClientID:     config.AppID,
			ClientSecret: config.AppSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: config.CallbackURL,
			Scopes:      []string{"email", "groups_access_member_info"},
		},
		upstream: upstream,
	}
}

func (a *FacebookAdapter) Provider() session.Provider { return session.ProviderFacebook }
func (a *FacebookAdapter) Enabled() bool              { return a.config.Enabled() }

// CheckName is "group" when group membership is required
func (a *FacebookAdapter) CheckName() string {
	if len(a.config.RequiredGroupIDs) == 0 {
		return ""
	}
	return "group"
}

func (a *FacebookAdapter) NeedsRefresh(rec *session.CredentialRecord, now time.Time) bool {
	return !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now)
}

// Refresh implements session.Adapter
func (a *FacebookAdapter) Refresh(ctx context.Context, rec *session.CredentialRecord, now time.Time) (session.TokenSet, error) {
	tokens, _, err := a.upstream.refreshOAuth2(ctx, session.ProviderFacebook, a.oauth2, rec.RefreshToken, now, DefaultTokenLifetime)
	return tokens, err
}

type facebookGroupPage struct {
	Data []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// CheckAuthorization requires every configured group
func (a *FacebookAdapter) CheckAuthorization(ctx context.Context, rec *session.CredentialRecord, in session.Input) session.Decision {
	if len(a.config.RequiredGroupIDs) == 0 {
		return session.Granted(session.AuthorizationFacts{})
	}

	held, err := a.fetchGroups(ctx, rec.AccessToken)
	if err != nil {
		return session.Unavailable("group", err)
	}

	matched := matchAny(a.config.RequiredGroupIDs, held)
	access := len(matched) == len(a.config.RequiredGroupIDs)
	if !access {
		return session.Denied(session.ReasonGroupAccessDenied)
	}
	return session.Granted(session.AuthorizationFacts{
		Groups:      matched,
		GroupAccess: &access,
	})
}

func (a *FacebookAdapter) fetchGroups(ctx context.Context, accessToken string) ([]string, error) {
	q := url.Values{}
	q.Set("fields", "id,name")
	q.Set("limit", "200")
	q.Set("appsecret_proof", appSecretProof(a.config.AppSecret, accessToken))
	next := a.config.GraphURL + "/me/groups?" + q.Encode()

	var ids []string
	for page := 0; next != "" && page < facebookMaxGroupPages; page++ {
		req, err := newGet(next)
		if err != nil {
			return nil, err
		}

		var resp facebookGroupPage
		if err := a.upstream.doJSON(ctx, session.ProviderFacebook, "group", bearer(req, accessToken), &resp); err != nil {
			return nil, err
		}
		for _, g := range resp.Data {
			ids = append(ids, g.ID)
		}
		if len(resp.Data) < facebookGroupPageSize {
			break
		}
		next = resp.Paging.Next
	}
	return ids, nil
}

// appSecretProof signs an access token for Graph API calls made with app secret proof enabled
func appSecretProof(appSecret, accessToken string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}
