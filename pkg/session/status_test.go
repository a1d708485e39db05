package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemble(t *testing.T) {
	yes := true
	rec := &CredentialRecord{
		ID:           "1234",
		Provider:     ProviderDiscord,
		DisplayName:  "tester",
		AvatarRef:    "avatar-hash",
		AccessToken:  "secret-access",
		RefreshToken: "secret-refresh",
		ExpiresAt:    time.UnixMilli(1700000000000),
	}

	tests := []struct {
		name    string
		rec     *CredentialRecord
		outcome Outcome
		want    AuthStatus
	}{
		{
			name:    "success",
			rec:     rec,
			outcome: Success(AuthorizationFacts{GuildID: "g1", HasRole: true, GroupAccess: &yes}, false),
			want: AuthStatus{
				Authenticated: true,
				User: &Principal{
					ID:          "1234",
					Provider:    ProviderDiscord,
					Username:    "tester",
					Avatar:      "avatar-hash",
					Guild:       "g1",
					HasRole:     true,
					GroupAccess: &yes,
					ExpiresAt:   func() *int64 { v := int64(1700000000000); return &v }(),
				},
			},
		},
		{
			name:    "degraded success",
			rec:     &CredentialRecord{ID: "did:plc:x", Provider: ProviderBluesky, Handle: "someone.bsky.social"},
			outcome: Success(AuthorizationFacts{}, true),
			want: AuthStatus{
				Authenticated: true,
				Degraded:      true,
				User: &Principal{
					ID:       "did:plc:x",
					Provider: ProviderBluesky,
					Username: "someone.bsky.social",
					Handle:   "someone.bsky.social",
				},
			},
		},
		{
			name:    "denied",
			rec:     rec,
			outcome: Deny(ReasonMissingRole),
			want:    AuthStatus{Reason: ReasonMissingRole},
		},
		{
			name:    "failure",
			rec:     nil,
			outcome: Fail(ReasonNotLoggedIn),
			want:    AuthStatus{Reason: ReasonNotLoggedIn},
		},
		{
			name:    "failure without reason",
			rec:     rec,
			outcome: Outcome{Kind: OutcomeFailure},
			want:    AuthStatus{Reason: ReasonUnexpectedError},
		},
		{
			name:    "success without record",
			rec:     nil,
			outcome: Success(AuthorizationFacts{}, false),
			want:    AuthStatus{Reason: ReasonUnexpectedError},
		},
		{
			name:    "unknown kind",
			rec:     rec,
			outcome: Outcome{Kind: OutcomeKind(42)},
			want:    AuthStatus{Reason: ReasonUnexpectedError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assemble(tt.rec, tt.outcome))
		})
	}
}

func TestAssemble_NeverLeaksTokens(t *testing.T) {
	rec := &CredentialRecord{
		ID:           "1234",
		Provider:     ProviderGoogle,
		Email:        "a@example.org",
		AccessToken:  "ya29.secret-access",
		RefreshToken: "1//secret-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	data, err := json.Marshal(Assemble(rec, Success(AuthorizationFacts{Domain: "example.org"}, false)))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret-access")
	assert.NotContains(t, string(data), "secret-refresh")
	assert.Contains(t, string(data), `"authenticated":true`)
	assert.Contains(t, string(data), `"email":"a@example.org"`)
}

func TestAuthStatus_JSONShape(t *testing.T) {
	data, err := json.Marshal(AuthStatus{Reason: ReasonNotInGuild})
	require.NoError(t, err)
	assert.JSONEq(t, `{"authenticated":false,"reason":"not_in_guild"}`, string(data))
}

func TestReasons(t *testing.T) {
	assert.Equal(t, Reason("google_disabled"), DisabledReason(ProviderGoogle))
	assert.Equal(t, Reason("member_fetch_failed"), FetchFailedReason("member"))
}

func TestOrigin_IsLocal(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		proxied bool
		want    bool
	}{
		{"loopback v4", "127.0.0.1", false, true},
		{"loopback v6", "::1", false, true},
		{"private v4", "192.168.1.20", false, true},
		{"private 10/8", "10.2.3.4", false, true},
		{"mapped private", "::ffff:192.168.1.20", false, true},
		{"unique local v6", "fd00::1", false, true},
		{"public", "203.0.113.9", false, false},
		{"mapped public", "::ffff:8.8.8.8", false, false},
		{"proxied loopback", "127.0.0.1", true, false},
		{"invalid", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var addr netip.Addr
			if tt.addr != "" {
				addr = netip.MustParseAddr(tt.addr)
			}
			assert.Equal(t, tt.want, Origin{RemoteAddr: addr, Proxied: tt.proxied}.IsLocal())
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(&AdapterError{Class: Transient}))
	assert.False(t, IsTransient(&AdapterError{Class: Permanent}))
	assert.True(t, IsRateLimited(&AdapterError{RateLimited: true}))
	assert.False(t, IsRateLimited(errors.New("x")))

	d := Unavailable("group", &AdapterError{Class: Permanent, StatusCode: 400})
	assert.Equal(t, Reason("group_fetch_failed"), d.Reason)
	assert.False(t, d.Fallback)
}

func TestFallbackAvatar(t *testing.T) {
	a := FallbackAvatar("someone")
	assert.True(t, strings.HasPrefix(a, "data:image/svg+xml;base64,"))
	assert.Equal(t, a, FallbackAvatar("someone"))
	assert.NotEqual(t, a, FallbackAvatar("someone else"))
	assert.Equal(t, FallbackAvatar("unknown"), FallbackAvatar(""))

	svg, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(a, "data:image/svg+xml;base64,"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(svg), "<svg"))
	assert.True(t, strings.HasSuffix(string(svg), "</svg>"))
}

func TestAssemble_GoogleFallbackAvatar(t *testing.T) {
	rec := &CredentialRecord{ID: "google-sub", Provider: ProviderGoogle, DisplayName: "Someone"}
	status := Assemble(rec, Success(AuthorizationFacts{}, false))
	require.NotNil(t, status.User)
	assert.Equal(t, FallbackAvatar("Someone"), status.User.Avatar)

	rec.AvatarRef = "https://lh3.googleusercontent.com/a/photo"
	status = Assemble(rec, Success(AuthorizationFacts{}, false))
	assert.Equal(t, rec.AvatarRef, status.User.Avatar)

	other := &CredentialRecord{ID: "1", Provider: ProviderFacebook, DisplayName: "Someone"}
	status = Assemble(other, Success(AuthorizationFacts{}, false))
	assert.Empty(t, status.User.Avatar)
}
