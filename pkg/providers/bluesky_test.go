package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessionClient struct {
	mu      sync.Mutex
	session BlueskySession
	err     error
	calls   []string
}

func (s *stubSessionClient) RefreshSession(ctx context.Context, serviceURL, refreshJWT string) (BlueskySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, serviceURL+" "+refreshJWT)
	return s.session, s.err
}

func accessJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "did:plc:abc",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("pds-secret"))
	require.NoError(t, err)
	return signed
}

func enabledBlueskyConfig() BlueskyConfig {
	return BlueskyConfig{
		ClientMetadataURL: "https://example.org/client-metadata.json",
		JWKSURL:           "https://example.org/jwks.json",
		PrivateKey:        "private-key",
		KeyPairID:         "kid-1",
		CallbackURL:       "https://example.org/auth/bluesky/callback",
	}
}

func blueskyRecord(expiresAt time.Time) *session.CredentialRecord {
	return &session.CredentialRecord{
		ID:           "did:plc:abc",
		Provider:     session.ProviderBluesky,
		Handle:       "someone.bsky.social",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    expiresAt,
	}
}

func TestBlueskyAdapter_NeedsRefresh(t *testing.T) {
	a := NewBlueskyAdapter(enabledBlueskyConfig(), &stubSessionClient{})

	tests := []struct {
		name      string
		expiresIn time.Duration
		want      bool
	}{
		{"well before expiry", 10 * time.Minute, false},
		{"exactly at leeway", BlueskyRefreshLeeway, false},
		{"inside leeway", 30 * time.Second, true},
		{"expired", -time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.NeedsRefresh(blueskyRecord(testNow.Add(tt.expiresIn)), testNow))
		})
	}
}

func TestBlueskyAdapter_Refresh(t *testing.T) {
	exp := testNow.Add(2 * time.Hour).Truncate(time.Second)
	client := &stubSessionClient{session: BlueskySession{
		AccessJWT:  accessJWT(t, exp),
		RefreshJWT: "new-refresh",
		DID:        "did:plc:abc",
	}}
	v := newValidator(t, nil, NewBlueskyAdapter(enabledBlueskyConfig(), client))

	rec := blueskyRecord(testNow.Add(30 * time.Second))
	rec.ServiceEndpoint = "https://pds.example.org"
	res := v.Validate(context.Background(), rec, localInput(testNow))

	require.True(t, res.Status.Authenticated, "reason: %s", res.Status.Reason)
	assert.True(t, res.Refreshed)
	assert.Equal(t, "someone.bsky.social", res.Status.User.Username)
	assert.Equal(t, "new-refresh", rec.RefreshToken)
	assert.True(t, exp.Equal(rec.ExpiresAt))
	assert.Equal(t, []string{"https://pds.example.org old-refresh"}, client.calls)
}

func TestBlueskyAdapter_RefreshFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *stubSessionClient
		rec    func() *session.CredentialRecord
	}{
		{
			name:   "pds rejects",
			client: &stubSessionClient{err: errors.New("ExpiredToken")},
			rec:    func() *session.CredentialRecord { return blueskyRecord(testNow.Add(-time.Hour)) },
		},
		{
			name:   "different account",
			client: &stubSessionClient{session: BlueskySession{AccessJWT: "x", RefreshJWT: "y", DID: "did:plc:other"}},
			rec:    func() *session.CredentialRecord { return blueskyRecord(testNow.Add(-time.Hour)) },
		},
		{
			name:   "no refresh token",
			client: &stubSessionClient{},
			rec: func() *session.CredentialRecord {
				r := blueskyRecord(testNow.Add(-time.Hour))
				r.RefreshToken = ""
				return r
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newValidator(t, nil, NewBlueskyAdapter(enabledBlueskyConfig(), tt.client))
			rec := tt.rec()
			before := *rec

			res := v.Validate(context.Background(), rec, localInput(testNow))
			assert.False(t, res.Status.Authenticated)
			assert.Equal(t, session.ReasonTokenExpired, res.Status.Reason)
			assert.Equal(t, before, *rec)
		})
	}
}

func TestBlueskyAdapter_Disabled(t *testing.T) {
	cfg := enabledBlueskyConfig()
	cfg.KeyPairID = ""
	v := newValidator(t, nil, NewBlueskyAdapter(cfg, &stubSessionClient{}))

	res := v.Validate(context.Background(), blueskyRecord(testNow.Add(time.Hour)), localInput(testNow))
	assert.False(t, res.Status.Authenticated)
	assert.Equal(t, session.Reason("bluesky_disabled"), res.Status.Reason)
	assert.True(t, res.Destroy)
}

func TestXRPCClient_RefreshSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/xrpc/com.atproto.server.refreshSession", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good-refresh" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ExpiredToken"})
			return
		}
		writeJSON(w, http.StatusOK, BlueskySession{
			AccessJWT:  "a",
			RefreshJWT: "r",
			Handle:     "someone.bsky.social",
			DID:        "did:plc:abc",
		})
	}))
	defer server.Close()

	c := NewXRPCClient(NewUpstream(NewHTTPClient(time.Second), nil))

	s, err := c.RefreshSession(context.Background(), server.URL+"/", "good-refresh")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:abc", s.DID)
	assert.Equal(t, "r", s.RefreshJWT)

	_, err = c.RefreshSession(context.Background(), server.URL, "stale-refresh")
	require.Error(t, err)
	assert.False(t, session.IsTransient(err))
}

func TestAccessTokenExpiry(t *testing.T) {
	exp := testNow.Add(90 * time.Minute).Truncate(time.Second)
	assert.True(t, exp.Equal(accessTokenExpiry(accessJWT(t, exp), testNow)))
	assert.Equal(t, testNow.Add(DefaultTokenLifetime), accessTokenExpiry("not-a-jwt", testNow))
}
