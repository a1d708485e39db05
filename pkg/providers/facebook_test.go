package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	server *httptest.Server

	pages  [][]string
	status int
	calls  atomic.Int32
}

func newFakeGraph(t *testing.T, pages ...[]string) *fakeGraph {
	t.Helper()
	f := &fakeGraph{pages: pages, status: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/me/groups", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		assert.Equal(t, "Bearer fb-access", r.Header.Get("Authorization"))
		assert.Equal(t, appSecretProof("app-secret", "fb-access"), r.URL.Query().Get("appsecret_proof"))
		assert.Equal(t, "id,name", r.URL.Query().Get("fields"))

		if f.status != http.StatusOK {
			writeJSON(w, f.status, map[string]interface{}{"error": map[string]string{"message": "nope"}})
			return
		}

		page := 0
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		var data []map[string]string
		if page < len(f.pages) {
			for _, id := range f.pages[page] {
				data = append(data, map[string]string{"id": id, "name": "Group " + id})
			}
		}
		body := map[string]interface{}{"data": data}
		if page+1 < len(f.pages) {
			q := r.URL.Query()
			q.Set("page", fmt.Sprint(page+1))
			body["paging"] = map[string]string{"next": f.server.URL + r.URL.Path + "?" + q.Encode()}
		}
		writeJSON(w, http.StatusOK, body)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGraph) adapter(groups ...string) *FacebookAdapter {
	return NewFacebookAdapter(FacebookConfig{
		AppID:            "app-id",
		AppSecret:        "app-secret",
		CallbackURL:      "http://localhost/auth/facebook/callback",
		RequiredGroupIDs: groups,
		GraphURL:         f.server.URL + "/v19.0/",
	}, NewUpstream(NewHTTPClient(2*time.Second), nil))
}

func facebookRecord() *session.CredentialRecord {
	return &session.CredentialRecord{
		ID:          "fb-1",
		Provider:    session.ProviderFacebook,
		DisplayName: "FB User",
		AccessToken: "fb-access",
		ExpiresAt:   testNow.Add(30 * 24 * time.Hour),
	}
}

func numberedGroups(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return out
}

func TestFacebookAdapter_Groups(t *testing.T) {
	tests := []struct {
		name       string
		required   []string
		pages      [][]string
		status     int
		wantAuth   bool
		wantReason session.Reason
		wantCalls  int32
	}{
		{
			name:      "no groups required",
			wantAuth:  true,
			wantCalls: 0,
		},
		{
			name:      "all groups held",
			required:  []string{"g1", "g2"},
			pages:     [][]string{{"g2", "x", "g1"}},
			wantAuth:  true,
			wantCalls: 1,
		},
		{
			name:       "only some groups held",
			required:   []string{"g1", "g2"},
			pages:      [][]string{{"g1"}},
			wantReason: session.ReasonGroupAccessDenied,
			wantCalls:  1,
		},
		{
			name:      "group on second page",
			required:  []string{"late"},
			pages:     [][]string{numberedGroups("early", facebookGroupPageSize), {"late"}},
			wantAuth:  true,
			wantCalls: 2,
		},
		{
			name:       "graph unavailable",
			required:   []string{"g1"},
			status:     http.StatusBadGateway,
			wantReason: "group_fetch_failed",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeGraph(t, tt.pages...)
			if tt.status != 0 {
				fake.status = tt.status
			}
			v := newValidator(t, nil, fake.adapter(tt.required...))

			res := v.Validate(context.Background(), facebookRecord(), localInput(testNow))
			assert.Equal(t, tt.wantAuth, res.Status.Authenticated)
			assert.Equal(t, tt.wantReason, res.Status.Reason)
			assert.Equal(t, tt.wantCalls, fake.calls.Load())

			if tt.wantAuth && len(tt.required) > 0 {
				require.NotNil(t, res.Status.User.GroupAccess)
				assert.True(t, *res.Status.User.GroupAccess)
				assert.ElementsMatch(t, tt.required, res.Status.User.Groups)
			}
		})
	}
}

func TestFacebookAdapter_PageLimit(t *testing.T) {
	pages := make([][]string, facebookMaxGroupPages+2)
	for i := range pages {
		pages[i] = numberedGroups(fmt.Sprintf("p%d", i), facebookGroupPageSize)
	}
	fake := newFakeGraph(t, pages...)

	d := fake.adapter("never").CheckAuthorization(context.Background(), facebookRecord(), localInput(testNow))
	assert.Equal(t, session.DecisionDenied, d.Kind)
	assert.Equal(t, int32(facebookMaxGroupPages), fake.calls.Load())
}

func TestAppSecretProof(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("token"))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), appSecretProof("secret", "token"))
	assert.Len(t, appSecretProof("secret", "token"), 64)
	assert.NotEqual(t, appSecretProof("secret", "a"), appSecretProof("secret", "b"))
}

func TestFacebookConfig_Enabled(t *testing.T) {
	assert.False(t, FacebookConfig{AppID: "a", AppSecret: "b"}.Enabled())
	assert.True(t, FacebookConfig{AppID: "a", AppSecret: "b", CallbackURL: "c"}.Enabled())
}
