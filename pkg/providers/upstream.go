package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout bounds every upstream call
	DefaultTimeout = 10 * time.Second

	// DefaultTokenLifetime is assumed when a token response carries no expiry
	DefaultTokenLifetime = time.Hour

	maxErrorBody = 512
)

// UpstreamRecorder receives one event per upstream HTTP call
type UpstreamRecorder interface {
	ObserveUpstream(provider, op, status string, duration time.Duration)
}

type nopUpstreamRecorder struct{}

func (nopUpstreamRecorder) ObserveUpstream(string, string, string, time.Duration) {}

// Upstream performs bounded, classified HTTP calls to identity providers
type Upstream struct {
	client   *http.Client
	recorder UpstreamRecorder
}

// NewHTTPClient returns a client whose requests time out after timeout and are traced
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewUpstream wraps client. A nil client gets NewHTTPClient(DefaultTimeout).
func NewUpstream(client *http.Client, recorder UpstreamRecorder) *Upstream {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if recorder == nil {
		recorder = nopUpstreamRecorder{}
	}
	return &Upstream{client: client, recorder: recorder}
}

// Client returns the underlying HTTP client
func (u *Upstream) Client() *http.Client {
	return u.client
}

// doJSON performs req and decodes a 2xx JSON body into out. Failures come back as
// *session.AdapterError classified for stale-cache fallback.
func (u *Upstream) doJSON(ctx context.Context, provider session.Provider, op string, req *http.Request, out interface{}) error {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		u.recorder.ObserveUpstream(string(provider), op, "error", time.Since(start))
		return &session.AdapterError{Provider: provider, Op: op, Class: session.Transient, Err: err}
	}
	defer resp.Body.Close()
	u.recorder.ObserveUpstream(string(provider), op, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(provider, op, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &session.AdapterError{
			Provider:   provider,
			Op:         op,
			Class:      session.Transient,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

func statusError(provider session.Provider, op string, status int, body []byte) *session.AdapterError {
	ae := &session.AdapterError{
		Provider:   provider,
		Op:         op,
		Class:      session.Permanent,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected response: %s", string(body)),
	}
	switch {
	case status == http.StatusTooManyRequests:
		ae.Class = session.Transient
		ae.RateLimited = true
	case status >= 500:
		ae.Class = session.Transient
	}
	return ae
}

// refreshOAuth2 exchanges a refresh token at cfg's token endpoint. The returned raw token
// gives access to extra fields such as id_token.
func (u *Upstream) refreshOAuth2(ctx context.Context, provider session.Provider, cfg *oauth2.Config, refreshToken string, now time.Time, lifetime time.Duration) (session.TokenSet, *oauth2.Token, error) {
	if refreshToken == "" {
		return session.TokenSet{}, nil, &session.AdapterError{
			Provider: provider,
			Op:       "refresh",
			Class:    session.Permanent,
			Err:      errors.New("no refresh token stored"),
		}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, u.client)

	start := time.Now()
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			u.recorder.ObserveUpstream(string(provider), "refresh", strconv.Itoa(re.Response.StatusCode), time.Since(start))
			ae := statusError(provider, "refresh", re.Response.StatusCode, re.Body)
			ae.Err = err
			return session.TokenSet{}, nil, ae
		}
		u.recorder.ObserveUpstream(string(provider), "refresh", "error", time.Since(start))
		return session.TokenSet{}, nil, &session.AdapterError{Provider: provider, Op: "refresh", Class: session.Transient, Err: err}
	}
	u.recorder.ObserveUpstream(string(provider), "refresh", "200", time.Since(start))

	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	expiresAt := now.Add(lifetime)
	switch {
	case tok.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	case !tok.Expiry.IsZero():
		expiresAt = tok.Expiry
	}

	return session.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}, tok, nil
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func newGet(url string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return req, nil
}
