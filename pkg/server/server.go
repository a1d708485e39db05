package server

import (
	"context"
	"net/http"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/sessionstore"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCookieName     = "factindex.sid"
	DefaultLogoutRedirect = "/"
)

// SessionValidator validates one credential record per request. *session.Validator
// implements it.
type SessionValidator interface {
	Validate(ctx context.Context, rec *session.CredentialRecord, in session.Input) session.Result
}

// DevLogin issues development principals. *providers.DevAdapter implements it.
type DevLogin interface {
	Enabled() bool
	Principal(now time.Time) *session.CredentialRecord
}

// Config configures the session cookie and routes
type Config struct {
	CookieName   string        `yaml:"cookie_name"`
	CookieDomain string        `yaml:"cookie_domain"`
	CookieSecure bool          `yaml:"cookie_secure"`
	CookieMaxAge time.Duration `yaml:"cookie_max_age"`

	// LogoutRedirect is where GET /auth/logout sends the browser
	LogoutRedirect string `yaml:"logout_redirect"`
}

// Server wires the session store and the validator into HTTP handlers
type Server struct {
	validator SessionValidator
	store     sessionstore.Store
	dev       DevLogin
	config    Config
	logger    logrus.FieldLogger
	now       func() time.Time
}

// Option customizes a Server
type Option func(*Server)

// WithDevLogin enables GET /auth/dev/login
func WithDevLogin(dev DevLogin) Option {
	return func(s *Server) { s.dev = dev }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a server
func New(validator SessionValidator, store sessionstore.Store, cfg Config, logger logrus.FieldLogger, opts ...Option) *Server {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = sessionstore.DefaultMaxAge
	}
	if cfg.LogoutRedirect == "" {
		cfg.LogoutRedirect = DefaultLogoutRedirect
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		validator: validator,
		store:     store,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    id,
		Path:     "/",
		Domain:   s.config.CookieDomain,
		MaxAge:   int(s.config.CookieMaxAge / time.Second),
		Secure:   s.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.config.CookieDomain,
		MaxAge:   -1,
		Secure:   s.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionID returns the well-formed session id carried by r, if any
func (s *Server) sessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.config.CookieName)
	if err != nil || !sessionstore.ValidID(c.Value) {
		return "", false
	}
	return c.Value, true
}
