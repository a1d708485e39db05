package server

import (
	"net/http"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/contextkeys"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/httputil"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/observability"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/sessionstore"
	"github.com/gorilla/mux"
)

// RegisterRoutes registers the auth routes on router. Every route runs behind
// SessionMiddleware except logout and dev login, which manage the session themselves.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.Handle("/auth/status", s.SessionMiddleware(http.HandlerFunc(s.getStatus))).Methods("GET")
	router.Handle("/auth/{provider}/me", s.SessionMiddleware(http.HandlerFunc(s.getMe))).Methods("GET")

	router.HandleFunc("/auth/logout", s.logout).Methods("GET", "POST")
	router.HandleFunc("/auth/{provider}/logout", s.logout).Methods("GET", "POST")

	if s.dev != nil && s.dev.Enabled() {
		router.HandleFunc("/auth/dev/login", s.devLogin).Methods("GET")
	}
}

// Protect wraps h so it only runs for authenticated sessions
func (s *Server) Protect(h http.Handler) http.Handler {
	return s.SessionMiddleware(RequireAuth(h))
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StatusFromContext(r.Context()))
}

// getMe returns the principal when the session belongs to the provider in the path
func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "provider")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	provider := session.Provider(name)
	if !provider.Known() {
		httputil.WriteNotFoundError(w, string(session.ReasonUnknownProvider))
		return
	}

	status := StatusFromContext(r.Context())
	if !status.Authenticated {
		httputil.WriteUnauthorized(w, string(status.Reason))
		return
	}
	if status.User == nil || status.User.Provider != provider {
		httputil.WriteUnauthorized(w, string(session.ReasonNotLoggedIn))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status.User)
}

// logout destroys the session. Browsers get a redirect, API clients a 204.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id, ok := s.sessionID(r); ok {
		if err := s.store.Destroy(ctx, id); err != nil {
			observability.FromContext(ctx, s.logger).WithError(err).Error("Failed to destroy session on logout")
		}
	}
	s.clearCookie(w)

	if r.Method == http.MethodGet {
		http.Redirect(w, r, s.config.LogoutRedirect, http.StatusFound)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) devLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.FromContext(ctx, s.logger)

	if !s.dev.Enabled() {
		httputil.WriteNotFoundError(w, string(session.DisabledReason(session.ProviderDev)))
		return
	}

	// A fresh id on every login; any previous session is dropped.
	if old, ok := s.sessionID(r); ok {
		if err := s.store.Destroy(ctx, old); err != nil {
			log.WithError(err).Warn("Failed to drop previous session")
		}
	}

	id := sessionstore.NewID()
	rec := s.dev.Principal(s.now())
	if err := s.store.Save(contextkeys.WithSessionID(ctx, id), id, rec); err != nil {
		log.WithError(err).Error("Failed to save dev session")
		httputil.WriteInternalError(w)
		return
	}
	s.setCookie(w, id)
	log.WithField("principal_id", rec.ID).Info("Dev login")

	http.Redirect(w, r, "/", http.StatusFound)
}
