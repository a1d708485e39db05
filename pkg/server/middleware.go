package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/contextkeys"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/httputil"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/observability"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/sessionstore"
	"github.com/sirupsen/logrus"
)

// SessionMiddleware loads the session named by the cookie, validates it and stores the
// resulting status in the request context. Sessions the validator ends are destroyed and
// their cookie cleared; refreshed or re-authorized records are saved back.
func (s *Server) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := observability.FromContext(ctx, s.logger)

		id, ok := s.sessionID(r)
		if !ok {
			next.ServeHTTP(w, r.WithContext(contextkeys.WithAuthStatus(ctx, session.Assemble(nil, session.Fail(session.ReasonNotLoggedIn)))))
			return
		}
		ctx = contextkeys.WithSessionID(ctx, id)

		rec, err := s.store.Load(ctx, id)
		switch {
		case errors.Is(err, sessionstore.ErrNotFound):
			s.clearCookie(w)
			rec = nil
		case err != nil:
			log.WithError(err).Error("Failed to load session")
			status := session.Assemble(nil, session.Fail(session.ReasonUnexpectedError))
			next.ServeHTTP(w, r.WithContext(contextkeys.WithAuthStatus(ctx, status)))
			return
		}

		res := s.validator.Validate(ctx, rec, session.Input{
			Now:    s.now(),
			Origin: httputil.OriginFromRequest(r),
		})

		if rec != nil {
			s.persist(ctx, log, w, id, rec, res)
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithAuthStatus(ctx, res.Status)))
	})
}

func (s *Server) persist(ctx context.Context, log logrus.FieldLogger, w http.ResponseWriter, id string, rec *session.CredentialRecord, res session.Result) {
	log = log.WithField("provider", rec.Provider)

	switch {
	case res.Destroy:
		if err := s.store.Destroy(ctx, id); err != nil {
			log.WithError(err).Error("Failed to destroy session")
		}
		s.clearCookie(w)
		log.WithField("reason", res.Status.Reason).Info("Session ended")
	case res.Dirty():
		if err := s.store.Save(ctx, id, rec); err != nil {
			log.WithError(err).Error("Failed to save session")
		}
	}
}

// StatusFromContext returns the auth status stored by SessionMiddleware. A request that
// never passed through it is not logged in.
func StatusFromContext(ctx context.Context) session.AuthStatus {
	if status, ok := ctx.Value(contextkeys.AuthStatusKey).(session.AuthStatus); ok {
		return status
	}
	return session.Assemble(nil, session.Fail(session.ReasonNotLoggedIn))
}

// RequireAuth rejects unauthenticated requests with 401 and the reason
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := StatusFromContext(r.Context())
		if !status.Authenticated {
			httputil.WriteUnauthorized(w, string(status.Reason))
			return
		}
		next.ServeHTTP(w, r)
	})
}
