// Package session implements per-request validation of logged-in sessions.
//
// # Overview
//
// A CredentialRecord is loaded from the session store by the caller and handed to
// Validator.Validate together with the request time and network origin. The validator
// refreshes expired tokens, re-verifies authorization with the identity provider and
// returns a normalized AuthStatus plus a signal telling the caller whether to save or
// destroy the session.
//
// # Adapters
//
// Provider-specific behavior lives behind the Adapter interface:
//
//	validator, err := session.NewValidator(adapters, cache, session.ValidatorOptions{
//		CacheTTL: 5 * time.Minute,
//		Logger:   logger,
//	})
//
//	res := validator.Validate(ctx, rec, session.Input{Now: time.Now(), Origin: origin})
//	if res.Destroy {
//		store.Destroy(ctx, sid)
//	} else if res.Dirty() {
//		store.Save(ctx, sid, rec)
//	}
//
// # Authorization Cache
//
// Granted authorizations are cached per (provider, principal). A fresh entry skips the
// upstream call. A stale entry is only used when the provider is rate limiting or
// unreachable, in which case the status is marked degraded.
//
//	cache := session.NewMemoryCache(session.DefaultCacheSize, session.DefaultCacheRetention)
//	shared := session.NewRedisCache(redisClient, session.DefaultCacheRetention)
package session
