// Package sessionstore persists credential records between requests, keyed by the id in
// the session cookie. Backends: an in-process LRU, Redis, PostgreSQL and SQLite.
//
//	store, closer, err := sessionstore.Open(ctx, cfg.SessionStore)
//	if err != nil {
//		return err
//	}
//	defer closer.Close()
package sessionstore
