package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// OpenDB opens the database named by cfg.DatabaseURL for the postgres or sqlite backend
func OpenDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	var driver string
	switch cfg.Backend {
	case BackendPostgres:
		driver = "postgres"
	case BackendSQLite:
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("backend %q is not a SQL backend", cfg.Backend)
	}

	db, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}
	if cfg.Backend == BackendSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}
	return db, nil
}

// SQLStore keeps sessions in a PostgreSQL or SQLite table
type SQLStore struct {
	db       *sql.DB
	maxAge   time.Duration
	postgres bool
	now      func() time.Time
}

// NewSQLStore creates a store over db and makes sure the sessions table exists
func NewSQLStore(ctx context.Context, db *sql.DB, backend Backend, maxAge time.Duration) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &SQLStore{
		db:       db,
		maxAge:   maxAgeOrDefault(maxAge),
		postgres: backend == BackendPostgres,
		now:      time.Now,
	}
	if err := s.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure auth_sessions table: %w", err)
	}
	return s, nil
}

func (s *SQLStore) ensureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS auth_sessions (
			id VARCHAR(64) PRIMARY KEY,
			data TEXT NOT NULL,
			expires_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_sessions_expires_at ON auth_sessions(expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Load(ctx context.Context, id string) (*session.CredentialRecord, error) {
	var (
		data      string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT data, expires_at FROM auth_sessions WHERE id = ?`), id,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if expiresAt <= s.now().Unix() {
		if err := s.Destroy(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return unmarshalRecord([]byte(data))
}

func (s *SQLStore) Save(ctx context.Context, id string, rec *session.CredentialRecord) error {
	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO auth_sessions (id, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`),
		id, string(data), now.Add(s.maxAge).Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLStore) Destroy(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM auth_sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// DeleteExpired removes every expired session and returns how many were removed
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM auth_sessions WHERE expires_at <= ?`), s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying connection pool
func (s *SQLStore) DB() *sql.DB {
	return s.db
}
