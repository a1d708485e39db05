package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *session.CredentialRecord {
	granted := true
	return &session.CredentialRecord{
		ID:           "user-1",
		Provider:     session.ProviderDiscord,
		DisplayName:  "tester",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC),
		Authorization: &session.AuthorizationSnapshot{
			Facts:      session.AuthorizationFacts{GuildID: "g", InGuild: true, HasRole: true, GroupAccess: &granted},
			CapturedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

// exerciseStore runs the behaviour every Store must share
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	id := NewID()

	_, err := s.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	rec := testRecord()
	require.NoError(t, s.Save(ctx, id, rec))

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// Loads are independent copies
	got.AccessToken = "mutated"
	again, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "access", again.AccessToken)

	// Last save wins
	rec.AccessToken = "second"
	require.NoError(t, s.Save(ctx, id, rec))
	got, err = s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second", got.AccessToken)

	require.NoError(t, s.Destroy(ctx, id))
	_, err = s.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Destroy(ctx, id))
	assert.Error(t, s.Save(ctx, id, nil))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(Config{}))
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(Config{MaxAge: 20 * time.Millisecond})
	require.NoError(t, s.Save(context.Background(), "a", testRecord()))
	assert.Equal(t, 1, s.Len())

	assert.Eventually(t, func() bool {
		_, err := s.Load(context.Background(), "a")
		return errors.Is(err, ErrNotFound)
	}, time.Second, 10*time.Millisecond)
}

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(Config{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStore(t *testing.T) {
	s, _ := newMiniredisStore(t)
	exerciseStore(t, s)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestRedisStore_MaxAge(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc", testRecord()))
	assert.Equal(t, time.Hour, mr.TTL("sess:abc"))

	mr.FastForward(2 * time.Hour)
	_, err := s.Load(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	s, mr := newMiniredisStore(t)
	require.NoError(t, mr.Set("sess:bad", "{not json"))

	_, err := s.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("sess:bad"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedisStore(client, time.Hour)
	mr.Close()

	_, err := s.Load(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Error(t, s.Ping(context.Background()))
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(Config{RedisURL: "not-a-url"})
	assert.Error(t, err)
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLStore_SQLite(t *testing.T) {
	s, err := NewSQLStore(context.Background(), openSQLite(t), BackendSQLite, time.Hour)
	require.NoError(t, err)
	exerciseStore(t, s)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSQLStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLStore(ctx, openSQLite(t), BackendSQLite, time.Hour)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, "old", testRecord()))
	require.NoError(t, s.Save(ctx, "other", testRecord()))

	now = now.Add(2 * time.Hour)
	_, err = s.Load(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS auth_sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_auth_sessions_expires_at").WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewSQLStore(context.Background(), db, BackendPostgres, time.Hour)
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	mock.ExpectExec(`INSERT INTO auth_sessions \(id, data, expires_at, updated_at\) VALUES \(\$1, \$2, \$3, \$4\) ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("sid", sqlmock.AnyArg(), now.Add(time.Hour).Unix(), now.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Save(context.Background(), "sid", testRecord()))

	mock.ExpectQuery(`SELECT data, expires_at FROM auth_sessions WHERE id = \$1`).
		WithArgs("sid").
		WillReturnRows(sqlmock.NewRows([]string{"data", "expires_at"}).
			AddRow(`{"id":"user-1","provider":"discord"}`, now.Add(time.Hour).Unix()))
	rec, err := s.Load(context.Background(), "sid")
	require.NoError(t, err)
	assert.Equal(t, session.ProviderDiscord, rec.Provider)

	mock.ExpectQuery(`SELECT data, expires_at FROM auth_sessions`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(`SELECT data, expires_at FROM auth_sessions`).
		WithArgs("down").
		WillReturnError(errors.New("connection reset"))
	_, err = s.Load(context.Background(), "down")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	mock.ExpectExec(`DELETE FROM auth_sessions WHERE id = \$1`).WithArgs("sid").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Destroy(context.Background(), "sid"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLStore_Errors(t *testing.T) {
	_, err := NewSQLStore(context.Background(), nil, BackendSQLite, 0)
	assert.Error(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	_, err = NewSQLStore(context.Background(), db, BackendPostgres, 0)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: Config{}},
		{name: "memory", cfg: Config{Backend: BackendMemory}},
		{name: "redis", cfg: Config{Backend: BackendRedis, RedisURL: "redis://localhost:6379"}},
		{name: "redis without url", cfg: Config{Backend: BackendRedis}, wantErr: true},
		{name: "postgres without url", cfg: Config{Backend: BackendPostgres}, wantErr: true},
		{name: "sqlite", cfg: Config{Backend: BackendSQLite, DatabaseURL: "file:sessions.db"}},
		{name: "unknown", cfg: Config{Backend: "etcd"}, wantErr: true},
		{name: "negative max age", cfg: Config{MaxAge: -time.Second}, wantErr: true},
		{name: "sweep every", cfg: Config{SweepSchedule: "@every 5m"}},
		{name: "sweep cron spec", cfg: Config{SweepSchedule: "*/10 * * * *"}},
		{name: "bad sweep schedule", cfg: Config{SweepSchedule: "sometimes"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, closer, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	assert.NoError(t, closer.Close())

	s, closer, err = Open(ctx, Config{Backend: BackendSQLite, DatabaseURL: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	exerciseStore(t, s)
	assert.NoError(t, closer.Close())

	mr := miniredis.RunT(t)
	s, closer, err = Open(ctx, Config{Backend: BackendRedis, RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	assert.NoError(t, closer.Close())

	_, _, err = Open(ctx, Config{Backend: "etcd"})
	assert.Error(t, err)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(NewID()))
	assert.False(t, ValidID("../../etc/passwd"))
	assert.NotEqual(t, NewID(), NewID())
}
