package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// ErrNotFound is returned by Load when no live session exists for the id
var ErrNotFound = errors.New("session not found")

// DefaultMaxAge is how long an untouched session survives
const DefaultMaxAge = 7 * 24 * time.Hour

// Backend names a Store implementation
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Store persists credential records by session id. Every Load returns a fresh copy, so
// concurrent requests of one session never share a record; the last Save wins.
type Store interface {
	Load(ctx context.Context, id string) (*session.CredentialRecord, error)
	Save(ctx context.Context, id string, rec *session.CredentialRecord) error
	Destroy(ctx context.Context, id string) error
}

// Pinger is implemented by stores backed by a remote service
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects and configures a store backend
type Config struct {
	Backend Backend       `yaml:"backend"`
	MaxAge  time.Duration `yaml:"max_age"`

	// memory
	MemorySize int `yaml:"memory_size"`

	// redis
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`

	// postgres, sqlite
	DatabaseURL string `yaml:"database_url"`

	// SweepSchedule is the cron spec for purging expired rows. Defaults to DefaultSweepSchedule.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// Validate checks that the selected backend has what it needs
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("session store backend redis requires a redis url")
		}
	case BackendPostgres, BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("session store backend %s requires a database url", c.Backend)
		}
	default:
		return fmt.Errorf("unknown session store backend %q", c.Backend)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("session max age must not be negative")
	}
	if c.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
			return fmt.Errorf("invalid session sweep schedule %q: %w", c.SweepSchedule, err)
		}
	}
	return nil
}

// NewID returns a new random session id
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like an id returned by NewID
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func marshalRecord(rec *session.CredentialRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot save a nil record")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (*session.CredentialRecord, error) {
	var rec session.CredentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

func maxAgeOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultMaxAge
	}
	return d
}
