package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/go-redis/redis/v8"
)

// NewRedisClient connects to the Redis server named by cfg.RedisURL
func NewRedisClient(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps sessions in Redis. Every Save pushes the expiry out by maxAge.
type RedisStore struct {
	client redis.UniversalClient
	maxAge time.Duration
}

// NewRedisStore creates a store over client
func NewRedisStore(client redis.UniversalClient, maxAge time.Duration) *RedisStore {
	return &RedisStore{client: client, maxAge: maxAgeOrDefault(maxAge)}
}

func redisKey(id string) string {
	return fmt.Sprintf("sess:%s", id)
}

func (s *RedisStore) Load(ctx context.Context, id string) (*session.CredentialRecord, error) {
	key := redisKey(id)

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	rec, err := unmarshalRecord(data)
	if err != nil {
		s.client.Del(ctx, key)
		return nil, err
	}
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, rec *session.CredentialRecord) error {
	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(id), data, s.maxAge).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}
