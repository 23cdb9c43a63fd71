package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig holds Redis session store configuration
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	// TTL bounds how long a tenant session lives; zero means no expiry
	TTL time.Duration
}

// RedisStore persists tenant sessions in Redis
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store and verifies
// connectivity before returning
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB > 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: config.TTL}, nil
}

func sessionKey(tenantID string) string {
	return fmt.Sprintf("tenant_session:%s", tenantID)
}

// SetTenant stores the session for its tenant, replacing any previous one
func (s *RedisStore) SetTenant(ctx context.Context, session TenantSession) error {
	if session.TenantID == "" {
		return fmt.Errorf("tenant session missing tenant ID")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant session: %w", err)
	}

	return s.client.Set(ctx, sessionKey(session.TenantID), data, s.ttl).Err()
}

// GetTenant retrieves a tenant's session; nil without error on a miss
func (s *RedisStore) GetTenant(ctx context.Context, tenantID string) (*TenantSession, error) {
	key := sessionKey(tenantID)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session TenantSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		// Corrupt record is unrecoverable, drop it
		s.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal tenant session: %w", err)
	}

	return &session, nil
}

// DeleteTenant removes a tenant's session
func (s *RedisStore) DeleteTenant(ctx context.Context, tenantID string) error {
	return s.client.Del(ctx, sessionKey(tenantID)).Err()
}

// Ping checks Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
