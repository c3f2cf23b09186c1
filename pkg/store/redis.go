package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSessionKeyPrefix = "skedy:session"

// RedisSessionStore implements DurableSessionStore on Redis. Records are
// stored as JSON values with a TTL; ExtendTTL maps to EXPIRE.
type RedisSessionStore struct {
	client     redis.UniversalClient
	ownsClient bool
	keyPrefix  string
	ttl        time.Duration
}

type RedisSessionStoreParams struct {
	// Existing client. When provided, the store does not close it.
	Client redis.UniversalClient

	// URL used to create a dedicated client when Client is nil.
	// Example: redis://localhost:6379/0
	URL string

	// Optional key prefix. Defaults to "skedy:session".
	KeyPrefix string

	// TTL applied on every save. Zero means no expiration.
	TTL time.Duration
}

func NewRedisSessionStore(ctx context.Context, params RedisSessionStoreParams) (*RedisSessionStore, error) {
	client := params.Client
	ownsClient := false
	if client == nil {
		if strings.TrimSpace(params.URL) == "" {
			return nil, fmt.Errorf("redis client or url is required")
		}
		opts, err := redis.ParseURL(params.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opts)
		ownsClient = true
	}

	prefix := strings.TrimSpace(params.KeyPrefix)
	if prefix == "" {
		prefix = defaultSessionKeyPrefix
	}

	s := &RedisSessionStore{
		client:     client,
		ownsClient: ownsClient,
		keyPrefix:  prefix,
		ttl:        params.TTL,
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("redis is not reachable: %w", err)
	}
	return s, nil
}

func (s *RedisSessionStore) key(id, businessID string) string {
	return fmt.Sprintf("%s:%s:%s", s.keyPrefix, businessID, id)
}

func (s *RedisSessionStore) Save(ctx context.Context, rec *SessionRecord) error {
	if rec == nil || rec.ID == "" || rec.BusinessID == "" {
		return fmt.Errorf("session record requires id and business id")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID, rec.BusinessID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// Load returns (nil, nil) when no record exists.
func (s *RedisSessionStore) Load(ctx context.Context, id, businessID string) (*SessionRecord, error) {
	raw, err := s.client.Get(ctx, s.key(id, businessID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var rec SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &rec, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id, businessID string) error {
	if err := s.client.Del(ctx, s.key(id, businessID)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (s *RedisSessionStore) ExtendTTL(ctx context.Context, id, businessID string, seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("ttl seconds must be > 0")
	}
	if err := s.client.Expire(ctx, s.key(id, businessID), time.Duration(seconds)*time.Second).Err(); err != nil {
		return fmt.Errorf("extend session ttl %s: %w", id, err)
	}
	return nil
}

func (s *RedisSessionStore) Close() error {
	if s == nil || !s.ownsClient || s.client == nil {
		return nil
	}
	return s.client.Close()
}
