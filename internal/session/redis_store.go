// Package session keeps the working copy of each open story between
// requests: the edited document and the fingerprint clients must echo back.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"storyeditor/api/internal/story"
)

var ErrNotFound = errors.New("working copy not found or expired")

// Snapshot is one stored working copy. Dirty is set once an action changed
// the story since it was last saved.
type Snapshot struct {
	Story       story.Story `json:"story"`
	Fingerprint string      `json:"fingerprint"`
	Dirty       bool        `json:"dirty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Store is implemented by RedisStore and MemoryStore.
type Store interface {
	Save(ctx context.Context, storyID string, snapshot Snapshot) error
	Load(ctx context.Context, storyID string) (Snapshot, error)
	Delete(ctx context.Context, storyID string) error
}

const defaultTTL = 24 * time.Hour

// RedisStore implements working copy storage using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed working copy store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "story:working:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(storyID string) string {
	return s.prefix + storyID
}

func (s *RedisStore) Save(ctx context.Context, storyID string, snapshot Snapshot) error {
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal working copy: %w", err)
	}
	if err := s.client.Set(ctx, s.key(storyID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save working copy: %w", err)
	}
	return nil
}

// Load returns the working copy and extends its expiry.
func (s *RedisStore) Load(ctx context.Context, storyID string) (Snapshot, error) {
	key := s.key(storyID)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load working copy: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal working copy: %w", err)
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return Snapshot{}, fmt.Errorf("refresh working copy ttl: %w", err)
	}
	return snapshot, nil
}

func (s *RedisStore) Delete(ctx context.Context, storyID string) error {
	if err := s.client.Del(ctx, s.key(storyID)).Err(); err != nil {
		return fmt.Errorf("delete working copy: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type memoryEntry struct {
	expiresAt time.Time
	snapshot  Snapshot
}

// MemoryStore keeps working copies in process. It is used when no Redis URL
// is configured and loses everything on restart.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Save(_ context.Context, storyID string, snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = now.UTC()
	}
	m.entries[storyID] = memoryEntry{expiresAt: now.Add(m.ttl), snapshot: snapshot}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, storyID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	entry, ok := m.entries[storyID]
	if !ok || now.After(entry.expiresAt) {
		delete(m.entries, storyID)
		return Snapshot{}, ErrNotFound
	}
	entry.expiresAt = now.Add(m.ttl)
	m.entries[storyID] = entry
	return entry.snapshot, nil
}

func (m *MemoryStore) Delete(_ context.Context, storyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, storyID)
	return nil
}
