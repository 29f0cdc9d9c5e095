package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"storyeditor/api/internal/story"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		Story: story.Story{
			Version:   12,
			Title:     "Launch",
			Current:   "p1",
			Selection: []string{"e1"},
			Pages: []story.Page{{
				ID:       "p1",
				Elements: []story.Element{{ID: "e1", Type: story.ElementShape}},
			}},
		},
		Fingerprint: "abc",
		Dirty:       true,
	}
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url", time.Hour); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestSaveAndLoadWorkingCopy(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, "story-1", sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "story-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Fingerprint != "abc" || !got.Dirty {
		t.Errorf("Load() = %+v", got)
	}
	if got.Story.Current != "p1" || len(got.Story.Selection) != 1 || got.Story.Selection[0] != "e1" {
		t.Errorf("editor state not kept: current=%q selection=%v", got.Story.Current, got.Story.Selection)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be stamped")
	}
}

func TestWorkingCopyExpires(t *testing.T) {
	store, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, "story-1", sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := store.Load(ctx, "story-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoadRefreshesTTL(t *testing.T) {
	store, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, "story-1", sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	s.FastForward(40 * time.Second)
	if _, err := store.Load(ctx, "story-1"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s.FastForward(40 * time.Second)
	if _, err := store.Load(ctx, "story-1"); err != nil {
		t.Fatalf("Load() after refresh error = %v", err)
	}
}

func TestDeleteWorkingCopy(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, "story-1", sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, "story-2", sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, "story-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "story-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(deleted) error = %v, want ErrNotFound", err)
	}
	if _, err := store.Load(ctx, "story-2"); err != nil {
		t.Fatalf("Load(story-2) error = %v", err)
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestMemoryStoreExpiresAndRefreshes(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Save(ctx, "story-1", sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	now = now.Add(50 * time.Second)
	if _, err := m.Load(ctx, "story-1"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	now = now.Add(50 * time.Second)
	if _, err := m.Load(ctx, "story-1"); err != nil {
		t.Fatalf("Load() after refresh error = %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.Load(ctx, "story-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() after expiry error = %v, want ErrNotFound", err)
	}
}
