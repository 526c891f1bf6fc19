package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"bazario.org/user-service/internal/auth"
)

func newCacheTest(t *testing.T) (*Snapshots, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, WithTTL(time.Minute)), mr
}

func TestSnapshotRoundTrip(t *testing.T) {
	c, _ := newCacheTest(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "user-1"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(ctx, &auth.Snapshot{ID: "user-1", Email: "jo@example.com", Roles: []string{"customer"}})

	snap, ok := c.Get(ctx, "user-1")
	if !ok {
		t.Fatal("expected hit")
	}
	if snap.Email != "jo@example.com" || len(snap.Roles) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSnapshotInvalidate(t *testing.T) {
	c, _ := newCacheTest(t)
	ctx := context.Background()

	c.Set(ctx, &auth.Snapshot{ID: "user-1"})
	c.Invalidate(ctx, "user-1")

	if _, ok := c.Get(ctx, "user-1"); ok {
		t.Fatal("expected miss after invalidation")
	}
}

func TestSnapshotExpires(t *testing.T) {
	c, mr := newCacheTest(t)
	ctx := context.Background()

	c.Set(ctx, &auth.Snapshot{ID: "user-1"})
	mr.FastForward(2 * time.Minute)

	if _, ok := c.Get(ctx, "user-1"); ok {
		t.Fatal("expected miss after TTL")
	}
}

func TestSnapshotCorruptBlob(t *testing.T) {
	c, mr := newCacheTest(t)
	ctx := context.Background()

	mr.Set("users:snapshot:user-1", "{not json")

	if _, ok := c.Get(ctx, "user-1"); ok {
		t.Fatal("expected miss on corrupt blob")
	}
	if mr.Exists("users:snapshot:user-1") {
		t.Fatal("corrupt blob not dropped")
	}
}
