package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestManager connects to a local redis and skips the test when none is
// running. Integration coverage against a containerized redis lives in
// tests/integration.
func newTestManager(t *testing.T) *Manager {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return NewManager(client)
}

func testKey(t *testing.T) Key {
	return Key{Endpoint: fmt.Sprintf("/api/v4/test/%s", t.Name())}
}

func TestManager_SetGetRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	key := testKey(t)
	defer m.Delete(ctx, key)

	entry := &Entry{
		Data:       []byte(`[{"id": 1}]`),
		ETag:       `W/"abc"`,
		Expires:    time.Now().Add(time.Minute),
		StatusCode: 200,
		CachedAt:   time.Now(),
	}

	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != `[{"id": 1}]` {
		t.Errorf("Data = %q", got.Data)
	}
	if got.ETag != `W/"abc"` {
		t.Errorf("ETag = %q", got.ETag)
	}
}

func TestManager_GetMiss(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Get(context.Background(), testKey(t)); err != ErrCacheMiss {
		t.Errorf("err = %v, want ErrCacheMiss", err)
	}
}

func TestManager_ExpiredEntryNotStored(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	key := testKey(t)

	entry := &Entry{
		Data:    []byte(`stale`),
		Expires: time.Now().Add(-time.Minute),
	}
	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("err = %v, want ErrCacheMiss for an already expired entry", err)
	}
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	key := testKey(t)

	entry := &Entry{Data: []byte(`x`), Expires: time.Now().Add(time.Minute)}
	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("err = %v, want ErrCacheMiss after delete", err)
	}
}

func TestManager_TouchExtendsExpiry(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	key := testKey(t)
	defer m.Delete(ctx, key)

	entry := &Entry{Data: []byte(`x`), Expires: time.Now().Add(2 * time.Second)}
	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := m.Touch(ctx, key, time.Minute); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TTL() < 30*time.Second {
		t.Errorf("TTL = %v, want extended past 30s", got.TTL())
	}
}
