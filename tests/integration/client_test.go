package integration

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/syncforge/gitlab-sync-client/internal/testutil"
	"github.com/syncforge/gitlab-sync-client/pkg/client"
	"github.com/syncforge/gitlab-sync-client/pkg/pagination"
	"github.com/syncforge/gitlab-sync-client/pkg/syncer"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newRedisClient(t *testing.T, mock *testutil.MockGitLab, redisClient *redis.Client) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(mock.URL(), "test-token")
	cfg.Redis = redisClient
	cfg.MaxRetries = 1
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
	})
	return c
}

// TestConditionalRequestFlow covers the full GET flow: cache miss, store
// with ETag, conditional revalidation, 304 served from cache.
func TestConditionalRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGitLab()
	defer mock.Close()

	const etag = `W/"groups-v1"`
	mock.SetHandler("/api/v4/groups", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "full_path": "org/a"}]`))
	})

	c := newRedisClient(t, mock, redisClient)
	ctx := context.Background()

	// Request 1: cache miss, fetches and stores.
	body1, err := c.SendRequest(ctx, http.MethodGet, "groups", nil)
	if err != nil {
		t.Fatalf("Request 1 failed: %v", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}

	// Wait for the cache write.
	time.Sleep(100 * time.Millisecond)

	// Request 2: revalidates with If-None-Match, 304 serves the cached body.
	body2, err := c.SendRequest(ctx, http.MethodGet, "groups", nil)
	if err != nil {
		t.Fatalf("Request 2 failed: %v", err)
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.GetRequestCount())
	}
	if mock.GetConditionalCount() != 1 {
		t.Errorf("conditional requests = %d, want 1", mock.GetConditionalCount())
	}
	if string(body1) != string(body2) {
		t.Errorf("cached body differs: %q vs %q", body1, body2)
	}
}

// TestRateLimitStateShared verifies that a critical RateLimit-Remaining
// header blocks the next request through the redis-shared state.
func TestRateLimitStateShared(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGitLab()
	defer mock.Close()

	mock.SetResponseHeader("RateLimit-Remaining", "5")
	mock.SetRESTPages("/api/v4/groups", `[{"id": 1}]`)

	c := newRedisClient(t, mock, redisClient)
	ctx := context.Background()

	// Request 1 passes on the default healthy state and learns the budget
	// is critical from the response headers.
	if _, err := c.SendRequest(ctx, http.MethodGet, "groups", nil); err != nil {
		t.Fatalf("Request 1 failed: %v", err)
	}

	// Request 2 is blocked before it is sent.
	_, err := c.SendRequest(ctx, http.MethodGet, "groups", nil)
	if !errors.Is(err, client.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1 (second request never sent)", mock.GetRequestCount())
	}
}

// TestProjectSyncWithRedis runs the full project stream against the mock
// with caching and rate limiting enabled.
func TestProjectSyncWithRedis(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGitLab()
	defer mock.Close()

	mock.SetResponseHeader("RateLimit-Remaining", "1000")
	mock.SetGraphQLHandler(func(_ string, variables map[string]any) (string, int) {
		if variables["labelsCursor"] == "lc1" {
			return `{"data": {"projects": {
				"nodes": [{"id": "gid://gitlab/Project/1", "labels": {"nodes": [{"id": "l2"}], "pageInfo": {"hasNextPage": false, "endCursor": null}}}],
				"pageInfo": {"hasNextPage": false, "endCursor": null}
			}}}`, http.StatusOK
		}
		return `{"data": {"projects": {
			"nodes": [{"id": "gid://gitlab/Project/1", "labels": {"nodes": [{"id": "l1"}], "pageInfo": {"hasNextPage": true, "endCursor": "lc1"}}}],
			"pageInfo": {"hasNextPage": false, "endCursor": null}
		}}}`, http.StatusOK
	})

	c := newRedisClient(t, mock, redisClient)
	s := syncer.New(c, syncer.Config{MaxConcurrency: 4})

	var last []pagination.Record
	for batch, err := range s.Projects(context.Background()) {
		if err != nil {
			t.Fatalf("Projects failed: %v", err)
		}
		last = batch
	}

	if len(last) != 1 {
		t.Fatalf("final batch size = %d, want 1", len(last))
	}
	coll := last[0]["labels"].(map[string]any)
	nodes, _ := coll["nodes"].([]any)
	if len(nodes) != 2 {
		t.Errorf("merged labels = %d, want 2", len(nodes))
	}
}
