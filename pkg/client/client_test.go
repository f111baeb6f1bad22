package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultConfig(baseURL, "test-token")
	cfg.MaxRetries = 2
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Token: "t"}); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := New(Config{BaseURL: "https://gitlab.example.com"}); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestSendRequest_SetsHeaders(t *testing.T) {
	var gotToken, gotAgent, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("PRIVATE-TOKEN")
		gotAgent = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`[{"id": 1}]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	body, err := c.SendRequest(context.Background(), http.MethodGet, "projects", nil)
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("PRIVATE-TOKEN = %q, want test-token", gotToken)
	}
	if gotAgent == "" {
		t.Error("User-Agent should be set")
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want application/json", gotAccept)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
}

func TestSendRequest_BuildsAPIPath(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	// Trailing slash on the base URL must not produce a double slash.
	c := newTestClient(t, server.URL+"/")
	params := url.Values{"per_page": {"50"}}
	if _, err := c.SendRequest(context.Background(), http.MethodGet, "/groups/9/issues", params); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	if gotPath != "/api/v4/groups/9/issues" {
		t.Errorf("path = %q, want /api/v4/groups/9/issues", gotPath)
	}
	if gotQuery != "per_page=50" {
		t.Errorf("query = %q, want per_page=50", gotQuery)
	}
}

func TestSendRequest_ClientErrorNotRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "404 Project Not Found"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.SendRequest(context.Background(), http.MethodGet, "projects/404", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %s, want client", apiErr.ErrorClass)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 (4xx must not be retried)", got)
	}
}

func TestSendRequest_ServerErrorRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	if _, err := c.SendRequest(context.Background(), http.MethodGet, "projects", nil); err != nil {
		t.Fatalf("SendRequest failed after retry: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestSendRequest_RetryExhausted(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.SendRequest(context.Background(), http.MethodGet, "projects", nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("err = %v, want ErrRetryExhausted", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want MaxRetries attempts", got)
	}
}

func TestSendRequest_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := newTestClient(t, server.URL)
	_, err := c.SendRequest(ctx, http.MethodGet, "projects", nil)
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("err = %v, want ErrContextCancelled", err)
	}
}

func TestQuery_Success(t *testing.T) {
	var gotPath, gotContentType string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{"data": {"projects": {"nodes": []}}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	data, err := c.Query(context.Background(), "query Projects { projects { nodes { id } } }", map[string]any{"cursor": nil})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if gotPath != "/api/graphql" {
		t.Errorf("path = %q, want /api/graphql", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotPayload["query"] == "" {
		t.Error("request payload should carry the query document")
	}
	if _, ok := gotPayload["variables"]; !ok {
		t.Error("request payload should carry variables")
	}
	if _, ok := data["projects"]; !ok {
		t.Errorf("data = %v, want projects field", data)
	}
}

func TestQuery_GraphQLErrorsSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": null, "errors": [{"message": "Field 'bogus' doesn't exist"}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Query(context.Background(), "query { bogus }", nil)
	if err == nil {
		t.Fatal("expected error for GraphQL errors array")
	}
}

func TestQuery_RetriesRewindBody(t *testing.T) {
	var requests atomic.Int64
	var lastPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewDecoder(r.Body).Decode(&lastPayload)
		w.Write([]byte(`{"data": {}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	if _, err := c.Query(context.Background(), "query { projects }", nil); err != nil {
		t.Fatalf("Query failed after retry: %v", err)
	}

	if got := requests.Load(); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
	if lastPayload["query"] != "query { projects }" {
		t.Errorf("retried request lost its body: %v", lastPayload)
	}
}
