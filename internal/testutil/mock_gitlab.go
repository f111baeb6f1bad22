// Package testutil provides testing utilities for the GitLab sync client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// GraphQLHandler computes a mock GraphQL response from the decoded request.
// It returns the response body and HTTP status code.
type GraphQLHandler func(query string, variables map[string]any) (body string, status int)

// MockGitLab is a configurable mock GitLab server for testing. It serves
// page/offset REST pagination under /api/v4 and scripted GraphQL responses
// under /api/graphql.
type MockGitLab struct {
	server *httptest.Server

	mu        sync.RWMutex
	restPages map[string][]string
	handlers  map[string]http.HandlerFunc
	graphql   GraphQLHandler
	headers   map[string]string

	// Tracking
	RequestCount      int
	GraphQLCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	LastVariables     map[string]any
}

// NewMockGitLab creates a new mock GitLab server.
func NewMockGitLab() *MockGitLab {
	mock := &MockGitLab{
		restPages: make(map[string][]string),
		handlers:  make(map[string]http.HandlerFunc),
		headers:   make(map[string]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.route))
	return mock
}

// URL returns the base URL of the mock server.
func (m *MockGitLab) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitLab) Close() {
	m.server.Close()
}

// SetRESTPages configures the page sequence served for a REST path
// (e.g. "/api/v4/groups"). Each element is one page's JSON array; requests
// beyond the last configured page get an empty array.
func (m *MockGitLab) SetRESTPages(path string, pages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restPages[path] = pages
}

// SetGraphQLHandler installs the handler for /api/graphql requests.
func (m *MockGitLab) SetGraphQLHandler(fn GraphQLHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphql = fn
}

// SetHandler installs a raw handler for a path, overriding the built-in
// REST pagination behavior.
func (m *MockGitLab) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponseHeader adds a header to every response, e.g. rate limit
// headers.
func (m *MockGitLab) SetResponseHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// GetRequestCount returns the total number of requests received.
func (m *MockGitLab) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetGraphQLCount returns the number of GraphQL requests received.
func (m *MockGitLab) GetGraphQLCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.GraphQLCount
}

// GetConditionalCount returns the number of requests carrying an
// If-None-Match header.
func (m *MockGitLab) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

func (m *MockGitLab) route(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" {
		m.ConditionalCount++
	}
	for key, value := range m.headers {
		w.Header().Set(key, value)
	}
	m.mu.Unlock()

	if r.URL.Path == "/api/graphql" {
		m.serveGraphQL(w, r)
		return
	}

	m.mu.RLock()
	handler, exists := m.handlers[r.URL.Path]
	m.mu.RUnlock()
	if exists {
		handler(w, r)
		return
	}

	m.serveREST(w, r)
}

func (m *MockGitLab) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"errors":[{"message":"invalid request body"}]}`, http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.GraphQLCount++
	m.LastVariables = payload.Variables
	handler := m.graphql
	m.mu.Unlock()

	if handler == nil {
		http.Error(w, `{"errors":[{"message":"no graphql handler configured"}]}`, http.StatusInternalServerError)
		return
	}

	body, status := handler(payload.Query, payload.Variables)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (m *MockGitLab) serveREST(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	pages, exists := m.restPages[r.URL.Path]
	m.mu.RUnlock()

	if !exists {
		http.Error(w, `{"message":"404 Not Found"}`, http.StatusNotFound)
		return
	}

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
			page = n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if page > len(pages) {
		w.Write([]byte("[]"))
		return
	}
	w.Write([]byte(pages[page-1]))
}
