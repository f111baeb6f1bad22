package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTTL is the fallback TTL when the caller does not supply one.
const DefaultTTL = 5 * time.Minute

// ResponseToEntry converts an HTTP response to a cache Entry with the given
// TTL. The response body is restored after reading so the caller can still
// consume it.
func ResponseToEntry(resp *http.Response, ttl time.Duration) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	now := time.Now()
	return &Entry{
		Data:       body,
		ETag:       resp.Header.Get("ETag"),
		Expires:    now.Add(ttl),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   now,
	}, nil
}

// EntryToResponse converts a cache entry back to an HTTP response, used when
// a conditional request came back 304 Not Modified.
func EntryToResponse(entry *Entry) *http.Response {
	headers := entry.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}

	return &http.Response{
		StatusCode: entry.StatusCode,
		Status:     http.StatusText(entry.StatusCode),
		Header:     headers,
		Body:       io.NopCloser(bytes.NewReader(entry.Data)),
	}
}

// ShouldMakeConditionalRequest determines if the cache entry supports a
// conditional request.
func ShouldMakeConditionalRequest(entry *Entry) bool {
	return entry != nil && entry.ETag != ""
}

// AddConditionalHeaders adds the If-None-Match header to the request if the
// cache entry carries an ETag.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil {
		return
	}
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	}
}
