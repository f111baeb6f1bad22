// Package client provides the GitLab HTTP transport with rate limiting,
// response caching, retries, and error classification. It implements the
// pagination package's RestClient and GraphClient interfaces.
package client

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/syncforge/gitlab-sync-client/pkg/cache"
	"github.com/syncforge/gitlab-sync-client/pkg/ratelimit"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glsync_requests_total",
		Help: "Total GitLab requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "glsync_request_duration_seconds",
		Help:    "GitLab request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glsync_errors_total",
		Help: "Total GitLab request errors by class",
	}, []string{"class"})
)

// Client is the GitLab API transport.
type Client struct {
	httpClient  *http.Client
	cache       *cache.Manager
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the GitLab instance (e.g. "https://gitlab.com").
	BaseURL string

	// Token is a personal or group access token with read_api scope.
	Token string

	// UserAgent header sent with every request.
	UserAgent string

	// Redis enables the response cache and shared rate-limit state.
	// When nil both layers are disabled and the client works standalone.
	Redis *redis.Client

	// RequestTimeout bounds every HTTP request.
	RequestTimeout time.Duration

	// MaxRetries is the attempt budget for retriable failures
	// (server, rate-limit, and network errors; never 4xx).
	MaxRetries int

	// CacheTTL is how long REST GET responses stay cached.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:        baseURL,
		Token:          token,
		UserAgent:      "gitlab-sync-client/0.1.0",
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
		CacheTTL:       5 * time.Minute,
	}
}

// New creates a new GitLab client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	logger := log.With().Str("component", "gitlab-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		config: cfg,
		logger: logger,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
	} else {
		logger.Debug().Msg("No redis configured, response cache and shared rate-limit state disabled")
	}

	return c, nil
}

// do performs an HTTP request with rate limiting, caching, and retry logic.
// All request paths (REST and GraphQL) funnel through here.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: rate-limit gate.
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, ErrRateLimited
		}
	}

	// Step 2: cache lookup, GET only.
	var cachedEntry *cache.Entry
	var cacheKey cache.Key
	cacheable := c.cache != nil && req.Method == http.MethodGet
	if cacheable {
		cacheKey = cache.Key{Endpoint: endpoint, QueryParams: req.URL.Query()}

		var err error
		cachedEntry, err = c.cache.Get(ctx, cacheKey)
		if err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}

		if cache.ShouldMakeConditionalRequest(cachedEntry) {
			cache.AddConditionalHeaders(req, cachedEntry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", cachedEntry.ETag).
				Msg("Making conditional request")
		}
	}

	// Step 3: auth and protocol headers.
	req.Header.Set("PRIVATE-TOKEN", c.config.Token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Step 4: execute with retry.
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.logger, c.config.MaxRetries, func() (ErrorClass, error) {
		// Rewind the body for re-sent requests (GraphQL POSTs).
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return ErrorClassNetwork, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return ErrorClassNetwork, err
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, r.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		if r.StatusCode >= 400 {
			class := classifyStatus(r.StatusCode)
			errorsTotal.WithLabelValues(string(class)).Inc()
			requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", r.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", r.StatusCode).
				Str("error_class", string(class)).
				Msg("GitLab request error")

			if shouldRetry(class) {
				r.Body.Close()
				return class, &APIError{
					StatusCode: r.StatusCode,
					ErrorClass: class,
					Message:    r.Status,
				}
			}

			// 4xx surfaces to the caller via the response.
			resp = r
			return "", nil
		}

		requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", r.StatusCode)).Inc()
		resp = r
		return "", nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	// Step 5: 304 Not Modified serves the cached body.
	if cacheable && resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		if err := c.cache.Touch(ctx, cacheKey, c.config.CacheTTL); err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache TTL")
		}

		resp.Body.Close()
		return cache.EntryToResponse(cachedEntry), nil
	}

	// Step 6: store fresh responses.
	if cacheable && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
