// Package syncer is the GitLab-facing facade: it binds the transport client
// to the pagination engine and exposes the resource streams a catalog sync
// consumes. Projects come from GraphQL with nested collections merged in;
// groups and group resources come from the REST API.
package syncer

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/syncforge/gitlab-sync-client/pkg/client"
	"github.com/syncforge/gitlab-sync-client/pkg/logging"
	"github.com/syncforge/gitlab-sync-client/pkg/pagination"
)

// validGroupResources are the REST collections exposed per group.
var validGroupResources = []string{"issues", "merge_requests", "labels"}

// resourceParams carries resource-specific request parameters.
var resourceParams = map[string]url.Values{
	"labels": {
		"with_counts":               {"true"},
		"include_descendant_groups": {"true"},
		"only_group_labels":         {"false"},
	},
}

// Config holds syncer configuration.
type Config struct {
	// MaxConcurrency caps in-flight nested page fetches. The cap is held by
	// a semaphore shared across all batches of this syncer.
	MaxConcurrency int

	// PageSize for REST pagination.
	PageSize int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 50,
		PageSize:       pagination.DefaultPageSize,
	}
}

// Syncer produces lazy batch streams of GitLab resources.
type Syncer struct {
	client   *client.Client
	merger   *pagination.Merger
	pageSize int
	logger   zerolog.Logger
}

// New creates a syncer with its own concurrency limiter.
func New(c *client.Client, cfg Config) *Syncer {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 50
	}
	return NewWithLimiter(c, cfg, semaphore.NewWeighted(int64(cfg.MaxConcurrency)))
}

// NewWithLimiter creates a syncer using a caller-provided limiter, so
// several syncers can share one concurrency cap.
func NewWithLimiter(c *client.Client, cfg Config, sem *semaphore.Weighted) *Syncer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = pagination.DefaultPageSize
	}

	logger := logging.NewLogger("syncer")

	return &Syncer{
		client:   c,
		merger:   pagination.NewMerger(sem, logger),
		pageSize: cfg.PageSize,
		logger:   logger,
	}
}

// Projects streams batches of projects from the GraphQL API. Projects carry
// their labels merged across all label pages; a batch whose records have no
// paginated fields is yielded exactly as fetched. Later snapshots of the
// same batch supersede earlier ones.
func (s *Syncer) Projects(ctx context.Context) iter.Seq2[[]pagination.Record, error] {
	return func(yield func([]pagination.Record, error) bool) {
		paginator := pagination.NewCursorPaginator(s.client, projectsQuery, "projects", nil, s.logger)

		for batch, err := range paginator.Batches(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}

			merged := false
			for snapshot := range s.merger.Snapshots(ctx, batch.Records, batch.Pairs) {
				merged = true
				if !yield(snapshot, nil) {
					return
				}
			}

			if !merged {
				// Nothing to merge for this batch, emit it as fetched.
				if !yield(batch.Records, nil) {
					return
				}
			}

			if ctx.Err() != nil {
				return
			}
		}
	}
}

// Groups streams batches of groups the token can see, via REST.
func (s *Syncer) Groups(ctx context.Context) iter.Seq2[[]pagination.Record, error] {
	params := url.Values{
		"min_access_level": {"30"},
		"all_available":    {"true"},
	}

	paginator := pagination.NewPagePaginator(s.client, "groups", s.pageSize, params, s.logger)
	return paginator.Pages(ctx)
}

// GroupResource streams batches of one group-scoped resource
// (issues, merge_requests, or labels).
func (s *Syncer) GroupResource(ctx context.Context, groupID, resourceType string) (iter.Seq2[[]pagination.Record, error], error) {
	if !slices.Contains(validGroupResources, resourceType) {
		return nil, fmt.Errorf("unsupported resource type: %s", resourceType)
	}

	path := fmt.Sprintf("groups/%s/%s", url.PathEscape(groupID), resourceType)
	paginator := pagination.NewPagePaginator(s.client, path, s.pageSize, resourceParams[resourceType], s.logger)
	return paginator.Pages(ctx), nil
}
