package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// DefaultPageSize is the page size used when none is configured.
// GitLab caps per_page at 100.
const DefaultPageSize = 100

// RestClient is the transport used for page/offset pagination.
// Implementations must apply their own timeouts and surface transport or
// protocol failures as errors; paginators never retry them.
type RestClient interface {
	SendRequest(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error)
}

// PagePaginator walks a page/offset style REST endpoint to completion.
// The endpoint exposes no explicit end marker: an empty page or a page
// shorter than the page size is the last one.
type PagePaginator struct {
	client   RestClient
	path     string
	pageSize int
	params   url.Values
	logger   zerolog.Logger
}

// NewPagePaginator creates a paginator for the given endpoint path.
// params are carried on every request; a non-positive pageSize falls back
// to DefaultPageSize.
func NewPagePaginator(client RestClient, path string, pageSize int, params url.Values, logger zerolog.Logger) *PagePaginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &PagePaginator{
		client:   client,
		path:     path,
		pageSize: pageSize,
		params:   params,
		logger:   logger.With().Str("path", path).Logger(),
	}
}

// Pages returns a lazy, finite, non-restartable sequence of record batches.
// Each iteration performs exactly one request. Transport errors terminate
// the sequence and are yielded to the caller.
func (p *PagePaginator) Pages(ctx context.Context) iter.Seq2[[]Record, error] {
	return func(yield func([]Record, error) bool) {
		page := 1

		for {
			params := url.Values{}
			for key, values := range p.params {
				params[key] = values
			}
			params.Set("page", fmt.Sprintf("%d", page))
			params.Set("per_page", fmt.Sprintf("%d", p.pageSize))

			p.logger.Debug().Int("page", page).Msg("Fetching page")

			raw, err := p.client.SendRequest(ctx, http.MethodGet, p.path, params)
			if err != nil {
				yield(nil, fmt.Errorf("fetch page %d of %s: %w", page, p.path, err))
				return
			}

			var batch []Record
			if err := json.Unmarshal(raw, &batch); err != nil {
				yield(nil, fmt.Errorf("%w: decode page %d of %s: %v", ErrMalformedResponse, page, p.path, err))
				return
			}

			if len(batch) == 0 {
				p.logger.Debug().Int("page", page).Msg("No more records to fetch")
				return
			}

			pagesFetchedTotal.WithLabelValues("rest").Inc()

			if !yield(batch, nil) {
				return
			}

			if len(batch) < p.pageSize {
				p.logger.Debug().Int("page", page).Int("items", len(batch)).Msg("Last page reached")
				return
			}

			page++
		}
	}
}
