package pagination

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/rs/zerolog"
)

// GraphClient is the transport used for cursor-based pagination. Query
// executes a GraphQL document and returns the response data object; GraphQL
// errors must be surfaced as Go errors.
type GraphClient interface {
	Query(ctx context.Context, query string, variables map[string]any) (Record, error)
}

// Batch is one top-level page of records together with the nested field
// streams discovered on them, one Pair per (record, paginated field).
// Records without paginated fields contribute no pairs.
type Batch struct {
	Records []Record
	Pairs   []Pair
}

// CursorPaginator walks a cursor-paginated top-level GraphQL resource to
// completion. Each yielded batch carries the streams for every nested
// paginated collection found on its records.
type CursorPaginator struct {
	client        GraphClient
	query         string
	resourceField string
	variables     map[string]any
	logger        zerolog.Logger
}

// NewCursorPaginator creates a paginator for the named resource field of the
// given query. variables are merged into every request.
func NewCursorPaginator(client GraphClient, query, resourceField string, variables map[string]any, logger zerolog.Logger) *CursorPaginator {
	return &CursorPaginator{
		client:        client,
		query:         query,
		resourceField: resourceField,
		variables:     variables,
		logger:        logger.With().Str("resource", resourceField).Logger(),
	}
}

// Batches returns a lazy, finite, non-restartable sequence of batches.
// The sequence ends on an empty page or hasNextPage=false; a continuation
// declared without a token is reported as ErrMissingCursor rather than
// looping on a null cursor. Transport and malformed-response errors are
// fatal to the sequence.
func (p *CursorPaginator) Batches(ctx context.Context) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		var cursor any

		for {
			variables := map[string]any{"cursor": cursor}
			for key, value := range p.variables {
				variables[key] = value
			}

			data, err := p.client.Query(ctx, p.query, variables)
			if err != nil {
				yield(nil, fmt.Errorf("query %s: %w", p.resourceField, err))
				return
			}

			resource, ok := data[p.resourceField].(map[string]any)
			if !ok {
				yield(nil, fmt.Errorf("%w: resource field %q absent", ErrMalformedResponse, p.resourceField))
				return
			}

			records := asRecords(resource["nodes"])
			if len(records) == 0 {
				p.logger.Debug().Msg("No more records to fetch")
				return
			}

			pagesFetchedTotal.WithLabelValues("graphql").Inc()

			batch := &Batch{Records: records, Pairs: p.discoverPairs(records)}
			p.logger.Debug().
				Int("records", len(records)).
				Int("nested_streams", len(batch.Pairs)).
				Msg("Fetched batch")

			if !yield(batch, nil) {
				return
			}

			state := ParseCursor(resource["pageInfo"])
			if !state.HasNext {
				return
			}
			if state.EndCursor == "" {
				yield(nil, fmt.Errorf("%w: resource field %q", ErrMissingCursor, p.resourceField))
				return
			}
			cursor = state.EndCursor
		}
	}
}

// discoverPairs builds one stream per (record, paginated field). Fields are
// visited in sorted order so pair order is deterministic.
func (p *CursorPaginator) discoverPairs(records []Record) []Pair {
	var pairs []Pair
	for _, record := range records {
		for _, field := range slices.Sorted(maps.Keys(record)) {
			if !IsPaginatedCollection(record[field]) {
				continue
			}
			stream := newNestedFieldStream(p.client, p.query, p.resourceField, record, field, p.variables, p.logger)
			pairs = append(pairs, Pair{Parent: record, Stream: stream})
		}
	}
	return pairs
}
