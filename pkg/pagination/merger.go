package pagination

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// FieldStream is one nested collection being paged for a single parent.
// NestedFieldStream is the production implementation.
type FieldStream interface {
	FieldName() string
	Next(ctx context.Context) (items []Record, ok bool, err error)
}

// Pair binds a parent record to one of its nested field streams.
type Pair struct {
	Parent Record
	Stream FieldStream
}

// Merger drives the nested field streams of one batch to exhaustion,
// merging arriving pages into their parent records. Streams advance in
// waves: every still-active stream is advanced once per wave, with total
// in-flight advances capped by the injected semaphore. The semaphore may be
// shared across mergers and sync runs; the cap then holds globally.
type Merger struct {
	sem    *semaphore.Weighted
	logger zerolog.Logger
}

// NewMerger creates a merger using the given concurrency limiter.
func NewMerger(sem *semaphore.Weighted, logger zerolog.Logger) *Merger {
	if sem == nil {
		panic("semaphore cannot be nil")
	}
	return &Merger{
		sem:    sem,
		logger: logger,
	}
}

// advance is the outcome of one stream step within a wave.
type advance struct {
	items []Record
	ok    bool
	err   error
}

// Snapshots merges nested pages into the batch and yields a copy of the
// whole batch after every wave that produced new items. Waves that merge
// nothing emit no snapshot. A batch without any pairs yields nothing; the
// caller falls back to the unmerged batch (absence of nested fields is not
// an error).
//
// Failure containment: a pair whose advance errors is dropped from the
// active set, its parent keeps the nested data merged so far and the field
// value is marked with "incomplete": true. Other pairs are unaffected.
// Exhausted pairs are dropped silently.
//
// Cancelling ctx stops new waves; advances of the current wave are allowed
// to finish. Within one parent's field, merged items preserve request
// order; across parents and fields no ordering is guaranteed.
func (m *Merger) Snapshots(ctx context.Context, batch []Record, pairs []Pair) iter.Seq[[]Record] {
	return func(yield func([]Record) bool) {
		if len(pairs) == 0 {
			return
		}

		active := slices.Clone(pairs)
		for len(active) > 0 {
			if ctx.Err() != nil {
				m.logger.Debug().
					Int("active_streams", len(active)).
					Msg("Merge cancelled between waves")
				return
			}

			results := make([]advance, len(active))
			var wg sync.WaitGroup
			for i, pair := range active {
				wg.Add(1)
				go func() {
					defer wg.Done()

					// Acquire a concurrency slot before the remote call,
					// release it as soon as the call resolves.
					if err := m.sem.Acquire(ctx, 1); err != nil {
						results[i] = advance{err: err}
						return
					}
					nestedInflight.Inc()
					items, ok, err := pair.Stream.Next(ctx)
					nestedInflight.Dec()
					m.sem.Release(1)

					results[i] = advance{items: items, ok: ok, err: err}
				}()
			}
			wg.Wait()
			mergeWavesTotal.Inc()

			var next []Pair
			updated := false
			for i, pair := range active {
				result := results[i]
				switch {
				case result.err != nil:
					m.logger.Warn().
						Err(result.err).
						Str("field", pair.Stream.FieldName()).
						Str("parent_id", pair.Parent.ID()).
						Msg("Nested stream failed, keeping partial data")
					markIncomplete(pair.Parent, pair.Stream.FieldName())
					streamsDroppedTotal.WithLabelValues("error").Inc()
				case !result.ok:
					// Exhausted.
				default:
					if len(result.items) > 0 {
						appendNodes(pair.Parent, pair.Stream.FieldName(), result.items)
						updated = true
					}
					next = append(next, pair)
				}
			}
			active = next

			if updated {
				snapshotsTotal.Inc()
				if !yield(snapshotBatch(batch)) {
					return
				}
			}
		}
	}
}

// appendNodes appends items to the parent's collection field, new items
// after old.
func appendNodes(parent Record, field string, items []Record) {
	coll, ok := parent[field].(map[string]any)
	if !ok {
		return
	}
	nodes, _ := coll["nodes"].([]any)
	for _, item := range items {
		nodes = append(nodes, map[string]any(item))
	}
	coll["nodes"] = nodes
}

// markIncomplete flags a collection field whose stream failed before
// exhaustion, so downstream consumers can tell partial data apart.
func markIncomplete(parent Record, field string) {
	if coll, ok := parent[field].(map[string]any); ok {
		coll["incomplete"] = true
	}
}

// snapshotBatch copies the batch so the yielded snapshot stays stable while
// later waves keep mutating the underlying records. Collection fields get
// fresh node slices; other values are shared.
func snapshotBatch(batch []Record) []Record {
	snapshot := make([]Record, len(batch))
	for i, record := range batch {
		snapshot[i] = snapshotRecord(record)
	}
	return snapshot
}

func snapshotRecord(record Record) Record {
	copied := make(Record, len(record))
	for key, value := range record {
		if !IsPaginatedCollection(value) {
			copied[key] = value
			continue
		}

		coll := value.(map[string]any)
		dup := make(map[string]any, len(coll))
		maps.Copy(dup, coll)
		if nodes, ok := coll["nodes"].([]any); ok {
			dup["nodes"] = slices.Clone(nodes)
		}
		copied[key] = dup
	}
	return copied
}
