// Package pagination implements the paginated fetch engine for GitLab
// resources.
//
// Two wire styles are supported:
//   - page/offset REST pagination (PagePaginator): 1-based page numbers,
//     a short or empty page marks the end of the sequence
//   - cursor-based GraphQL pagination (CursorPaginator): opaque endCursor
//     tokens, hasNextPage marks continuation
//
// GraphQL records may themselves carry paginated collections (for example a
// project's labels). Those are discovered structurally via
// IsPaginatedCollection, paged by NestedFieldStream, and merged back into
// their parent records by Merger under a shared concurrency cap.
//
// Example usage:
//
//	sem := semaphore.NewWeighted(50)
//	paginator := pagination.NewCursorPaginator(gqlClient, query, "projects", nil, logger)
//	merger := pagination.NewMerger(sem, logger)
//	for batch, err := range paginator.Batches(ctx) {
//		if err != nil {
//			return err
//		}
//		merged := false
//		for snapshot := range merger.Snapshots(ctx, batch.Records, batch.Pairs) {
//			merged = true
//			emit(snapshot)
//		}
//		if !merged {
//			emit(batch.Records)
//		}
//	}
//
// All sequences are lazy and pull-driven: no request is issued until the
// consumer asks for the next element.
package pagination
