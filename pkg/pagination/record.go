package pagination

import (
	"errors"
)

// Common errors returned by paginators.
var (
	// ErrMissingCursor is returned when a response declares hasNextPage but
	// carries no continuation token. For top-level pagination this is fatal;
	// nested streams treat it as exhaustion instead.
	ErrMissingCursor = errors.New("hasNextPage set but endCursor missing")

	// ErrMalformedResponse is returned when an expected field or shape is
	// absent from a response.
	ErrMalformedResponse = errors.New("malformed response")
)

// Record is one remote entity as decoded JSON.
type Record map[string]any

// ID returns the record's "id" field, or "" if absent.
// GitLab GraphQL ids are global id strings (gid://gitlab/Project/1).
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// CursorState describes the position within one paginated sequence.
type CursorState struct {
	// EndCursor is the opaque continuation token for the next page.
	EndCursor string

	// HasNext indicates whether more pages exist.
	HasNext bool
}

// ParseCursor extracts a CursorState from a pageInfo object.
// Missing or malformed fields decode to the zero value (no continuation).
func ParseCursor(v any) CursorState {
	info, ok := v.(map[string]any)
	if !ok {
		return CursorState{}
	}

	var state CursorState
	if hasNext, ok := info["hasNextPage"].(bool); ok {
		state.HasNext = hasNext
	}
	if cursor, ok := info["endCursor"].(string); ok {
		state.EndCursor = cursor
	}
	return state
}

// IsPaginatedCollection reports whether a field value is shaped like an
// independently paginated collection: an object exposing both a "nodes"
// list and a "pageInfo" cursor state. The check is structural, no schema
// knowledge is required.
func IsPaginatedCollection(v any) bool {
	coll, ok := v.(map[string]any)
	if !ok {
		return false
	}
	if _, ok := coll["nodes"]; !ok {
		return false
	}
	_, ok = coll["pageInfo"]
	return ok
}

// collectionNodes returns the "nodes" of a collection-shaped value as Records.
func collectionNodes(coll map[string]any) []Record {
	if coll == nil {
		return nil
	}
	return asRecords(coll["nodes"])
}

// asRecords converts a decoded JSON array into Records, skipping entries
// that are not objects.
func asRecords(v any) []Record {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, Record(obj))
		}
	}
	return records
}
