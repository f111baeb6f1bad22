package pagination

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// NestedFieldStream pages through one paginated collection field of a single
// parent record. The first page rode along with the parent fetch, so the
// stream serves it without a request; every later page is re-queried with a
// field-scoped cursor variable ("<field>Cursor") and located in the response
// by matching the parent id among the returned siblings.
type NestedFieldStream struct {
	client        GraphClient
	query         string
	resourceField string
	field         string
	parentID      string
	variables     map[string]any
	logger        zerolog.Logger

	fieldData map[string]any
	first     []Record
	cursor    CursorState
	primed    bool
	done      bool
}

func newNestedFieldStream(client GraphClient, query, resourceField string, parent Record, field string, variables map[string]any, logger zerolog.Logger) *NestedFieldStream {
	fieldData, _ := parent[field].(map[string]any)

	return &NestedFieldStream{
		client:        client,
		query:         query,
		resourceField: resourceField,
		field:         field,
		parentID:      parent.ID(),
		variables:     variables,
		logger:        logger,
		fieldData:     fieldData,
		first:         collectionNodes(fieldData),
		cursor:        ParseCursor(fieldData["pageInfo"]),
	}
}

// FieldName returns the name of the collection field this stream pages.
func (s *NestedFieldStream) FieldName() string {
	return s.field
}

// Next advances the stream by one page. ok=false signals exhaustion; a
// non-nil error also ends the stream (calling Next again returns exhausted).
// A continuation declared without a token cannot be followed, so it is
// logged and reported as exhaustion rather than as an error.
func (s *NestedFieldStream) Next(ctx context.Context) (items []Record, ok bool, err error) {
	if s.done {
		return nil, false, nil
	}

	if !s.primed {
		s.primed = true
		if !s.cursor.HasNext {
			s.done = true
		}
		// Detach page one from the parent: every page, including this one,
		// re-enters through the merger, so items are never double-counted.
		if s.fieldData != nil && len(s.first) > 0 {
			s.fieldData["nodes"] = []any{}
		}
		return s.first, true, nil
	}

	if !s.cursor.HasNext {
		s.done = true
		return nil, false, nil
	}

	if s.cursor.EndCursor == "" {
		s.logger.Error().
			Str("field", s.field).
			Str("parent_id", s.parentID).
			Msg("Missing cursor for nested field pagination")
		streamsDroppedTotal.WithLabelValues("missing_cursor").Inc()
		s.done = true
		return nil, false, nil
	}

	s.logger.Debug().
		Str("field", s.field).
		Str("parent_id", s.parentID).
		Msg("Fetching nested field page")

	variables := map[string]any{s.field + "Cursor": s.cursor.EndCursor}
	for key, value := range s.variables {
		variables[key] = value
	}

	data, err := s.client.Query(ctx, s.query, variables)
	if err != nil {
		s.done = true
		return nil, false, fmt.Errorf("fetch %s for %s: %w", s.field, s.parentID, err)
	}

	resource, found := data[s.resourceField].(map[string]any)
	if !found {
		s.done = true
		return nil, false, fmt.Errorf("%w: resource field %q absent", ErrMalformedResponse, s.resourceField)
	}

	// The response repeats the sibling records of the parent's page; find
	// the parent by id before reading its field data.
	var fieldData map[string]any
	for _, sibling := range asRecords(resource["nodes"]) {
		if sibling.ID() == s.parentID {
			fieldData, _ = sibling[s.field].(map[string]any)
			break
		}
	}
	if fieldData == nil {
		s.done = true
		return nil, false, fmt.Errorf("%w: parent %s not found in %s page", ErrMalformedResponse, s.parentID, s.field)
	}

	items = collectionNodes(fieldData)
	s.cursor = ParseCursor(fieldData["pageInfo"])
	nestedPagesTotal.Inc()

	s.logger.Debug().
		Str("field", s.field).
		Str("parent_id", s.parentID).
		Int("items", len(items)).
		Msg("Fetched nested field page")

	return items, true, nil
}
