package model

import (
	"encoding/json"
	"fmt"
)

const (
	// DefaultPage is the first page.
	DefaultPage = 1
	// DefaultSize is the page size when a query does not set one.
	DefaultSize = 10
)

// Filter application types.
const (
	FilterMustAll    = "must_all"
	FilterAtLeastOne = "at_least_one"
	FilterExclude    = "exclude"
	// FilterRange matches numeric values between Values[0] and Values[1]; nil bounds are open.
	FilterRange = "range"
)

// Filter restricts results to documents whose field matches any/all of the values.
type Filter struct {
	Field           string `json:"field"`
	Values          []any  `json:"values,omitempty"`
	ApplicationType string `json:"application_type,omitempty"`
}

// Query is the caller-facing search request.
type Query struct {
	Q               string            `json:"q,omitempty"`
	Fields          []string          `json:"fields,omitempty"`
	Filters         map[string]Filter `json:"filters,omitempty"`
	UniverseFilters map[string]Filter `json:"universe_filters,omitempty"`
	FilterFields    []string          `json:"filter_fields,omitempty"`
	ItemsPromoted   []ItemUUID        `json:"items_promoted,omitempty"`
	Page            int               `json:"page,omitempty"`
	Size            int               `json:"size,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

// QueryMatchAll returns a query matching every document.
func QueryMatchAll() Query { return Query{} }

// QueryCreate returns a full-text query.
func QueryCreate(q string) Query { return Query{Q: q} }

// EffectivePage returns the page, defaulting to DefaultPage.
func (q Query) EffectivePage() int {
	if q.Page <= 0 {
		return DefaultPage
	}
	return q.Page
}

// EffectiveSize returns the size, defaulting to DefaultSize.
func (q Query) EffectiveSize() int {
	if q.Size <= 0 {
		return DefaultSize
	}
	return q.Size
}

// From returns the offset of the first hit.
func (q Query) From() int { return (q.EffectivePage() - 1) * q.EffectiveSize() }

// ToMap returns the query as a generic map. Unset and default values are omitted so that
// merging treats them as absent.
func (q Query) ToMap() (map[string]any, error) {
	if q.Page == DefaultPage {
		q.Page = 0
	}
	if q.Size == DefaultSize {
		q.Size = 0
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// QueryFromMap rebuilds a query from its generic form.
func QueryFromMap(m map[string]any) (Query, error) {
	var q Query
	if len(m) == 0 {
		return q, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal(data, &q); err != nil {
		return q, fmt.Errorf("%w: query: %v", ErrInvalidFormat, err)
	}
	return q, nil
}
