package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ItemUUID identifies a document within an index.
type ItemUUID struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ComposeUUID returns id~type.
func (u ItemUUID) ComposeUUID() string { return u.ID + "~" + u.Type }

// ParseItemUUID parses the composed form.
func ParseItemUUID(composed string) (ItemUUID, error) {
	id, typ, ok := strings.Cut(composed, "~")
	if !ok || id == "" || typ == "" {
		return ItemUUID{}, fmt.Errorf("%w: item uuid %q", ErrInvalidFormat, composed)
	}
	return ItemUUID{ID: id, Type: typ}, nil
}

// Item is an indexable document.
type Item struct {
	UUID                  ItemUUID       `json:"uuid"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	IndexedMetadata       map[string]any `json:"indexed_metadata,omitempty"`
	SearchableMetadata    map[string]any `json:"searchable_metadata,omitempty"`
	ExactMatchingMetadata []string       `json:"exact_matching_metadata,omitempty"`
	Score                 float64        `json:"score,omitempty"`
}

// Validate checks the item can be stored.
func (i Item) Validate() error {
	if strings.TrimSpace(i.UUID.ID) == "" || strings.TrimSpace(i.UUID.Type) == "" {
		return errors.Join(ErrInvalidFormat, errors.New("item uuid requires id and type"))
	}
	return nil
}

// Changes is a partial update applied to every item matched by a query.
type Changes struct {
	Set   map[string]any `json:"set,omitempty"`
	Unset []string       `json:"unset,omitempty"`
}

// Result is the answer to a Query.
type Result struct {
	TotalHits uint64         `json:"total_hits"`
	Items     []Item         `json:"items"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Query     Query          `json:"query"`
}

// IndexConfig describes physical index settings.
type IndexConfig struct {
	Language                string              `json:"language,omitempty" yaml:"language"`
	Shards                  int                 `json:"shards,omitempty" yaml:"shards"`
	Replicas                int                 `json:"replicas,omitempty" yaml:"replicas"`
	Synonyms                map[string][]string `json:"synonyms,omitempty" yaml:"synonyms"`
	StoreSearchableMetadata bool                `json:"store_searchable_metadata,omitempty" yaml:"store_searchable_metadata"`
}

// IndexMeta describes an existing index.
type IndexMeta struct {
	UUID     IndexUUID      `json:"uuid"`
	AppUUID  AppUUID        `json:"app_id"`
	DocCount uint64         `json:"doc_count"`
	OK       bool           `json:"is_ok"`
	Config   IndexConfig    `json:"config"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Interaction records a user acting on an item.
type Interaction struct {
	User       string    `json:"user"`
	Item       ItemUUID  `json:"item"`
	Weight     int       `json:"weight"`
	OccurredOn time.Time `json:"occurred_on"`
}
