// Package repository scopes index, token and interaction storage to a RepositoryReference.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"searchgate.io/internal/model"
)

// IndexStore is the physical search backend.
//
// CreateIndex fails with model.ErrResourceExists when the index exists. Every other
// operation fails with model.ErrResourceNotAvailable when it does not. Backend failures are
// returned as model.TransportError.
type IndexStore interface {
	CreateIndex(ctx context.Context, ref model.RepositoryReference, cfg model.IndexConfig) error
	DeleteIndex(ctx context.Context, ref model.RepositoryReference) error
	ResetIndex(ctx context.Context, ref model.RepositoryReference) error
	// ConfigureIndex copies documents into a new physical index built with cfg and swaps it
	// in. The old index is removed only after the swap.
	ConfigureIndex(ctx context.Context, ref model.RepositoryReference, cfg model.IndexConfig) error
	AddDocuments(ctx context.Context, ref model.RepositoryReference, items []model.Item) error
	DeleteDocuments(ctx context.Context, ref model.RepositoryReference, ids []model.ItemUUID) error
	Search(ctx context.Context, ref model.RepositoryReference, q model.Query) (model.Result, error)
	GetIndices(ctx context.Context, ref model.RepositoryReference) ([]model.IndexMeta, error)
	CheckIndex(ctx context.Context, ref model.RepositoryReference) (bool, error)
}

// Repository delegates to an IndexStore.
type Repository struct {
	store IndexStore
}

// New wraps store.
func New(store IndexStore) *Repository {
	return &Repository{store: store}
}

// Store returns the wrapped IndexStore.
func (r *Repository) Store() IndexStore { return r.store }

func (r *Repository) CreateIndex(ctx context.Context, ref model.RepositoryReference, cfg model.IndexConfig) error {
	if err := requireSingleIndex(ref); err != nil {
		return err
	}
	return r.store.CreateIndex(ctx, ref, cfg)
}

func (r *Repository) DeleteIndex(ctx context.Context, ref model.RepositoryReference) error {
	if err := requireSingleIndex(ref); err != nil {
		return err
	}
	return r.store.DeleteIndex(ctx, ref)
}

func (r *Repository) ResetIndex(ctx context.Context, ref model.RepositoryReference) error {
	if err := requireSingleIndex(ref); err != nil {
		return err
	}
	return r.store.ResetIndex(ctx, ref)
}

func (r *Repository) ConfigureIndex(ctx context.Context, ref model.RepositoryReference, cfg model.IndexConfig) error {
	if err := requireSingleIndex(ref); err != nil {
		return err
	}
	return r.store.ConfigureIndex(ctx, ref, cfg)
}

// Query searches the referenced indices. Backend failures read as a missing index.
func (r *Repository) Query(ctx context.Context, ref model.RepositoryReference, q model.Query) (model.Result, error) {
	res, err := r.store.Search(ctx, ref, q)
	if err != nil {
		return model.Result{}, readError(ref, err)
	}
	return res, nil
}

func (r *Repository) AddItems(ctx context.Context, ref model.RepositoryReference, items []model.Item) error {
	if err := requireSingleIndex(ref); err != nil {
		return err
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	if len(items) == 0 {
		return r.requireIndex(ctx, ref)
	}
	return r.store.AddDocuments(ctx, ref, items)
}

func (r *Repository) DeleteItems(ctx context.Context, ref model.RepositoryReference, ids []model.ItemUUID) error {
	if err := requireSingleIndex(ref); err != nil {
		return err
	}
	if len(ids) == 0 {
		return r.requireIndex(ctx, ref)
	}
	return r.store.DeleteDocuments(ctx, ref, ids)
}

// requireIndex fails like a write would when an empty batch targets a missing index.
func (r *Repository) requireIndex(ctx context.Context, ref model.RepositoryReference) error {
	ok, err := r.store.CheckIndex(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return model.IndexNotAvailable(ref, nil)
	}
	return nil
}

// updatePageSize bounds each read of UpdateItems.
const updatePageSize = 500

// UpdateItems applies changes to every item matched by q and returns how many were updated.
func (r *Repository) UpdateItems(ctx context.Context, ref model.RepositoryReference, q model.Query, changes model.Changes) (int, error) {
	if err := requireSingleIndex(ref); err != nil {
		return 0, err
	}
	var matched []model.Item
	q.Size = updatePageSize
	for page := 1; ; page++ {
		q.Page = page
		res, err := r.store.Search(ctx, ref, q)
		if err != nil {
			return 0, err
		}
		matched = append(matched, res.Items...)
		if len(res.Items) < updatePageSize || uint64(len(matched)) >= res.TotalHits {
			break
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}
	for i := range matched {
		ApplyChanges(&matched[i], changes)
	}
	if err := r.store.AddDocuments(ctx, ref, matched); err != nil {
		return 0, err
	}
	return len(matched), nil
}

// ApplyChanges sets and unsets item fields. A key may be prefixed with metadata.,
// indexed_metadata. or searchable_metadata.; bare keys address indexed_metadata.
func ApplyChanges(item *model.Item, changes model.Changes) {
	for key, value := range changes.Set {
		target, field := changeTarget(item, key)
		target[field] = value
	}
	for _, key := range changes.Unset {
		target, field := changeTarget(item, key)
		delete(target, field)
	}
}

func changeTarget(item *model.Item, key string) (map[string]any, string) {
	section, field, ok := strings.Cut(key, ".")
	if !ok {
		section, field = "indexed_metadata", key
	}
	switch section {
	case "metadata":
		if item.Metadata == nil {
			item.Metadata = map[string]any{}
		}
		return item.Metadata, field
	case "searchable_metadata":
		if item.SearchableMetadata == nil {
			item.SearchableMetadata = map[string]any{}
		}
		return item.SearchableMetadata, field
	case "indexed_metadata":
	default:
		field = key
	}
	if item.IndexedMetadata == nil {
		item.IndexedMetadata = map[string]any{}
	}
	return item.IndexedMetadata, field
}

// GetIndices lists the indices visible under ref.
func (r *Repository) GetIndices(ctx context.Context, ref model.RepositoryReference) ([]model.IndexMeta, error) {
	metas, err := r.store.GetIndices(ctx, ref)
	if err != nil {
		return nil, readError(ref, err)
	}
	return metas, nil
}

// CheckIndex reports whether the index exists and answers. Failures read as false.
func (r *Repository) CheckIndex(ctx context.Context, ref model.RepositoryReference) bool {
	ok, err := r.store.CheckIndex(ctx, ref)
	return err == nil && ok
}

func readError(ref model.RepositoryReference, err error) error {
	if errors.Is(err, model.ErrResourceNotAvailable) {
		return err
	}
	if model.IsTransport(err) {
		return model.IndexNotAvailable(ref, err)
	}
	return err
}

func requireSingleIndex(ref model.RepositoryReference) error {
	if ref.IndexUUID == "" || ref.IndexUUID.IsWildcard() || ref.IndexUUID.IsComposite() {
		return fmt.Errorf("%w: operation requires a single index, got %q", model.ErrInvalidFormat, ref.IndexUUID)
	}
	return nil
}
