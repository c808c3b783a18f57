// Package blevestore implements the index store on bleve. Every logical index points at a
// physical bleve index through an alias entry, so configure can rebuild under a new
// physical name and switch over in one step.
package blevestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"searchgate.io/internal/ids"
	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
)

const (
	registryFile       = "registry.json"
	defaultOpenIndices = 64
	copyPageSize       = 1000
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("blevestore: closed")

type entry struct {
	App      model.AppUUID     `json:"app"`
	Index    model.IndexUUID   `json:"index"`
	Physical string            `json:"physical"`
	Config   model.IndexConfig `json:"config"`
}

// handle is an open physical index. refs counts the operations using it; a handle retired
// while in use is closed by the last release.
type handle struct {
	bleve.Index
	name    string
	refs    int
	retired bool
}

// Store is a repository.IndexStore on bleve.
type Store struct {
	mu       sync.Mutex
	root     string
	aliases  map[string]entry
	mem      map[string]*handle
	open     *lru.Cache[string, *handle]
	busy     map[string]*handle
	closed   bool
	maxCache int
}

// Option customises a Store.
type Option func(*Store)

// WithOpenIndices bounds the number of on-disk indices kept open.
func WithOpenIndices(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxCache = n
		}
	}
}

// NewMemory returns a store whose indices live in memory.
func NewMemory() *Store {
	return &Store{
		aliases: make(map[string]entry),
		mem:     make(map[string]*handle),
	}
}

// Open returns a store rooted at dir, loading the alias registry when present.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return NewMemory(), nil
	}
	s := &Store{
		root:     dir,
		aliases:  make(map[string]entry),
		busy:     make(map[string]*handle),
		maxCache: defaultOpenIndices,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	// The cache is only touched with s.mu held, so the callback runs locked.
	cache, err := lru.NewWithEvict[string, *handle](s.maxCache, func(name string, h *handle) {
		if err := s.retireLocked(h); err != nil {
			obs.Warn("close evicted index failed", map[string]any{"index": name, "error": err.Error()})
		}
		if h.retired {
			s.busy[name] = h
		}
	})
	if err != nil {
		return nil, err
	}
	s.open = cache

	data, err := os.ReadFile(filepath.Join(dir, registryFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read registry: %w", err)
	default:
		if err := json.Unmarshal(data, &s.aliases); err != nil {
			return nil, fmt.Errorf("parse registry: %w", err)
		}
	}
	return s, nil
}

// Close releases every open index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, h := range s.mem {
		errs = append(errs, s.retireLocked(h))
	}
	if s.open != nil {
		s.open.Purge()
	}
	return errors.Join(errs...)
}

// Ping fails once the store is closed.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Transport("bleve ping", ErrClosed)
	}
	return nil
}

func (s *Store) persistLocked() error {
	if s.root == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.aliases, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.root, registryFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.root, registryFile))
}

func (s *Store) createPhysicalLocked(name string, cfg model.IndexConfig) (*handle, error) {
	m := buildMapping(cfg)
	if s.root == "" {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, err
		}
		h := &handle{Index: idx, name: name}
		s.mem[name] = h
		return h, nil
	}
	idx, err := bleve.New(filepath.Join(s.root, name), m)
	if err != nil {
		return nil, err
	}
	h := &handle{Index: idx, name: name}
	s.open.Add(name, h)
	return h, nil
}

// acquireLocked returns the open handle of a physical index and holds it until
// releaseLocked. A handle evicted while busy is reused rather than opened twice.
func (s *Store) acquireLocked(name string) (*handle, error) {
	if s.root == "" {
		h, ok := s.mem[name]
		if !ok {
			return nil, fmt.Errorf("physical index %s missing", name)
		}
		h.refs++
		return h, nil
	}
	h, ok := s.open.Get(name)
	if !ok {
		if h, ok = s.busy[name]; ok {
			delete(s.busy, name)
			h.retired = false
		} else {
			idx, err := bleve.Open(filepath.Join(s.root, name))
			if err != nil {
				return nil, err
			}
			h = &handle{Index: idx, name: name}
		}
		s.open.Add(name, h)
	}
	h.refs++
	return h, nil
}

func (s *Store) releaseLocked(h *handle) {
	h.refs--
	if h.refs > 0 || !h.retired {
		return
	}
	if s.busy[h.name] == h {
		delete(s.busy, h.name)
	}
	if err := h.Close(); err != nil {
		obs.Warn("close released index failed", map[string]any{"index": h.name, "error": err.Error()})
	}
}

func (s *Store) release(hs ...*handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range hs {
		s.releaseLocked(h)
	}
}

// retireLocked closes h now when idle, otherwise marks it for the last release.
func (s *Store) retireLocked(h *handle) error {
	if h.refs > 0 {
		h.retired = true
		return nil
	}
	return h.Close()
}

func (s *Store) dropPhysicalLocked(name string) error {
	if s.root == "" {
		h, ok := s.mem[name]
		if !ok {
			return nil
		}
		delete(s.mem, name)
		return s.retireLocked(h)
	}
	s.open.Remove(name)
	return os.RemoveAll(filepath.Join(s.root, name))
}

func physicalName(ref model.RepositoryReference) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, strings.ToLower(ref.Compose()))
	return safe + "-" + strings.ToLower(ids.New())
}

func (s *Store) lookupLocked(ref model.RepositoryReference) (entry, error) {
	if s.closed {
		return entry{}, model.Transport("bleve", ErrClosed)
	}
	e, ok := s.aliases[ref.Compose()]
	if !ok {
		return entry{}, model.IndexNotAvailable(ref, nil)
	}
	return e, nil
}

// resolveLocked expands composite and wildcard references. The wildcard skips the
// events index.
func (s *Store) resolveLocked(ref model.RepositoryReference) ([]entry, error) {
	if s.closed {
		return nil, model.Transport("bleve", ErrClosed)
	}
	if ref.IndexUUID == "" || ref.IndexUUID.IsWildcard() {
		var out []entry
		for _, e := range s.aliases {
			if e.App == ref.AppUUID && e.Index != eventsIndex {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
		return out, nil
	}
	var out []entry
	for _, single := range ref.Expand() {
		e, err := s.lookupLocked(single)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

const eventsIndex model.IndexUUID = "events"

func (s *Store) CreateIndex(_ context.Context, ref model.RepositoryReference, cfg model.IndexConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Transport("bleve", ErrClosed)
	}
	if _, ok := s.aliases[ref.Compose()]; ok {
		return model.IndexExists(ref)
	}
	name := physicalName(ref)
	if _, err := s.createPhysicalLocked(name, cfg); err != nil {
		return model.Transport("bleve create", err)
	}
	s.aliases[ref.Compose()] = entry{App: ref.AppUUID, Index: ref.IndexUUID, Physical: name, Config: cfg}
	return s.persistLocked()
}

func (s *Store) DeleteIndex(_ context.Context, ref model.RepositoryReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupLocked(ref)
	if err != nil {
		return err
	}
	delete(s.aliases, ref.Compose())
	if err := s.persistLocked(); err != nil {
		return err
	}
	if err := s.dropPhysicalLocked(e.Physical); err != nil {
		return model.Transport("bleve delete", err)
	}
	return nil
}

func (s *Store) ResetIndex(_ context.Context, ref model.RepositoryReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupLocked(ref)
	if err != nil {
		return err
	}
	name := physicalName(ref)
	if _, err := s.createPhysicalLocked(name, e.Config); err != nil {
		return model.Transport("bleve reset", err)
	}
	old := e.Physical
	e.Physical = name
	s.aliases[ref.Compose()] = e
	if err := s.persistLocked(); err != nil {
		return err
	}
	if err := s.dropPhysicalLocked(old); err != nil {
		obs.Warn("drop old index failed", map[string]any{"index": old, "error": err.Error()})
	}
	return nil
}

// ConfigureIndex copies every document into a new physical index built with cfg, then
// points the alias at it. The old physical index is dropped after the switch.
func (s *Store) ConfigureIndex(ctx context.Context, ref model.RepositoryReference, cfg model.IndexConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupLocked(ref)
	if err != nil {
		return err
	}
	oldIdx, err := s.acquireLocked(e.Physical)
	if err != nil {
		return model.Transport("bleve open", err)
	}
	defer s.releaseLocked(oldIdx)
	name := physicalName(ref)
	newIdx, err := s.createPhysicalLocked(name, cfg)
	if err != nil {
		return model.Transport("bleve configure", err)
	}
	newIdx.refs++
	err = copyDocuments(ctx, oldIdx.Index, newIdx.Index)
	s.releaseLocked(newIdx)
	if err != nil {
		_ = s.dropPhysicalLocked(name)
		return model.Transport("bleve reindex", err)
	}

	old := e.Physical
	e.Physical = name
	e.Config = cfg
	s.aliases[ref.Compose()] = e
	if err := s.persistLocked(); err != nil {
		e.Physical = old
		s.aliases[ref.Compose()] = e
		_ = s.dropPhysicalLocked(name)
		return err
	}
	if err := s.dropPhysicalLocked(old); err != nil {
		obs.Warn("drop old index failed", map[string]any{"index": old, "error": err.Error()})
	}
	return nil
}

func copyDocuments(ctx context.Context, from, to bleve.Index) error {
	for offset := 0; ; offset += copyPageSize {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), copyPageSize, offset, false)
		req.Fields = []string{sourceField}
		req.SortBy([]string{"_id"})
		res, err := from.SearchInContext(ctx, req)
		if err != nil {
			return err
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := to.NewBatch()
		for _, hit := range res.Hits {
			item, err := itemFromHit(hit.Fields)
			if err != nil {
				return err
			}
			if err := batch.Index(hit.ID, document(item)); err != nil {
				return err
			}
		}
		if err := to.Batch(batch); err != nil {
			return err
		}
		if len(res.Hits) < copyPageSize {
			return nil
		}
	}
}

// single acquires the handle of one index. The caller releases it.
func (s *Store) single(ref model.RepositoryReference) (*handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupLocked(ref)
	if err != nil {
		return nil, err
	}
	h, err := s.acquireLocked(e.Physical)
	if err != nil {
		return nil, model.Transport("bleve open", err)
	}
	return h, nil
}

func (s *Store) AddDocuments(_ context.Context, ref model.RepositoryReference, items []model.Item) error {
	idx, err := s.single(ref)
	if err != nil {
		return err
	}
	defer s.release(idx)
	batch := idx.NewBatch()
	for _, it := range items {
		if err := batch.Index(it.UUID.ComposeUUID(), document(it)); err != nil {
			return fmt.Errorf("%w: item %s: %v", model.ErrInvalidFormat, it.UUID.ComposeUUID(), err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return model.Transport("bleve index", err)
	}
	return nil
}

func (s *Store) DeleteDocuments(_ context.Context, ref model.RepositoryReference, uuids []model.ItemUUID) error {
	idx, err := s.single(ref)
	if err != nil {
		return err
	}
	defer s.release(idx)
	batch := idx.NewBatch()
	for _, u := range uuids {
		batch.Delete(u.ComposeUUID())
	}
	if err := idx.Batch(batch); err != nil {
		return model.Transport("bleve delete documents", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, ref model.RepositoryReference, q model.Query) (model.Result, error) {
	s.mu.Lock()
	entries, err := s.resolveLocked(ref)
	if err != nil {
		s.mu.Unlock()
		return model.Result{}, err
	}
	held := make([]*handle, 0, len(entries))
	synonyms := map[string][]string{}
	for _, e := range entries {
		h, err := s.acquireLocked(e.Physical)
		if err != nil {
			for _, h := range held {
				s.releaseLocked(h)
			}
			s.mu.Unlock()
			return model.Result{}, model.Transport("bleve open", err)
		}
		held = append(held, h)
		for k, v := range e.Config.Synonyms {
			synonyms[strings.ToLower(k)] = append(synonyms[strings.ToLower(k)], v...)
		}
	}
	s.mu.Unlock()
	defer s.release(held...)

	res := model.Result{Query: q}
	if len(held) == 0 {
		return res, nil
	}

	handles := make([]bleve.Index, len(held))
	for i, h := range held {
		handles[i] = h.Index
	}
	req := bleve.NewSearchRequestOptions(compile(q, synonyms), q.EffectiveSize(), q.From(), false)
	req.Fields = []string{sourceField}
	found, err := bleve.NewIndexAlias(handles...).SearchInContext(ctx, req)
	if err != nil {
		return model.Result{}, model.Transport("bleve search", err)
	}
	res.TotalHits = found.Total
	res.Items = make([]model.Item, 0, len(found.Hits))
	for _, hit := range found.Hits {
		item, err := itemFromHit(hit.Fields)
		if err != nil {
			return model.Result{}, err
		}
		item.Score = hit.Score
		res.Items = append(res.Items, item)
	}
	return res, nil
}

func (s *Store) GetIndices(_ context.Context, ref model.RepositoryReference) ([]model.IndexMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.resolveLocked(ref)
	if err != nil {
		return nil, err
	}
	out := make([]model.IndexMeta, 0, len(entries))
	for _, e := range entries {
		meta := model.IndexMeta{UUID: e.Index, AppUUID: e.App, Config: e.Config}
		if h, err := s.acquireLocked(e.Physical); err == nil {
			if n, err := h.DocCount(); err == nil {
				meta.DocCount = n
				meta.OK = true
			}
			s.releaseLocked(h)
		}
		out = append(out, meta)
	}
	return out, nil
}

func (s *Store) CheckIndex(_ context.Context, ref model.RepositoryReference) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupLocked(ref)
	if errors.Is(err, model.ErrResourceNotAvailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	h, err := s.acquireLocked(e.Physical)
	if err != nil {
		return false, model.Transport("bleve open", err)
	}
	defer s.releaseLocked(h)
	if _, err := h.DocCount(); err != nil {
		return false, model.Transport("bleve doc count", err)
	}
	return true, nil
}
