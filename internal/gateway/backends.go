package gateway

import (
	"database/sql"
	"errors"
	"fmt"

	"searchgate.io/internal/config"
	"searchgate.io/internal/plugin"
	"searchgate.io/internal/queue"
	"searchgate.io/internal/store/badgerkv"
	"searchgate.io/internal/store/blevestore"
	"searchgate.io/internal/store/pg"
	"searchgate.io/internal/token"
)

// Resources are the handles OpenBackends opened. Close releases them in reverse order.
type Resources struct {
	DB *sql.DB
	// Ready holds the checks a readiness probe should run besides pinging DB.
	Ready   map[string]plugin.Check
	closers []func() error
}

func (r *Resources) onClose(fn func() error) { r.closers = append(r.closers, fn) }

func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenBackends opens the storage selected by cfg: bleve for indices, Postgres for tokens,
// interactions and the exclusive-command lock when a DSN is set, and the configured queue and
// counter backends.
func OpenBackends(cfg config.Config) (Backends, *Resources, error) {
	var (
		b   Backends
		res = &Resources{Ready: map[string]plugin.Check{}}
	)
	fail := func(err error) (Backends, *Resources, error) {
		_ = res.Close()
		return Backends{}, nil, err
	}

	if cfg.Index.Path == "" {
		idx := blevestore.NewMemory()
		res.onClose(idx.Close)
		b.Index = idx
		res.Ready["index_store"] = idx.Ping
	} else {
		idx, err := blevestore.Open(cfg.Index.Path, blevestore.WithOpenIndices(cfg.Index.OpenIndices))
		if err != nil {
			return fail(fmt.Errorf("open index store: %w", err))
		}
		res.onClose(idx.Close)
		b.Index = idx
		res.Ready["index_store"] = idx.Ping
	}

	var store *pg.Store
	if cfg.UsesPostgres() {
		var err error
		store, err = pg.Open(cfg.Postgres.DSN)
		if err != nil {
			return fail(fmt.Errorf("open postgres: %w", err))
		}
		res.onClose(store.Close)
		res.DB = store.DB()
		b.Tokens = store
		b.Interactions = store
		b.Locker = store
	} else {
		b.Tokens = token.NewMemoryRepository()
	}

	switch cfg.Counters.Backend {
	case "badger":
		c, err := badgerkv.Open(cfg.Counters.BadgerPath)
		if err != nil {
			return fail(fmt.Errorf("open counters: %w", err))
		}
		res.onClose(c.Close)
		b.Counters = c
	case "postgres":
		b.Counters = store
	}
	if b.Counters != nil {
		b.Checks = map[string]plugin.Check{"counters": CountersCheck(b.Counters)}
		res.Ready["counters"] = b.Checks["counters"]
	}

	switch cfg.Queue.Backend {
	case "memory":
		q := queue.NewMemoryBackend()
		res.onClose(q.Close)
		b.Queue = q
	case "postgres":
		q := pg.NewQueue(store.DB(), cfg.Queue.PollInterval)
		res.onClose(q.Close)
		b.Queue = q
	}
	return b, res, nil
}
