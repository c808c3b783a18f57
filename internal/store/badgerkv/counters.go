// Package badgerkv keeps request-limit counters in an embedded badger database so limits
// survive restarts of a single node.
package badgerkv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
)

const keyPrefix = "counter/"

// Counters is a token.CounterStore on badger. The directory lock makes the process the
// only writer, so increments are serialised in process and never conflict.
type Counters struct {
	mu sync.Mutex
	db *badger.DB
}

// Open opens or creates the database under dir.
func Open(dir string) (*Counters, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(dir).
		WithLogger(logger{}).
		WithLoggingLevel(badger.WARNING).
		WithMemTableSize(16 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Counters{db: db}, nil
}

// OpenInMemory returns a store without files, for tests and ephemeral nodes.
func OpenInMemory() (*Counters, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(logger{}).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Counters{db: db}, nil
}

func (c *Counters) Close() error { return c.db.Close() }

// Ping fails once the database is closed.
func (c *Counters) Ping(context.Context) error {
	if c.db.IsClosed() {
		return model.Transport("counters ping", badger.ErrDBClosed)
	}
	return nil
}

func (c *Counters) Count(_ context.Context, key string) (int64, error) {
	var n int64
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = read(txn, key)
		return err
	})
	if err != nil {
		return 0, model.Transport("counter read", err)
	}
	return n, nil
}

// Increment adds one in a single transaction. The expiry is set when the counter
// is created and kept on later increments.
func (c *Counters) Increment(_ context.Context, key string, expire time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	err := c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		var remaining time.Duration
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			remaining = expire
		case err != nil:
			return err
		default:
			n, err = decode(item)
			if err != nil {
				return err
			}
			if at := item.ExpiresAt(); at > 0 {
				remaining = time.Until(time.Unix(int64(at), 0))
				if remaining <= 0 {
					remaining = time.Second
				}
			}
		}
		n++
		e := badger.NewEntry([]byte(keyPrefix+key), encode(n))
		if remaining > 0 {
			e = e.WithTTL(remaining)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return 0, model.Transport("counter increment", err)
	}
	return n, nil
}

func read(txn *badger.Txn, key string) (int64, error) {
	item, err := txn.Get([]byte(keyPrefix + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decode(item)
}

func decode(item *badger.Item) (int64, error) {
	var n int64
	err := item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("counter %s: bad value length %d", item.Key(), len(v))
		}
		n = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	return n, err
}

func encode(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

// logger routes badger output to the JSON log.
type logger struct{}

func (logger) Errorf(format string, args ...interface{}) {
	obs.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), map[string]any{"component": "badger"})
}

func (logger) Warningf(format string, args ...interface{}) {
	obs.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), map[string]any{"component": "badger"})
}

func (logger) Infof(format string, args ...interface{}) {
	obs.Info(strings.TrimSpace(fmt.Sprintf(format, args...)), map[string]any{"component": "badger"})
}

func (logger) Debugf(string, ...interface{}) {}
