package pg

import (
	"context"

	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
)

// Lock takes a session-level advisory lock on a dedicated connection and blocks until it
// is granted or ctx ends. unlock releases the lock and returns the connection to the pool.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, model.Transport("advisory lock", err)
	}
	if _, err := conn.ExecContext(ctx, `select pg_advisory_lock(hashtext($1))`, key); err != nil {
		_ = conn.Close()
		return nil, model.Transport("advisory lock", err)
	}
	return func() {
		if _, err := conn.ExecContext(context.Background(), `select pg_advisory_unlock(hashtext($1))`, key); err != nil {
			obs.Error("advisory unlock failed", map[string]any{"key": key, "error": err})
		}
		_ = conn.Close()
	}, nil
}
