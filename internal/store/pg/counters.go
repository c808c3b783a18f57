package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"searchgate.io/internal/model"
)

// Count returns the live value of a counter; expired counters read as zero.
func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `
		select value from counters
		where key = $1 and (expires_at is null or expires_at > now())
	`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, model.Transport("counter read", err)
	}
	return v, nil
}

// Increment adds one in a single upsert. An expired row restarts at 1 with the new expiry;
// a live row keeps its original expiry.
func (s *Store) Increment(ctx context.Context, key string, expire time.Duration) (int64, error) {
	var expiresAt sql.NullTime
	if expire > 0 {
		expiresAt = sql.NullTime{Time: time.Now().UTC().Add(expire), Valid: true}
	}
	var v int64
	err := s.db.QueryRowContext(ctx, `
		insert into counters (key, value, expires_at)
		values ($1, 1, $2)
		on conflict (key) do update set
			value = case
				when counters.expires_at is not null and counters.expires_at <= now() then 1
				else counters.value + 1
			end,
			expires_at = case
				when counters.expires_at is not null and counters.expires_at <= now() then excluded.expires_at
				else counters.expires_at
			end
		returning value
	`, key, expiresAt).Scan(&v)
	if err != nil {
		return 0, model.Transport("counter increment", err)
	}
	return v, nil
}

// PurgeCounters removes expired counters.
func (s *Store) PurgeCounters(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from counters where expires_at is not null and expires_at <= now()`)
	if err != nil {
		return 0, model.Transport("counter purge", err)
	}
	return res.RowsAffected()
}
