package pg

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"searchgate.io/internal/ids"
	"searchgate.io/internal/model"
	"searchgate.io/internal/obs"
	"searchgate.io/internal/queue"
)

// DefaultPollInterval is how often an idle BlockingPop re-checks its queues.
const DefaultPollInterval = 500 * time.Millisecond

// Queue is a queue.Backend over the queue_messages and queue_subscribers tables. Pops
// claim rows with FOR UPDATE SKIP LOCKED so concurrent consumers never share a message.
type Queue struct {
	db   *sql.DB
	poll time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewQueue builds a backend on db. A non-positive poll uses DefaultPollInterval.
func NewQueue(db *sql.DB, poll time.Duration) *Queue {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Queue{db: db, poll: poll, done: make(chan struct{})}
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) Push(ctx context.Context, name string, payload []byte) error {
	if q.isClosed() {
		return queue.ErrClosed
	}
	_, err := q.db.ExecContext(ctx, `insert into queue_messages (queue, payload) values ($1, $2)`, name, payload)
	return model.Transport("queue push", err)
}

func (q *Queue) BlockingPop(ctx context.Context, names ...string) (string, []byte, error) {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		if q.isClosed() {
			return "", nil, queue.ErrClosed
		}
		for _, name := range names {
			payload, ok, err := q.pop(ctx, name)
			if err != nil {
				return "", nil, err
			}
			if ok {
				return name, payload, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-q.done:
			return "", nil, queue.ErrClosed
		case <-ticker.C:
		}
	}
}

func (q *Queue) pop(ctx context.Context, name string) ([]byte, bool, error) {
	var payload []byte
	err := q.db.QueryRowContext(ctx, `
		delete from queue_messages
		where id = (
			select id from queue_messages
			where queue = $1
			order by position asc, id asc
			limit 1
			for update skip locked
		)
		returning payload
	`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, model.Transport("queue pop", err)
	}
	return payload, true, nil
}

// Reject reinserts payload ahead of every pending message of the queue.
func (q *Queue) Reject(ctx context.Context, name string, payload []byte) error {
	if q.isClosed() {
		return queue.ErrClosed
	}
	_, err := q.db.ExecContext(ctx, `
		insert into queue_messages (queue, position, payload)
		select $1, coalesce(min(position), nextval('queue_messages_position_seq')) - 1, $2
		from queue_messages where queue = $1
	`, name, payload)
	return model.Transport("queue reject", err)
}

// Broadcast copies the busy flag into every listener queue subscribed to channel.
func (q *Queue) Broadcast(ctx context.Context, channel string, busy bool) error {
	if q.isClosed() {
		return queue.ErrClosed
	}
	_, err := q.db.ExecContext(ctx, `
		insert into queue_messages (queue, payload)
		select listener, $2 from queue_subscribers where channel = $1
	`, channel, queue.BusyPayload(busy))
	return model.Transport("queue broadcast", err)
}

// Subscribe registers a listener queue that lives until ctx ends.
func (q *Queue) Subscribe(ctx context.Context, channel string) (string, error) {
	if q.isClosed() {
		return "", queue.ErrClosed
	}
	listener := channel + "." + ids.New()
	if _, err := q.db.ExecContext(ctx, `
		insert into queue_subscribers (listener, channel) values ($1, $2)
	`, listener, channel); err != nil {
		return "", model.Transport("queue subscribe", err)
	}
	go func() {
		<-ctx.Done()
		q.unsubscribe(listener)
	}()
	return listener, nil
}

func (q *Queue) unsubscribe(listener string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := q.db.ExecContext(ctx, `delete from queue_subscribers where listener = $1`, listener); err != nil {
		obs.Warn("queue unsubscribe failed", map[string]any{"listener": listener, "error": err})
		return
	}
	if _, err := q.db.ExecContext(ctx, `delete from queue_messages where queue = $1`, listener); err != nil {
		obs.Warn("queue listener cleanup failed", map[string]any{"listener": listener, "error": err})
	}
}

func (q *Queue) Depth(ctx context.Context, name string) (int, bool, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `select count(*) from queue_messages where queue = $1`, name).Scan(&n); err != nil {
		return 0, false, model.Transport("queue depth", err)
	}
	return n, true, nil
}

// Close stops blocked pops. The connection is owned by the caller.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
