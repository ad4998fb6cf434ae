package queue

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/OmerRastgar/studio-sub002/internal/config"
	"github.com/OmerRastgar/studio-sub002/internal/database"
	"github.com/OmerRastgar/studio-sub002/internal/events"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue_messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id    TEXT    NOT NULL UNIQUE,
	body        BLOB    NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	visible_at  INTEGER NOT NULL,
	dead        INTEGER NOT NULL DEFAULT 0,
	enqueued_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_ready ON queue_messages(dead, visible_at);
`

// SQLiteQueue is a durable Queue backed by a SQLite table. Claims survive
// process restarts: a crashed consumer's messages reappear once their
// visibility timeout lapses.
type SQLiteQueue struct {
	db  *database.DB
	cfg config.QueueConfig
	now func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewSQLiteQueue opens (or creates) the queue database at cfg.Path.
func NewSQLiteQueue(cfg config.QueueConfig) (*SQLiteQueue, error) {
	db, err := database.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, types.WrapError(types.QUEUE_OPEN_FAILED, "failed to create queue schema", err)
	}
	return &SQLiteQueue{db: db, cfg: cfg, now: time.Now}, nil
}

func (q *SQLiteQueue) checkOpen() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

// Enqueue stores the event. A duplicate of a still-pending event id is
// silently dropped; once acked the id may be enqueued again.
func (q *SQLiteQueue) Enqueue(ctx context.Context, event events.Event) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	body, err := event.Marshal()
	if err != nil {
		return types.WrapError(types.QUEUE_ENQUEUE_FAILED, "failed to encode event", err)
	}
	now := q.now().UnixMilli()
	_, err = q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO queue_messages (event_id, body, visible_at, enqueued_at)
		 VALUES (?, ?, ?, ?)`,
		event.ID, body, now, now)
	if err != nil {
		return types.WrapRetryableError(types.QUEUE_ENQUEUE_FAILED, "failed to enqueue event", err)
	}
	return nil
}

// Dequeue claims the oldest ready message inside a transaction, bumping its
// attempt counter and pushing its visibility past the timeout.
func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}

	var d *Delivery
	err := q.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := q.now().UnixMilli()

		for {
			var (
				id       int64
				body     []byte
				attempts int
			)
			row := tx.QueryRowContext(ctx,
				`SELECT id, body, attempts FROM queue_messages
				 WHERE dead = 0 AND visible_at <= ?
				 ORDER BY id LIMIT 1`, now)
			if err := row.Scan(&id, &body, &attempts); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil
				}
				return err
			}

			// Producers write this table directly, so the body is untrusted.
			// An undecodable row must be parked dead here: failing the claim
			// transaction would roll the claim back and re-select the same
			// row forever, wedging every message behind it.
			event, err := events.Unmarshal(body)
			if err != nil {
				if _, err := tx.ExecContext(ctx,
					`UPDATE queue_messages SET dead = 1 WHERE id = ?`, id); err != nil {
					return err
				}
				continue
			}

			visibleAt := q.now().Add(q.cfg.VisibilityTimeout).UnixMilli()
			if _, err := tx.ExecContext(ctx,
				`UPDATE queue_messages SET attempts = attempts + 1, visible_at = ? WHERE id = ?`,
				visibleAt, id); err != nil {
				return err
			}

			d = &Delivery{ID: id, Event: event, Attempt: attempts + 1}
			return nil
		}
	})
	if err != nil {
		return nil, types.WrapRetryableError(types.QUEUE_DEQUEUE_FAILED, "failed to dequeue", err)
	}
	return d, nil
}

// Ack deletes the processed message.
func (q *SQLiteQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM queue_messages WHERE id = ?`, d.ID); err != nil {
		return types.WrapRetryableError(types.QUEUE_ACK_FAILED, "failed to ack message", err)
	}
	return nil
}

// Nack schedules redelivery with backoff, or marks the message dead when
// the attempt budget is spent.
func (q *SQLiteQueue) Nack(ctx context.Context, d *Delivery) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	if d.Attempt >= q.cfg.MaxAttempts {
		if _, err := q.db.ExecContext(ctx,
			`UPDATE queue_messages SET dead = 1 WHERE id = ?`, d.ID); err != nil {
			return types.WrapRetryableError(types.QUEUE_ACK_FAILED, "failed to dead-letter message", err)
		}
		return nil
	}
	visibleAt := q.now().Add(retryBackoff(d.Attempt)).UnixMilli()
	if _, err := q.db.ExecContext(ctx,
		`UPDATE queue_messages SET visible_at = ? WHERE id = ?`, visibleAt, d.ID); err != nil {
		return types.WrapRetryableError(types.QUEUE_ACK_FAILED, "failed to nack message", err)
	}
	return nil
}

// Reject dead-letters the message immediately, skipping any remaining
// attempts.
func (q *SQLiteQueue) Reject(ctx context.Context, d *Delivery) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx,
		`UPDATE queue_messages SET dead = 1 WHERE id = ?`, d.ID); err != nil {
		return types.WrapRetryableError(types.QUEUE_ACK_FAILED, "failed to reject message", err)
	}
	return nil
}

// Stats reports pending (not dead) and dead message counts.
func (q *SQLiteQueue) Stats(ctx context.Context) (pending, dead int, err error) {
	if err := q.checkOpen(); err != nil {
		return 0, 0, err
	}
	row := q.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE dead = 0),
			COUNT(*) FILTER (WHERE dead = 1)
		 FROM queue_messages`)
	if err := row.Scan(&pending, &dead); err != nil {
		return 0, 0, types.WrapRetryableError(types.QUEUE_DEQUEUE_FAILED, "failed to read queue stats", err)
	}
	return pending, dead, nil
}

// Health reports the backing database's health.
func (q *SQLiteQueue) Health(ctx context.Context) types.HealthStatus {
	return q.db.Health(ctx)
}

func (q *SQLiteQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return q.db.Close()
}

var _ Queue = (*SQLiteQueue)(nil)
