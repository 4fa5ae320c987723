// Package realtime delivers row change events from PostgreSQL LISTEN/NOTIFY.
// Every table has a channel named "<table>_changes" fed by triggers installed
// by the migrations.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// Handler receives one change event. It runs on the subscription's goroutine;
// events of one subscription are delivered sequentially.
type Handler func(ctx context.Context, ev domain.ChangeEvent)

// Feed opens change subscriptions on dedicated connections taken from pool.
type Feed struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// New creates a Feed.
func New(pool *pgxpool.Pool, log *slog.Logger) *Feed {
	return &Feed{pool: pool, log: log.With("component", "realtime")}
}

// Subscription is a live LISTEN on one table.
type Subscription struct {
	table  domain.Table
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops delivery and waits for the listener to exit. Safe to call more
// than once. Must not be called from within the subscription's own handler.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed when the listener has exited, either through Close or
// because the connection dropped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Channel returns the NOTIFY channel name for a table.
func Channel(t domain.Table) string {
	return string(t) + "_changes"
}

// Subscribe starts listening for changes on table. When owner is not uuid.Nil
// only events for rows of that owner are delivered; tables without an owner
// column can only be subscribed unfiltered.
//
// Delivery is at-least-once and unordered relative to the caller's own writes.
// A dropped connection ends the subscription; it is not re-established.
func (f *Feed) Subscribe(ctx context.Context, owner uuid.UUID, table domain.Table, h Handler) (*Subscription, error) {
	if !table.IsValid() {
		return nil, domain.NewValidationError("table", fmt.Sprintf("unknown table %q", table))
	}
	if owner != uuid.Nil && !table.HasOwner() {
		return nil, domain.NewValidationError("table", fmt.Sprintf("%s has no owner column", table))
	}

	pooled, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	conn := pooled.Hijack()

	channel := Channel(table)
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		closeConn(conn)
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{table: table, cancel: cancel, done: make(chan struct{})}

	go f.listen(subCtx, conn, owner, table, h, sub.done)

	f.log.DebugContext(ctx, "subscribed",
		slog.String("table", string(table)),
		slog.String("user_id", owner.String()),
	)
	return sub, nil
}

func (f *Feed) listen(ctx context.Context, conn *pgx.Conn, owner uuid.UUID, table domain.Table, h Handler, done chan<- struct{}) {
	defer close(done)
	defer closeConn(conn)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.log.WarnContext(ctx, "subscription stopped",
					slog.String("table", string(table)),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		ev, err := decodeEvent(table, n.Payload)
		if err != nil {
			f.log.WarnContext(ctx, "malformed change payload",
				slog.String("table", string(table)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if owner != uuid.Nil && ev.UserID != owner {
			continue
		}

		h(ctx, ev)
	}
}

func decodeEvent(table domain.Table, payload string) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.ChangeEvent{}, err
	}
	ev.Table = table
	return ev, nil
}

func closeConn(conn *pgx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Close(ctx)
}
