// Package syncer reconciles the on-device cache with the remote store for one
// signed-in account at a time.
//
// An Engine starts Disconnected. Bootstrap makes it Active for an owner;
// Dispose returns it to Disconnected and must run before a different owner
// can bootstrap. While Active, Refresh re-runs the bootstrap merge, LoadMore
// pages further into history and Subscribe turns remote change events into
// callbacks.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// DefaultPageSize is the number of notes fetched per page.
const DefaultPageSize = 200

var (
	// ErrDisconnected is returned by operations that need an active session.
	ErrDisconnected = errors.New("sync: no active session")
	// ErrSessionActive is returned by Bootstrap while another owner is active.
	ErrSessionActive = errors.New("sync: another account is active")
	// ErrStaleSession marks a result dropped because the session was disposed
	// or switched while it was in flight.
	ErrStaleSession = errors.New("sync: session changed, result discarded")
)

// subscribedTables are the tables the engine listens to. note_tags has no
// owner column and is refreshed as a side effect of note and tag events.
var subscribedTables = []domain.Table{domain.TableNotes, domain.TableFolders, domain.TableTags}

type remoteSource interface {
	FetchNotesPage(ctx context.Context, owner uuid.UUID, limit int, cursor *time.Time) ([]domain.Note, bool, error)
	ListFolders(ctx context.Context, owner uuid.UUID) ([]domain.Folder, error)
	ListTags(ctx context.Context, owner uuid.UUID) ([]domain.Tag, error)
	ListNoteTags(ctx context.Context, owner uuid.UUID) ([]domain.NoteTag, error)
	Subscribe(ctx context.Context, owner uuid.UUID, table domain.Table, onChange func(context.Context, domain.ChangeEvent)) (func(), error)
}

type snapshotCache interface {
	Notes(ctx context.Context) ([]domain.Note, error)
	SaveSnapshot(ctx context.Context, data domain.Dataset) error
}

// Snapshot is the committed result of a bootstrap or refresh.
type Snapshot struct {
	Owner uuid.UUID
	domain.Dataset
	HasMore bool
}

// Page is one page of older notes returned by LoadMore.
type Page struct {
	Owner   uuid.UUID
	Notes   []domain.Note
	HasMore bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// Engine is the sync orchestrator. It is safe for concurrent use.
type Engine struct {
	remote   remoteSource
	cache    snapshotCache
	log      *slog.Logger
	pageSize int

	mu      sync.Mutex
	owner   uuid.UUID
	epoch   uint64
	session context.Context
	cancel  context.CancelFunc
	unsubs  []func()
}

// NewEngine creates a disconnected Engine.
func NewEngine(log *slog.Logger, remote remoteSource, cache snapshotCache, opts ...Option) *Engine {
	e := &Engine{
		remote:   remote,
		cache:    cache,
		log:      log.With("service", "syncer"),
		pageSize: DefaultPageSize,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Owner returns the active owner, or uuid.Nil when disconnected.
func (e *Engine) Owner() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner
}

// Bootstrap activates a session for owner and runs the first reconcile.
// Calling it again for the active owner behaves like Refresh.
// The session stays active when the fetch fails so a later Refresh can retry.
func (e *Engine) Bootstrap(ctx context.Context, owner uuid.UUID) (*Snapshot, error) {
	if owner == uuid.Nil {
		return nil, domain.NewValidationError("owner", "required")
	}

	e.mu.Lock()
	switch e.owner {
	case uuid.Nil:
		e.owner = owner
		e.session, e.cancel = context.WithCancel(context.Background())
	case owner:
	default:
		e.mu.Unlock()
		return nil, ErrSessionActive
	}
	epoch := e.epoch
	e.mu.Unlock()

	e.log.InfoContext(ctx, "bootstrap", slog.String("user_id", owner.String()))
	return e.reconcile(ctx, owner, epoch)
}

// Refresh re-fetches the first note page and all folders, tags and links for
// the active owner, merges the page into the cached notes and writes the
// result back. Concurrent refreshes are allowed; the last to commit wins.
func (e *Engine) Refresh(ctx context.Context) (*Snapshot, error) {
	owner, epoch, err := e.current()
	if err != nil {
		return nil, err
	}
	return e.reconcile(ctx, owner, epoch)
}

// LoadMore fetches the page of notes strictly older than cursor. The page is
// returned for the caller to append; it is not merged or cached here.
func (e *Engine) LoadMore(ctx context.Context, cursor time.Time) (*Page, error) {
	owner, epoch, err := e.current()
	if err != nil {
		return nil, err
	}

	notes, hasMore, err := e.remote.FetchNotesPage(ctx, owner, e.pageSize, &cursor)
	if err != nil {
		return nil, fmt.Errorf("load more notes: %w", err)
	}

	if !e.stillActive(owner, epoch) {
		return nil, ErrStaleSession
	}

	e.log.DebugContext(ctx, "load more",
		slog.Time("cursor", cursor),
		slog.Int("notes", len(notes)),
		slog.Bool("has_more", hasMore),
	)
	return &Page{Owner: owner, Notes: ownedBy(notes, owner), HasMore: hasMore}, nil
}

// Subscribe opens change subscriptions for the active owner's notes, folders
// and tags, replacing any previous ones. onChange runs on the subscription
// goroutine with a context that is canceled by Dispose.
// A subscription that drops is not re-established until the next Subscribe.
func (e *Engine) Subscribe(onChange func(context.Context, domain.ChangeEvent)) error {
	e.mu.Lock()
	owner, epoch, session := e.owner, e.epoch, e.session
	e.mu.Unlock()
	if owner == uuid.Nil {
		return ErrDisconnected
	}

	unsubs := make([]func(), 0, len(subscribedTables))
	for _, table := range subscribedTables {
		unsub, err := e.remote.Subscribe(session, owner, table, onChange)
		if err != nil {
			closeAll(unsubs)
			return fmt.Errorf("subscribe %s: %w", table, err)
		}
		unsubs = append(unsubs, unsub)
	}

	e.mu.Lock()
	if e.owner != owner || e.epoch != epoch {
		e.mu.Unlock()
		closeAll(unsubs)
		return ErrStaleSession
	}
	previous := e.unsubs
	e.unsubs = unsubs
	e.mu.Unlock()

	closeAll(previous)
	e.log.Info("subscribed to changes",
		slog.String("user_id", owner.String()),
		slog.Int("tables", len(unsubs)),
	)
	return nil
}

// Dispose cancels all subscriptions and ends the session. In-flight
// refreshes and page loads of the session are discarded when they finish.
// Safe to call any number of times.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.owner == uuid.Nil && len(e.unsubs) == 0 {
		e.mu.Unlock()
		return
	}
	owner := e.owner
	unsubs := e.unsubs
	if e.cancel != nil {
		e.cancel()
	}
	e.owner = uuid.Nil
	e.epoch++
	e.session, e.cancel, e.unsubs = nil, nil, nil
	e.mu.Unlock()

	// Outside the lock: a handler being waited on may be calling Refresh.
	closeAll(unsubs)
	e.log.Info("session disposed", slog.String("user_id", owner.String()))
}

// ---------------------------------------------------------------------------
// internals
// ---------------------------------------------------------------------------

func (e *Engine) current() (uuid.UUID, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner == uuid.Nil {
		return uuid.Nil, 0, ErrDisconnected
	}
	return e.owner, e.epoch, nil
}

func (e *Engine) stillActive(owner uuid.UUID, epoch uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner == owner && e.epoch == epoch
}

func (e *Engine) reconcile(ctx context.Context, owner uuid.UUID, epoch uint64) (*Snapshot, error) {
	start := time.Now()

	var (
		page    []domain.Note
		hasMore bool
		data    domain.Dataset
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, hasMore, err = e.remote.FetchNotesPage(gctx, owner, e.pageSize, nil)
		if err != nil {
			return fmt.Errorf("fetch notes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if data.Folders, err = e.remote.ListFolders(gctx, owner); err != nil {
			return fmt.Errorf("fetch folders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if data.Tags, err = e.remote.ListTags(gctx, owner); err != nil {
			return fmt.Errorf("fetch tags: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if data.NoteTags, err = e.remote.ListNoteTags(gctx, owner); err != nil {
			return fmt.Errorf("fetch note tags: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Commit under the lock so Dispose cannot clear the cache between the
	// owner check and the write.
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.owner != owner || e.epoch != epoch {
		e.log.InfoContext(ctx, "discarding stale sync result", slog.String("user_id", owner.String()))
		return nil, ErrStaleSession
	}

	cached, err := e.cache.Notes(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cached notes: %w", err)
	}
	data.Notes = MergeNotes(ownedBy(cached, owner), ownedBy(page, owner))

	if err := e.cache.SaveSnapshot(ctx, data); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	e.log.DebugContext(ctx, "reconciled",
		slog.String("user_id", owner.String()),
		slog.Int("remote_notes", len(page)),
		slog.Int("cached_notes", len(cached)),
		slog.Int("notes", len(data.Notes)),
		slog.Int("folders", len(data.Folders)),
		slog.Int("tags", len(data.Tags)),
		slog.Bool("has_more", hasMore),
		slog.Duration("took", time.Since(start)),
	)

	return &Snapshot{Owner: owner, Dataset: data, HasMore: hasMore}, nil
}

// ownedBy drops notes of other owners. Notes are never shared across accounts.
func ownedBy(notes []domain.Note, owner uuid.UUID) []domain.Note {
	return slices.DeleteFunc(slices.Clone(notes), func(n domain.Note) bool {
		return n.UserID != owner
	})
}

func closeAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
