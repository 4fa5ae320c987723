// Package notes holds the in-memory application state of the signed-in
// account and applies local mutations to it, the cache and the remote store.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/syncer"
)

type syncEngine interface {
	Bootstrap(ctx context.Context, owner uuid.UUID) (*syncer.Snapshot, error)
	Refresh(ctx context.Context) (*syncer.Snapshot, error)
	LoadMore(ctx context.Context, cursor time.Time) (*syncer.Page, error)
	Subscribe(onChange func(context.Context, domain.ChangeEvent)) error
	Dispose()
}

type localCache interface {
	Notes(ctx context.Context) ([]domain.Note, error)
	SetNotes(ctx context.Context, notes []domain.Note) error
	Folders(ctx context.Context) ([]domain.Folder, error)
	SetFolders(ctx context.Context, folders []domain.Folder) error
	Tags(ctx context.Context) ([]domain.Tag, error)
	SetTags(ctx context.Context, tags []domain.Tag) error
	NoteTags(ctx context.Context) ([]domain.NoteTag, error)
	SetNoteTags(ctx context.Context, links []domain.NoteTag) error
	SaveSnapshot(ctx context.Context, data domain.Dataset) error
	ActiveNoteID(ctx context.Context) (*uuid.UUID, error)
	SetActiveNoteID(ctx context.Context, id *uuid.UUID) error
	Owner(ctx context.Context) (uuid.UUID, error)
	SetOwner(ctx context.Context, owner uuid.UUID) error
	Clear(ctx context.Context) error
}

type remoteWriter interface {
	InsertNote(ctx context.Context, n domain.Note) error
	UpdateNote(ctx context.Context, n domain.Note) error
	DeleteNote(ctx context.Context, owner, noteID uuid.UUID) error
	InsertFolder(ctx context.Context, f domain.Folder) error
	RenameFolder(ctx context.Context, owner, folderID uuid.UUID, name string) error
	DeleteFolder(ctx context.Context, owner, folderID uuid.UUID) error
	InsertTag(ctx context.Context, t domain.Tag) error
	DeleteTag(ctx context.Context, owner, tagID uuid.UUID) error
	LinkTag(ctx context.Context, owner, noteID, tagID uuid.UUID) error
	UnlinkTag(ctx context.Context, owner, noteID, tagID uuid.UUID) error
}

// State is a point-in-time copy of the store. Seq grows with every change,
// so a listener can drop a copy older than one it already holds.
type State struct {
	Seq           uint64           `json:"seq"`
	Owner         uuid.UUID        `json:"owner"`
	Notes         []domain.Note    `json:"notes"`
	Folders       []domain.Folder  `json:"folders"`
	Tags          []domain.Tag     `json:"tags"`
	NoteTags      []domain.NoteTag `json:"note_tags"`
	ActiveNoteID  *uuid.UUID       `json:"active_note_id"`
	SelectedTagID *uuid.UUID       `json:"selected_tag_id"`
	Search        string           `json:"search"`
	Loading       bool             `json:"loading"`
	HasMore       bool             `json:"has_more"`
}

func (s State) clone() State {
	s.Notes = slices.Clone(s.Notes)
	s.Folders = slices.Clone(s.Folders)
	s.Tags = slices.Clone(s.Tags)
	s.NoteTags = slices.Clone(s.NoteTags)
	s.ActiveNoteID = cloneID(s.ActiveNoteID)
	s.SelectedTagID = cloneID(s.SelectedTagID)
	return s
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces uuid.New for client-side ids.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(s *Store) { s.newID = gen }
}

// Store is the entity store. All methods are safe for concurrent use.
type Store struct {
	engine syncEngine
	cache  localCache
	remote remoteWriter
	log    *slog.Logger
	now    func() time.Time
	newID  func() uuid.UUID

	mu    sync.Mutex
	state State
	seq   uint64
	// epoch counts Reset calls. Work started before a Reset must not
	// publish its result.
	epoch uint64

	lmu       sync.Mutex
	listeners map[int]func(State)
	nextID    int
}

// NewStore creates an empty Store. Call Hydrate to load the cached state.
func NewStore(log *slog.Logger, engine syncEngine, cache localCache, remote remoteWriter, opts ...Option) *Store {
	s := &Store{
		engine:    engine,
		cache:     cache,
		remote:    remote,
		log:       log.With("service", "notes"),
		now:       time.Now,
		newID:     uuid.New,
		state:     emptyState(),
		listeners: make(map[int]func(State)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Owner returns the signed-in account, uuid.Nil while signed out.
func (s *Store) Owner() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Owner
}

// Subscribe registers fn to receive a state copy after every change.
// fn is called outside the store lock and must not block for long.
// Concurrent changes may deliver their copies out of order; compare Seq.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Hydrate loads the state persisted by a previous run so the account's data
// is available before any network round trip.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	var (
		data domain.Dataset
		err  error
	)
	if data.Notes, err = s.cache.Notes(ctx); err != nil {
		return fmt.Errorf("hydrate notes: %w", err)
	}
	if data.Folders, err = s.cache.Folders(ctx); err != nil {
		return fmt.Errorf("hydrate folders: %w", err)
	}
	if data.Tags, err = s.cache.Tags(ctx); err != nil {
		return fmt.Errorf("hydrate tags: %w", err)
	}
	if data.NoteTags, err = s.cache.NoteTags(ctx); err != nil {
		return fmt.Errorf("hydrate note tags: %w", err)
	}
	active, err := s.cache.ActiveNoteID(ctx)
	if err != nil {
		return fmt.Errorf("hydrate active note: %w", err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return syncer.ErrStaleSession
	}
	s.state.Notes = orEmpty(data.Notes)
	s.state.Folders = sortFolders(orEmpty(data.Folders))
	s.state.Tags = sortTags(orEmpty(data.Tags))
	s.state.NoteTags = orEmpty(data.NoteTags)
	s.state.ActiveNoteID = active
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.InfoContext(ctx, "hydrated from cache",
		slog.Int("notes", len(data.Notes)),
		slog.Int("folders", len(data.Folders)),
		slog.Int("tags", len(data.Tags)),
	)
	s.notify(snap)
	return nil
}

// Init signs owner in: claims the cache, bootstraps the sync engine, applies
// the snapshot and subscribes to remote changes. If the fetch fails the
// session still starts with the cached state so local edits and a later
// Refresh keep working. A Reset that lands while Init runs wins: Init then
// returns syncer.ErrStaleSession and leaves the store signed out.
func (s *Store) Init(ctx context.Context, owner uuid.UUID) error {
	if owner == uuid.Nil {
		return domain.NewValidationError("owner", "required")
	}

	s.mu.Lock()
	if s.state.Owner != uuid.Nil && s.state.Owner != owner {
		s.mu.Unlock()
		return syncer.ErrSessionActive
	}
	epoch := s.epoch
	s.state.Loading = true
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	if err := s.claimCache(ctx, owner, epoch); err != nil {
		s.setLoading(false)
		return err
	}

	result, err := s.engine.Bootstrap(ctx, owner)
	if err != nil && (errors.Is(err, syncer.ErrSessionActive) ||
		errors.Is(err, syncer.ErrStaleSession) ||
		errors.Is(err, syncer.ErrDisconnected) ||
		errors.Is(err, domain.ErrValidation)) {
		s.setLoading(false)
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		signedOut := s.state.Owner == uuid.Nil
		s.mu.Unlock()
		// The engine may have opened its session after the Reset disposed it.
		if signedOut {
			s.engine.Dispose()
		}
		return syncer.ErrStaleSession
	}
	s.state.Owner = owner
	s.state.Loading = false
	if err == nil {
		s.applyLocked(ctx, result)
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	if err != nil {
		s.log.WarnContext(ctx, "bootstrap failed, continuing from cache",
			slog.String("user_id", owner.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("bootstrap: %w", err)
	}

	if err := s.engine.Subscribe(s.onRemoteChange); err != nil {
		s.log.WarnContext(ctx, "change subscription failed",
			slog.String("user_id", owner.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// claimCache binds the cache to owner. Anything cached for another account,
// or by a build that did not record the owner, is dropped from the cache and
// from memory before owner can see it.
func (s *Store) claimCache(ctx context.Context, owner uuid.UUID, epoch uint64) error {
	cached, err := s.cache.Owner(ctx)
	if err != nil {
		return fmt.Errorf("read cache owner: %w", err)
	}
	if cached == owner {
		return nil
	}

	wctx := context.WithoutCancel(ctx)
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return syncer.ErrStaleSession
	}
	if err := s.cache.Clear(wctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear cache: %w", err)
	}
	if err := s.cache.SetOwner(wctx, owner); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("write cache owner: %w", err)
	}
	s.state = emptyState()
	s.state.Loading = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if cached != uuid.Nil {
		s.log.InfoContext(ctx, "dropped cache of another account",
			slog.String("user_id", owner.String()),
			slog.String("cached_user_id", cached.String()),
		)
	}
	s.notify(snap)
	return nil
}

// Refresh reconciles with the remote store and applies the result.
func (s *Store) Refresh(ctx context.Context) error {
	result, err := s.engine.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	s.mu.Lock()
	if result.Owner != s.state.Owner {
		s.mu.Unlock()
		return syncer.ErrStaleSession
	}
	s.applyLocked(ctx, result)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// LoadMoreNotes appends the next page of older notes. It does nothing when
// no notes are held.
func (s *Store) LoadMoreNotes(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Owner == uuid.Nil {
		s.mu.Unlock()
		return domain.ErrUnauthorized
	}
	if len(s.state.Notes) == 0 {
		s.mu.Unlock()
		return nil
	}
	cursor := s.state.Notes[len(s.state.Notes)-1].UpdatedAt
	s.mu.Unlock()

	page, err := s.engine.LoadMore(ctx, cursor)
	if err != nil {
		return fmt.Errorf("load more: %w", err)
	}

	s.mu.Lock()
	if page.Owner != s.state.Owner {
		s.mu.Unlock()
		return syncer.ErrStaleSession
	}
	held := make(map[uuid.UUID]struct{}, len(s.state.Notes))
	for _, n := range s.state.Notes {
		held[n.ID] = struct{}{}
	}
	for _, n := range page.Notes {
		if _, ok := held[n.ID]; !ok {
			s.state.Notes = append(s.state.Notes, n)
		}
	}
	s.state.HasMore = page.HasMore
	s.persistLocked(ctx, colNotes)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Reset signs out: empties memory, ends the sync session and clears the
// cache. Memory is emptied first so a mutation racing the reset fails with
// domain.ErrUnauthorized instead of writing the old account back after the
// clear.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	owner := s.state.Owner
	s.epoch++
	s.state = emptyState()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	// The engine waits for change handlers, which take s.mu.
	s.engine.Dispose()

	if err := s.cache.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	s.log.InfoContext(ctx, "signed out", slog.String("user_id", owner.String()))
	return nil
}

// ---------------------------------------------------------------------------
// UI selection
// ---------------------------------------------------------------------------

// SetActiveNote selects a note, or clears the selection when id is nil.
func (s *Store) SetActiveNote(ctx context.Context, id *uuid.UUID) error {
	s.mu.Lock()
	if id != nil && indexOfNote(s.state.Notes, *id) < 0 {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	s.state.ActiveNoteID = cloneID(id)
	s.persistLocked(ctx, colActive)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// SetSelectedTag sets the tag filter. Nil clears it.
func (s *Store) SetSelectedTag(id *uuid.UUID) {
	s.mu.Lock()
	s.state.SelectedTagID = cloneID(id)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// SetSearch sets the free-text filter.
func (s *Store) SetSearch(search string) {
	s.mu.Lock()
	s.state.Search = search
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// VisibleNotes returns the held notes after the tag and search filters.
func (s *Store) VisibleNotes() []domain.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FilterNotes(s.state.Notes, s.state.NoteTags, s.state.SelectedTagID, s.state.Search)
}

// ---------------------------------------------------------------------------
// internals
// ---------------------------------------------------------------------------

type collection int

const (
	colNotes collection = iota
	colFolders
	colTags
	colNoteTags
	colActive
)

func (c collection) String() string {
	switch c {
	case colNotes:
		return "notes"
	case colFolders:
		return "folders"
	case colTags:
		return "tags"
	case colNoteTags:
		return "note_tags"
	case colActive:
		return "active_note"
	}
	return "unknown"
}

func emptyState() State {
	return State{
		Notes:    []domain.Note{},
		Folders:  []domain.Folder{},
		Tags:     []domain.Tag{},
		NoteTags: []domain.NoteTag{},
	}
}

// applyLocked replaces the synced collections with a snapshot and keeps the
// active note when it still exists.
func (s *Store) applyLocked(ctx context.Context, snap *syncer.Snapshot) {
	s.state.Notes = orEmpty(snap.Notes)
	s.state.Folders = sortFolders(orEmpty(snap.Folders))
	s.state.Tags = sortTags(orEmpty(snap.Tags))
	s.state.NoteTags = orEmpty(snap.NoteTags)
	s.state.HasMore = snap.HasMore

	active := s.state.ActiveNoteID
	if active == nil || indexOfNote(s.state.Notes, *active) < 0 {
		s.state.ActiveNoteID = firstNoteID(s.state.Notes)
		if !equalID(active, s.state.ActiveNoteID) {
			s.persistLocked(ctx, colActive)
		}
	}
}

// update runs a mutation under the lock, persists the collections it reports
// as changed and notifies observers. It returns the session owner.
func (s *Store) update(ctx context.Context, fn func(owner uuid.UUID) ([]collection, error)) (uuid.UUID, error) {
	s.mu.Lock()
	owner := s.state.Owner
	if owner == uuid.Nil {
		s.mu.Unlock()
		return uuid.Nil, domain.ErrUnauthorized
	}

	changed, err := fn(owner)
	if err != nil {
		s.mu.Unlock()
		return owner, err
	}
	if len(changed) == 0 {
		s.mu.Unlock()
		return owner, nil
	}
	s.persistLocked(ctx, changed...)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return owner, nil
}

// persistLocked writes the given collections to the cache. Several synced
// collections are written in one transaction. Failures are logged: memory
// stays authoritative and the next refresh rewrites the cache.
func (s *Store) persistLocked(ctx context.Context, cols ...collection) {
	ctx = context.WithoutCancel(ctx)

	var data []collection
	for _, c := range cols {
		if c == colActive {
			if err := s.cache.SetActiveNoteID(ctx, s.state.ActiveNoteID); err != nil {
				s.warnCache(ctx, c, err)
			}
			continue
		}
		data = append(data, c)
	}

	if len(data) > 1 {
		err := s.cache.SaveSnapshot(ctx, domain.Dataset{
			Notes:    s.state.Notes,
			Folders:  s.state.Folders,
			Tags:     s.state.Tags,
			NoteTags: s.state.NoteTags,
		})
		if err != nil {
			s.warnCache(ctx, data[0], err)
		}
		return
	}

	for _, c := range data {
		var err error
		switch c {
		case colNotes:
			err = s.cache.SetNotes(ctx, s.state.Notes)
		case colFolders:
			err = s.cache.SetFolders(ctx, s.state.Folders)
		case colTags:
			err = s.cache.SetTags(ctx, s.state.Tags)
		case colNoteTags:
			err = s.cache.SetNoteTags(ctx, s.state.NoteTags)
		}
		if err != nil {
			s.warnCache(ctx, c, err)
		}
	}
}

func (s *Store) warnCache(ctx context.Context, c collection, err error) {
	s.log.WarnContext(ctx, "cache write failed",
		slog.String("collection", c.String()),
		slog.String("error", err.Error()),
	)
}

// push performs the remote half of a mutation. The local change is kept on
// failure.
func (s *Store) push(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		s.log.ErrorContext(ctx, "remote write failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// snapshotLocked stamps the state with the next sequence number and returns
// a copy for notify.
func (s *Store) snapshotLocked() State {
	s.seq++
	s.state.Seq = s.seq
	return s.state.clone()
}

func (s *Store) notify(snap State) {
	s.lmu.Lock()
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.state.Loading = v
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// onRemoteChange refreshes on every remote change event.
func (s *Store) onRemoteChange(ctx context.Context, ev domain.ChangeEvent) {
	s.log.DebugContext(ctx, "remote change",
		slog.String("table", ev.Table.String()),
		slog.String("op", string(ev.Op)),
	)
	err := s.Refresh(ctx)
	switch {
	case err == nil,
		errors.Is(err, syncer.ErrStaleSession),
		errors.Is(err, syncer.ErrDisconnected),
		errors.Is(err, context.Canceled):
		return
	default:
		s.log.WarnContext(ctx, "refresh after remote change failed", slog.String("error", err.Error()))
	}
}

// timestamp returns the current time at the precision the remote store keeps.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func sortFolders(folders []domain.Folder) []domain.Folder {
	slices.SortStableFunc(folders, func(a, b domain.Folder) int {
		return compareNames(a.Name, b.Name)
	})
	return folders
}

func sortTags(tags []domain.Tag) []domain.Tag {
	slices.SortStableFunc(tags, func(a, b domain.Tag) int {
		return compareNames(a.Name, b.Name)
	})
	return tags
}

func compareNames(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func indexOfNote(notes []domain.Note, id uuid.UUID) int {
	return slices.IndexFunc(notes, func(n domain.Note) bool { return n.ID == id })
}

func firstNoteID(notes []domain.Note) *uuid.UUID {
	if len(notes) == 0 {
		return nil
	}
	id := notes[0].ID
	return &id
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func equalID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
