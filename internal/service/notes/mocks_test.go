package notes

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/syncer"
)

// ---------------------------------------------------------------------------
// syncEngine
// ---------------------------------------------------------------------------

type syncEngineMock struct {
	BootstrapFunc func(ctx context.Context, owner uuid.UUID) (*syncer.Snapshot, error)
	RefreshFunc   func(ctx context.Context) (*syncer.Snapshot, error)
	LoadMoreFunc  func(ctx context.Context, cursor time.Time) (*syncer.Page, error)
	SubscribeFunc func(onChange func(context.Context, domain.ChangeEvent)) error
	DisposeFunc   func()

	mu       sync.Mutex
	disposed int
	onChange func(context.Context, domain.ChangeEvent)
}

func (m *syncEngineMock) Bootstrap(ctx context.Context, owner uuid.UUID) (*syncer.Snapshot, error) {
	if m.BootstrapFunc == nil {
		return &syncer.Snapshot{Owner: owner, Dataset: emptyDataset()}, nil
	}
	return m.BootstrapFunc(ctx, owner)
}

func (m *syncEngineMock) Refresh(ctx context.Context) (*syncer.Snapshot, error) {
	if m.RefreshFunc == nil {
		panic("syncEngineMock.RefreshFunc: method is nil but Refresh was just called")
	}
	return m.RefreshFunc(ctx)
}

func (m *syncEngineMock) LoadMore(ctx context.Context, cursor time.Time) (*syncer.Page, error) {
	if m.LoadMoreFunc == nil {
		panic("syncEngineMock.LoadMoreFunc: method is nil but LoadMore was just called")
	}
	return m.LoadMoreFunc(ctx, cursor)
}

func (m *syncEngineMock) Subscribe(onChange func(context.Context, domain.ChangeEvent)) error {
	m.mu.Lock()
	m.onChange = onChange
	m.mu.Unlock()
	if m.SubscribeFunc == nil {
		return nil
	}
	return m.SubscribeFunc(onChange)
}

func (m *syncEngineMock) Dispose() {
	m.mu.Lock()
	m.disposed++
	m.mu.Unlock()
	if m.DisposeFunc != nil {
		m.DisposeFunc()
	}
}

func emptyDataset() domain.Dataset {
	return domain.Dataset{
		Notes:    []domain.Note{},
		Folders:  []domain.Folder{},
		Tags:     []domain.Tag{},
		NoteTags: []domain.NoteTag{},
	}
}

// ---------------------------------------------------------------------------
// localCache
// ---------------------------------------------------------------------------

type memCache struct {
	mu       sync.Mutex
	data     domain.Dataset
	active   *uuid.UUID
	owner    uuid.UUID
	writes   map[string]int
	cleared  int
	writeErr error
	// ClearFunc runs after Clear has released the cache lock.
	ClearFunc func()
}

func newMemCache() *memCache {
	return &memCache{data: emptyDataset(), writes: make(map[string]int)}
}

func (c *memCache) record(key string) error {
	c.writes[key]++
	return c.writeErr
}

func (c *memCache) Notes(context.Context) ([]domain.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Note{}, c.data.Notes...), nil
}

func (c *memCache) SetNotes(_ context.Context, notes []domain.Note) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("notes"); err != nil {
		return err
	}
	c.data.Notes = append([]domain.Note{}, notes...)
	return nil
}

func (c *memCache) Folders(context.Context) ([]domain.Folder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Folder{}, c.data.Folders...), nil
}

func (c *memCache) SetFolders(_ context.Context, folders []domain.Folder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("folders"); err != nil {
		return err
	}
	c.data.Folders = append([]domain.Folder{}, folders...)
	return nil
}

func (c *memCache) Tags(context.Context) ([]domain.Tag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Tag{}, c.data.Tags...), nil
}

func (c *memCache) SetTags(_ context.Context, tags []domain.Tag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("tags"); err != nil {
		return err
	}
	c.data.Tags = append([]domain.Tag{}, tags...)
	return nil
}

func (c *memCache) NoteTags(context.Context) ([]domain.NoteTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.NoteTag{}, c.data.NoteTags...), nil
}

func (c *memCache) SetNoteTags(_ context.Context, links []domain.NoteTag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("note_tags"); err != nil {
		return err
	}
	c.data.NoteTags = append([]domain.NoteTag{}, links...)
	return nil
}

func (c *memCache) SaveSnapshot(_ context.Context, data domain.Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("snapshot"); err != nil {
		return err
	}
	c.data = domain.Dataset{
		Notes:    append([]domain.Note{}, data.Notes...),
		Folders:  append([]domain.Folder{}, data.Folders...),
		Tags:     append([]domain.Tag{}, data.Tags...),
		NoteTags: append([]domain.NoteTag{}, data.NoteTags...),
	}
	return nil
}

func (c *memCache) ActiveNoteID(context.Context) (*uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneID(c.active), nil
}

func (c *memCache) SetActiveNoteID(_ context.Context, id *uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("active"); err != nil {
		return err
	}
	c.active = cloneID(id)
	return nil
}

func (c *memCache) Owner(context.Context) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner, nil
}

func (c *memCache) SetOwner(_ context.Context, owner uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("owner"); err != nil {
		return err
	}
	c.owner = owner
	return nil
}

func (c *memCache) Clear(context.Context) error {
	c.mu.Lock()
	c.cleared++
	c.data = emptyDataset()
	c.active = nil
	c.owner = uuid.Nil
	hook := c.ClearFunc
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (c *memCache) clearCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared
}

func (c *memCache) snapshot() (domain.Dataset, *uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data, cloneID(c.active)
}

// ---------------------------------------------------------------------------
// remoteWriter
// ---------------------------------------------------------------------------

type remoteCall struct {
	Op  string
	IDs []uuid.UUID
}

type remoteWriterMock struct {
	mu    sync.Mutex
	calls []remoteCall
	err   error
}

func (m *remoteWriterMock) call(op string, ids ...uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, remoteCall{Op: op, IDs: ids})
	return m.err
}

func (m *remoteWriterMock) Calls() []remoteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]remoteCall{}, m.calls...)
}

func (m *remoteWriterMock) InsertNote(_ context.Context, n domain.Note) error {
	return m.call("InsertNote", n.ID)
}

func (m *remoteWriterMock) UpdateNote(_ context.Context, n domain.Note) error {
	return m.call("UpdateNote", n.ID)
}

func (m *remoteWriterMock) DeleteNote(_ context.Context, owner, noteID uuid.UUID) error {
	return m.call("DeleteNote", owner, noteID)
}

func (m *remoteWriterMock) InsertFolder(_ context.Context, f domain.Folder) error {
	return m.call("InsertFolder", f.ID)
}

func (m *remoteWriterMock) RenameFolder(_ context.Context, owner, folderID uuid.UUID, _ string) error {
	return m.call("RenameFolder", owner, folderID)
}

func (m *remoteWriterMock) DeleteFolder(_ context.Context, owner, folderID uuid.UUID) error {
	return m.call("DeleteFolder", owner, folderID)
}

func (m *remoteWriterMock) InsertTag(_ context.Context, t domain.Tag) error {
	return m.call("InsertTag", t.ID)
}

func (m *remoteWriterMock) DeleteTag(_ context.Context, owner, tagID uuid.UUID) error {
	return m.call("DeleteTag", owner, tagID)
}

func (m *remoteWriterMock) LinkTag(_ context.Context, owner, noteID, tagID uuid.UUID) error {
	return m.call("LinkTag", owner, noteID, tagID)
}

func (m *remoteWriterMock) UnlinkTag(_ context.Context, owner, noteID, tagID uuid.UUID) error {
	return m.call("UnlinkTag", owner, noteID, tagID)
}
