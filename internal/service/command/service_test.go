package command

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/notes"
)

// ---------------------------------------------------------------------------
// Mock
// ---------------------------------------------------------------------------

type noteStoreMock struct {
	state notes.State
	calls []string
	fail  map[string]error

	lastUpdate notes.UpdateNoteInput
	lastCreate notes.CreateNoteInput
	lastRename string
}

func (m *noteStoreMock) record(op string) error {
	m.calls = append(m.calls, op)
	return m.fail[op]
}

func (m *noteStoreMock) State() notes.State { return m.state }

func (m *noteStoreMock) CreateNote(_ context.Context, in notes.CreateNoteInput) (domain.Note, error) {
	m.lastCreate = in
	return domain.Note{ID: uuid.New(), Title: in.Title}, m.record("CreateNote")
}

func (m *noteStoreMock) UpdateNote(_ context.Context, in notes.UpdateNoteInput) (domain.Note, error) {
	m.lastUpdate = in
	return domain.Note{ID: in.NoteID}, m.record("UpdateNote")
}

func (m *noteStoreMock) DeleteNote(context.Context, uuid.UUID) error {
	return m.record("DeleteNote")
}

func (m *noteStoreMock) CreateFolder(context.Context, notes.CreateFolderInput) (domain.Folder, error) {
	return domain.Folder{ID: uuid.New()}, m.record("CreateFolder")
}

func (m *noteStoreMock) CreateTag(context.Context, notes.CreateTagInput) (domain.Tag, error) {
	return domain.Tag{ID: uuid.New()}, m.record("CreateTag")
}

func (m *noteStoreMock) AddTagToNote(context.Context, uuid.UUID, uuid.UUID) error {
	return m.record("AddTagToNote")
}

func (m *noteStoreMock) RenameFolder(_ context.Context, _ uuid.UUID, name string) error {
	m.lastRename = name
	return m.record("RenameFolder")
}

func (m *noteStoreMock) DeleteFolder(context.Context, uuid.UUID) error {
	return m.record("DeleteFolder")
}

func (m *noteStoreMock) DeleteTag(context.Context, uuid.UUID) error {
	return m.record("DeleteTag")
}

func (m *noteStoreMock) RemoveTagFromNote(context.Context, uuid.UUID, uuid.UUID) error {
	return m.record("RemoveTagFromNote")
}

func ptr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// ParsePlan
// ---------------------------------------------------------------------------

func TestParsePlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		summary string
		ops     int
		wantErr bool
	}{
		{name: "plain json", raw: `{"summary":"s","ops":[{"type":"query","query":"x"}]}`, summary: "s", ops: 1},
		{name: "fenced json", raw: "```json\n{\"summary\":\"fenced\",\"ops\":[]}\n```", summary: "fenced"},
		{name: "bare fence", raw: "```\n{\"summary\":\"bare\"}\n```", summary: "bare"},
		{name: "empty", raw: "", summary: "No response"},
		{name: "whitespace", raw: " \n\t", summary: "No response"},
		{name: "only fences", raw: "```json\n```", summary: "No response"},
		{name: "malformed", raw: `{"summary":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := ParsePlan([]byte(tt.raw))
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.summary, p.Summary)
			assert.NotNil(t, p.Ops)
			assert.Len(t, p.Ops, tt.ops)
		})
	}
}

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

func TestExecute_AppliesInOrder(t *testing.T) {
	t.Parallel()

	store := &noteStoreMock{}
	svc := NewService(slog.Default(), store)
	noteID, tagID := uuid.New(), uuid.New()

	plan := &Plan{Summary: "tidy up", Ops: []Op{
		{Type: OpCreateFolder, Name: "Projects"},
		{Type: OpCreateTag, Name: "urgent"},
		{Type: OpCreateNote, Title: ptr("Plan"), Content: ptr("# Plan")},
		{Type: OpUpdateNote, NoteID: noteID.String(), Title: ptr("Renamed")},
		{Type: OpLinkTag, NoteID: noteID.String(), TagID: tagID.String()},
		{Type: OpDeleteNote, NoteID: noteID.String()},
	}}

	res, err := svc.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"CreateFolder", "CreateTag", "CreateNote", "UpdateNote", "AddTagToNote", "DeleteNote"}, store.calls)
	assert.Equal(t, "tidy up", res.Summary)
	require.Len(t, res.Applied, 6)
	for i, a := range res.Applied {
		assert.Equal(t, i, a.Index)
		assert.Equal(t, plan.Ops[i].Type, a.Type)
		assert.NotNil(t, a.ID)
	}
	assert.Equal(t, noteID, *res.Applied[3].ID)
}

func TestExecute_RemovalOps(t *testing.T) {
	t.Parallel()

	store := &noteStoreMock{}
	svc := NewService(slog.Default(), store)
	noteID, tagID, folderID := uuid.New(), uuid.New(), uuid.New()

	plan := &Plan{Summary: "clean up", Ops: []Op{
		{Type: OpRenameFolder, FolderID: ptr(folderID.String()), Name: "Archive"},
		{Type: OpUnlinkTag, NoteID: noteID.String(), TagID: tagID.String()},
		{Type: OpDeleteTag, TagID: tagID.String()},
		{Type: OpDeleteFolder, FolderID: ptr(folderID.String())},
	}}

	res, err := svc.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"RenameFolder", "RemoveTagFromNote", "DeleteTag", "DeleteFolder"}, store.calls)
	assert.Equal(t, "Archive", store.lastRename)
	require.Len(t, res.Applied, 4)
	assert.Equal(t, folderID, *res.Applied[0].ID)
	assert.Equal(t, noteID, *res.Applied[1].ID)
	assert.Equal(t, tagID, *res.Applied[2].ID)
	assert.Equal(t, folderID, *res.Applied[3].ID)
}

func TestExecute_RemovalOpsValidation(t *testing.T) {
	t.Parallel()

	store := &noteStoreMock{}
	svc := NewService(slog.Default(), store)

	plan := &Plan{Ops: []Op{
		{Type: OpRenameFolder, Name: " "},
		{Type: OpDeleteFolder, FolderID: ptr("nope")},
		{Type: OpDeleteTag},
		{Type: OpUnlinkTag, NoteID: uuid.NewString()},
	}}

	_, err := svc.Execute(context.Background(), plan)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, store.calls)

	fields := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{
		"ops[0].folder_id", "ops[0].name",
		"ops[1].folder_id",
		"ops[2].tag_id",
		"ops[3].tag_id",
	}, fields)
}

func TestExecute_InvalidOpRejectsWholePlan(t *testing.T) {
	t.Parallel()

	store := &noteStoreMock{}
	svc := NewService(slog.Default(), store)

	plan := &Plan{Ops: []Op{
		{Type: OpCreateNote, Title: ptr("fine")},
		{Type: OpUpdateNote, NoteID: "not-a-uuid", Title: ptr("x")},
		{Type: "rename_everything"},
		{Type: OpCreateTag, Name: "  "},
	}}

	res, err := svc.Execute(context.Background(), plan)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Nil(t, res)
	assert.Empty(t, store.calls, "nothing may be applied")

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{"ops[1].note_id", "ops[2].type", "ops[3].name"}, fields)
}

func TestExecute_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("remote down")
	store := &noteStoreMock{fail: map[string]error{"CreateTag": boom}}
	svc := NewService(slog.Default(), store)

	plan := &Plan{Ops: []Op{
		{Type: OpCreateFolder, Name: "a"},
		{Type: OpCreateTag, Name: "b"},
		{Type: OpCreateNote},
	}}

	res, err := svc.Execute(context.Background(), plan)
	require.ErrorIs(t, err, boom)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 1, opErr.Index)
	assert.Equal(t, OpCreateTag, opErr.Type)

	require.NotNil(t, res)
	assert.Len(t, res.Applied, 1)
	assert.Equal(t, []string{"CreateFolder", "CreateTag"}, store.calls)
}

func TestExecute_QueryDoesNotMutate(t *testing.T) {
	t.Parallel()

	tag := uuid.New()
	milk := domain.Note{ID: uuid.New(), Title: "Groceries", Content: "milk"}
	other := domain.Note{ID: uuid.New(), Title: "Ideas"}
	store := &noteStoreMock{state: notes.State{
		Notes:    []domain.Note{milk, other},
		NoteTags: []domain.NoteTag{{NoteID: other.ID, TagID: tag}},
	}}
	svc := NewService(slog.Default(), store)

	res, err := svc.Execute(context.Background(), &Plan{Ops: []Op{
		{Type: OpQuery, Query: "MILK"},
		{Type: OpQuery, TagID: tag.String()},
	}})
	require.NoError(t, err)
	assert.Empty(t, store.calls)

	require.Len(t, res.Applied, 2)
	require.Len(t, res.Applied[0].Notes, 1)
	assert.Equal(t, milk.ID, res.Applied[0].Notes[0].ID)
	require.Len(t, res.Applied[1].Notes, 1)
	assert.Equal(t, other.ID, res.Applied[1].Notes[0].ID)
}

func TestExecute_UpdateNoteFolderField(t *testing.T) {
	t.Parallel()

	noteID, folderID := uuid.New(), uuid.New()
	tests := []struct {
		name     string
		folderID *string
		want     *uuid.UUID
	}{
		{name: "absent leaves folder", folderID: nil, want: nil},
		{name: "empty clears folder", folderID: ptr(""), want: &uuid.Nil},
		{name: "id moves note", folderID: ptr(folderID.String()), want: &folderID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &noteStoreMock{}
			svc := NewService(slog.Default(), store)
			_, err := svc.Execute(context.Background(), &Plan{Ops: []Op{
				{Type: OpUpdateNote, NoteID: noteID.String(), Content: ptr("x"), FolderID: tt.folderID},
			}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, store.lastUpdate.FolderID)
		})
	}
}

func TestExecute_EmptyPlan(t *testing.T) {
	t.Parallel()

	p, err := ParsePlan(nil)
	require.NoError(t, err)

	res, err := NewService(slog.Default(), &noteStoreMock{}).Execute(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "No response", res.Summary)
	assert.Empty(t, res.Applied)
}

func TestExecute_TooManyOps(t *testing.T) {
	t.Parallel()

	ops := make([]Op, MaxOps+1)
	for i := range ops {
		ops[i] = Op{Type: OpQuery}
	}
	_, err := NewService(slog.Default(), &noteStoreMock{}).Execute(context.Background(), &Plan{Ops: ops})
	require.ErrorIs(t, err, domain.ErrValidation)
}
