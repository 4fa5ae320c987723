// Package command applies structured plans from external command sources
// (an assistant, scripts, the local API) to the entity store.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/notes"
)

type noteStore interface {
	State() notes.State
	CreateNote(ctx context.Context, in notes.CreateNoteInput) (domain.Note, error)
	UpdateNote(ctx context.Context, in notes.UpdateNoteInput) (domain.Note, error)
	DeleteNote(ctx context.Context, id uuid.UUID) error
	CreateFolder(ctx context.Context, in notes.CreateFolderInput) (domain.Folder, error)
	RenameFolder(ctx context.Context, id uuid.UUID, name string) error
	DeleteFolder(ctx context.Context, id uuid.UUID) error
	CreateTag(ctx context.Context, in notes.CreateTagInput) (domain.Tag, error)
	DeleteTag(ctx context.Context, id uuid.UUID) error
	AddTagToNote(ctx context.Context, noteID, tagID uuid.UUID) error
	RemoveTagFromNote(ctx context.Context, noteID, tagID uuid.UUID) error
}

// Service executes plans.
type Service struct {
	store noteStore
	log   *slog.Logger
}

// NewService creates a command Service.
func NewService(log *slog.Logger, store noteStore) *Service {
	return &Service{
		store: store,
		log:   log.With("service", "command"),
	}
}

// OpResult describes one applied operation.
type OpResult struct {
	Index int           `json:"index"`
	Type  OpType        `json:"type"`
	ID    *uuid.UUID    `json:"id,omitempty"`
	Notes []domain.Note `json:"notes,omitempty"`
}

// Result is the outcome of Execute.
type Result struct {
	Summary string     `json:"summary"`
	Applied []OpResult `json:"applied"`
}

// OpError reports the operation that stopped a plan.
type OpError struct {
	Index int
	Type  OpType
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("op %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Execute validates every operation of the plan and then applies them in
// order. Nothing is applied when any operation is invalid. On the first
// failing operation it returns what was applied so far with an *OpError.
func (s *Service) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	if plan == nil {
		return nil, domain.NewValidationError("plan", "required")
	}
	if len(plan.Ops) > MaxOps {
		return nil, domain.NewValidationError("ops", fmt.Sprintf("max %d operations", MaxOps))
	}

	steps := make([]step, len(plan.Ops))
	var errs []domain.FieldError
	for i, op := range plan.Ops {
		st, fieldErrs := compile(op)
		for _, fe := range fieldErrs {
			errs = append(errs, domain.FieldError{
				Field:   fmt.Sprintf("ops[%d].%s", i, fe.Field),
				Message: fe.Message,
			})
		}
		steps[i] = st
	}
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}

	start := time.Now()
	result := &Result{Summary: plan.Summary, Applied: make([]OpResult, 0, len(steps))}
	for i, st := range steps {
		res, err := st(ctx, s.store)
		if err != nil {
			s.log.WarnContext(ctx, "plan stopped",
				slog.Int("op", i),
				slog.String("type", string(plan.Ops[i].Type)),
				slog.String("error", err.Error()),
			)
			return result, &OpError{Index: i, Type: plan.Ops[i].Type, Err: err}
		}
		res.Index = i
		res.Type = plan.Ops[i].Type
		result.Applied = append(result.Applied, res)
	}

	s.log.InfoContext(ctx, "plan executed",
		slog.String("summary", plan.Summary),
		slog.Int("ops", len(steps)),
		slog.Duration("took", time.Since(start)),
	)
	return result, nil
}

// step applies one validated operation.
type step func(ctx context.Context, store noteStore) (OpResult, error)

func compile(op Op) (step, []domain.FieldError) {
	var v validator

	switch op.Type {
	case OpCreateNote:
		in := notes.CreateNoteInput{
			Title:    deref(op.Title),
			Content:  deref(op.Content),
			FolderID: v.optionalID("folder_id", deref(op.FolderID)),
		}
		v.check(in.Validate())
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			n, err := store.CreateNote(ctx, in)
			return OpResult{ID: &n.ID}, err
		}, v.errs

	case OpUpdateNote:
		in := notes.UpdateNoteInput{
			NoteID:  v.requiredID("note_id", op.NoteID),
			Title:   op.Title,
			Content: op.Content,
		}
		if op.FolderID != nil {
			if *op.FolderID == "" {
				none := uuid.Nil
				in.FolderID = &none
			} else {
				in.FolderID = v.optionalID("folder_id", *op.FolderID)
			}
		}
		v.check(in.Validate())
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			n, err := store.UpdateNote(ctx, in)
			return OpResult{ID: &n.ID}, err
		}, v.errs

	case OpDeleteNote:
		id := v.requiredID("note_id", op.NoteID)
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			return OpResult{ID: &id}, store.DeleteNote(ctx, id)
		}, v.errs

	case OpCreateFolder:
		in := notes.CreateFolderInput{Name: op.Name, ParentID: v.optionalID("parent_id", op.ParentID)}
		v.check(in.Validate())
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			f, err := store.CreateFolder(ctx, in)
			return OpResult{ID: &f.ID}, err
		}, v.errs

	case OpRenameFolder:
		id := v.requiredID("folder_id", deref(op.FolderID))
		if strings.TrimSpace(op.Name) == "" {
			v.add("name", "required")
		}
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			return OpResult{ID: &id}, store.RenameFolder(ctx, id, op.Name)
		}, v.errs

	case OpDeleteFolder:
		id := v.requiredID("folder_id", deref(op.FolderID))
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			return OpResult{ID: &id}, store.DeleteFolder(ctx, id)
		}, v.errs

	case OpCreateTag:
		in := notes.CreateTagInput{Name: op.Name}
		v.check(in.Validate())
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			t, err := store.CreateTag(ctx, in)
			return OpResult{ID: &t.ID}, err
		}, v.errs

	case OpLinkTag:
		noteID := v.requiredID("note_id", op.NoteID)
		tagID := v.requiredID("tag_id", op.TagID)
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			return OpResult{ID: &noteID}, store.AddTagToNote(ctx, noteID, tagID)
		}, v.errs

	case OpDeleteTag:
		id := v.requiredID("tag_id", op.TagID)
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			return OpResult{ID: &id}, store.DeleteTag(ctx, id)
		}, v.errs

	case OpUnlinkTag:
		noteID := v.requiredID("note_id", op.NoteID)
		tagID := v.requiredID("tag_id", op.TagID)
		return func(ctx context.Context, store noteStore) (OpResult, error) {
			return OpResult{ID: &noteID}, store.RemoveTagFromNote(ctx, noteID, tagID)
		}, v.errs

	case OpQuery:
		tagID := v.optionalID("tag_id", op.TagID)
		return func(_ context.Context, store noteStore) (OpResult, error) {
			st := store.State()
			return OpResult{Notes: notes.FilterNotes(st.Notes, st.NoteTags, tagID, op.Query)}, nil
		}, v.errs

	default:
		v.add("type", fmt.Sprintf("unknown operation %q", op.Type))
		return nil, v.errs
	}
}

type validator struct {
	errs []domain.FieldError
}

func (v *validator) add(field, msg string) {
	v.errs = append(v.errs, domain.FieldError{Field: field, Message: msg})
}

// check folds the field errors of an input's Validate into v. Fields already
// reported as invalid ids are not repeated.
func (v *validator) check(err error) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return
	}
	for _, fe := range ve.Errors {
		if !v.has(fe.Field) {
			v.errs = append(v.errs, fe)
		}
	}
}

func (v *validator) has(field string) bool {
	for _, fe := range v.errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func (v *validator) requiredID(field, raw string) uuid.UUID {
	if raw == "" {
		v.add(field, "required")
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		v.add(field, "invalid uuid")
		return uuid.Nil
	}
	return id
}

func (v *validator) optionalID(field, raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		v.add(field, "invalid uuid")
		return nil
	}
	return &id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
