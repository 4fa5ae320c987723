package command

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// OpType names a plan operation.
type OpType string

const (
	OpCreateNote   OpType = "create_note"
	OpUpdateNote   OpType = "update_note"
	OpDeleteNote   OpType = "delete_note"
	OpCreateFolder OpType = "create_folder"
	OpRenameFolder OpType = "rename_folder"
	OpDeleteFolder OpType = "delete_folder"
	OpCreateTag    OpType = "create_tag"
	OpDeleteTag    OpType = "delete_tag"
	OpLinkTag      OpType = "link_tag"
	OpUnlinkTag    OpType = "unlink_tag"
	OpQuery        OpType = "query"
)

// MaxOps bounds the number of operations in one plan.
const MaxOps = 100

const noResponseSummary = "No response"

// Plan is a batch of operations produced by an external command source.
type Plan struct {
	Summary string `json:"summary"`
	Ops     []Op   `json:"ops"`
}

// Op is one plan operation. Which fields apply depends on Type.
// For update_note a missing FolderID leaves the folder unchanged and an
// empty string moves the note out of its folder.
type Op struct {
	Type     OpType  `json:"type"`
	NoteID   string  `json:"note_id,omitempty"`
	TagID    string  `json:"tag_id,omitempty"`
	FolderID *string `json:"folder_id,omitempty"`
	ParentID string  `json:"parent_id,omitempty"`
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	Name     string  `json:"name,omitempty"`
	Query    string  `json:"query,omitempty"`
}

var fence = []byte("```")

// ParsePlan decodes a plan, tolerating a surrounding Markdown code fence.
// Blank input yields an empty plan.
func ParsePlan(raw []byte) (*Plan, error) {
	text := bytes.TrimSpace(raw)
	if bytes.Contains(text, fence) {
		text = bytes.ReplaceAll(text, []byte("```json"), nil)
		text = bytes.ReplaceAll(text, fence, nil)
		text = bytes.TrimSpace(text)
	}
	if len(text) == 0 {
		return &Plan{Summary: noResponseSummary, Ops: []Op{}}, nil
	}

	var p Plan
	if err := json.Unmarshal(text, &p); err != nil {
		return nil, domain.NewValidationError("plan", fmt.Sprintf("malformed JSON: %v", err))
	}
	if p.Ops == nil {
		p.Ops = []Op{}
	}
	return &p, nil
}
