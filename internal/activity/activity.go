// Package activity records the outcome of every console mutation.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names.
const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionToggle = "toggle"
	ActionImport = "import"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one recorded mutation.
type Entry struct {
	ID         string    `json:"id"`
	Workspace  string    `json:"workspace"`
	Operator   string    `json:"operator"`
	Page       string    `json:"page"`
	Action     string    `json:"action"`
	RecordID   string    `json:"record_id"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewEntry stamps an entry with an id and the current time. err decides the
// status; its text becomes the message when msg is empty.
func NewEntry(workspace, operator, page, action, recordID string, started time.Time, msg string, err error) Entry {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		if msg == "" {
			msg = err.Error()
		}
	}
	now := time.Now().UTC()
	return Entry{
		ID:         uuid.NewString(),
		Workspace:  workspace,
		Operator:   operator,
		Page:       page,
		Action:     action,
		RecordID:   recordID,
		Status:     status,
		Message:    msg,
		DurationMs: now.Sub(started).Milliseconds(),
		CreatedAt:  now,
	}
}

// Recorder accepts entries and lists recent ones.
type Recorder interface {
	Record(e Entry)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Noop discards entries. Used when the trail is disabled.
type Noop struct{}

func (Noop) Record(Entry) {}

func (Noop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
