// Package table is the list engine: client-side sort of the loaded page,
// search term handling, selection, row actions and the status toggle.
package table

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/text/language"

	"rocket-console/internal/logger"
	"rocket-console/internal/metrics"
	"rocket-console/internal/notify"
	"rocket-console/internal/schema"
	"rocket-console/internal/transport"
)

var (
	ErrNoRowKey       = errors.New("table: row key selector is required")
	ErrNotAllowed     = errors.New("table: action not enabled for this page")
	ErrUnknownAction  = errors.New("table: unknown row action")
	ErrEmptyRowKey    = errors.New("table: row has no key")
	ErrToggleRejected = errors.New("table: status change was not accepted")
)

// ToggleFunc flips a row's status given its current value. It reports
// whether the backend accepted the change.
type ToggleFunc func(ctx context.Context, id string, current bool) (bool, error)

// DeleteFunc deletes a row by key.
type DeleteFunc func(ctx context.Context, id string) error

// Config wires an Engine to one page.
type Config struct {
	Page         string
	Columns      []schema.Column
	RowKey       func(schema.Row) string
	Capabilities schema.Capabilities
	Actions      []schema.CustomAction
	ToggleField  string
	Toggle       ToggleFunc
	Delete       DeleteFunc
	// OnSuccess runs after a successful toggle or delete; pages use it to
	// re-fetch.
	OnSuccess func()
	Notifier  notify.Notifier
	Language  language.Tag
	Location  *time.Location
	Log       logger.Logger
}

// Engine holds the table state of one page in one workspace.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	sorter   *sorter
	sort     SortState
	search   string
	selected map[string]bool
}

// New builds an engine. RowKey is required.
func New(cfg Config) (*Engine, error) {
	if cfg.RowKey == nil {
		return nil, ErrNoRowKey
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Language == language.Und {
		cfg.Language = language.English
	}
	return &Engine{
		cfg:      cfg,
		sorter:   newSorter(cfg.Language),
		selected: map[string]bool{},
	}, nil
}

func (e *Engine) Columns() []schema.Column { return e.cfg.Columns }

func (e *Engine) Capabilities() schema.Capabilities { return e.cfg.Capabilities }

func (e *Engine) Actions() []schema.CustomAction { return e.cfg.Actions }

// Key returns the row's key.
func (e *Engine) Key(row schema.Row) string { return e.cfg.RowKey(row) }

// ClickHeader applies a header click: unsorted or another column sorts
// ascending on key, the ascending column flips to descending. Columns that
// are not sortable are ignored.
func (e *Engine) ClickHeader(key string) SortState {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cfg.Columns {
		if c.Key == key && c.IsSortable() {
			e.sort = e.sort.next(key)
			break
		}
	}
	return e.sort
}

// Sort returns the active sort.
func (e *Engine) Sort() SortState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sort
}

// ResetSort clears the active sort.
func (e *Engine) ResetSort() {
	e.mu.Lock()
	e.sort = SortState{}
	e.mu.Unlock()
}

// Sorted returns a sorted copy of rows. rows is not modified.
func (e *Engine) Sorted(rows []schema.Row) []schema.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sorter.sort(rows, e.sort)
}

// SetSearchTerm stores the term being typed. Nothing is dispatched.
func (e *Engine) SetSearchTerm(term string) {
	e.mu.Lock()
	e.search = term
	e.mu.Unlock()
}

func (e *Engine) SearchTerm() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.search
}

// SubmitSearch returns the trimmed term for the caller to dispatch to its
// fetch hook.
func (e *Engine) SubmitSearch() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.search = strings.TrimSpace(e.search)
	return e.search
}

// ToggleStatus asks the backend to flip the row's status. The row itself is
// never modified; OnSuccess runs once when the backend accepts.
func (e *Engine) ToggleStatus(ctx context.Context, row schema.Row) error {
	if !e.cfg.Capabilities.Toggleable || e.cfg.Toggle == nil {
		return ErrNotAllowed
	}
	id := e.cfg.RowKey(row)
	if id == "" {
		return ErrEmptyRowKey
	}
	current := cast.ToBool(row[e.cfg.ToggleField])

	ok, err := e.cfg.Toggle(ctx, id, current)
	e.recordMutation("toggle", err == nil && ok)
	if err != nil {
		e.cfg.Log.Warnw("status toggle failed", "page", e.cfg.Page, "id", id, "error", err)
		e.notifyError(err)
		return err
	}
	if !ok {
		e.cfg.Notifier.Error("Unable to update the status.")
		return ErrToggleRejected
	}
	if e.cfg.OnSuccess != nil {
		e.cfg.OnSuccess()
	}
	return nil
}

// Delete removes the row through the injected DeleteFunc.
func (e *Engine) Delete(ctx context.Context, row schema.Row) error {
	if !e.cfg.Capabilities.Deletable || e.cfg.Delete == nil {
		return ErrNotAllowed
	}
	id := e.cfg.RowKey(row)
	if id == "" {
		return ErrEmptyRowKey
	}

	err := e.cfg.Delete(ctx, id)
	e.recordMutation("delete", err == nil)
	if err != nil {
		e.cfg.Log.Warnw("delete failed", "page", e.cfg.Page, "id", id, "error", err)
		e.notifyError(err)
		return err
	}
	e.Deselect(id)
	e.cfg.Notifier.Success("Record deleted")
	if e.cfg.OnSuccess != nil {
		e.cfg.OnSuccess()
	}
	return nil
}

// EditTarget returns the row the edit form hydrates from. remap maps a field
// name to the row property holding its value when the two differ.
func EditTarget(row schema.Row, remap map[string]string) schema.Row {
	out := make(schema.Row, len(row)+len(remap))
	for k, v := range row {
		out[k] = v
	}
	for field, prop := range remap {
		if v, ok := row[prop]; ok {
			out[field] = v
		}
	}
	return out
}

// TriggerAction runs custom action i for row and returns its link, if any.
func (e *Engine) TriggerAction(i int, row schema.Row) (string, error) {
	if i < 0 || i >= len(e.cfg.Actions) {
		return "", ErrUnknownAction
	}
	a := e.cfg.Actions[i]
	if a.OnClick != nil {
		a.OnClick(row)
	}
	if a.Link != nil {
		return a.Link(row), nil
	}
	return "", nil
}

func (e *Engine) Select(id string) {
	e.mu.Lock()
	e.selected[id] = true
	e.mu.Unlock()
}

func (e *Engine) Deselect(id string) {
	e.mu.Lock()
	delete(e.selected, id)
	e.mu.Unlock()
}

// ToggleSelected flips one row's selection.
func (e *Engine) ToggleSelected(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected[id] {
		delete(e.selected, id)
		return false
	}
	e.selected[id] = true
	return true
}

func (e *Engine) IsSelected(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected[id]
}

// ToggleAll selects every row, or clears the selection when every row is
// already selected.
func (e *Engine) ToggleAll(rows []schema.Row) {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := len(rows) > 0
	for _, r := range rows {
		if !e.selected[e.cfg.RowKey(r)] {
			all = false
			break
		}
	}
	if all {
		e.selected = map[string]bool{}
		return
	}
	for _, r := range rows {
		if id := e.cfg.RowKey(r); id != "" {
			e.selected[id] = true
		}
	}
}

// Selected returns the selected keys in order.
func (e *Engine) Selected() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.selected))
	for id := range e.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) ClearSelection() {
	e.mu.Lock()
	e.selected = map[string]bool{}
	e.mu.Unlock()
}

// Cell renders one cell of row.
func (e *Engine) Cell(col schema.Column, row schema.Row) Cell {
	v := row[col.Key]
	if col.Toggle {
		return Cell{Toggle: true, On: cast.ToBool(v)}
	}
	if col.Format == "image" {
		return Cell{Image: cast.ToString(v)}
	}
	return Cell{Text: Format(col, v, e.cfg.Location)}
}

// WriteCSV exports rows through the table's columns.
func (e *Engine) WriteCSV(w io.Writer, rows []schema.Row) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(e.cfg.Columns))
	for i, c := range e.cfg.Columns {
		header[i] = c.Label
		if header[i] == "" {
			header[i] = c.Key
		}
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		rec := make([]string, len(e.cfg.Columns))
		for i, c := range e.cfg.Columns {
			switch {
			case c.Format == "image":
				rec[i] = cast.ToString(r[c.Key])
			case c.Toggle:
				rec[i] = Format(schema.Column{Format: "yesno"}, r[c.Key], e.cfg.Location)
			default:
				rec[i] = Format(c, r[c.Key], e.cfg.Location)
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *Engine) notifyError(err error) {
	if errors.Is(err, transport.ErrSessionExpired) {
		return
	}
	e.cfg.Notifier.Error(transport.UserMessage(err))
}

func (e *Engine) recordMutation(action string, ok bool) {
	metrics.Mutations.WithLabelValues(e.cfg.Page, action, metrics.Result(ok)).Inc()
}
