// Package form is the create/edit modal: a Value Map hydrated from a row or
// the schema defaults, validated and serialized on submit, persisted once.
package form

import (
	"context"
	"errors"
	"sync"

	"rocket-console/internal/logger"
	"rocket-console/internal/metrics"
	"rocket-console/internal/notify"
	"rocket-console/internal/schema"
	"rocket-console/internal/transform"
	"rocket-console/internal/transport"
	"rocket-console/internal/validate"
)

var (
	ErrValidation  = errors.New("form has validation errors")
	ErrBusy        = errors.New("form is already submitting")
	ErrAlreadyOpen = errors.New("another form is already open")
	ErrClosed      = errors.New("form is not open")
)

type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

type Phase string

const (
	PhaseClosed     Phase = "closed"
	PhaseHydrating  Phase = "hydrating"
	PhaseEditing    Phase = "editing"
	PhaseSubmitting Phase = "submitting"
)

// DefaultSuccessMessage is toasted when the backend sends no message.
const DefaultSuccessMessage = "Saved successfully"

// Config describes one modal.
type Config struct {
	Page     string
	Title    string
	Mode     Mode
	RecordID string
	Fields   []schema.Field
	Checks   []schema.Check
	Codec    transform.Codec

	Persister Persister
	Notifier  notify.Notifier
	// OnSaved runs after a successful submit, outside any lock.
	OnSaved func()
	Log     logger.Logger
}

// Modal owns the Value Map and Error Map of one open form.
type Modal struct {
	mu       sync.Mutex
	cfg      Config
	phase    Phase
	values   transform.ValueMap
	errors   validate.ErrorMap
	previews map[string][]string
}

// Outcome is the result of a successful submit.
type Outcome struct {
	Message string
}

func newModal(cfg Config) *Modal {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	cfg.Fields = schema.CloneFields(cfg.Fields)
	return &Modal{cfg: cfg, phase: PhaseClosed}
}

// open hydrates the Value Map. row is nil for create.
func (m *Modal) open(row schema.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = PhaseHydrating
	if m.cfg.Mode == ModeCreate {
		row = nil
	}
	m.values = m.cfg.Codec.HydrateAll(m.cfg.Fields, row)
	m.errors = validate.ErrorMap{}
	m.previews = map[string][]string{}
	for _, f := range m.cfg.Fields {
		if urls := transform.Preview(f, row[f.Name]); len(urls) > 0 {
			m.previews[f.Key()] = urls
		}
	}
	m.phase = PhaseEditing
}

func (m *Modal) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Modal) Mode() Mode { return m.cfg.Mode }

func (m *Modal) Page() string { return m.cfg.Page }

func (m *Modal) Title() string { return m.cfg.Title }

func (m *Modal) RecordID() string { return m.cfg.RecordID }

func (m *Modal) Fields() []schema.Field {
	return schema.CloneFields(m.cfg.Fields)
}

// Rows lays the fields out for rendering.
func (m *Modal) Rows() []LayoutRow { return Layout(m.cfg.Fields) }

// Values returns a copy of the Value Map.
func (m *Modal) Values() transform.ValueMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values.Clone()
}

// Errors returns a copy of the Error Map.
func (m *Modal) Errors() validate.ErrorMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(validate.ErrorMap, len(m.errors))
	for k, v := range m.errors {
		out[k] = v
	}
	return out
}

// Previews returns the stored file URLs per file field key.
func (m *Modal) Previews() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.previews))
	for k, v := range m.previews {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// SetField writes one value and clears that field's error.
func (m *Modal) SetField(key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseEditing {
		return ErrClosed
	}
	m.values[key] = v
	delete(m.errors, key)
	return nil
}

// Submit validates, serializes and persists the form. On validation failure
// it returns ErrValidation without calling the persister. On a persistence
// failure the form stays open for correction.
func (m *Modal) Submit(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	switch m.phase {
	case PhaseSubmitting:
		m.mu.Unlock()
		return Outcome{}, ErrBusy
	case PhaseEditing:
	default:
		m.mu.Unlock()
		return Outcome{}, ErrClosed
	}

	if errs := validate.ValidatePage(m.cfg.Fields, m.cfg.Checks, m.values); len(errs) > 0 {
		m.errors = errs
		m.mu.Unlock()
		m.record("invalid")
		m.cfg.Notifier.Error(errs.Summary())
		return Outcome{}, ErrValidation
	}

	m.phase = PhaseSubmitting
	sub := Submission{
		Page:     m.cfg.Page,
		Mode:     m.cfg.Mode,
		RecordID: m.cfg.RecordID,
		Values:   m.cfg.Codec.SerializeAll(m.cfg.Fields, m.values),
	}
	m.mu.Unlock()

	res, err := m.cfg.Persister.Persist(ctx, sub)
	if err = m.settle(res, err); err != nil {
		m.record("failure")
		m.cfg.Log.Warnw("form submit failed", "page", m.cfg.Page, "mode", m.cfg.Mode, "error", err)
		if !errors.Is(err, transport.ErrSessionExpired) && !errors.Is(err, ErrClosed) {
			m.cfg.Notifier.Error(transport.UserMessage(err))
		}
		return Outcome{}, err
	}

	m.record("success")
	msg := res.Message
	if msg == "" {
		msg = DefaultSuccessMessage
	}
	m.cfg.Notifier.Success(msg)
	if m.cfg.OnSaved != nil {
		m.cfg.OnSaved()
	}
	return Outcome{Message: msg}, nil
}

// settle applies the persister's answer. A failure reopens the form for
// correction; success closes it.
func (m *Modal) settle(res Result, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseSubmitting {
		return ErrClosed
	}
	if err == nil && !res.Success {
		msg := res.Message
		if msg == "" {
			msg = transport.MsgServer
		}
		err = &transport.Error{Message: msg, Fields: res.Fields}
	}
	if err != nil {
		m.phase = PhaseEditing
		m.mergeBackendErrors(err)
		return err
	}
	m.phase = PhaseClosed
	m.values = nil
	m.errors = nil
	return nil
}

// Close discards the Value Map. A form whose submission is in flight cannot
// be closed and reports ErrBusy.
func (m *Modal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseSubmitting {
		return ErrBusy
	}
	m.phase = PhaseClosed
	m.values = nil
	m.errors = nil
	m.previews = nil
	return nil
}

// mergeBackendErrors maps field messages reported by the backend, keyed by
// field name, onto the Error Map. Caller holds mu.
func (m *Modal) mergeBackendErrors(err error) {
	var te *transport.Error
	if !errors.As(err, &te) || len(te.Fields) == 0 {
		return
	}
	if m.errors == nil {
		m.errors = validate.ErrorMap{}
	}
	for _, f := range m.cfg.Fields {
		if msg, ok := te.Fields[f.Name]; ok {
			m.errors[f.Key()] = msg
		}
	}
}

func (m *Modal) record(result string) {
	metrics.Submissions.WithLabelValues(m.cfg.Page, string(m.cfg.Mode), result).Inc()
}
