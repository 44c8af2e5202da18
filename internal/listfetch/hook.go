// Package listfetch implements the fetch contract every list page uses:
// data, totals and an error message for the current params, re-fetched
// whenever the params are replaced.
package listfetch

import (
	"context"
	"errors"
	"sync"

	"rocket-console/internal/busy"
	"rocket-console/internal/logger"
	"rocket-console/internal/notify"
	"rocket-console/internal/transport"
)

// Getter is the slice of the transport client a hook needs.
type Getter interface {
	Get(ctx context.Context, path string, out any) (*transport.Envelope, error)
}

// State is what a page renders.
type State[T any] struct {
	Data         []T
	TotalRecords int
	TotalPages   int
	// Error is the operator-facing message of the last failed fetch. It is
	// cleared by the next successful one.
	Error  string
	Params Params
	// Loaded is false until the first fetch succeeds.
	Loaded bool
}

// Hook fetches one endpoint's pages.
type Hook[T any] struct {
	mu       sync.Mutex
	client   Getter
	endpoint string
	busy     *busy.Counter
	notifier notify.Notifier
	log      logger.Logger

	state State[T]
	seq   uint64
}

// HookOption configures a Hook.
type HookOption func(*hookOptions)

type hookOptions struct {
	busy     *busy.Counter
	notifier notify.Notifier
	log      logger.Logger
}

// WithBusy sets the loading counter. Defaults to busy.Global().
func WithBusy(c *busy.Counter) HookOption {
	return func(o *hookOptions) { o.busy = c }
}

// WithNotifier sets the toast sink.
func WithNotifier(n notify.Notifier) HookOption {
	return func(o *hookOptions) { o.notifier = n }
}

// WithLogger sets the hook logger.
func WithLogger(l logger.Logger) HookOption {
	return func(o *hookOptions) { o.log = l }
}

// New builds a hook. It does not fetch; call SetParams or Refresh.
func New[T any](client Getter, endpoint string, initial Params, opts ...HookOption) *Hook[T] {
	o := hookOptions{busy: busy.Global(), notifier: notify.Discard, log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Hook[T]{
		client:   client,
		endpoint: endpoint,
		busy:     o.busy,
		notifier: o.notifier,
		log:      o.log,
		state:    State[T]{Params: initial.Normalized()},
	}
}

// State returns a snapshot. Data is a copy.
func (h *Hook[T]) State() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.state
	s.Data = append([]T(nil), h.state.Data...)
	s.Params = h.state.Params.Clone()
	return s
}

// Params returns the current params.
func (h *Hook[T]) Params() Params {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Params.Clone()
}

// SetParams replaces the params and issues exactly one request for them.
// On failure the previous data is kept, Error is set and one error toast is
// sent. Data from a response that arrives after a newer request started is
// discarded.
func (h *Hook[T]) SetParams(ctx context.Context, next Params) error {
	h.mu.Lock()
	h.state.Params = next.Clone().Normalized()
	params := h.state.Params.Clone()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	return h.fetch(ctx, params, seq)
}

// Refresh re-issues the request for the current params.
func (h *Hook[T]) Refresh(ctx context.Context) error {
	return h.SetParams(ctx, h.Params())
}

func (h *Hook[T]) fetch(ctx context.Context, params Params, seq uint64) error {
	release := h.busy.Acquire()
	defer release()

	var page transport.Page[T]
	_, err := h.client.Get(ctx, params.URL(h.endpoint), &page)

	h.mu.Lock()
	current := seq == h.seq
	if err != nil {
		// an expired session or an abandoned request is not a list error
		quiet := errors.Is(err, transport.ErrSessionExpired) || errors.Is(err, context.Canceled)
		msg := transport.UserMessage(err)
		if current && !quiet {
			h.state.Error = msg
		}
		h.mu.Unlock()

		h.log.Warnw("list fetch failed", "endpoint", h.endpoint, "error", err)
		if !quiet {
			h.notifier.Error(msg)
		}
		return err
	}
	if !current {
		h.mu.Unlock()
		return nil
	}
	h.state.Data = page.Records
	if h.state.Data == nil {
		h.state.Data = []T{}
	}
	h.state.TotalRecords = page.TotalRecord
	h.state.TotalPages = page.TotalPage
	h.state.Error = ""
	h.state.Loaded = true
	h.mu.Unlock()
	return nil
}
