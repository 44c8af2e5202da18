package form

import (
	"sync"

	"rocket-console/internal/schema"
)

// Host allows at most one open modal. A second Open is rejected, never
// merged into the open one.
type Host struct {
	mu      sync.Mutex
	current *Modal
}

// Open hydrates a new modal from row (nil for create) and makes it current.
func (h *Host) Open(cfg Config, row schema.Row) (*Modal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil && h.current.Phase() != PhaseClosed {
		return nil, ErrAlreadyOpen
	}
	m := newModal(cfg)
	m.open(row)
	h.current = m
	return m, nil
}

// Current returns the open modal, or nil.
func (h *Host) Current() *Modal {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil || h.current.Phase() == PhaseClosed {
		h.current = nil
		return nil
	}
	return h.current
}

// Close closes the open modal, if any. While its submission is in flight the
// modal stays current and Close returns ErrBusy.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil
	}
	if err := h.current.Close(); err != nil {
		return err
	}
	h.current = nil
	return nil
}
