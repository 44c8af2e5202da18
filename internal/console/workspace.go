package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rocket-console/internal/form"
	"rocket-console/internal/listfetch"
	"rocket-console/internal/logger"
	"rocket-console/internal/notify"
	"rocket-console/internal/schema"
	"rocket-console/internal/table"
	"rocket-console/internal/transport"
)

// Workspace is one signed-in operator's engine state: backend client,
// toast queue, the single form host and per-page table and list state.
type Workspace struct {
	ID       string
	Operator string
	Client   *transport.Client
	Toasts   *notify.Queue
	Forms    *form.Host

	mu       sync.Mutex
	pages    map[string]*pageState
	activity *table.Engine
	lastSeen time.Time
}

// pageState is the table engine and fetch hook of one page. page is the
// definition they were built from; a reload replaces it.
type pageState struct {
	page  *schema.Page
	table *table.Engine
	list  *listfetch.Hook[schema.Row]
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastSeen = time.Now()
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// ClientFactory builds the backend client for a new workspace. onExpired
// runs when the backend session cannot be renewed.
type ClientFactory func(onExpired func()) *transport.Client

// Manager manages the lifecycle of operator workspaces.
type Manager struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace
	newClient  ClientFactory
	log        logger.Logger
}

// NewManager creates a Manager.
func NewManager(newClient ClientFactory, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		workspaces: make(map[string]*Workspace),
		newClient:  newClient,
		log:        log,
	}
}

// Open signs the operator in against the backend and creates a workspace.
func (m *Manager) Open(ctx context.Context, email, password string) (string, error) {
	id := uuid.NewString()
	client := m.newClient(func() {
		m.log.Infow("backend session expired", "workspace", id, "operator", email)
		m.remove(id)
	})
	if _, err := client.Login(ctx, email, password); err != nil {
		return "", err
	}

	ws := &Workspace{
		ID:       id,
		Operator: email,
		Client:   client,
		Toasts:   &notify.Queue{},
		Forms:    &form.Host{},
		pages:    make(map[string]*pageState),
		lastSeen: time.Now(),
	}
	m.mu.Lock()
	m.workspaces[id] = ws
	m.mu.Unlock()
	return id, nil
}

// Get returns the workspace with the given id.
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.RLock()
	ws, ok := m.workspaces[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workspace not found: %s", id)
	}
	ws.touch()
	return ws, nil
}

// Close signs the workspace out of the backend and discards it.
func (m *Manager) Close(ctx context.Context, id string) {
	ws := m.remove(id)
	if ws != nil {
		ws.Client.Logout(ctx)
	}
}

func (m *Manager) remove(id string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil
	}
	// an in-flight submission finishes on its own
	_ = ws.Forms.Close()
	delete(m.workspaces, id)
	return ws
}

// Prune discards workspaces idle for longer than maxIdle.
func (m *Manager) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	var stale []string
	m.mu.RLock()
	for id, ws := range m.workspaces {
		if ws.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.remove(id)
	}
	if len(stale) > 0 {
		m.log.Infow("pruned idle workspaces", "count", len(stale))
	}
	return len(stale)
}

// Len returns the number of open workspaces.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

// CloseAll discards every workspace without contacting the backend.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.workspaces {
		_ = ws.Forms.Close()
	}
	m.workspaces = make(map[string]*Workspace)
}
