package schema

import (
	"sort"
	"sync"
)

type Registry struct {
	mu    sync.RWMutex
	pages map[string]*Page
	order []string
}

func NewRegistry() *Registry {
	return &Registry{pages: make(map[string]*Page)}
}

// GetPage returns the page with the given name, or nil.
func (r *Registry) GetPage(name string) *Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pages[name]
}

// AllPages returns all registered pages in declaration order.
func (r *Registry) AllPages() []*Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pages := make([]*Page, 0, len(r.order))
	for _, name := range r.order {
		pages = append(pages, r.pages[name])
	}
	return pages
}

// Names returns the registered page names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// Load replaces all pages in the registry.
// Called during startup and after the pages file changes.
func (r *Registry) Load(pages []*Page) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pages = make(map[string]*Page, len(pages))
	r.order = make([]string, 0, len(pages))
	for _, p := range pages {
		r.pages[p.Name] = p
		r.order = append(r.order, p.Name)
	}
}
