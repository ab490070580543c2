package graphlette

import (
	"net/url"
	"sync"

	"github.com/tailoredshapes/meshql/envelope"
)

// RegistryEntry pairs an entity's searcher with the RootConfig its
// schema was built from, so a relation resolver can reach another
// entity's data without re-deriving its schema.
type RegistryEntry struct {
	Searcher   envelope.Searcher
	RootConfig *RootConfig
}

// Registry is the process-wide directory from graphlette path to
// {searcher, root_config}, built once at startup (spec.md §3's
// "Lifecycle") and read by every relation resolver thereafter.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]RegistryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]RegistryEntry)}
}

// Register adds an entry under a bare graphlette path (e.g. "/farm").
func (r *Registry) Register(path string, entry RegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[path] = entry
}

// Lookup accepts either a bare path or a full URL; when given a URL,
// only its path component is used for the lookup, so an internal and
// an external endpoint_ref can address the same entity interchangeably.
func (r *Registry) Lookup(endpointRef string) (RegistryEntry, bool) {
	path := endpointRef
	if u, err := url.Parse(endpointRef); err == nil && u.Path != "" && (u.Scheme != "" || u.Host != "") {
		path = u.Path
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[path]
	return entry, ok
}
