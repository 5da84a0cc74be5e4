// Package multiindex is the namespace mapping database names to triple
// indexes, addressed by blocks at execution time (§4.3).
package multiindex

import (
	"sort"
	"sync"

	"github.com/evalgo-org/eve/everr"
	"github.com/evalgo-org/eve/triple"
)

// Namespace maps database names to their triple index.
type Namespace struct {
	mu      sync.RWMutex
	indexes map[string]*triple.Index
}

// New returns an empty namespace.
func New() *Namespace {
	return &Namespace{indexes: make(map[string]*triple.Index)}
}

// Register adds idx under name. Registering a name that already exists is
// a precondition violation (§4.3), reported as an error rather than a panic
// so the caller can decide how to abort.
func (ns *Namespace) Register(name string, idx *triple.Index) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, exists := ns.indexes[name]; exists {
		return everr.NewPrecondition("multiindex.Register", "database "+name+" already registered")
	}
	ns.indexes[name] = idx
	return nil
}

// Unregister removes name from the namespace. Unregistering a name that
// isn't present is a no-op; callers that need precondition semantics should
// check Lookup first.
func (ns *Namespace) Unregister(name string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	delete(ns.indexes, name)
}

// Lookup returns the index registered under name, if any.
func (ns *Namespace) Lookup(name string) (*triple.Index, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	idx, ok := ns.indexes[name]
	return idx, ok
}

// Names returns the registered database names in sorted order.
func (ns *Namespace) Names() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	names := make([]string, 0, len(ns.indexes))
	for n := range ns.indexes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
