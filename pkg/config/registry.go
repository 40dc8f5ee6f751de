package config

import (
	"fmt"
	"sort"

	"github.com/derekparker/trie"
	lru "github.com/hashicorp/golang-lru"

	"github.com/go-sigscan/sigscan/pkg/memsig"
)

// resolvedCacheSize bounds the number of memoized resolved addresses
// per registry.
const resolvedCacheSize = 128

// Registry holds named fallbacks and memoizes the addresses they
// resolve to. Register all signatures before resolving: lookups and
// name listings are safe to run concurrently only once registration
// is done.
//
// The memoization here is distinct from the process-wide raw match
// cache inside memsig: it stores final verified addresses per name
// and may evict, while the raw match cache stores first raw matches
// per pattern and never does.
type Registry struct {
	names    *trie.Trie
	resolved *lru.Cache
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	resolved, err := lru.New(resolvedCacheSize)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Registry{names: trie.New(), resolved: resolved}
}

// Register adds a named fallback. Registering a name twice is an
// error.
func (r *Registry) Register(name string, fb memsig.Fallback) error {
	if _, ok := r.names.Find(name); ok {
		return fmt.Errorf("signature %q registered twice", name)
	}
	r.names.Add(name, fb)
	return nil
}

// Lookup returns the fallback registered under name.
func (r *Registry) Lookup(name string) (memsig.Fallback, bool) {
	node, ok := r.names.Find(name)
	if !ok {
		return memsig.Fallback{}, false
	}
	return node.Meta().(memsig.Fallback), true
}

// Names returns the registered names starting with prefix, sorted.
// An empty prefix lists everything.
func (r *Registry) Names(prefix string) []string {
	var names []string
	if prefix == "" {
		names = r.names.Keys()
	} else {
		names = r.names.PrefixSearch(prefix)
	}
	sort.Strings(names)
	return names
}

// Resolve scans for the named signature through s and memoizes the
// resolved address. A "not found" outcome is not memoized, so a later
// call retries the scan.
func (r *Registry) Resolve(s *memsig.Scanner, name string) (uint64, bool) {
	if v, ok := r.resolved.Get(name); ok {
		return v.(uint64), true
	}
	fb, ok := r.Lookup(name)
	if !ok {
		return 0, false
	}
	addr, ok := fb.Scan(s)
	if !ok {
		return 0, false
	}
	r.resolved.Add(name, addr)
	return addr, true
}
