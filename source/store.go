// Package source holds the data series the renderer draws and moves new
// snapshots from ingestion goroutines to the render loop.
package source

import (
	"slices"
	"sync"

	"github.com/gogpu/chart/series"
)

// Store maps data references to their latest snapshot. Every Put bumps the
// reference's version, which downstream caches key on. It is safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]versioned
}

type versioned struct {
	s       series.Series
	version uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]versioned)}
}

// Put replaces the snapshot for ref and returns its new version.
func (st *Store) Put(ref string, s series.Series) uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	v := st.data[ref].version + 1
	st.data[ref] = versioned{s: s, version: v}
	return v
}

// Snapshot returns the latest series and version for ref.
func (st *Store) Snapshot(ref string) (series.Series, uint64, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.data[ref]
	return e.s, e.version, ok
}

// Delete forgets ref.
func (st *Store) Delete(ref string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.data[ref]
	delete(st.data, ref)
	return ok
}

// Refs returns the known references in sorted order.
func (st *Store) Refs() []string {
	st.mu.RLock()
	refs := make([]string, 0, len(st.data))
	for r := range st.data {
		refs = append(refs, r)
	}
	st.mu.RUnlock()
	slices.Sort(refs)
	return refs
}
