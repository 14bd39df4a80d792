// Package semantic maintains the human-assigned labels and descriptions
// attached to point ids. The index lives beside the trajectory store, not
// inside it: entries survive point deletion and become orphans until a
// caller prunes them.
package semantic

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoSemanticEntry is returned when a point id has no entry.
var ErrNoSemanticEntry = errors.New("no semantic entry")

// Entry is the metadata attached to one point id.
type Entry struct {
	PointID     int64  `json:"point_id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Stats counts the annotation state of a point population.
type Stats struct {
	Filled int `json:"filled"`
	Empty  int `json:"empty"`
}

// Index is a concurrency-safe map of point id to entry, preserving the
// order in which ids were first annotated.
type Index struct {
	mu      sync.RWMutex
	entries map[int64]Entry
	order   []int64
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[int64]Entry)}
}

// NewIndexFrom builds an index from decoded artifact entries, keeping the
// given slice order as the annotation order.
func NewIndexFrom(entries []Entry) *Index {
	idx := NewIndex()
	for _, e := range entries {
		idx.Set(e.PointID, e.Label, e.Description)
	}
	return idx
}

// Set upserts the entry for a point id. The id is not checked against any
// trajectory store; annotating ahead of (or after) the point's lifetime
// is allowed.
func (idx *Index) Set(id int64, label, description string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.entries[id]; !exists {
		idx.order = append(idx.order, id)
	}
	idx.entries[id] = Entry{PointID: id, Label: label, Description: description}
}

// Get returns the entry for a point id.
func (idx *Index) Get(id int64) (Entry, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: point %d", ErrNoSemanticEntry, id)
	}
	return e, nil
}

// Remove deletes the entry for a point id. Removing an absent entry is a
// no-op so that cleanup code can run unconditionally.
func (idx *Index) Remove(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.entries[id]; !ok {
		return
	}
	delete(idx.entries, id)
	for i, existing := range idx.order {
		if existing == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Entries returns all entries in annotation order.
func (idx *Index) Entries() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Entry, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.entries[id])
	}
	return out
}

// IsOrphaned reports whether the id has an entry but no live point,
// according to the supplied liveness check.
func (idx *Index) IsOrphaned(id int64, alive func(int64) bool) bool {
	idx.mu.RLock()
	_, ok := idx.entries[id]
	idx.mu.RUnlock()
	return ok && !alive(id)
}

// Orphans returns the ids of entries whose point no longer exists.
func (idx *Index) Orphans(alive func(int64) bool) []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []int64
	for _, id := range idx.order {
		if !alive(id) {
			out = append(out, id)
		}
	}
	return out
}

// CountFor tallies annotated versus unannotated ids for a point
// population, typically the store's current id list. Orphaned entries do
// not count toward either bucket.
func (idx *Index) CountFor(ids []int64) Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var st Stats
	for _, id := range ids {
		if e, ok := idx.entries[id]; ok && (e.Label != "" || e.Description != "") {
			st.Filled++
		} else {
			st.Empty++
		}
	}
	return st
}
