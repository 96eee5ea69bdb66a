// Package replica holds the client's authoritative ordered shape
// collection and merges remote and local edits into it.
//
// Conflict policy is last-writer-wins by arrival order: there is no
// logical clock, so two peers applying concurrent edits to the same
// shape can transiently diverge until the next update lands. Removal
// keeps no tombstone, so an update arriving after an erase re-inserts
// the shape.
package replica

import (
	"sync"

	"github.com/ezeslucky/drawio/internal/models"
)

type Replica struct {
	mu     sync.RWMutex
	shapes []models.Shape
	index  map[string]int

	// onChange fires after every accepted mutation, outside entry
	// points' critical work but under the lock so persistence sees a
	// consistent snapshot.
	onChange func([]models.Shape)
}

func New() *Replica {
	return &Replica{
		index: make(map[string]int),
	}
}

// SetOnChange installs a callback invoked with the ordered shape list
// after every mutation. Used for snapshot persistence in standalone
// mode.
func (r *Replica) SetOnChange(fn func([]models.Shape)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Upsert inserts the shape or replaces the existing one with the same
// id in place, keeping its original position so paint order is stable
// across updates.
func (r *Replica) Upsert(shape models.Shape) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(shape)
	r.notifyLocked()
}

// ApplyBatch upserts every shape in order. Used when bulk-loading a
// persisted snapshot.
func (r *Replica) ApplyBatch(shapes []models.Shape) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, shape := range shapes {
		r.upsertLocked(shape)
	}
	r.notifyLocked()
}

func (r *Replica) upsertLocked(shape models.Shape) {
	if i, ok := r.index[shape.ID]; ok {
		r.shapes[i] = shape
		return
	}
	r.index[shape.ID] = len(r.shapes)
	r.shapes = append(r.shapes, shape)
}

// Remove deletes the shape with the given id, a no-op if absent. No
// tombstone is kept.
func (r *Replica) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return
	}

	r.shapes = append(r.shapes[:i], r.shapes[i+1:]...)
	delete(r.index, id)
	for j := i; j < len(r.shapes); j++ {
		r.index[r.shapes[j].ID] = j
	}

	r.notifyLocked()
}

func (r *Replica) notifyLocked() {
	if r.onChange != nil {
		r.onChange(r.snapshotLocked())
	}
}

// Shapes returns a copy of the collection in paint order.
func (r *Replica) Shapes() []models.Shape {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Replica) snapshotLocked() []models.Shape {
	out := make([]models.Shape, len(r.shapes))
	copy(out, r.shapes)
	return out
}

func (r *Replica) Get(id string) (models.Shape, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return models.Shape{}, false
	}
	return r.shapes[i], true
}

func (r *Replica) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *Replica) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shapes)
}

// Clear drops every shape.
func (r *Replica) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shapes = nil
	r.index = make(map[string]int)
	r.notifyLocked()
}
