package repository

import (
	"sync"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	entries  map[string]model.Product
	order    []string            // first-seen order; removed ids keep their slot until forgotten
	slots    map[string]struct{} // ids present in order
	revision uint64

	subMu  sync.Mutex
	subs   map[int]func(uint64)
	nextID int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]model.Product),
		slots:   make(map[string]struct{}),
		subs:    make(map[int]func(uint64)),
	}
}

var _ inventory.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Get(id string) (model.Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[id]
	if !ok {
		return model.Product{}, false
	}
	return p.Clone(), true
}

func (r *MemoryRepository) Upsert(p model.Product) error {
	r.mu.Lock()
	if cur, ok := r.entries[p.ID]; ok && p.Version < cur.Version {
		r.mu.Unlock()
		return inventory.ErrStaleWrite
	}
	r.put(p)
	rev := r.bump()
	r.mu.Unlock()

	r.notify(rev)
	return nil
}

func (r *MemoryRepository) Restore(p model.Product) {
	r.mu.Lock()
	r.put(p)
	rev := r.bump()
	r.mu.Unlock()

	r.notify(rev)
}

func (r *MemoryRepository) Remove(id string) bool {
	r.mu.Lock()
	if _, ok := r.entries[id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, id)
	rev := r.bump()
	r.mu.Unlock()

	r.notify(rev)
	return true
}

func (r *MemoryRepository) Forget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, live := r.entries[id]; live {
		return false
	}
	if _, ok := r.slots[id]; !ok {
		return false
	}
	delete(r.slots, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *MemoryRepository) SnapshotAll() []model.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Product, 0, len(r.entries))
	for _, id := range r.order {
		if p, ok := r.entries[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *MemoryRepository) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// Subscribe registers fn to be called after every accepted write.
// fn runs on the writer's goroutine and must not block.
func (r *MemoryRepository) Subscribe(fn func(revision uint64)) func() {
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

// put must be called with mu held.
func (r *MemoryRepository) put(p model.Product) {
	if _, ok := r.slots[p.ID]; !ok {
		r.slots[p.ID] = struct{}{}
		r.order = append(r.order, p.ID)
	}
	r.entries[p.ID] = p.Clone()
}

func (r *MemoryRepository) bump() uint64 {
	r.revision++
	return r.revision
}

func (r *MemoryRepository) notify(rev uint64) {
	r.subMu.Lock()
	fns := make([]func(uint64), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(rev)
	}
}
