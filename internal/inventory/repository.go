package inventory

import (
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
)

// Repository is the in-memory canonical product store for one session.
// Only the reconciler writes to it.
type Repository interface {
	Get(id string) (model.Product, bool)
	// Upsert replaces the entry when p.Version >= stored version, else returns ErrStaleWrite.
	Upsert(p model.Product) error
	// Restore writes p regardless of version. Used for rollback only.
	Restore(p model.Product)
	Remove(id string) bool
	// Forget drops the ordering slot of an absent id, so a later insert
	// appends it at the end. It reports whether a slot was released.
	Forget(id string) bool
	SnapshotAll() []model.Product
	Len() int

	Revision() uint64
	Subscribe(fn func(revision uint64)) (cancel func())
}
