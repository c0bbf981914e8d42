package reconciler

import (
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
)

type Phase int

const (
	Idle Phase = iota
	Pending
)

func (p Phase) String() string {
	if p == Pending {
		return "pending"
	}
	return "idle"
}

// EntityState is the reconciler's per-product bookkeeping. The zero value is
// Idle with no pending mutation.
type EntityState struct {
	Phase   Phase
	Pending *model.PendingMutation
	// Deleted is set once the backend confirmed removal. Version holds the
	// last version issued for the entity so later increments stay monotonic.
	Deleted bool
	Version uint64
}

func (s EntityState) isZero() bool {
	return s.Phase == Idle && s.Pending == nil && !s.Deleted
}

type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeStale      Outcome = "stale"
	OutcomeOverridden Outcome = "overridden" // remote delta displaced a pending optimistic value
	OutcomeOptimistic Outcome = "optimistic"
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeRolledBack Outcome = "rolled-back"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeRejected   Outcome = "rejected"
)

type EffectKind int

const (
	EffectUpsert EffectKind = iota
	EffectRestore
	EffectRemove
	// EffectForget releases the ordering slot of an entity that will not
	// come back through a rollback.
	EffectForget
)

type Effect struct {
	Kind    EffectKind
	Product model.Product // Upsert, Restore
	ID      string        // Remove, Forget
}

// Event is one input to Reduce. Exactly one of the fields is set.
type Event struct {
	Remote     *model.Delta
	Optimistic *OptimisticRequest
	Confirm    *model.PendingMutation
	Fail       *model.PendingMutation
}

type OptimisticRequest struct {
	MutationID   string
	ProductID    string
	Kind         model.MutationKind
	DefaultStock int
}

type Transition struct {
	Next    EntityState
	Effects []Effect
	Outcome Outcome
	Err     error
	// Pending is the mutation recorded by an accepted optimistic apply.
	Pending *model.PendingMutation
}

// Reduce is the pure transition function for one entity. stored is the
// Repository's current value, nil when absent.
func Reduce(st EntityState, stored *model.Product, ev Event) Transition {
	switch {
	case ev.Remote != nil:
		return reduceRemote(st, stored, *ev.Remote)
	case ev.Optimistic != nil:
		return reduceOptimistic(st, stored, *ev.Optimistic)
	case ev.Confirm != nil:
		return reduceConfirm(st, stored, *ev.Confirm)
	case ev.Fail != nil:
		return reduceFail(st, *ev.Fail)
	}
	return Transition{Next: st, Outcome: OutcomeIgnored}
}

// baseVersion is the highest version known for the entity from any source.
func baseVersion(st EntityState, stored *model.Product) uint64 {
	v := st.Version
	if stored != nil && stored.Version > v {
		v = stored.Version
	}
	if st.Pending != nil && st.Pending.IssuedVersion > v {
		v = st.Pending.IssuedVersion
	}
	return v
}

func reduceRemote(st EntityState, stored *model.Product, d model.Delta) Transition {
	if st.Deleted && st.Pending == nil {
		return Transition{Next: st, Outcome: OutcomeIgnored}
	}

	v := baseVersion(st, stored) + 1
	if d.Version != nil {
		v = *d.Version
	}
	p := d.Product.Clone()
	p.Version = v

	if st.Phase == Pending && st.Pending != nil {
		if v <= st.Pending.IssuedVersion {
			return Transition{Next: st, Outcome: OutcomeStale}
		}
		return Transition{
			Next:    EntityState{Phase: Idle, Version: v},
			Effects: []Effect{{Kind: EffectUpsert, Product: p}},
			Outcome: OutcomeOverridden,
		}
	}

	if stored != nil && v < stored.Version {
		return Transition{Next: st, Outcome: OutcomeStale}
	}
	return Transition{
		Next:    EntityState{Phase: Idle, Version: v},
		Effects: []Effect{{Kind: EffectUpsert, Product: p}},
		Outcome: OutcomeApplied,
	}
}

func reduceOptimistic(st EntityState, stored *model.Product, req OptimisticRequest) Transition {
	if st.Pending != nil {
		return Transition{Next: st, Outcome: OutcomeRejected, Err: inventory.ErrMutationPending}
	}
	if stored == nil {
		return Transition{Next: st, Outcome: OutcomeRejected, Err: inventory.ErrNotFound}
	}

	pm := model.PendingMutation{
		ID:            req.MutationID,
		ProductID:     req.ProductID,
		Kind:          req.Kind,
		Prior:         stored.Clone(),
		IssuedVersion: baseVersion(st, stored) + 1,
	}

	var eff Effect
	switch req.Kind {
	case model.MutationStockToggle:
		target := stored.Clone()
		if stored.InStock() {
			target.CountInStock = 0
		} else {
			target.CountInStock = req.DefaultStock
		}
		target.Version = pm.IssuedVersion
		pm.Target = target
		eff = Effect{Kind: EffectUpsert, Product: target}
	case model.MutationDelete:
		eff = Effect{Kind: EffectRemove, ID: req.ProductID}
	default:
		return Transition{Next: st, Outcome: OutcomeRejected, Err: errUnknownKind(req.Kind)}
	}

	return Transition{
		Next:    EntityState{Phase: Pending, Pending: &pm, Version: pm.IssuedVersion},
		Effects: []Effect{eff},
		Outcome: OutcomeOptimistic,
		Pending: &pm,
	}
}

func reduceConfirm(st EntityState, stored *model.Product, pm model.PendingMutation) Transition {
	// The backend no longer has the entity, whatever arrived on the stream meanwhile.
	if pm.Kind == model.MutationDelete {
		next := EntityState{Phase: Idle, Deleted: true, Version: baseVersion(st, stored)}
		var effects []Effect
		if stored != nil {
			effects = append(effects, Effect{Kind: EffectRemove, ID: pm.ProductID})
		}
		effects = append(effects, Effect{Kind: EffectForget, ID: pm.ProductID})
		// A remote delta may have re-inserted the entity after the optimistic
		// remove, letting a newer mutation go pending. It is dropped with the
		// entity; its own Confirm or Fail is then ignored.
		return Transition{Next: next, Effects: effects, Outcome: OutcomeConfirmed}
	}

	if st.Pending == nil || st.Pending.ID != pm.ID {
		return Transition{Next: st, Outcome: OutcomeIgnored}
	}
	return Transition{
		Next:    EntityState{Phase: Idle, Version: st.Version},
		Outcome: OutcomeConfirmed,
	}
}

func reduceFail(st EntityState, pm model.PendingMutation) Transition {
	if st.Pending == nil || st.Pending.ID != pm.ID {
		return Transition{Next: st, Outcome: OutcomeIgnored}
	}
	prior := st.Pending.Prior.Clone()
	return Transition{
		Next:    EntityState{Phase: Idle, Version: st.Version},
		Effects: []Effect{{Kind: EffectRestore, Product: prior}},
		Outcome: OutcomeRolledBack,
	}
}
