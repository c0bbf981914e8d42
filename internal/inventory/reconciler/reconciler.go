package reconciler

import (
	"context"
	"fmt"
	"sync"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
	"github.com/fekuna/omnipos-inventory-sync/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-sync/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func errUnknownKind(k model.MutationKind) error {
	return fmt.Errorf("unknown mutation kind %q", k)
}

type command struct {
	id     string
	event  Event
	resync []model.Product
	probe  bool
	reply  chan Transition
}

// Reconciler serializes every repository write through a single goroutine.
// Producers submit commands; Run applies Reduce and executes the effects.
type Reconciler struct {
	repo         inventory.Repository
	logger       logger.ZapLogger
	metrics      *telemetry.Metrics
	defaultStock int

	cmds     chan command
	done     chan struct{}
	stopOnce sync.Once

	// owned by the Run goroutine
	states map[string]EntityState
}

func NewReconciler(repo inventory.Repository, defaultStock int, metrics *telemetry.Metrics, log logger.ZapLogger) *Reconciler {
	if defaultStock <= 0 {
		defaultStock = 1
	}
	return &Reconciler{
		repo:         repo,
		logger:       log,
		metrics:      metrics,
		defaultStock: defaultStock,
		cmds:         make(chan command, 64),
		done:         make(chan struct{}),
		states:       make(map[string]EntityState),
	}
}

var _ inventory.Reconciler = (*Reconciler)(nil)

// Run consumes commands until ctx is cancelled. It must be started exactly once.
func (r *Reconciler) Run(ctx context.Context) {
	defer r.stop()
	r.logger.Info("Starting inventory reconciler")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping inventory reconciler")
			return
		case cmd := <-r.cmds:
			var t Transition
			switch {
			case cmd.probe:
				t.Next = r.states[cmd.id]
			case cmd.resync != nil:
				r.resync(ctx, cmd.resync)
			default:
				t = r.handle(ctx, cmd.id, cmd.event)
			}
			if cmd.reply != nil {
				cmd.reply <- t
			}
		}
	}
}

// Done is closed once Run has returned.
func (r *Reconciler) Done() <-chan struct{} { return r.done }

func (r *Reconciler) stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Reconciler) SubmitRemote(ctx context.Context, delta model.Delta) error {
	if delta.Product.ID == "" {
		return fmt.Errorf("remote delta without product id")
	}
	_, err := r.send(ctx, command{id: delta.Product.ID, event: Event{Remote: &delta}}, false)
	return err
}

func (r *Reconciler) ApplyOptimistic(ctx context.Context, kind model.MutationKind, productID string) (model.PendingMutation, error) {
	req := &OptimisticRequest{
		MutationID:   uuid.New().String(),
		ProductID:    productID,
		Kind:         kind,
		DefaultStock: r.defaultStock,
	}
	if err := ctx.Err(); err != nil {
		return model.PendingMutation{}, err
	}
	// Once queued the mutation is applied, so the caller must get it back to
	// resolve it even if ctx ends while waiting.
	t, err := r.send(context.WithoutCancel(ctx), command{id: productID, event: Event{Optimistic: req}}, true)
	if err != nil {
		return model.PendingMutation{}, err
	}
	if t.Err != nil {
		return model.PendingMutation{}, t.Err
	}
	return *t.Pending, nil
}

// Confirm and Fail wait for the transition so that callers observe the
// settled repository on return. After the reconciler stops they return
// ErrStopped and change nothing.
func (r *Reconciler) Confirm(ctx context.Context, pm model.PendingMutation) error {
	_, err := r.send(ctx, command{id: pm.ProductID, event: Event{Confirm: &pm}}, true)
	return err
}

func (r *Reconciler) Fail(ctx context.Context, pm model.PendingMutation) error {
	_, err := r.send(ctx, command{id: pm.ProductID, event: Event{Fail: &pm}}, true)
	return err
}

// Resync reconciles a full re-fetch. Entities missing from products that
// have no pending mutation are removed.
func (r *Reconciler) Resync(ctx context.Context, products []model.Product) error {
	if products == nil {
		products = []model.Product{}
	}
	_, err := r.send(ctx, command{resync: products}, true)
	return err
}

// State reports the entity's bookkeeping as seen after every command
// submitted before the call.
func (r *Reconciler) State(ctx context.Context, id string) (EntityState, error) {
	t, err := r.send(ctx, command{id: id, probe: true}, true)
	if err != nil {
		return EntityState{}, err
	}
	return t.Next, nil
}

func (r *Reconciler) send(ctx context.Context, cmd command, wait bool) (Transition, error) {
	if wait {
		cmd.reply = make(chan Transition, 1)
	}
	if err := r.enqueue(ctx, cmd); err != nil {
		return Transition{}, err
	}
	if !wait {
		return Transition{}, nil
	}
	select {
	case t := <-cmd.reply:
		return t, nil
	case <-r.done:
		// Run may have replied just before stopping.
		select {
		case t := <-cmd.reply:
			return t, nil
		default:
			return Transition{}, inventory.ErrStopped
		}
	case <-ctx.Done():
		return Transition{}, ctx.Err()
	}
}

func (r *Reconciler) enqueue(ctx context.Context, cmd command) error {
	select {
	case <-r.done:
		return inventory.ErrStopped
	default:
	}
	select {
	case r.cmds <- cmd:
		return nil
	case <-r.done:
		return inventory.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) handle(ctx context.Context, id string, ev Event) Transition {
	st := r.states[id]
	var stored *model.Product
	if p, ok := r.repo.Get(id); ok {
		stored = &p
	}

	t := Reduce(st, stored, ev)
	r.apply(t.Effects)

	if t.Next.isZero() && t.Next.Version == 0 && stored == nil {
		delete(r.states, id)
	} else {
		r.states[id] = t.Next
	}

	r.observe(ctx, id, ev, t)
	return t
}

func (r *Reconciler) apply(effects []Effect) {
	for _, e := range effects {
		switch e.Kind {
		case EffectUpsert:
			if err := r.repo.Upsert(e.Product); err != nil {
				// Reduce already compared versions, so this only happens if
				// something bypassed the reconciler.
				r.logger.Warn("repository rejected upsert",
					zap.String("product_id", e.Product.ID),
					zap.Uint64("version", e.Product.Version),
					zap.Error(err),
				)
			}
		case EffectRestore:
			r.repo.Restore(e.Product)
		case EffectRemove:
			r.repo.Remove(e.ID)
		case EffectForget:
			r.repo.Forget(e.ID)
		}
	}
}

func (r *Reconciler) resync(ctx context.Context, products []model.Product) {
	seen := make(map[string]struct{}, len(products))
	for i := range products {
		p := products[i]
		seen[p.ID] = struct{}{}
		// A full listing is authoritative about existence.
		if st, ok := r.states[p.ID]; ok && st.Deleted && st.Pending == nil {
			st.Deleted = false
			r.states[p.ID] = st
		}
		d := model.Delta{Product: p, Source: model.SourceResync}
		if p.Version != 0 {
			v := p.Version
			d.Version = &v
		}
		r.handle(ctx, p.ID, Event{Remote: &d})
	}

	removed := 0
	for _, p := range r.repo.SnapshotAll() {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		st := r.states[p.ID]
		if st.Pending != nil {
			continue
		}
		r.repo.Remove(p.ID)
		r.repo.Forget(p.ID)
		r.states[p.ID] = EntityState{Phase: Idle, Deleted: true, Version: baseVersion(st, &p)}
		removed++
	}
	r.logger.Info("Resynced product list",
		zap.Int("fetched", len(products)),
		zap.Int("removed", removed),
	)
}

func (r *Reconciler) observe(ctx context.Context, id string, ev Event, t Transition) {
	fields := []zap.Field{
		zap.String("product_id", id),
		zap.String("outcome", string(t.Outcome)),
		zap.String("phase", t.Next.Phase.String()),
	}

	switch {
	case ev.Remote != nil:
		r.metrics.Delta(ctx, string(ev.Remote.Source), string(t.Outcome))
		if t.Outcome == OutcomeStale {
			r.logger.Debug("Discarded stale remote delta", fields...)
		} else if t.Outcome == OutcomeOverridden {
			r.logger.Info("Remote delta overrode pending mutation", fields...)
		}
	case ev.Optimistic != nil:
		r.metrics.Mutation(ctx, string(ev.Optimistic.Kind), string(t.Outcome))
		if t.Err != nil {
			r.logger.Debug("Optimistic apply rejected", append(fields, zap.Error(t.Err))...)
		}
	case ev.Confirm != nil:
		r.metrics.Mutation(ctx, string(ev.Confirm.Kind), string(t.Outcome))
	case ev.Fail != nil:
		r.metrics.Mutation(ctx, string(ev.Fail.Kind), string(t.Outcome))
		if t.Outcome == OutcomeRolledBack {
			r.logger.Warn("Rolled back optimistic mutation",
				append(fields, zap.String("mutation_id", ev.Fail.ID))...)
		}
	}
}
