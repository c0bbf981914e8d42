package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/listener"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/projector"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/reconciler"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/repository"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/usecase"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
	"github.com/fekuna/omnipos-inventory-sync/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-sync/pkg/logger"
	"go.uber.org/zap"
)

var ErrAlreadyInitialized = errors.New("inventory engine already initialized")

type Options struct {
	DefaultStock   int
	PageSize       int
	BackendTimeout time.Duration
	Stream         listener.Config
}

// Engine owns one admin session's product view: the repository, the
// reconciler goroutine, the push listener and the mutation gateway.
type Engine struct {
	repo     *repository.MemoryRepository
	rec      *reconciler.Reconciler
	listener *listener.InventoryListener
	backend  inventory.Backend
	useCase  inventory.UseCase
	logger   logger.ZapLogger
	pageSize int

	mu          sync.Mutex
	recStarted  bool
	initialized bool
	disposed    bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	memoMu  sync.Mutex
	memoRev uint64
	memo    map[dto.Filters]dto.Page

	changes     chan struct{}
	changesMu   sync.Mutex
	changesDone bool
	unsubscribe func()
}

func New(backend inventory.Backend, source inventory.Source, opts Options, metrics *telemetry.Metrics, log logger.ZapLogger) (*Engine, error) {
	decoder, err := listener.NewDecoder()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		repo:     repository.NewMemoryRepository(),
		backend:  backend,
		logger:   log,
		pageSize: opts.PageSize,
		memo:     make(map[dto.Filters]dto.Page),
		changes:  make(chan struct{}, 1),
	}
	e.rec = reconciler.NewReconciler(e.repo, opts.DefaultStock, metrics, log)
	e.useCase = usecase.NewInventoryUseCase(e.rec, e.repo, backend, opts.BackendTimeout, log)
	e.listener = listener.NewInventoryListener(source, e.rec, decoder, e.Refresh, opts.Stream, metrics, log)
	e.unsubscribe = e.repo.Subscribe(e.notify)
	return e, nil
}

// Init loads the full product list and starts consuming the push stream.
// On a failed fetch it returns *inventory.FetchError, leaves the view
// empty and may be called again.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return inventory.ErrStopped
	}
	if e.initialized {
		return ErrAlreadyInitialized
	}

	if !e.recStarted {
		runCtx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		e.recStarted = true
		go e.rec.Run(runCtx)
	}

	products, err := e.fetch(ctx)
	if err != nil {
		e.logger.Error("Initial product fetch failed", zap.Error(err))
		return &inventory.FetchError{Err: err}
	}
	if err := e.rec.Resync(ctx, products); err != nil {
		return err
	}

	lctx, cancel := context.WithCancel(context.Background())
	prev := e.cancel
	e.cancel = func() {
		cancel()
		prev()
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.listener.Start(lctx)
	}()

	e.initialized = true
	e.logger.Info("Inventory engine initialized", zap.Int("fetched", len(products)), zap.Int("products", e.repo.Len()))
	return nil
}

// Dispose stops the listener and the reconciler and waits for both.
// In-flight mutations resolve as no-ops. Safe to call more than once.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	cancel := e.cancel
	started := e.recStarted
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	if started {
		<-e.rec.Done()
	}
	e.unsubscribe()

	e.changesMu.Lock()
	e.changesDone = true
	close(e.changes)
	e.changesMu.Unlock()

	e.logger.Info("Inventory engine disposed")
}

// Refresh re-fetches the full list and reconciles it. The listener calls
// it after every reconnect.
func (e *Engine) Refresh(ctx context.Context) error {
	products, err := e.fetch(ctx)
	if err != nil {
		return &inventory.FetchError{Err: err}
	}
	return e.rec.Resync(ctx, products)
}

func (e *Engine) fetch(ctx context.Context) ([]model.Product, error) {
	items, err := e.backend.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	products := make([]model.Product, 0, len(items))
	for _, it := range items {
		products = append(products, it.ToModel())
	}
	return products, nil
}

// View projects the current snapshot. Pages are memoized until the next
// repository write.
func (e *Engine) View(f dto.Filters) dto.Page {
	if f.PageSize <= 0 && e.pageSize > 0 {
		f.PageSize = e.pageSize
	}
	rev := e.repo.Revision()

	e.memoMu.Lock()
	if rev > e.memoRev {
		e.memo = make(map[dto.Filters]dto.Page)
		e.memoRev = rev
	}
	if page, ok := e.memo[f]; ok && rev == e.memoRev {
		e.memoMu.Unlock()
		return clonePage(page)
	}
	e.memoMu.Unlock()

	page := projector.Project(e.repo.SnapshotAll(), f)

	e.memoMu.Lock()
	if rev == e.memoRev {
		e.memo[f] = page
	}
	e.memoMu.Unlock()
	return clonePage(page)
}

func (e *Engine) Categories() []string {
	return projector.Categories(e.repo.SnapshotAll())
}

// Product reads one entry from the session view.
func (e *Engine) Product(id string) (model.Product, bool) {
	return e.repo.Get(id)
}

func (e *Engine) UseCase() inventory.UseCase { return e.useCase }

// Changes delivers a coalesced signal after repository writes. It is
// closed by Dispose.
func (e *Engine) Changes() <-chan struct{} { return e.changes }

func (e *Engine) notify(uint64) {
	e.changesMu.Lock()
	defer e.changesMu.Unlock()
	if e.changesDone {
		return
	}
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

func clonePage(p dto.Page) dto.Page {
	out := p
	out.Items = make([]model.Product, len(p.Items))
	for i := range p.Items {
		out.Items[i] = p.Items[i].Clone()
	}
	return out
}
