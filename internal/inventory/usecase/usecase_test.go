package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/reconciler"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/repository"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
	"github.com/fekuna/omnipos-inventory-sync/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-sync/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	stockCalls  []int
	deleteCalls []string

	updateStock func(ctx context.Context, id string, stock int) (*dto.ProductPayload, error)
	deleteFn    func(ctx context.Context, id string) error
	getFn       func(ctx context.Context, id string) (*dto.ProductPayload, error)
	saveFn      func(ctx context.Context, id string, in *dto.ProductInput) (*dto.ProductPayload, error)
}

func (f *fakeBackend) ListProducts(ctx context.Context) ([]dto.ProductPayload, error) {
	return nil, errors.New("not used")
}

func (f *fakeBackend) GetProduct(ctx context.Context, id string) (*dto.ProductPayload, error) {
	return f.getFn(ctx, id)
}

func (f *fakeBackend) CreateProduct(ctx context.Context, in *dto.ProductInput) (*dto.ProductPayload, error) {
	return f.saveFn(ctx, "", in)
}

func (f *fakeBackend) UpdateProduct(ctx context.Context, id string, in *dto.ProductInput) (*dto.ProductPayload, error) {
	return f.saveFn(ctx, id, in)
}

func (f *fakeBackend) DeleteProduct(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deleteCalls = append(f.deleteCalls, id)
	f.mu.Unlock()
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, id)
}

func (f *fakeBackend) UpdateStock(ctx context.Context, id string, stock int) (*dto.ProductPayload, error) {
	f.mu.Lock()
	f.stockCalls = append(f.stockCalls, stock)
	f.mu.Unlock()
	if f.updateStock == nil {
		return nil, nil
	}
	return f.updateStock(ctx, id, stock)
}

type fixture struct {
	uc      inventory.UseCase
	rec     *reconciler.Reconciler
	repo    *repository.MemoryRepository
	backend *fakeBackend
}

func setup(t *testing.T, seed ...model.Product) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	rec := reconciler.NewReconciler(repo, 1, telemetry.Nop(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go rec.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-rec.Done()
	})
	require.NoError(t, rec.Resync(context.Background(), seed))

	backend := &fakeBackend{}
	return &fixture{
		uc:      NewInventoryUseCase(rec, repo, backend, time.Second, logger.NewNop()),
		rec:     rec,
		repo:    repo,
		backend: backend,
	}
}

func ptr[T any](v T) *T { return &v }

func product(id string, stock int) model.Product {
	return model.Product{
		ID:           id,
		Name:         "Product " + id,
		Price:        decimal.NewFromInt(25),
		Category:     "home",
		Images:       []string{"https://cdn/" + id + ".jpg"},
		CountInStock: stock,
		Rating:       3,
	}
}

func TestToggleStockSuccess(t *testing.T) {
	f := setup(t, product("p1", 5))

	got, err := f.uc.ToggleStock(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CountInStock)
	assert.False(t, got.InStock())
	assert.Equal(t, []int{0}, f.backend.stockCalls)

	stored, ok := f.repo.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 0, stored.CountInStock)

	st, err := f.rec.State(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, reconciler.Idle, st.Phase)

	// toggling back restores the default stock of one
	got, err = f.uc.ToggleStock(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CountInStock)
}

func TestToggleStockVisibleBeforeResponse(t *testing.T) {
	f := setup(t, product("p1", 3))
	release := make(chan struct{})
	entered := make(chan struct{})
	f.backend.updateStock = func(ctx context.Context, id string, stock int) (*dto.ProductPayload, error) {
		close(entered)
		<-release
		return nil, nil
	}

	errc := make(chan error, 1)
	go func() {
		_, err := f.uc.ToggleStock(context.Background(), "p1")
		errc <- err
	}()

	<-entered
	stored, _ := f.repo.Get("p1")
	assert.Equal(t, 0, stored.CountInStock)

	_, err := f.uc.ToggleStock(context.Background(), "p1")
	assert.ErrorIs(t, err, inventory.ErrMutationPending)

	close(release)
	require.NoError(t, <-errc)
}

func TestToggleStockFailureRollsBack(t *testing.T) {
	f := setup(t, product("p1", 4))
	before, _ := f.repo.Get("p1")
	f.backend.updateStock = func(ctx context.Context, id string, stock int) (*dto.ProductPayload, error) {
		return nil, &inventory.RemoteError{Op: "update-stock", ProductID: id, StatusCode: http.StatusBadGateway}
	}

	_, err := f.uc.ToggleStock(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, inventory.IsRemoteError(err))

	after, _ := f.repo.Get("p1")
	assert.True(t, before.Equal(after), "expected exact pre-mutation snapshot")
}

func TestToggleStockWrapsPlainErrors(t *testing.T) {
	f := setup(t, product("p1", 4))
	f.backend.updateStock = func(ctx context.Context, id string, stock int) (*dto.ProductPayload, error) {
		return nil, context.DeadlineExceeded
	}

	_, err := f.uc.ToggleStock(context.Background(), "p1")
	var re *inventory.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "update-stock", re.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestToggleStockNotFound(t *testing.T) {
	f := setup(t)
	_, err := f.uc.ToggleStock(context.Background(), "missing")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	assert.Empty(t, f.backend.stockCalls)
}

func TestToggleStockVersionedResponseApplied(t *testing.T) {
	f := setup(t, product("p1", 2))
	f.backend.updateStock = func(ctx context.Context, id string, stock int) (*dto.ProductPayload, error) {
		v := uint64(40)
		p := product(id, 9)
		return &dto.ProductPayload{ID: p.ID, Name: p.Name, Price: p.Price, Category: p.Category, CountInStock: p.CountInStock, Version: &v}, nil
	}

	_, err := f.uc.ToggleStock(context.Background(), "p1")
	require.NoError(t, err)

	_, err = f.rec.State(context.Background(), "p1")
	require.NoError(t, err)
	stored, _ := f.repo.Get("p1")
	assert.Equal(t, 9, stored.CountInStock)
	assert.EqualValues(t, 40, stored.Version)
}

func TestToggleStockReturnsNewerRemoteValue(t *testing.T) {
	f := setup(t, product("p1", 2))
	f.backend.updateStock = func(ctx context.Context, id string, stock int) (*dto.ProductPayload, error) {
		// Another admin's change lands while the request is in flight.
		require.NoError(t, f.rec.SubmitRemote(ctx, model.Delta{Product: product(id, 9), Version: ptr(uint64(100)), Source: model.SourceStream}))
		_, err := f.rec.State(ctx, id)
		require.NoError(t, err)
		return nil, nil
	}

	got, err := f.uc.ToggleStock(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.CountInStock)
	assert.EqualValues(t, 100, got.Version)

	stored, _ := f.repo.Get("p1")
	assert.True(t, stored.Equal(*got))
}

func TestToggleStockVersionedResponseReturned(t *testing.T) {
	f := setup(t, product("p1", 2))
	f.backend.updateStock = func(ctx context.Context, id string, stock int) (*dto.ProductPayload, error) {
		p := product(id, 6)
		return &dto.ProductPayload{ID: p.ID, Name: p.Name, Price: p.Price, Category: p.Category, CountInStock: p.CountInStock, Version: ptr(uint64(30))}, nil
	}

	got, err := f.uc.ToggleStock(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 6, got.CountInStock)
	assert.EqualValues(t, 30, got.Version)
}

func TestDeleteProduct(t *testing.T) {
	t.Run("success removes and tombstones", func(t *testing.T) {
		f := setup(t, product("a", 1), product("b", 1))
		require.NoError(t, f.uc.DeleteProduct(context.Background(), "a"))

		_, ok := f.repo.Get("a")
		assert.False(t, ok)

		require.NoError(t, f.rec.SubmitRemote(context.Background(), model.Delta{Product: product("a", 7), Source: model.SourceStream}))
		st, err := f.rec.State(context.Background(), "a")
		require.NoError(t, err)
		assert.True(t, st.Deleted)
		_, ok = f.repo.Get("a")
		assert.False(t, ok)
	})

	t.Run("failure restores at original position", func(t *testing.T) {
		f := setup(t, product("a", 1), product("b", 1), product("c", 1))
		f.backend.deleteFn = func(ctx context.Context, id string) error {
			return &inventory.RemoteError{Op: "delete", ProductID: id, StatusCode: http.StatusInternalServerError}
		}

		err := f.uc.DeleteProduct(context.Background(), "b")
		assert.True(t, inventory.IsRemoteError(err))

		var ids []string
		for _, p := range f.repo.SnapshotAll() {
			ids = append(ids, p.ID)
		}
		assert.Equal(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("unknown id", func(t *testing.T) {
		f := setup(t)
		assert.ErrorIs(t, f.uc.DeleteProduct(context.Background(), "zz"), inventory.ErrNotFound)
		assert.Empty(t, f.backend.deleteCalls)
	})
}

func TestCallerCancellationStillResolves(t *testing.T) {
	f := setup(t, product("p1", 2))
	ctx, cancel := context.WithCancel(context.Background())
	f.backend.updateStock = func(rctx context.Context, id string, stock int) (*dto.ProductPayload, error) {
		cancel()
		<-rctx.Done()
		return nil, rctx.Err()
	}

	_, err := f.uc.ToggleStock(ctx, "p1")
	require.Error(t, err)

	st, err := f.rec.State(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, reconciler.Idle, st.Phase)
	stored, _ := f.repo.Get("p1")
	assert.Equal(t, 2, stored.CountInStock)
}

func TestCallerGoneBeforeOptimisticApplySkipsBackend(t *testing.T) {
	repo := repository.NewMemoryRepository()
	require.NoError(t, repo.Upsert(product("p1", 4)))
	rec := reconciler.NewReconciler(repo, 1, telemetry.Nop(), logger.NewNop())
	backend := &fakeBackend{}
	uc := NewInventoryUseCase(rec, repo, backend, time.Second, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := uc.ToggleStock(ctx, "p1")
		errc <- err
	}()

	// The reconciler only starts after the caller's deadline.
	<-ctx.Done()
	time.Sleep(10 * time.Millisecond)
	runCtx, stop := context.WithCancel(context.Background())
	go rec.Run(runCtx)
	t.Cleanup(func() {
		stop()
		<-rec.Done()
	})

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("ToggleStock did not return")
	}
	assert.Empty(t, backend.stockCalls)

	st, err := rec.State(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, reconciler.Idle, st.Phase)
	stored, _ := repo.Get("p1")
	assert.Equal(t, 4, stored.CountInStock)

	_, err = uc.ToggleStock(context.Background(), "p1")
	assert.NoError(t, err)
}

func TestGetProduct(t *testing.T) {
	f := setup(t)
	f.backend.getFn = func(ctx context.Context, id string) (*dto.ProductPayload, error) {
		if id == "gone" {
			return nil, &inventory.RemoteError{Op: "get", ProductID: id, StatusCode: http.StatusNotFound}
		}
		return &dto.ProductPayload{ID: id, Name: "Lamp", Price: decimal.NewFromInt(12)}, nil
	}

	p, err := f.uc.GetProduct(context.Background(), "lamp")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", p.Name)

	_, err = f.rec.State(context.Background(), "lamp")
	require.NoError(t, err)
	_, ok := f.repo.Get("lamp")
	assert.True(t, ok, "fetched product is merged into the session view")

	_, err = f.uc.GetProduct(context.Background(), "gone")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestCreateAndUpdateProduct(t *testing.T) {
	f := setup(t, product("p1", 1))
	f.backend.saveFn = func(ctx context.Context, id string, in *dto.ProductInput) (*dto.ProductPayload, error) {
		if id == "" {
			id = "p2"
		}
		return &dto.ProductPayload{ID: id, Name: in.Name, Price: in.Price, Images: in.Images, CountInStock: in.CountInStock}, nil
	}

	in := &dto.ProductInput{
		Name:         "Desk",
		Price:        decimal.NewFromInt(120),
		Images:       []string{"https://cdn/2.jpg", "https://cdn/1.jpg"},
		CountInStock: 4,
	}
	created, err := f.uc.CreateProduct(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "p2", created.ID)
	assert.Equal(t, []string{"https://cdn/2.jpg", "https://cdn/1.jpg"}, created.Images)

	in.Name = "Renamed"
	updated, err := f.uc.UpdateProduct(context.Background(), "p1", in)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	_, err = f.rec.State(context.Background(), "")
	require.NoError(t, err)
	stored, _ := f.repo.Get("p1")
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, 2, f.repo.Len())
}

func TestProductInputValidation(t *testing.T) {
	f := setup(t)
	cases := map[string]*dto.ProductInput{
		"nil":            nil,
		"no name":        {Price: decimal.NewFromInt(1)},
		"negative price": {Name: "x", Price: decimal.NewFromInt(-1)},
		"negative stock": {Name: "x", CountInStock: -2},
		"dup images":     {Name: "x", Images: []string{"u", "u"}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.uc.CreateProduct(context.Background(), in)
			assert.ErrorIs(t, err, inventory.ErrInvalidProduct)
		})
	}
}
