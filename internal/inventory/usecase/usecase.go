package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fekuna/omnipos-inventory-sync/internal/auth"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
	"github.com/fekuna/omnipos-inventory-sync/pkg/logger"
	"go.uber.org/zap"
)

type inventoryUseCase struct {
	rec     inventory.Reconciler
	repo    inventory.Repository
	backend inventory.Backend
	timeout time.Duration
	logger  logger.ZapLogger
}

// NewInventoryUseCase builds the mutation gateway. repo is read only; every
// write goes through rec. timeout bounds every backend call; zero leaves the
// caller's deadline in charge.
func NewInventoryUseCase(rec inventory.Reconciler, repo inventory.Repository, backend inventory.Backend, timeout time.Duration, log logger.ZapLogger) inventory.UseCase {
	return &inventoryUseCase{
		rec:     rec,
		repo:    repo,
		backend: backend,
		timeout: timeout,
		logger:  log,
	}
}

func (uc *inventoryUseCase) ToggleStock(ctx context.Context, id string) (*model.Product, error) {
	pm, err := uc.rec.ApplyOptimistic(ctx, model.MutationStockToggle, id)
	if err != nil {
		return nil, err
	}
	log := uc.mutationLogger(ctx, pm)
	if err := uc.abandoned(ctx, pm, log); err != nil {
		return nil, err
	}

	rctx, cancel := uc.remoteContext(ctx)
	defer cancel()
	resp, err := uc.backend.UpdateStock(rctx, id, pm.Target.CountInStock)
	if err != nil {
		log.Warn("Stock update failed, rolling back", zap.Error(err))
		uc.resolve(ctx, pm, uc.rec.Fail, log)
		return nil, remoteError(err, "update-stock", id)
	}

	uc.resolve(ctx, pm, uc.rec.Confirm, log)

	// A remote delta may have overridden the optimistic value meanwhile.
	out, ok := uc.repo.Get(id)
	if !ok {
		out = pm.Target.Clone()
	}
	if resp != nil && resp.Version != nil {
		if err := uc.rec.SubmitRemote(context.WithoutCancel(ctx), resp.ToDelta(model.SourceResponse)); err != nil && !errors.Is(err, inventory.ErrStopped) {
			log.Error("Failed to submit stock update response", zap.Error(err))
		}
		if *resp.Version > out.Version {
			out = resp.ToModel()
		}
	}

	log.Info("Stock toggled", zap.Int("count_in_stock", out.CountInStock), zap.Uint64("version", out.Version))
	return &out, nil
}

func (uc *inventoryUseCase) DeleteProduct(ctx context.Context, id string) error {
	pm, err := uc.rec.ApplyOptimistic(ctx, model.MutationDelete, id)
	if err != nil {
		return err
	}
	log := uc.mutationLogger(ctx, pm)
	if err := uc.abandoned(ctx, pm, log); err != nil {
		return err
	}

	rctx, cancel := uc.remoteContext(ctx)
	defer cancel()
	if err := uc.backend.DeleteProduct(rctx, id); err != nil {
		log.Warn("Delete failed, restoring product", zap.Error(err))
		uc.resolve(ctx, pm, uc.rec.Fail, log)
		return remoteError(err, "delete", id)
	}

	uc.resolve(ctx, pm, uc.rec.Confirm, log)
	log.Info("Product deleted")
	return nil
}

func (uc *inventoryUseCase) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, inventory.ErrNotFound
	}
	rctx, cancel := uc.remoteContext(ctx)
	defer cancel()
	resp, err := uc.backend.GetProduct(rctx, id)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, inventory.ErrNotFound
		}
		return nil, remoteError(err, "get", id)
	}
	return uc.absorb(ctx, resp), nil
}

func (uc *inventoryUseCase) CreateProduct(ctx context.Context, input *dto.ProductInput) (*model.Product, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	rctx, cancel := uc.remoteContext(ctx)
	defer cancel()
	resp, err := uc.backend.CreateProduct(rctx, input)
	if err != nil {
		return nil, remoteError(err, "create", "")
	}
	p := uc.absorb(ctx, resp)
	if p != nil {
		uc.logger.Info("Product created", zap.String("product_id", p.ID))
	}
	return p, nil
}

func (uc *inventoryUseCase) UpdateProduct(ctx context.Context, id string, input *dto.ProductInput) (*model.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, inventory.ErrNotFound
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	rctx, cancel := uc.remoteContext(ctx)
	defer cancel()
	resp, err := uc.backend.UpdateProduct(rctx, id, input)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, inventory.ErrNotFound
		}
		return nil, remoteError(err, "update", id)
	}
	p := uc.absorb(ctx, resp)
	uc.logger.Info("Product updated", zap.String("product_id", id))
	return p, nil
}

// absorb feeds a product returned by the backend into the reconciler so the
// view reflects it without waiting for the stream. A nil payload is an ack.
func (uc *inventoryUseCase) absorb(ctx context.Context, resp *dto.ProductPayload) *model.Product {
	if resp == nil {
		return nil
	}
	if err := uc.rec.SubmitRemote(context.WithoutCancel(ctx), resp.ToDelta(model.SourceResponse)); err != nil && !errors.Is(err, inventory.ErrStopped) {
		uc.logger.Error("Failed to submit backend response", zap.String("product_id", resp.ID), zap.Error(err))
	}
	p := resp.ToModel()
	return &p
}

// abandoned rolls pm back without calling the backend when the caller went
// away while the optimistic change was being applied.
func (uc *inventoryUseCase) abandoned(ctx context.Context, pm model.PendingMutation, log logger.ZapLogger) error {
	if err := ctx.Err(); err != nil {
		log.Warn("Caller went away before the backend call, rolling back", zap.Error(err))
		uc.resolve(ctx, pm, uc.rec.Fail, log)
		return err
	}
	return nil
}

// resolve settles a pending mutation even if the caller has gone away.
func (uc *inventoryUseCase) resolve(ctx context.Context, pm model.PendingMutation, fn func(context.Context, model.PendingMutation) error, log logger.ZapLogger) {
	if err := fn(context.WithoutCancel(ctx), pm); err != nil && !errors.Is(err, inventory.ErrStopped) {
		log.Error("Failed to resolve pending mutation", zap.Error(err))
	}
}

func (uc *inventoryUseCase) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, uc.timeout)
}

func (uc *inventoryUseCase) mutationLogger(ctx context.Context, pm model.PendingMutation) logger.ZapLogger {
	fields := []zap.Field{
		zap.String("product_id", pm.ProductID),
		zap.String("mutation_id", pm.ID),
		zap.String("kind", string(pm.Kind)),
	}
	if a, ok := auth.GetActor(ctx); ok && a.ID != "" {
		fields = append(fields, zap.String("actor_id", a.ID))
	}
	return uc.logger.With(fields...)
}

func validateInput(in *dto.ProductInput) error {
	if in == nil {
		return fmt.Errorf("%w: empty input", inventory.ErrInvalidProduct)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", inventory.ErrInvalidProduct)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must be non-negative", inventory.ErrInvalidProduct)
	}
	if in.CountInStock < 0 {
		return fmt.Errorf("%w: countInStock must be non-negative", inventory.ErrInvalidProduct)
	}
	if err := model.ValidateImages(in.Images); err != nil {
		return fmt.Errorf("%w: %v", inventory.ErrInvalidProduct, err)
	}
	return nil
}

func remoteError(err error, op, id string) error {
	var re *inventory.RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &inventory.RemoteError{Op: op, ProductID: id, Err: err}
}

func statusOf(err error) int {
	var re *inventory.RemoteError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
