package inventory

import (
	"context"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
)

// UseCase is the mutation gateway exposed to the view layer.
type UseCase interface {
	ToggleStock(ctx context.Context, id string) (*model.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	GetProduct(ctx context.Context, id string) (*model.Product, error)
	CreateProduct(ctx context.Context, input *dto.ProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, id string, input *dto.ProductInput) (*model.Product, error)
}

// Reconciler is the merge authority and sole writer of the Repository.
type Reconciler interface {
	SubmitRemote(ctx context.Context, delta model.Delta) error
	ApplyOptimistic(ctx context.Context, kind model.MutationKind, productID string) (model.PendingMutation, error)
	Confirm(ctx context.Context, pm model.PendingMutation) error
	Fail(ctx context.Context, pm model.PendingMutation) error
	Resync(ctx context.Context, products []model.Product) error
}

// Backend is the commerce REST API. Implementations return *RemoteError on failure.
type Backend interface {
	ListProducts(ctx context.Context) ([]dto.ProductPayload, error)
	GetProduct(ctx context.Context, id string) (*dto.ProductPayload, error)
	CreateProduct(ctx context.Context, input *dto.ProductInput) (*dto.ProductPayload, error)
	UpdateProduct(ctx context.Context, id string, input *dto.ProductInput) (*dto.ProductPayload, error)
	DeleteProduct(ctx context.Context, id string) error
	// UpdateStock returns nil payload when the backend acknowledges with an empty body.
	UpdateStock(ctx context.Context, id string, stock int) (*dto.ProductPayload, error)
}
