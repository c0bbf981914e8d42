package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
	"github.com/fekuna/omnipos-inventory-sync/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// View is the read side served by ListProducts and ListCategories.
type View interface {
	View(f dto.Filters) dto.Page
	Categories() []string
}

type ProductViewHandler struct {
	view   View
	uc     inventory.UseCase
	logger logger.ZapLogger
}

func NewProductViewHandler(view View, uc inventory.UseCase, log logger.ZapLogger) *ProductViewHandler {
	return &ProductViewHandler{
		view:   view,
		uc:     uc,
		logger: log,
	}
}

var _ ProductViewServer = (*ProductViewHandler)(nil)

func (h *ProductViewHandler) ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := dto.Filters{
		Search:      stringField(req, "search"),
		Category:    stringField(req, "category"),
		InStockOnly: boolField(req, "inStockOnly"),
		Page:        intField(req, "page"),
		PageSize:    intField(req, "pageSize"),
	}
	page := h.view.View(f)

	items := make([]any, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, productToMap(p))
	}
	return newStruct(map[string]any{
		"items":      items,
		"total":      page.Total,
		"totalPages": page.TotalPages,
		"page":       page.Page,
		"pageSize":   page.PageSize,
	})
}

func (h *ProductViewHandler) ListCategories(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cats := h.view.Categories()
	out := make([]any, len(cats))
	for i, c := range cats {
		out[i] = c
	}
	return newStruct(map[string]any{"categories": out})
}

func (h *ProductViewHandler) GetProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(req)
	if err != nil {
		return nil, err
	}
	p, err := h.uc.GetProduct(ctx, id)
	if err != nil {
		return nil, h.toStatus("get product", id, err)
	}
	return productResponse(p)
}

func (h *ProductViewHandler) ToggleStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(req)
	if err != nil {
		return nil, err
	}
	p, err := h.uc.ToggleStock(ctx, id)
	if err != nil {
		return nil, h.toStatus("toggle stock", id, err)
	}
	return productResponse(p)
}

func (h *ProductViewHandler) DeleteProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(req)
	if err != nil {
		return nil, err
	}
	if err := h.uc.DeleteProduct(ctx, id); err != nil {
		return nil, h.toStatus("delete product", id, err)
	}
	return newStruct(map[string]any{"_id": id, "deleted": true})
}

func (h *ProductViewHandler) CreateProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	input, err := inputFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	p, err := h.uc.CreateProduct(ctx, input)
	if err != nil {
		return nil, h.toStatus("create product", "", err)
	}
	return productResponse(p)
}

func (h *ProductViewHandler) UpdateProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(req)
	if err != nil {
		return nil, err
	}
	input, err := inputFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	p, err := h.uc.UpdateProduct(ctx, id, input)
	if err != nil {
		return nil, h.toStatus("update product", id, err)
	}
	return productResponse(p)
}

func (h *ProductViewHandler) toStatus(op, id string, err error) error {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, inventory.ErrMutationPending):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, inventory.ErrInvalidProduct):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, inventory.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case inventory.IsRemoteError(err):
		h.logger.Warn("Backend call failed", zap.String("op", op), zap.String("product_id", id), zap.Error(err))
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	h.logger.Error("failed to "+op, zap.String("product_id", id), zap.Error(err))
	return status.Error(codes.Internal, err.Error())
}

func productResponse(p *model.Product) (*structpb.Struct, error) {
	if p == nil {
		return newStruct(map[string]any{"acknowledged": true})
	}
	return newStruct(map[string]any{"product": productToMap(*p)})
}

func productToMap(p model.Product) map[string]any {
	images := make([]any, len(p.Images))
	for i, u := range p.Images {
		images[i] = u
	}
	return map[string]any{
		"_id":          p.ID,
		"name":         p.Name,
		"price":        p.Price.String(),
		"category":     p.Category,
		"description":  p.Description,
		"images":       images,
		"countInStock": p.CountInStock,
		"inStock":      p.InStock(),
		"rating":       p.Rating,
	}
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func requireID(req *structpb.Struct) (string, error) {
	id := strings.TrimSpace(stringField(req, "_id"))
	if id == "" {
		id = strings.TrimSpace(stringField(req, "id"))
	}
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "product id is required")
	}
	return id, nil
}

func inputFromStruct(req *structpb.Struct) (*dto.ProductInput, error) {
	in := &dto.ProductInput{
		Name:        stringField(req, "name"),
		Category:    stringField(req, "category"),
		Description: stringField(req, "description"),
	}

	if v, ok := req.GetFields()["price"]; ok {
		switch k := v.GetKind().(type) {
		case *structpb.Value_NumberValue:
			in.Price = decimal.NewFromFloat(k.NumberValue)
		case *structpb.Value_StringValue:
			d, err := decimal.NewFromString(k.StringValue)
			if err != nil {
				return nil, fmt.Errorf("price: %w", err)
			}
			in.Price = d
		default:
			return nil, errors.New("price must be a number or numeric string")
		}
	}

	if v, ok := req.GetFields()["countInStock"]; ok {
		n := v.GetNumberValue()
		if n != math.Trunc(n) {
			return nil, errors.New("countInStock must be an integer")
		}
		in.CountInStock = int(n)
	}

	if v, ok := req.GetFields()["images"]; ok {
		for _, item := range v.GetListValue().GetValues() {
			s, ok := item.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return nil, errors.New("images must be a list of strings")
			}
			in.Images = append(in.Images, s.StringValue)
		}
	}
	return in, nil
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func boolField(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

func intField(req *structpb.Struct, key string) int {
	return int(req.GetFields()[key].GetNumberValue())
}
