package dto

import (
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
	"github.com/shopspring/decimal"
)

// ProductPayload is the backend's JSON representation of a product.
type ProductPayload struct {
	ID           string          `json:"_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	Description  string          `json:"description,omitempty"`
	Images       []string        `json:"images,omitempty"`
	CountInStock int             `json:"countInStock"`
	Rating       float64         `json:"rating"`
	Version      *uint64         `json:"version,omitempty"`
}

func (p ProductPayload) ToModel() model.Product {
	out := model.Product{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		Category:     p.Category,
		Description:  p.Description,
		CountInStock: p.CountInStock,
		Rating:       p.Rating,
	}
	if len(p.Images) > 0 {
		out.Images = append([]string(nil), p.Images...)
	}
	if p.Version != nil {
		out.Version = *p.Version
	}
	return out
}

// ToDelta keeps the optional version so the reconciler can tell "absent" from zero.
func (p ProductPayload) ToDelta(src model.DeltaSource) model.Delta {
	return model.Delta{Product: p.ToModel(), Version: p.Version, Source: src}
}

// ProductInput is the full record sent on create and update.
// Images are URLs produced by the asset-upload collaborator, in display order.
type ProductInput struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	Images       []string        `json:"images"`
	CountInStock int             `json:"countInStock"`
}
