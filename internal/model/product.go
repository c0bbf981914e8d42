package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is the canonical record held by the session repository.
type Product struct {
	ID           string          `json:"_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	Description  string          `json:"description,omitempty"`
	Images       []string        `json:"images"`
	CountInStock int             `json:"countInStock"`
	Rating       float64         `json:"rating"`
	Version      uint64          `json:"-"` // reconciler ordering only, never shown
}

// InStock is derived from CountInStock on every read.
func (p Product) InStock() bool {
	return p.CountInStock > 0
}

// Clone returns a copy that shares no backing arrays with p.
func (p Product) Clone() Product {
	c := p
	if p.Images != nil {
		c.Images = make([]string, len(p.Images))
		copy(c.Images, p.Images)
	}
	return c
}

// Equal compares every field including Version.
func (p Product) Equal(o Product) bool {
	if p.ID != o.ID || p.Name != o.Name || !p.Price.Equal(o.Price) || p.Category != o.Category ||
		p.Description != o.Description || p.CountInStock != o.CountInStock ||
		p.Rating != o.Rating || p.Version != o.Version {
		return false
	}
	if len(p.Images) != len(o.Images) {
		return false
	}
	for i := range p.Images {
		if p.Images[i] != o.Images[i] {
			return false
		}
	}
	return true
}

func (p Product) Validate() error {
	if p.ID == "" {
		return errors.New("product id is required")
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("product %s: price must be non-negative", p.ID)
	}
	if p.CountInStock < 0 {
		return fmt.Errorf("product %s: countInStock must be non-negative", p.ID)
	}
	if p.Rating < 0 || p.Rating > 5 {
		return fmt.Errorf("product %s: rating %v out of range [0,5]", p.ID, p.Rating)
	}
	return ValidateImages(p.Images)
}

// ValidateImages rejects duplicate or empty URLs. Order is display order and is kept as given.
func ValidateImages(images []string) error {
	seen := make(map[string]struct{}, len(images))
	for _, u := range images {
		if u == "" {
			return errors.New("image url must not be empty")
		}
		if _, dup := seen[u]; dup {
			return fmt.Errorf("duplicate image url %q", u)
		}
		seen[u] = struct{}{}
	}
	return nil
}
