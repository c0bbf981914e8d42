package dto

import "github.com/fekuna/omnipos-inventory-sync/internal/model"

// Filters is the filter and pagination state owned by the view.
type Filters struct {
	Search      string // case-insensitive substring of name
	Category    string // exact match, empty means all
	InStockOnly bool
	Page        int // 1-based
	PageSize    int // 0 means the projector default
}

// Page is one projected slice of the filtered product list.
type Page struct {
	Items      []model.Product
	Total      int
	TotalPages int
	Page       int
	PageSize   int
}
