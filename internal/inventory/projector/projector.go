package projector

import (
	"strings"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
)

const DefaultPageSize = 10

// Project filters the snapshot and slices out the requested page.
// It does not modify snapshot; the returned items share no memory with it.
// Clamping a page beyond TotalPages is left to the caller.
func Project(snapshot []model.Product, f dto.Filters) dto.Page {
	size := f.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	search := strings.ToLower(f.Search)

	filtered := make([]model.Product, 0, len(snapshot))
	for _, p := range snapshot {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.InStockOnly && !p.InStock() {
			continue
		}
		filtered = append(filtered, p)
	}

	total := len(filtered)
	out := dto.Page{
		Items:      []model.Product{},
		Total:      total,
		TotalPages: (total + size - 1) / size,
		Page:       page,
		PageSize:   size,
	}

	start := (page - 1) * size
	if start >= total {
		return out
	}
	end := start + size
	if end > total {
		end = total
	}
	out.Items = make([]model.Product, 0, end-start)
	for _, p := range filtered[start:end] {
		out.Items = append(out.Items, p.Clone())
	}
	return out
}

// Categories lists distinct non-empty categories in first-seen order.
func Categories(snapshot []model.Product) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range snapshot {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}
