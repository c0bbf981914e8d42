package projector

import (
	"fmt"
	"testing"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterSearchAndInStock(t *testing.T) {
	snapshot := []model.Product{
		{ID: "1", Name: "Red Shoe", CountInStock: 0},
		{ID: "2", Name: "Blue Shoe", CountInStock: 5},
	}

	page := Project(snapshot, dto.Filters{Search: "shoe", InStockOnly: true, Page: 1})

	require.Len(t, page.Items, 1)
	assert.Equal(t, "Blue Shoe", page.Items[0].Name)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.TotalPages)
}

func TestFilterCategoryExact(t *testing.T) {
	snapshot := []model.Product{
		{ID: "1", Name: "Lamp", Category: "home"},
		{ID: "2", Name: "Lamp Shirt", Category: "clothing"},
		{ID: "3", Name: "Homeware", Category: "Home"},
	}

	page := Project(snapshot, dto.Filters{Category: "home"})

	require.Len(t, page.Items, 1)
	assert.Equal(t, "1", page.Items[0].ID)
}

func TestPaginationBoundary(t *testing.T) {
	snapshot := make([]model.Product, 25)
	for i := range snapshot {
		snapshot[i] = model.Product{ID: fmt.Sprint(i), Name: fmt.Sprintf("item %02d", i), CountInStock: 1}
	}

	first := Project(snapshot, dto.Filters{Page: 1, PageSize: 10})
	assert.Equal(t, 3, first.TotalPages)
	assert.Len(t, first.Items, 10)
	assert.Equal(t, "0", first.Items[0].ID)

	third := Project(snapshot, dto.Filters{Page: 3, PageSize: 10})
	require.Len(t, third.Items, 5)
	assert.Equal(t, "20", third.Items[0].ID)

	fourth := Project(snapshot, dto.Filters{Page: 4, PageSize: 10})
	assert.Empty(t, fourth.Items)
	assert.NotNil(t, fourth.Items)
	assert.Equal(t, 3, fourth.TotalPages)
}

func TestDefaultsForPageAndSize(t *testing.T) {
	snapshot := make([]model.Product, 12)
	for i := range snapshot {
		snapshot[i] = model.Product{ID: fmt.Sprint(i)}
	}
	page := Project(snapshot, dto.Filters{})
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Len(t, page.Items, DefaultPageSize)
}

func TestEmptySnapshot(t *testing.T) {
	page := Project(nil, dto.Filters{Page: 1})
	assert.Equal(t, 0, page.TotalPages)
	assert.Empty(t, page.Items)
}

func TestProjectionIsPure(t *testing.T) {
	snapshot := []model.Product{
		{ID: "1", Name: "Red Shoe", CountInStock: 0, Images: []string{"a"}},
		{ID: "2", Name: "Blue Shoe", CountInStock: 5, Images: []string{"b"}},
	}
	f := dto.Filters{Search: "SHOE", Page: 1}

	a := Project(snapshot, f)
	a.Items[0].Images[0] = "changed"
	b := Project(snapshot, f)

	assert.Equal(t, "a", snapshot[0].Images[0])
	assert.Equal(t, "a", b.Items[0].Images[0])
	assert.Equal(t, len(a.Items), len(b.Items))
}

func TestCategoriesFirstSeenOrder(t *testing.T) {
	snapshot := []model.Product{
		{Category: "home"}, {Category: "electronics"}, {Category: ""}, {Category: "home"}, {Category: "clothing"},
	}
	assert.Equal(t, []string{"home", "electronics", "clothing"}, Categories(snapshot))
}
