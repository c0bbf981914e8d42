package repository

import (
	"sync"
	"testing"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id string, stock int, version uint64) model.Product {
	return model.Product{ID: id, Name: "item " + id, CountInStock: stock, Version: version, Images: []string{"https://cdn/" + id + ".png"}}
}

func TestUpsertRejectsStaleVersion(t *testing.T) {
	r := NewMemoryRepository()
	require.NoError(t, r.Upsert(product("p1", 3, 2)))

	err := r.Upsert(product("p1", 9, 1))
	require.ErrorIs(t, err, inventory.ErrStaleWrite)

	got, ok := r.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 3, got.CountInStock)
	assert.Equal(t, uint64(2), got.Version)
}

func TestUpsertAcceptsEqualVersion(t *testing.T) {
	r := NewMemoryRepository()
	require.NoError(t, r.Upsert(product("p1", 3, 2)))
	require.NoError(t, r.Upsert(product("p1", 4, 2)))

	got, _ := r.Get("p1")
	assert.Equal(t, 4, got.CountInStock)
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	r := NewMemoryRepository()
	require.NoError(t, r.Upsert(product("p1", 3, 1)))

	got, _ := r.Get("p1")
	got.Images[0] = "mutated"

	again, _ := r.Get("p1")
	assert.Equal(t, "https://cdn/p1.png", again.Images[0])
}

func TestSnapshotKeepsInsertionOrderAcrossRemoveAndRestore(t *testing.T) {
	r := NewMemoryRepository()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Upsert(product(id, 1, 1)))
	}

	prior, _ := r.Get("b")
	require.True(t, r.Remove("b"))
	assert.False(t, r.Remove("b"))

	ids := func() []string {
		var out []string
		for _, p := range r.SnapshotAll() {
			out = append(out, p.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "c"}, ids())

	r.Restore(prior)
	assert.Equal(t, []string{"a", "b", "c"}, ids())
}

func TestForgetReleasesSlotOfRemovedID(t *testing.T) {
	r := NewMemoryRepository()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Upsert(product(id, 1, 1)))
	}

	assert.False(t, r.Forget("b"), "live entries keep their slot")
	require.True(t, r.Remove("b"))
	rev := r.Revision()
	assert.True(t, r.Forget("b"))
	assert.False(t, r.Forget("b"))
	assert.False(t, r.Forget("never-seen"))
	assert.Equal(t, rev, r.Revision(), "forgetting is not a visible write")
	assert.Equal(t, []string{"a", "c"}, r.order)
	assert.Len(t, r.slots, 2)

	require.NoError(t, r.Upsert(product("b", 1, 2)))
	var ids []string
	for _, p := range r.SnapshotAll() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids)
}

func TestRestoreIgnoresVersion(t *testing.T) {
	r := NewMemoryRepository()
	require.NoError(t, r.Upsert(product("p1", 0, 5)))
	r.Restore(product("p1", 7, 4))

	got, _ := r.Get("p1")
	assert.Equal(t, uint64(4), got.Version)
	assert.Equal(t, 7, got.CountInStock)
}

func TestSubscribersSeeEveryAcceptedWrite(t *testing.T) {
	r := NewMemoryRepository()
	var revs []uint64
	cancel := r.Subscribe(func(rev uint64) { revs = append(revs, rev) })

	require.NoError(t, r.Upsert(product("p1", 1, 2)))
	_ = r.Upsert(product("p1", 1, 1)) // stale, no notification
	r.Remove("p1")
	r.Remove("p1") // absent, no notification

	cancel()
	require.NoError(t, r.Upsert(product("p2", 1, 1)))

	assert.Equal(t, []uint64{1, 2}, revs)
	assert.Equal(t, uint64(3), r.Revision())
}

func TestConcurrentUpsertsKeepHighestVersion(t *testing.T) {
	r := NewMemoryRepository()
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		v := uint64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Upsert(product("p3", int(v), v))
		}()
	}
	wg.Wait()

	got, ok := r.Get("p3")
	require.True(t, ok)
	assert.Equal(t, uint64(100), got.Version)
	assert.Equal(t, 100, got.CountInStock)
}
