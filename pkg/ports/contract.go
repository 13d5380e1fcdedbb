package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunViewStoreContract runs a suite of tests to verify that a ViewStore implementation
// adheres to the defined interface contract.
func RunViewStoreContract(t *testing.T, store ViewStore) {
	ctx := context.Background()
	viewID := "contract-test-view-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		view := domain.NewView(viewID)
		view.Pattern = "//foo"
		view.MaxTotal = 42
		view.Expanded = true
		view.Visible.Toggle(domain.Node{Hash: "h1", NodeType: "FILE", NodeData: "[/src]/foo"})

		err := store.Save(ctx, view)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, viewID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, viewID, loaded.ID)
		assert.Equal(t, "//foo", loaded.Pattern)
		assert.Equal(t, 42, loaded.MaxTotal)
		assert.True(t, loaded.Expanded)
		assert.Equal(t, []string{"h1"}, loaded.Visible.Hashes())
		assert.Equal(t, "FILE", loaded.Visible["h1"].NodeType)
	})

	t.Run("Load Is Isolated", func(t *testing.T) {
		loaded, err := store.Load(ctx, viewID)
		require.NoError(t, err)
		loaded.Visible.Toggle(domain.Node{Hash: "mutated"})

		again, err := store.Load(ctx, viewID)
		require.NoError(t, err)
		assert.False(t, again.Visible.Contains("mutated"), "mutating a loaded view must not change the store")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+viewID)
		assert.ErrorIs(t, err, domain.ErrViewNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, domain.NewView(viewID))
		require.NoError(t, err)

		err = store.Delete(ctx, viewID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, viewID)
		assert.ErrorIs(t, err, domain.ErrViewNotFound, "Load after Delete should return ErrViewNotFound")

		assert.NoError(t, store.Delete(ctx, viewID), "Deleting a missing view should succeed")
	})

	t.Run("List", func(t *testing.T) {
		id1 := viewID + "-1"
		id2 := viewID + "-2"
		_ = store.Save(ctx, domain.NewView(id1))
		_ = store.Save(ctx, domain.NewView(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		views, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, views, id1)
		assert.Contains(t, views, id2)
	})
}
