package ports

import (
	"context"

	"github.com/aretw0/skyscope/pkg/domain"
)

// ViewStore defines the interface for persisting explorer views.
// It lets a visible set survive restarts and be shared between replicas.
type ViewStore interface {
	// Save persists the view under its ID.
	Save(ctx context.Context, view *domain.View) error

	// Load retrieves a view by ID.
	// Returns domain.ErrViewNotFound if the view does not exist.
	Load(ctx context.Context, viewID string) (*domain.View, error)

	// Delete removes a view. Deleting a missing view is not an error.
	Delete(ctx context.Context, viewID string) error

	// List returns the IDs of stored views.
	List(ctx context.Context) ([]string, error)
}
