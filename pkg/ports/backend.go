package ports

import (
	"context"

	"github.com/aretw0/skyscope/pkg/domain"
)

// GraphBackend is the remote Skyframe graph server.
type GraphBackend interface {
	// Find returns the nodes whose data matches the LIKE pattern.
	// The pattern is sent as given; callers add the surrounding '%' wildcards.
	Find(ctx context.Context, pattern string) (*domain.FindResult, error)

	// Render returns an SVG diagram of the given node hashes.
	Render(ctx context.Context, hashes []string) ([]byte, error)

	// Delete issues a DELETE for path, relative to the backend base URL.
	Delete(ctx context.Context, path string) error
}
