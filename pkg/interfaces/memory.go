package interfaces

import (
	"context"

	"github.com/m-mizutani/kioku/pkg/model"
)

// MemoryClient is the remote memory API. Every partition-scoped call takes
// the container tag explicitly; calls are never retried.
type MemoryClient interface {
	// List returns up to limit memories of the partition in backend order
	List(ctx context.Context, tag string, limit int) ([]*model.Memory, error)

	// Count returns the number of memories in the partition
	Count(ctx context.Context, tag string) (int, error)

	// Add stores content in the partition and returns the new memory ID
	Add(ctx context.Context, tag string, content string) (model.MemoryID, error)

	// Get retrieves a memory by ID. Absent IDs yield model.ErrMemoryNotFound
	Get(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// Update replaces the content of a memory
	Update(ctx context.Context, id model.MemoryID, content string) error

	// Delete removes a memory. Absent IDs yield model.ErrMemoryNotFound
	Delete(ctx context.Context, id model.MemoryID) error

	// Search runs a semantic query within the partition
	Search(ctx context.Context, tag string, query string) ([]*model.SearchResult, error)
}

// Archive stores exported partition snapshots
type Archive interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Embedder turns text into a dense vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
