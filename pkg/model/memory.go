package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// MemoryLimit is both the per-partition ceiling enforced on add and the
// page size used when listing a partition.
const MemoryLimit = 2000

var (
	ErrMemoryNotFound = goerr.New("memory not found")
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

func (x MemoryID) String() string { return string(x) }

// Memory is a single record owned by the memory backend. Only ID and
// Content are guaranteed; Title and Summary are filled when the backend
// derives them.
type Memory struct {
	ID            MemoryID  `json:"id"`
	Content       string    `json:"content,omitempty"`
	Title         string    `json:"title,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Status        string    `json:"status,omitempty"`
	ContainerTags []string  `json:"containerTags,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasTag reports whether the memory belongs to the partition of tag
func (m *Memory) HasTag(tag string) bool {
	return slices.Contains(m.ContainerTags, tag)
}

// Chunk is a piece of a document matched by a semantic search
type Chunk struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchResult is one matched document with the chunks that matched
type SearchResult struct {
	DocumentID MemoryID `json:"documentId"`
	Title      string   `json:"title,omitempty"`
	Score      float64  `json:"score"`
	Chunks     []Chunk  `json:"chunks"`
}
