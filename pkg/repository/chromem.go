package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
	chromem "github.com/philippgille/chromem-go"
)

const (
	searchResultLimit = 10
	titleLength       = 80
)

// Chromem is an in-process memory backend. Records are kept in memory per
// partition and searched through a chromem-go collection of the same
// partition.
type Chromem struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc

	mu         sync.RWMutex
	partitions map[string]*partition
	records    map[model.MemoryID]*model.Memory
}

type partition struct {
	col *chromem.Collection
	ids []model.MemoryID // insertion order
}

var _ interfaces.MemoryClient = (*Chromem)(nil)

type ChromemOption func(*Chromem)

// WithEmbeddingFunc replaces the default hash embedding
func WithEmbeddingFunc(fn chromem.EmbeddingFunc) ChromemOption {
	return func(c *Chromem) {
		c.embed = fn
	}
}

// NewChromem creates an empty in-process memory backend
func NewChromem(opts ...ChromemOption) *Chromem {
	c := &Chromem{
		db:         chromem.NewDB(),
		embed:      HashEmbedding,
		partitions: make(map[string]*partition),
		records:    make(map[model.MemoryID]*model.Memory),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// partitionOf returns the partition for tag, creating it if needed. Caller
// must hold the write lock.
func (c *Chromem) partitionOf(tag string) (*partition, error) {
	if p, ok := c.partitions[tag]; ok {
		return p, nil
	}

	col, err := c.db.GetOrCreateCollection("partition_"+tag, map[string]string{"tag": tag}, c.embed)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create collection", goerr.V("tag", tag))
	}

	p := &partition{col: col}
	c.partitions[tag] = p
	return p, nil
}

func (c *Chromem) List(ctx context.Context, tag string, limit int) ([]*model.Memory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.partitions[tag]
	if !ok {
		return []*model.Memory{}, nil
	}

	// newest first, as the hosted API sorts by default
	memories := make([]*model.Memory, 0, min(limit, len(p.ids)))
	for i := len(p.ids) - 1; i >= 0 && len(memories) < limit; i-- {
		m := *c.records[p.ids[i]]
		memories = append(memories, &m)
	}
	return memories, nil
}

func (c *Chromem) Count(ctx context.Context, tag string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.partitions[tag]
	if !ok {
		return 0, nil
	}
	return len(p.ids), nil
}

func (c *Chromem) Add(ctx context.Context, tag string, content string) (model.MemoryID, error) {
	if strings.TrimSpace(content) == "" {
		return "", goerr.New("content is empty", goerr.V("tag", tag))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.partitionOf(tag)
	if err != nil {
		return "", err
	}

	now := time.Now()
	m := &model.Memory{
		ID:            model.NewMemoryID(),
		Content:       content,
		Title:         titleOf(content),
		Status:        "done",
		ContainerTags: []string{tag},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := p.col.AddDocument(ctx, chromem.Document{
		ID:       m.ID.String(),
		Content:  content,
		Metadata: map[string]string{"tag": tag},
	}); err != nil {
		return "", goerr.Wrap(err, "failed to add document", goerr.V("tag", tag))
	}

	c.records[m.ID] = m
	p.ids = append(p.ids, m.ID)
	return m.ID, nil
}

func (c *Chromem) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.records[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "no such memory", goerr.V("id", id))
	}
	copied := *m
	return &copied, nil
}

func (c *Chromem) Update(ctx context.Context, id model.MemoryID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.records[id]
	if !ok {
		return goerr.Wrap(model.ErrMemoryNotFound, "no such memory", goerr.V("id", id))
	}
	tag := m.ContainerTags[0]
	p := c.partitions[tag]

	// AddDocument replaces the document with the same ID only after the new
	// embedding is computed, so a failure leaves the old one searchable
	if err := p.col.AddDocument(ctx, chromem.Document{
		ID:       id.String(),
		Content:  content,
		Metadata: map[string]string{"tag": tag},
	}); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("id", id))
	}

	m.Content = content
	m.Title = titleOf(content)
	m.UpdatedAt = time.Now()
	return nil
}

func (c *Chromem) Delete(ctx context.Context, id model.MemoryID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.records[id]
	if !ok {
		return goerr.Wrap(model.ErrMemoryNotFound, "no such memory", goerr.V("id", id))
	}
	p := c.partitions[m.ContainerTags[0]]

	if err := p.col.Delete(ctx, nil, nil, id.String()); err != nil {
		return goerr.Wrap(err, "failed to delete document", goerr.V("id", id))
	}

	delete(c.records, id)
	p.ids = slices.DeleteFunc(p.ids, func(x model.MemoryID) bool { return x == id })
	return nil
}

func (c *Chromem) Search(ctx context.Context, tag string, query string) ([]*model.SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.partitions[tag]
	if !ok {
		return []*model.SearchResult{}, nil
	}

	// chromem rejects nResults larger than the collection
	n := min(searchResultLimit, p.col.Count())
	if n == 0 {
		return []*model.SearchResult{}, nil
	}

	found, err := p.col.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection", goerr.V("tag", tag))
	}

	results := make([]*model.SearchResult, 0, len(found))
	for _, r := range found {
		id := model.MemoryID(r.ID)
		var title string
		if m, ok := c.records[id]; ok {
			title = m.Title
		}
		results = append(results, &model.SearchResult{
			DocumentID: id,
			Title:      title,
			Score:      float64(r.Similarity),
			Chunks: []model.Chunk{
				{Content: r.Content, Score: float64(r.Similarity)},
			},
		})
	}
	return results, nil
}

// titleOf derives a display title from the first line of content
func titleOf(content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	runes := []rune(line)
	if len(runes) > titleLength {
		return string(runes[:titleLength]) + "..."
	}
	return line
}
