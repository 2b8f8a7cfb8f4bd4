package repository_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
)

func TestChromemAddAndList(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChromem()

	id1, err := repo.Add(ctx, "alice", "I write backend services in Go")
	gt.NoError(t, err)
	id2, err := repo.Add(ctx, "alice", "My editor is Neovim")
	gt.NoError(t, err)
	_, err = repo.Add(ctx, "bob", "I like Rust")
	gt.NoError(t, err)

	memories, err := repo.List(ctx, "alice", model.MemoryLimit)
	gt.NoError(t, err)
	gt.A(t, memories).Length(2)
	gt.Equal(t, memories[0].ID, id2)
	gt.Equal(t, memories[1].ID, id1)
	gt.True(t, memories[0].HasTag("alice"))

	count, err := repo.Count(ctx, "alice")
	gt.NoError(t, err)
	gt.Equal(t, count, 2)

	count, err = repo.Count(ctx, "nobody")
	gt.NoError(t, err)
	gt.Equal(t, count, 0)
}

func TestChromemListLimit(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChromem()

	for i := range 5 {
		_, err := repo.Add(ctx, "alice", fmt.Sprintf("memory number %d", i))
		gt.NoError(t, err)
	}

	memories, err := repo.List(ctx, "alice", 3)
	gt.NoError(t, err)
	gt.A(t, memories).Length(3)
	gt.Equal(t, memories[0].Content, "memory number 4")
}

func TestChromemAddEmpty(t *testing.T) {
	repo := repository.NewChromem()
	_, err := repo.Add(context.Background(), "alice", "   ")
	gt.Error(t, err)
}

func TestChromemUpdate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChromem()

	id, err := repo.Add(ctx, "alice", "uses tabs")
	gt.NoError(t, err)

	gt.NoError(t, repo.Update(ctx, id, "uses spaces"))

	m, err := repo.Get(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, m.Content, "uses spaces")
	gt.Equal(t, m.Title, "uses spaces")

	err = repo.Update(ctx, "missing", "x")
	gt.True(t, errors.Is(err, model.ErrMemoryNotFound))
}

func TestChromemUpdateKeepsDocumentOnEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	embed := func(ctx context.Context, text string) ([]float32, error) {
		if strings.Contains(text, "unembeddable") {
			return nil, errors.New("embedding service unavailable")
		}
		return repository.HashEmbedding(ctx, text)
	}
	repo := repository.NewChromem(repository.WithEmbeddingFunc(embed))

	id, err := repo.Add(ctx, "alice", "prefers dark mode")
	gt.NoError(t, err)

	gt.Error(t, repo.Update(ctx, id, "unembeddable text"))

	m, err := repo.Get(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, m.Content, "prefers dark mode")

	results, err := repo.Search(ctx, "alice", "dark mode")
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].DocumentID, id)
	gt.Equal(t, results[0].Chunks[0].Content, "prefers dark mode")
}

func TestChromemUpdateReplacesDocument(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChromem()

	id, err := repo.Add(ctx, "alice", "uses tabs")
	gt.NoError(t, err)
	gt.NoError(t, repo.Update(ctx, id, "uses spaces"))

	results, err := repo.Search(ctx, "alice", "uses")
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Chunks[0].Content, "uses spaces")
}

func TestChromemDelete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChromem()

	id1, err := repo.Add(ctx, "alice", "first")
	gt.NoError(t, err)
	id2, err := repo.Add(ctx, "alice", "second")
	gt.NoError(t, err)

	gt.NoError(t, repo.Delete(ctx, id1))

	memories, err := repo.List(ctx, "alice", model.MemoryLimit)
	gt.NoError(t, err)
	gt.A(t, memories).Length(1)
	gt.Equal(t, memories[0].ID, id2)

	_, err = repo.Get(ctx, id1)
	gt.True(t, errors.Is(err, model.ErrMemoryNotFound))

	err = repo.Delete(ctx, id1)
	gt.True(t, errors.Is(err, model.ErrMemoryNotFound))
}

func TestChromemSearch(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChromem()

	_, err := repo.Add(ctx, "alice", "favorite language is go")
	gt.NoError(t, err)
	_, err = repo.Add(ctx, "alice", "drinks coffee every morning")
	gt.NoError(t, err)
	_, err = repo.Add(ctx, "bob", "favorite language is rust")
	gt.NoError(t, err)

	results, err := repo.Search(ctx, "alice", "favorite language")
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Chunks[0].Content, "favorite language is go")

	results, err = repo.Search(ctx, "nobody", "anything")
	gt.NoError(t, err)
	gt.A(t, results).Length(0)
}

func TestHashEmbedding(t *testing.T) {
	ctx := context.Background()

	a, err := repository.HashEmbedding(ctx, "Go is great")
	gt.NoError(t, err)
	b, err := repository.HashEmbedding(ctx, "go IS great!")
	gt.NoError(t, err)
	gt.Equal(t, a, b)

	empty, err := repository.HashEmbedding(ctx, "")
	gt.NoError(t, err)
	gt.True(t, empty[len(empty)-1] > 0.99)
}
