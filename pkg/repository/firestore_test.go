package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
)

type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return repository.HashEmbedding(ctx, text)
}

var _ interfaces.Embedder = hashEmbedder{}

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID, hashEmbedder{})
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestFirestoreLifecycle(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()
	tag := model.NewUserID().Tag()

	id, err := repo.Add(ctx, tag, "prefers dark mode")
	gt.NoError(t, err)

	got, err := repo.Get(ctx, id)
	gt.NoError(t, err)
	gt.Equal(t, got.Content, "prefers dark mode")
	gt.True(t, got.HasTag(tag))

	count, err := repo.Count(ctx, tag)
	gt.NoError(t, err)
	gt.Equal(t, count, 1)

	gt.NoError(t, repo.Update(ctx, id, "prefers light mode"))

	memories, err := repo.List(ctx, tag, model.MemoryLimit)
	gt.NoError(t, err)
	gt.A(t, memories).Length(1)
	gt.Equal(t, memories[0].Content, "prefers light mode")

	gt.NoError(t, repo.Delete(ctx, id))

	err = repo.Delete(ctx, id)
	gt.True(t, errors.Is(err, model.ErrMemoryNotFound))
}

func TestFirestoreSearch(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()
	tag := model.NewUserID().Tag()

	id, err := repo.Add(ctx, tag, "favorite language is go")
	gt.NoError(t, err)
	defer func() { _ = repo.Delete(ctx, id) }()

	results, err := repo.Search(ctx, tag, "favorite language")
	gt.NoError(t, err)
	gt.True(t, len(results) > 0)
	gt.Equal(t, results[0].DocumentID, id)
}
