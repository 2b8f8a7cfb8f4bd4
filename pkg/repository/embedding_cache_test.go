package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/repository"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return repository.HashEmbedding(ctx, text)
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}

	cached, err := repository.NewCachedEmbedder(inner, 100, time.Minute)
	gt.NoError(t, err)
	defer cached.Close()

	v1, err := cached.Embed(ctx, "what editor do I use")
	gt.NoError(t, err)
	cached.Wait()

	v2, err := cached.Embed(ctx, "what editor do I use")
	gt.NoError(t, err)

	gt.Equal(t, v1, v2)
	gt.Equal(t, inner.calls, 1)

	_, err = cached.Embed(ctx, "another question")
	gt.NoError(t, err)
	gt.Equal(t, inner.calls, 2)
}
