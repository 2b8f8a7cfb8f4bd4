package memory

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"go.opentelemetry.io/otel/attribute"
)

// Search runs a semantic query in the user's partition
func (u *UseCase) Search(ctx context.Context, user model.UserID, query string) (_ []*model.SearchResult, err error) {
	ctx, span := u.start(ctx, "memory.Search", user)
	defer func() { finish(span, err) }()

	if err := requireUser(user); err != nil {
		return nil, err
	}

	results, err := u.client.Search(ctx, user.Tag(), query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories", goerr.V("user_id", user))
	}
	span.SetAttributes(attribute.Int("kioku.result_count", len(results)))
	return results, nil
}

// JoinResults renders search results as plain text. Chunks of one result are
// separated by a blank line, and so are results.
func JoinResults(results []*model.SearchResult) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		chunks := make([]string, 0, len(r.Chunks))
		for _, c := range r.Chunks {
			chunks = append(chunks, c.Content)
		}
		texts = append(texts, strings.Join(chunks, "\n\n"))
	}
	return strings.Join(texts, "\n\n")
}
