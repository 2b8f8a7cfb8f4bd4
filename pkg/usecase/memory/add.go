package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/policy"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"go.opentelemetry.io/otel/attribute"
)

// AddResult is the outcome of Add. A rejected add is not an error: the
// reason is meant to be shown to the caller as is.
type AddResult struct {
	ID       model.MemoryID
	Rejected bool
	Reason   string
}

// Add stores content in the user's partition after the admission policy
// accepted it. The partition size is read from the backend on every call.
func (u *UseCase) Add(ctx context.Context, user model.UserID, content string) (_ *AddResult, err error) {
	ctx, span := u.start(ctx, "memory.Add", user)
	defer func() { finish(span, err) }()

	count := 0
	if user != "" {
		count, err = u.client.Count(ctx, user.Tag())
		if err != nil {
			return nil, goerr.Wrap(err, "failed to count memories", goerr.V("user_id", user))
		}
	}
	span.SetAttributes(attribute.Int("kioku.memory_count", count))

	decision := &policy.Decision{Allow: user != "" && count <= u.limit}
	if u.admission != nil {
		decision, err = u.admission.Evaluate(ctx, policy.AdmissionInput{
			UserID:      user.String(),
			MemoryCount: count,
			Limit:       u.limit,
			Content:     content,
		})
		if err != nil {
			return nil, err
		}
	}

	if !decision.Allow {
		logging.From(ctx).Info("memory rejected", "user_id", user, "count", count, "reason", decision.Reason)
		return &AddResult{Rejected: true, Reason: decision.Reason}, nil
	}

	id, err := u.client.Add(ctx, user.Tag(), content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to add memory", goerr.V("user_id", user))
	}
	logging.From(ctx).Info("memory added", "user_id", user, "memory_id", id)

	return &AddResult{ID: id}, nil
}
