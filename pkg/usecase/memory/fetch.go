package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
)

// Fetch returns the user's partition in backend order, at most Limit entries
func (u *UseCase) Fetch(ctx context.Context, user model.UserID) (_ []*model.Memory, err error) {
	ctx, span := u.start(ctx, "memory.Fetch", user)
	defer func() { finish(span, err) }()

	if err := requireUser(user); err != nil {
		return nil, err
	}

	memories, err := u.client.List(ctx, user.Tag(), u.limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories", goerr.V("user_id", user))
	}
	return memories, nil
}

// Restore returns the partition of a previously issued identifier. Binding
// the identifier to the browser is up to the caller.
func (u *UseCase) Restore(ctx context.Context, user model.UserID) ([]*model.Memory, error) {
	return u.Fetch(ctx, user)
}
