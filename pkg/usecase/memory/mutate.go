package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"go.opentelemetry.io/otel/attribute"
)

// owned fetches the memory and checks that it lives in the user's
// partition. Memories of other partitions are reported as not found.
func (u *UseCase) owned(ctx context.Context, user model.UserID, id model.MemoryID) (*model.Memory, error) {
	if id == "" {
		return nil, goerr.Wrap(ErrValidation, "Memory ID is required")
	}

	m, err := u.client.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(m.ContainerTags) > 0 && !m.HasTag(user.Tag()) {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory belongs to another partition",
			goerr.V("id", id), goerr.V("user_id", user))
	}
	return m, nil
}

// Delete removes one memory from the user's partition and returns the
// partition as it is afterwards.
func (u *UseCase) Delete(ctx context.Context, user model.UserID, id model.MemoryID) (_ []*model.Memory, err error) {
	ctx, span := u.start(ctx, "memory.Delete", user, attribute.String("kioku.memory_id", id.String()))
	defer func() { finish(span, err) }()

	if err := requireUser(user); err != nil {
		return nil, err
	}

	m, err := u.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Info("deleting memory", "user_id", user, "memory_id", id, "title", m.Title)

	if err := u.client.Delete(ctx, id); err != nil {
		return nil, err
	}

	return u.client.List(ctx, user.Tag(), u.limit)
}

// Update replaces the content of one memory in the user's partition and
// returns the partition as it is afterwards.
func (u *UseCase) Update(ctx context.Context, user model.UserID, id model.MemoryID, content string) (_ []*model.Memory, err error) {
	ctx, span := u.start(ctx, "memory.Update", user, attribute.String("kioku.memory_id", id.String()))
	defer func() { finish(span, err) }()

	if err := requireUser(user); err != nil {
		return nil, err
	}

	m, err := u.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Info("updating memory", "user_id", user, "memory_id", id, "title", m.Title)

	if err := u.client.Update(ctx, id, content); err != nil {
		return nil, err
	}

	return u.client.List(ctx, user.Tag(), u.limit)
}
