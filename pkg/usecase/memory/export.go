package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// Snapshot is the archived form of one partition
type Snapshot struct {
	UserID     model.UserID    `json:"user_id"`
	ExportedAt time.Time       `json:"exported_at"`
	Memories   []*model.Memory `json:"memories"`
}

// Export writes a JSON snapshot of the user's partition to archive and
// returns the object key.
func (u *UseCase) Export(ctx context.Context, user model.UserID, archive interfaces.Archive) (_ string, err error) {
	ctx, span := u.start(ctx, "memory.Export", user)
	defer func() { finish(span, err) }()

	memories, err := u.Fetch(ctx, user)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	data, err := json.Marshal(&Snapshot{
		UserID:     user,
		ExportedAt: now,
		Memories:   memories,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal snapshot", goerr.V("user_id", user))
	}

	key := fmt.Sprintf("%s/%s.json", user, now.Format("20060102T150405Z"))
	if err := archive.Put(ctx, key, data); err != nil {
		return "", goerr.Wrap(err, "failed to store snapshot", goerr.V("key", key))
	}

	logging.From(ctx).Info("partition exported", "user_id", user, "key", key, "count", len(memories))
	return key, nil
}
