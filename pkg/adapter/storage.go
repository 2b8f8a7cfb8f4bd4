package adapter

import (
	"context"
	"path"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
)

// Storage writes exported partition snapshots to a Cloud Storage bucket
type Storage struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

var _ interfaces.Archive = (*Storage)(nil)

// NewStorage creates a new Cloud Storage archive. Objects are written under
// prefix inside bucketName.
func NewStorage(ctx context.Context, bucketName, prefix string) (*Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &Storage{
		bucketName: bucketName,
		prefix:     prefix,
		client:     client,
	}, nil
}

func (s *Storage) Put(ctx context.Context, key string, data []byte) error {
	name := path.Join(s.prefix, key)
	w := s.client.Bucket(s.bucketName).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write object", goerr.V("bucket", s.bucketName), goerr.V("object", name))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close object writer", goerr.V("bucket", s.bucketName), goerr.V("object", name))
	}
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}
