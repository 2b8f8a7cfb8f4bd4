package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionMemories = "memories"
	distanceField      = "vector_distance"
)

// Firestore stores memories in a Firestore collection and searches them with
// vector nearest-neighbour queries over embeddings.
type Firestore struct {
	client   *firestore.Client
	embedder interfaces.Embedder
}

var _ interfaces.MemoryClient = (*Firestore)(nil)

type memoryDoc struct {
	ID            string             `firestore:"id"`
	Content       string             `firestore:"content"`
	Title         string             `firestore:"title"`
	ContainerTags []string           `firestore:"container_tags"`
	Embedding     firestore.Vector32 `firestore:"embedding"`
	CreatedAt     time.Time          `firestore:"created_at"`
	UpdatedAt     time.Time          `firestore:"updated_at"`
}

func (d *memoryDoc) toModel() *model.Memory {
	return &model.Memory{
		ID:            model.MemoryID(d.ID),
		Content:       d.Content,
		Title:         d.Title,
		Status:        "done",
		ContainerTags: d.ContainerTags,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// NewFirestore creates a new Firestore memory backend
func NewFirestore(ctx context.Context, projectID, databaseID string, embedder interfaces.Embedder) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID))
	}

	return &Firestore{
		client:   client,
		embedder: embedder,
	}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) partition(tag string) firestore.Query {
	return r.client.Collection(collectionMemories).Where("container_tags", "array-contains", tag)
}

func (r *Firestore) List(ctx context.Context, tag string, limit int) ([]*model.Memory, error) {
	iter := r.partition(tag).
		OrderBy("created_at", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	memories := make([]*model.Memory, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories", goerr.V("tag", tag))
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc", snap.Ref.ID))
		}
		memories = append(memories, doc.toModel())
	}

	return memories, nil
}

func (r *Firestore) Count(ctx context.Context, tag string) (int, error) {
	q := r.partition(tag)
	res, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count memories", goerr.V("tag", tag))
	}

	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, goerr.New("unexpected count result", goerr.V("tag", tag))
	}
	return int(v.GetIntegerValue()), nil
}

func (r *Firestore) Add(ctx context.Context, tag string, content string) (model.MemoryID, error) {
	vec, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return "", goerr.Wrap(err, "failed to embed memory content")
	}

	now := time.Now()
	doc := &memoryDoc{
		ID:            model.NewMemoryID().String(),
		Content:       content,
		Title:         titleOf(content),
		ContainerTags: []string{tag},
		Embedding:     firestore.Vector32(vec),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := r.client.Collection(collectionMemories).Doc(doc.ID).Set(ctx, doc); err != nil {
		return "", goerr.Wrap(err, "failed to save memory", goerr.V("tag", tag))
	}
	return model.MemoryID(doc.ID), nil
}

func (r *Firestore) get(ctx context.Context, id model.MemoryID) (*memoryDoc, error) {
	snap, err := r.client.Collection(collectionMemories).Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrMemoryNotFound, "no such memory", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("id", id))
	}

	var doc memoryDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("id", id))
	}
	return &doc, nil
}

func (r *Firestore) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *Firestore) Update(ctx context.Context, id model.MemoryID, content string) error {
	if _, err := r.get(ctx, id); err != nil {
		return err
	}

	vec, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return goerr.Wrap(err, "failed to embed memory content")
	}

	_, err = r.client.Collection(collectionMemories).Doc(id.String()).Update(ctx, []firestore.Update{
		{Path: "content", Value: content},
		{Path: "title", Value: titleOf(content)},
		{Path: "embedding", Value: firestore.Vector32(vec)},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to update memory", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) Delete(ctx context.Context, id model.MemoryID) error {
	// Firestore deletes of missing documents succeed silently
	if _, err := r.get(ctx, id); err != nil {
		return err
	}

	if _, err := r.client.Collection(collectionMemories).Doc(id.String()).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete memory", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) Search(ctx context.Context, tag string, query string) ([]*model.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	iter := r.partition(tag).
		FindNearest("embedding", firestore.Vector32(vec), searchResultLimit, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: distanceField}).
		Documents(ctx)
	defer iter.Stop()

	results := make([]*model.SearchResult, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate search results", goerr.V("tag", tag))
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc", snap.Ref.ID))
		}

		var score float64
		if d, ok := snap.Data()[distanceField].(float64); ok {
			score = 1 - d
		}

		results = append(results, &model.SearchResult{
			DocumentID: model.MemoryID(doc.ID),
			Title:      doc.Title,
			Score:      score,
			Chunks:     []model.Chunk{{Content: doc.Content, Score: score}},
		})
	}

	return results, nil
}
