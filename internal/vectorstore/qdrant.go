package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
	"github.com/lokeshpanthangi/lecturechat/internal/retry"
)

const (
	// UpsertBatchSize is the practical per-call limit of the service.
	UpsertBatchSize = 100

	readinessPollInterval = time.Second
	readinessPollMax      = 30
)

// QdrantConfig selects the qdrant deployment and target collection.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

// QdrantIndex is the qdrant-backed vector index. Record ids are the
// composite `{recordingID}_chunk_{index}_{suffix}` strings; qdrant point ids
// must be UUIDs, so each point gets a deterministic UUID derived from the
// composite id, which itself rides along in the payload.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	policy     retry.Policy
	log        *logrus.Entry
}

func NewQdrantIndex(cfg QdrantConfig, log *logrus.Entry) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		policy:     retry.Default(),
		log:        log,
	}, nil
}

// EnsureCollection creates the collection if it is absent (cosine metric,
// the embedder's dimension) and waits for it to report ready. Idempotent.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if !exists {
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant create collection: %w", err)
		}
		q.log.WithField("collection", q.collection).Info("created qdrant collection")
	}

	for i := 0; i < readinessPollMax; i++ {
		info, err := q.client.GetCollectionInfo(ctx, q.collection)
		if err == nil && info.GetStatus() == qdrant.CollectionStatus_Green {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readinessPollInterval):
		}
	}
	return fmt.Errorf("collection %s not ready after %d polls", q.collection, readinessPollMax)
}

func (q *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for i, r := range batch {
			points[i] = &qdrant.PointStruct{
				Id:      qdrant.NewID(pointUUID(r.ID)),
				Vectors: qdrant.NewVectors(r.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"vector_id":    r.ID,
					"recording_id": r.Metadata.RecordingID,
					"chunk_index":  int64(r.Metadata.ChunkIndex),
					"start":        r.Metadata.Start,
					"end":          r.Metadata.End,
					"text":         r.Metadata.Snippet,
					"model":        r.Metadata.Model,
				}),
			}
		}

		err := q.policy.Do(ctx, func() error {
			_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: q.collection,
				Points:         points,
				Wait:           qdrant.PtrOf(true),
			})
			return classifyGRPC(err)
		})
		if err != nil {
			return fmt.Errorf("qdrant upsert batch at %d: %w", start, err)
		}
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]Match, error) {
	limit := uint64(opts.TopK)

	var points []*qdrant.ScoredPoint
	err := q.policy.Do(ctx, func() error {
		var queryErr error
		points, queryErr = q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          &limit,
			Filter:         recordingFilter(opts.RecordingID),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return classifyGRPC(queryErr)
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		score := float64(p.GetScore())
		if score < opts.MinScore {
			continue
		}
		payload := p.GetPayload()
		matches = append(matches, Match{
			ID:    payload["vector_id"].GetStringValue(),
			Score: score,
			Metadata: Metadata{
				RecordingID: payload["recording_id"].GetStringValue(),
				ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
				Start:       payload["start"].GetDoubleValue(),
				End:         payload["end"].GetDoubleValue(),
				Snippet:     payload["text"].GetStringValue(),
				Model:       payload["model"].GetStringValue(),
			},
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

func (q *QdrantIndex) DeleteByRecording(ctx context.Context, recordingID string) error {
	err := q.policy.Do(ctx, func() error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.collection,
			Points:         qdrant.NewPointsSelectorFilter(recordingFilter(recordingID)),
			Wait:           qdrant.PtrOf(true),
		})
		return classifyGRPC(err)
	})
	if err != nil {
		return fmt.Errorf("qdrant delete by recording: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Stats(ctx context.Context) (*Stats, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant count: %w", err)
	}
	// Collections grow without a capacity bound, so fullness stays 0.
	return &Stats{Count: count, Dimension: q.dimension, Fullness: 0}, nil
}

func recordingFilter(recordingID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("recording_id", recordingID),
		},
	}
}

// pointUUID derives a stable UUID for a composite record id.
func pointUUID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

// classifyGRPC marks retryable qdrant failures as transient.
func classifyGRPC(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return model.Transient(err)
	}
	return err
}
