package vectorindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/model"
)

// QdrantConfig holds connection settings for the Qdrant index.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
}

// QdrantIndex implements Index against a Qdrant server over gRPC.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *zap.Logger
}

// NewQdrant connects to Qdrant. The URL may carry a scheme and port;
// https implies TLS, and the port defaults to Qdrant's gRPC port 6334.
func NewQdrant(cfg QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		logger:     logger,
	}, nil
}

func (q *QdrantIndex) Close() error { return q.client.Close() }

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet. Safe to call at every startup.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection %s: %w", q.collection, err)
	}
	q.logger.Info("created qdrant collection",
		zap.String("collection", q.collection), zap.Int("dimension", q.dimension))
	return nil
}

// pointID derives a stable UUID from the event ID. Qdrant point IDs must be
// UUIDs or integers, and upstream event IDs are arbitrary strings.
func pointID(eventID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(eventID)).String())
}

// Upsert pushes event vectors, skipping events whose embedding is missing or
// has the wrong dimension. Returns how many points were written.
func (q *QdrantIndex) Upsert(ctx context.Context, events []model.Event) (int, error) {
	points := make([]*qdrant.PointStruct, 0, len(events))
	for _, e := range events {
		if len(e.Embeddings) != q.dimension {
			q.logger.Warn("skipping event with unusable embedding",
				zap.String("event_id", e.ID), zap.Int("dimension", len(e.Embeddings)))
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(e.ID),
			Vectors: qdrant.NewVectors(e.Embeddings...),
			Payload: qdrant.NewValueMap(map[string]any{
				"event_id": e.ID,
				"category": e.Category,
				"region":   e.Region,
			}),
		})
	}
	if len(points) == 0 {
		return 0, nil
	}

	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant upsert: %w", err)
	}
	return len(points), nil
}

// Delete removes an event's point. Deleting an absent point is not an error.
func (q *QdrantIndex) Delete(ctx context.Context, eventID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointID(eventID)),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete %s: %w", eventID, err)
	}
	return nil
}

// Search runs a nearest-neighbor query and maps hits back to event IDs via
// the payload. Points without an event_id payload are dropped.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, limit int, minScore float64) ([]Match, error) {
	lim := uint64(limit)
	threshold := float32(minScore)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &lim,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		id := ""
		if p.Payload != nil {
			if v, ok := p.Payload["event_id"]; ok {
				id = v.GetStringValue()
			}
		}
		if id == "" {
			continue
		}
		matches = append(matches, Match{EventID: id, Score: float64(p.Score)})
	}
	return matches, nil
}

var _ Index = (*QdrantIndex)(nil)
