package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Reserved payload keys. Everything else in the payload is record metadata.
const (
	payloadType      = "entity_type"
	payloadID        = "entity_id"
	payloadText      = "source_text"
	payloadCreatedAt = "created_at"
	payloadUpdatedAt = "updated_at"
)

// pointsAPI is the subset of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantStore is a VectorStore backed by a Qdrant collection with cosine
// distance. Point IDs are derived from the entity key, which makes upsert
// idempotent.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dims        int
	logger      *slog.Logger
	now         func() time.Time
}

// NewQdrant connects to Qdrant at the given gRPC address.
func NewQdrant(addr, collection string, logger *slog.Logger) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	s := NewQdrantWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, logger)
	s.conn = conn
	return s, nil
}

// NewQdrantWithClients builds a store over existing clients.
func NewQdrantWithClients(points pointsAPI, collections collectionsAPI, collection string, logger *slog.Logger) *QdrantStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantStore{
		points:      points,
		collections: collections,
		collection:  collection,
		logger:      logger,
		now:         time.Now,
	}
}

// Close closes the underlying gRPC connection.
func (q *QdrantStore) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and records
// the vector size used to reject mismatched queries.
func (q *QdrantStore) EnsureCollection(ctx context.Context, dims int) error {
	q.dims = dims
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w: %w", domain.ErrStoreUnavailable, err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", q.collection, err)
	}
	return nil
}

// DeleteCollection drops the collection.
func (q *QdrantStore) DeleteCollection(ctx context.Context) error {
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", q.collection, err)
	}
	return nil
}

// PointID returns the deterministic Qdrant point ID for key.
func PointID(key domain.Key) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("congress-qa/"+key.String())).String()
}

// Upsert implements VectorStore.
func (q *QdrantStore) Upsert(ctx context.Context, rec domain.EmbeddingRecord) error {
	if q.dims > 0 && len(rec.Vector) != q.dims {
		return fmt.Errorf("semantic: upsert %s: %w (got %d, want %d)", rec.Key, domain.ErrDimensionMismatch, len(rec.Vector), q.dims)
	}
	now := q.now()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	payload := make(map[string]*pb.Value, len(rec.Metadata)+5)
	for k, v := range rec.Metadata {
		payload[k] = toValue(v)
	}
	payload[payloadType] = toValue(string(rec.Type))
	payload[payloadID] = toValue(rec.ID)
	payload[payloadText] = toValue(rec.SourceText)
	payload[payloadCreatedAt] = toValue(rec.CreatedAt.Unix())
	payload[payloadUpdatedAt] = toValue(rec.UpdatedAt.Unix())

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(rec.Key)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}},
			},
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %s: %w: %w", rec.Key, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes the point for key.
func (q *QdrantStore) Delete(ctx context.Context, key domain.Key) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{
					keywordMatch(payloadType, string(key.Type)),
					integerMatch(payloadID, key.ID),
				}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete %s: %w", key, err)
	}
	return nil
}

// Count returns the number of stored points of the given type (all when empty).
func (q *QdrantStore) Count(ctx context.Context, et domain.EntityType) (int, error) {
	exact := true
	req := &pb.CountPoints{CollectionName: q.collection, Exact: &exact}
	if et != "" {
		req.Filter = &pb.Filter{Must: []*pb.Condition{keywordMatch(payloadType, string(et))}}
	}
	resp, err := q.points.Count(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("semantic: count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// SearchSimilar implements VectorStore.
func (q *QdrantStore) SearchSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]domain.Evidence, error) {
	if len(query) == 0 || isZero(query) {
		return nil, nil
	}
	if q.dims > 0 && len(query) != q.dims {
		// Every stored point has the collection size, so nothing is comparable.
		q.logger.Warn("semantic: skipping search",
			"err", domain.ErrDimensionMismatch,
			"collection_dims", q.dims,
			"query_dims", len(query),
		)
		return nil, nil
	}

	threshold := float32(opts.Threshold)
	req := &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(opts.limit()),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if opts.EntityType != "" {
		req.Filter = &pb.Filter{Must: []*pb.Condition{keywordMatch(payloadType, string(opts.EntityType))}}
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w: %w", domain.ErrStoreUnavailable, err)
	}

	hits := make([]hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		score := clamp01(float64(r.GetScore()))
		if score < opts.Threshold {
			continue
		}
		h, ok := hitFromPayload(r.GetPayload(), score)
		if !ok {
			q.logger.Warn("semantic: point without entity key", "point", r.GetId().GetUuid())
			continue
		}
		hits = append(hits, h)
	}
	return rankHits(hits, opts.limit()), nil
}

func hitFromPayload(payload map[string]*pb.Value, score float64) (hit, bool) {
	ev := domain.Evidence{
		Similarity: score,
		MatchType:  domain.MatchVector,
		Metadata:   make(map[string]any),
	}
	var updated time.Time
	for k, v := range payload {
		switch k {
		case payloadType:
			ev.Type = domain.EntityType(v.GetStringValue())
		case payloadID:
			ev.ID = v.GetIntegerValue()
		case payloadText:
			ev.Content = v.GetStringValue()
		case payloadUpdatedAt:
			updated = time.Unix(v.GetIntegerValue(), 0)
		case payloadCreatedAt:
		default:
			ev.Metadata[k] = fromValue(v)
		}
	}
	if ev.Type == "" || ev.ID == 0 {
		return hit{}, false
	}
	return hit{ev: ev, updated: updated}, true
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case time.Time:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv.Format(time.RFC3339)}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

func keywordMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func integerMatch(key string, value int64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Integer{Integer: value}},
			},
		},
	}
}
