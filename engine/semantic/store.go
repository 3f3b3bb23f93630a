// Package semantic owns all Qdrant operations for chunk vectors: collection
// management, upserts from the ingestion pipeline, and filtered similarity
// queries for the search service.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
	"github.com/swasthyasetu/corpus-engine/pkg/fn"
)

// pointsAPI is the subset of the Qdrant points client the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the subset of the Qdrant collections client the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients creates a VectorStore over existing clients. Used in tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores chunk records. Called by the ingestion pipeline.
func (v *VectorStore) Upsert(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payloadToQdrant(r.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByDocumentID removes all chunk vectors owned by a document. Used by
// the compensating-delete path and document deletion.
func (v *VectorStore) DeleteByDocumentID(ctx context.Context, docID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("document_id", docID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by document_id %s: %w", docID, err)
	}
	return nil
}

// Query performs similarity search over chunk vectors. Only hits scoring at
// least threshold are returned, ordered by descending similarity.
func (v *VectorStore) Query(ctx context.Context, embedding []float32, filters domain.SearchFilters, limit int, threshold float64) ([]domain.SearchResult, error) {
	th := float32(threshold)
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		ScoreThreshold: &th,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	if f := filterConditions(filters); len(f) > 0 {
		req.Filter = &pb.Filter{Must: f}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := fn.Map(resp.GetResult(), func(r *pb.ScoredPoint) domain.SearchResult {
		return Hit{
			ID:      r.GetId().GetUuid(),
			Score:   float64(r.GetScore()),
			Payload: payloadFromQdrant(r.GetPayload()),
		}.toSearchResult()
	})
	return results, nil
}

// filterConditions maps search filters onto Qdrant field-match conditions
// with AND semantics. Unset fields contribute no condition.
func filterConditions(f domain.SearchFilters) []*pb.Condition {
	var must []*pb.Condition
	if f.DocType != "" {
		must = append(must, fieldMatch("doc_type", string(f.DocType)))
	}
	if f.Category != "" {
		must = append(must, fieldMatch("category", f.Category))
	}
	if f.Language != "" {
		must = append(must, fieldMatch("language", string(f.Language)))
	}
	return must
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func payloadToQdrant(p ChunkPayload) map[string]*pb.Value {
	out := map[string]*pb.Value{
		"content":        strValue(p.Content),
		"document_id":    strValue(p.DocumentID),
		"chunk_index":    intValue(int64(p.ChunkIndex)),
		"token_estimate": intValue(int64(p.TokenEstimate)),
		"title":          strValue(p.Title),
		"doc_type":       strValue(string(p.DocType)),
		"language":       strValue(string(p.Language)),
	}
	if p.Category != "" {
		out["category"] = strValue(p.Category)
	}
	if p.SourceURL != "" {
		out["source_url"] = strValue(p.SourceURL)
	}
	return out
}

func payloadFromQdrant(m map[string]*pb.Value) ChunkPayload {
	return ChunkPayload{
		Content:       m["content"].GetStringValue(),
		DocumentID:    m["document_id"].GetStringValue(),
		ChunkIndex:    int(m["chunk_index"].GetIntegerValue()),
		TokenEstimate: int(m["token_estimate"].GetIntegerValue()),
		Title:         m["title"].GetStringValue(),
		DocType:       domain.DocType(m["doc_type"].GetStringValue()),
		Category:      m["category"].GetStringValue(),
		Language:      domain.Language(m["language"].GetStringValue()),
		SourceURL:     m["source_url"].GetStringValue(),
	}
}

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
}
