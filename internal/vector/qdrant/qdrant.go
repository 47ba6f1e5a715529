// Package qdrant implements vector.Repository on a Qdrant gRPC endpoint.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/efebarandurmaz/flowlens/internal/vector"
)

// Repository stores flow vectors in one Qdrant collection.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	service     pb.QdrantClient
	collection  string
}

// New dials host:port. The connection is established lazily.
func New(host string, port int, collection string) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return newWithConn(conn, collection), nil
}

func newWithConn(conn *grpc.ClientConn, collection string) *Repository {
	return &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		service:     pb.NewQdrantClient(conn),
		collection:  collection,
	}
}

// EnsureCollection creates a cosine-distance collection of size dim when it
// does not exist.
func (r *Repository) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dim), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", r.collection, err)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, docs []vector.Document) error {
	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		payload := make(map[string]*pb.Value, len(d.Metadata))
		for k, v := range d.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (r *Repository) Search(ctx context.Context, vec []float32, topK int) ([]vector.SearchResult, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]vector.SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		meta := make(map[string]string, len(pt.Payload))
		for k, v := range pt.Payload {
			meta[k] = v.GetStringValue()
		}
		results[i] = vector.SearchResult{
			ID:       pt.Id.GetUuid(),
			Score:    pt.Score,
			Metadata: meta,
		}
	}
	return results, nil
}

// Ping calls the server health check.
func (r *Repository) Ping(ctx context.Context) error {
	if _, err := r.service.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

var _ vector.Repository = (*Repository)(nil)
