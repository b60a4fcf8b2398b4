package vector

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantRepository implements Repository using Qdrant over gRPC.
type QdrantRepository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// NewQdrant connects to a Qdrant instance and ensures the collection
// exists with the given vector dimensionality.
func NewQdrant(ctx context.Context, host string, port int, collection string, dimensions int) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	r := &QdrantRepository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}
	if err := r.ensureCollection(ctx, dimensions); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *QdrantRepository) ensureCollection(ctx context.Context, dimensions int) error {
	list, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant list collections: %w", err)
	}
	for _, c := range list.Collections {
		if c.Name == r.collection {
			return nil
		}
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", r.collection, err)
	}
	return nil
}

func (r *QdrantRepository) Upsert(ctx context.Context, entries []Entry) error {
	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		payload := map[string]*pb.Value{
			"content":     {Kind: &pb.Value_StringValue{StringValue: e.Content}},
			"document_id": {Kind: &pb.Value_StringValue{StringValue: e.DocumentID}},
		}
		for k, v := range e.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: e.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}}},
			Payload: payload,
		}
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	return err
}

func (r *QdrantRepository) Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		content := ""
		docID := ""
		meta := make(map[string]string)
		for k, v := range pt.Payload {
			switch k {
			case "content":
				content = v.GetStringValue()
			case "document_id":
				docID = v.GetStringValue()
			default:
				meta[k] = v.GetStringValue()
			}
		}
		results[i] = SearchResult{
			ID:         pt.Id.GetUuid(),
			DocumentID: docID,
			Score:      pt.Score,
			Content:    content,
			Metadata:   meta,
		}
	}
	return results, nil
}

func (r *QdrantRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{{
						ConditionOneOf: &pb.Condition_Field{
							Field: &pb.FieldCondition{
								Key:   "document_id",
								Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: documentID}},
							},
						},
					}},
				},
			},
		},
	})
	return err
}

func (r *QdrantRepository) Count(ctx context.Context) (int, error) {
	resp, err := r.points.Count(ctx, &pb.CountPoints{
		CollectionName: r.collection,
	})
	if err != nil {
		return 0, err
	}
	return int(resp.Result.Count), nil
}

func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}
