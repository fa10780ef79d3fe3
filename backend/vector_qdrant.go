package backend

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
	"github.com/jurisoracle/vrag/resilience"
)

// QdrantBackend implements VectorBackend over a Qdrant gRPC connection.
// Every call is wrapped by a circuit breaker; a tripped breaker or a
// connection failure degrades to an error the retrieval engine treats as
// backend_unavailable (spec §4.7), never a panic.
type QdrantBackend struct {
	points     pb.PointsClient
	collection string
	host       string
	breaker    *resilience.CircuitBreaker
	logger     core.Logger
}

// NewQdrantBackend dials address (host:port, no credentials embedded) and
// wraps it with a dedicated circuit breaker named "backend.vector".
func NewQdrantBackend(address, apiKey, collection string, logger core.Logger) (*QdrantBackend, error) {
	if address == "" {
		return nil, core.NewFrameworkError("backend.NewQdrantBackend", core.KindValidation, core.ErrMissingConfiguration)
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, core.NewFrameworkError("backend.NewQdrantBackend", core.KindBackendDown, fmt.Errorf("%w: %v", core.ErrConnectionFailed, err))
	}

	breaker, err := resilience.CreateCircuitBreaker("backend.vector", resilience.ResilienceDependencies{Logger: logger})
	if err != nil {
		return nil, err
	}

	return &QdrantBackend{
		points:     pb.NewPointsClient(conn),
		collection: collection,
		host:       address,
		breaker:    breaker,
		logger:     logger,
	}, nil
}

// Search runs a k-nearest-neighbour lookup. Results are returned with
// Qdrant's native cosine/dot score in RawScore; the caller normalises.
func (b *QdrantBackend) Search(ctx context.Context, embedding []float32, topK int) ([]model.Document, error) {
	var results []model.Document

	err := b.breaker.Execute(ctx, func() error {
		resp, err := b.points.Search(ctx, &pb.SearchPoints{
			CollectionName: b.collection,
			Vector:         embedding,
			Limit:          uint64(topK),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return err
		}

		results = make([]model.Document, 0, len(resp.GetResult()))
		for _, hit := range resp.GetResult() {
			doc := model.Document{
				ID:       pointID(hit.GetId()),
				RawScore: float64(hit.GetScore()),
				Source:   model.SourceVector,
				Metadata: make(map[string]interface{}),
			}
			for k, v := range hit.GetPayload() {
				if k == "content" {
					doc.Content = v.GetStringValue()
					continue
				}
				doc.Metadata[k] = payloadValue(v)
			}
			results = append(results, doc)
		}
		return nil
	})
	if err != nil {
		return nil, core.NewFrameworkError("backend.vector.Search", core.KindBackendDown, fmt.Errorf("%w: %v", core.ErrBackendUnavailable, err))
	}
	return results, nil
}

// Health pings the collection's point count as a cheap liveness check.
func (b *QdrantBackend) Health(ctx context.Context) Status {
	if b.breaker.GetState() == "open" {
		return Status{State: HealthDown, Host: b.host, Details: "circuit breaker open"}
	}
	_, err := b.points.Count(ctx, &pb.CountPoints{CollectionName: b.collection})
	if err != nil {
		return Status{State: HealthDegraded, Host: b.host, Details: "count failed"}
	}
	return Status{State: HealthOK, Host: b.host}
}

func pointID(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadValue(v *pb.Value) interface{} {
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
