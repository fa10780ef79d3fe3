package backend

import (
	"context"
	"fmt"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
	"github.com/jurisoracle/vrag/resilience"
)

// ArangoBackend implements GraphBackend by traversing a "related_to" edge
// collection over administrative-entity vertices (offices, permit types,
// municipalities).
type ArangoBackend struct {
	db      arangodb.Database
	host    string
	breaker *resilience.CircuitBreaker
	logger  core.Logger
}

// NewArangoBackend opens database at url using basic auth with user/pass
// and wraps it with a dedicated circuit breaker named "backend.graph".
// Credentials arrive only as arguments, sourced from the environment by
// core.Config.
func NewArangoBackend(ctx context.Context, url, user, pass, database string, logger core.Logger) (*ArangoBackend, error) {
	if url == "" || database == "" {
		return nil, core.NewFrameworkError("backend.NewArangoBackend", core.KindValidation, core.ErrMissingConfiguration)
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{url})
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))
	if err := conn.SetAuthentication(connection.NewBasicAuth(user, pass)); err != nil {
		return nil, core.NewFrameworkError("backend.NewArangoBackend", core.KindBackendDown, fmt.Errorf("%w: %v", core.ErrConnectionFailed, err))
	}

	client := arangodb.NewClient(conn)
	db, err := client.GetDatabase(ctx, database, nil)
	if err != nil {
		return nil, core.NewFrameworkError("backend.NewArangoBackend", core.KindBackendDown, fmt.Errorf("%w: %v", core.ErrConnectionFailed, err))
	}

	breaker, err := resilience.CreateCircuitBreaker("backend.graph", resilience.ResilienceDependencies{Logger: logger})
	if err != nil {
		return nil, err
	}

	return &ArangoBackend{db: db, host: url, breaker: breaker, logger: logger}, nil
}

// graphHit is the shape of one AQL RETURN row below.
type graphHit struct {
	Key     string  `json:"key"`
	Content string  `json:"content"`
	Title   string  `json:"title"`
	Weight  float64 `json:"weight"`
}

// Search walks up to depth hops of related_to edges from entity, returning
// each reached vertex as a Document. depth <= 0 is treated as 1.
func (b *ArangoBackend) Search(ctx context.Context, entity string, depth int) ([]model.Document, error) {
	if depth <= 0 {
		depth = 1
	}

	var docs []model.Document
	err := b.breaker.Execute(ctx, func() error {
		query := `
			FOR v IN 1..@depth ANY @start GRAPH "legal_entities"
				OPTIONS { edgeCollections: ["related_to"] }
				LIMIT 30
				RETURN { key: v._key, content: v.content, title: v.title, weight: v.weight }
		`
		cursor, err := b.db.Query(ctx, query, &arangodb.QueryOptions{
			BindVars: map[string]interface{}{"start": entity, "depth": depth},
		})
		if err != nil {
			return err
		}
		defer cursor.Close()

		for cursor.HasMore() {
			var hit graphHit
			if _, err := cursor.ReadDocument(ctx, &hit); err != nil {
				return err
			}
			docs = append(docs, model.Document{
				ID:       hit.Key,
				Content:  hit.Content,
				RawScore: hit.Weight,
				Source:   model.SourceGraph,
				Metadata: map[string]interface{}{"title": hit.Title},
			})
		}
		return nil
	})
	if err != nil {
		return nil, core.NewFrameworkError("backend.graph.Search", core.KindBackendDown, fmt.Errorf("%w: %v", core.ErrBackendUnavailable, err))
	}
	return docs, nil
}

// Health issues a trivial AQL ping.
func (b *ArangoBackend) Health(ctx context.Context) Status {
	if b.breaker.GetState() == "open" {
		return Status{State: HealthDown, Host: b.host, Details: "circuit breaker open"}
	}
	cursor, err := b.db.Query(ctx, "RETURN 1", nil)
	if err != nil {
		return Status{State: HealthDegraded, Host: b.host, Details: "ping failed"}
	}
	cursor.Close()
	return Status{State: HealthOK, Host: b.host}
}
