package neopaths

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"go.opentelemetry.io/otel/attribute"
)

// Vertex retrieves a single vertex by its `id` property.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - id: The identifier of the vertex to find.
//
// Returns:
//
//	The vertex, ErrNotFound if no vertex has that id, or another error if the
//	query or mapping fails.
func (e *Engine) Vertex(ctx context.Context, id string) (v *models.Vertex, err error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	ctx, done := e.observe(ctx, "lookup", attribute.String("id", id))
	defer func() { done(err) }()

	// 1. Build the query using gocypher.
	props := map[string]interface{}{models.AttrID: id}
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("v", "").WithProperties(props)).
		Return("v").
		Build()
	if err != nil {
		return nil, fmt.Errorf("build lookup query: %w", err)
	}

	// 2. Execute it against the live session.
	var records []*neo4j.Record
	err = e.run(ctx, "lookup", func(ctx context.Context, r DBRunner) error {
		res, err := r.Run(ctx, query, params)
		if err != nil {
			return err
		}
		records = res.Records
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 3. Process the result records.
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	if len(records) > 1 {
		// Identifiers are unique in a healthy graph.
		return nil, fmt.Errorf("expected 1 vertex with id %q but found %d", id, len(records))
	}
	node, err := recordValue[neo4j.Node](records[0], "v")
	if err != nil {
		return nil, err
	}
	vertex := toVertex(node)
	return &vertex, nil
}
