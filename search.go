package neopaths

import (
	"context"

	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// BothDirectionFanOut caps the extensions kept for each path, after simple-path
// pruning, when a simple search follows edges in both directions for more than two
// hops.
const BothDirectionFanOut = 10

// wideRegulationHop is the first hop count at which metabolite regulation switches
// to a global visited set.
const wideRegulationHop = 5

// Regulation finds regulation paths from req.Source to req.Target, trying hop counts
// 1 through req.Step in order. Each hop count is one retried unit of work.
//
// Parameters:
//   - ctx: The context for the whole search, retries included.
//   - req: The search request. It is validated before any query runs.
//
// Returns:
//
//	The flattened result, or an error wrapping ErrInvalidRequest or a *GraphError.
func (e *Engine) Regulation(ctx context.Context, req models.RegulationRequest) (rs *models.ResultSet, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, done := e.observe(ctx, "regulation",
		attribute.String("source", req.Source),
		attribute.String("target", req.Target),
		attribute.Int("step", int(req.Step)),
		attribute.String("type", string(req.Type)),
		attribute.String("number", req.Number))
	defer func() { done(err) }()

	acc := NewAccumulator(AcceptOptions{MustVisit: req.Nodes, Tally: true})
	for hop := 1; hop <= int(req.Step); hop++ {
		var paths []models.Path
		err = e.run(ctx, "regulation", func(ctx context.Context, r DBRunner) error {
			var err error
			paths, err = regulationPaths(ctx, r, req, hop)
			return err
		})
		if err != nil {
			return nil, err
		}
		added := acc.Add(paths)
		e.logger.Debug("regulation hop",
			zap.Int("hop", hop),
			zap.Int("found", len(paths)),
			zap.Int("accepted", added))
		if req.Number == models.PolicyShortest && added > 0 {
			break
		}
	}

	rs = Flatten(acc.Accepted(req.Number))
	rs.HighlightNodes = append(rs.HighlightNodes, req.Source, req.Target)
	e.reportMalformed(rs)
	return rs, nil
}

// regulationPaths runs the traversal for exactly one hop count.
//
// TODO: the 2-4 hop metabolite branch prunes per path while the 5+ branch uses a
// global visited set. Unify on one form once result parity has been checked
// against the production graph.
func regulationPaths(ctx context.Context, r DBRunner, req models.RegulationRequest, hop int) ([]models.Path, error) {
	seeds, err := fetchVertices(ctx, r, []string{req.Source})
	if err != nil || len(seeds) == 0 {
		return nil, err
	}
	start := []models.Path{{Vertices: seeds[:1]}}
	cpi := expansion{types: []string{EdgeCPI}, dir: models.DirectionOut}
	interaction := expansion{types: InteractionEdgeTypes, dir: models.DirectionOut}

	if req.Type == models.SearchGene {
		interaction.visited = map[string]bool{req.Source: true}
		return untilTarget(ctx, r, start, req.Target, hop, interaction)
	}

	switch {
	case hop == 1:
		next, err := expand(ctx, r, start, cpi)
		if err != nil {
			return nil, err
		}
		hits, _ := splitTail(next, req.Target)
		return hits, nil

	case hop < wideRegulationHop:
		frontier, err := expand(ctx, r, start, cpi)
		if err != nil {
			return nil, err
		}
		_, frontier = splitTail(frontier, req.Target)
		var hits []models.Path
		for loop := 1; loop < hop && len(frontier) > 0; loop++ {
			if frontier, err = expand(ctx, r, frontier, interaction); err != nil {
				return nil, err
			}
			found, rest := splitTail(frontier, req.Target)
			hits = append(hits, found...)
			frontier = rest
		}
		return hits, nil

	default:
		visited := map[string]bool{req.Source: true}
		cpi.visited = visited
		interaction.visited = visited
		frontier, err := expand(ctx, r, start, cpi)
		if err != nil {
			return nil, err
		}
		return untilTarget(ctx, r, frontier, req.Target, hop-1, interaction)
	}
}

// Deep finds the paths walking req.IDs in order. When req.Edges is non-empty each
// edge must carry one of those types; if that yields nothing the walk is repeated
// once without the constraint.
func (e *Engine) Deep(ctx context.Context, req models.DeepRequest) (rs *models.ResultSet, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, done := e.observe(ctx, "deep",
		attribute.Int("chain_length", len(req.IDs)),
		attribute.StringSlice("edges", req.Edges))
	defer func() { done(err) }()

	var paths []models.Path
	err = e.run(ctx, "deep", func(ctx context.Context, r DBRunner) error {
		query, params := chainQuery(req.IDs, req.Edges)
		var err error
		if paths, err = queryPaths(ctx, r, query, params); err != nil {
			return err
		}
		if len(paths) > 0 || len(req.Edges) == 0 {
			return nil
		}
		e.logger.Info("no typed chain found, retrying without edge types",
			zap.Strings("ids", req.IDs),
			zap.Strings("edges", req.Edges))
		query, params = chainQuery(req.IDs, nil)
		paths, err = queryPaths(ctx, r, query, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	acc := NewAccumulator(AcceptOptions{DistinctEdges: true})
	acc.Add(paths)
	rs = Flatten(acc.Accepted(models.PolicyAll))
	rs.HighlightNodes = append(rs.HighlightNodes, req.IDs[0], req.IDs[len(req.IDs)-1])
	e.reportMalformed(rs)
	return rs, nil
}

// Simple returns the neighbourhood reached from req.IDs in up to req.Times hops.
// Traversal collects identifiers only; attributes are fetched afterwards as a
// separate retried unit.
func (e *Engine) Simple(ctx context.Context, req models.SimpleRequest) (rs *models.ResultSet, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, done := e.observe(ctx, "simple",
		attribute.Int("seeds", len(req.IDs)),
		attribute.String("direction", string(req.Direction)),
		attribute.Int("times", int(req.Times)))
	defer func() { done(err) }()

	x := expansion{types: req.EdgeTypes, dir: req.Direction, idsOnly: true}
	if req.Direction == models.DirectionBoth && req.Times > 2 {
		x.limit = BothDirectionFanOut
	}

	var idPaths []models.IDPath
	err = e.run(ctx, "simple", func(ctx context.Context, r DBRunner) error {
		idPaths = nil
		frontier := seedPaths(req.IDs)
		for i := 0; i < int(req.Times) && len(frontier) > 0; i++ {
			var err error
			if frontier, err = expand(ctx, r, frontier, x); err != nil {
				return err
			}
			for _, p := range frontier {
				idPaths = append(idPaths, idPathOf(p))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(idPaths) == 0 {
		return models.NewResultSet(), nil
	}

	nodeIDs, edgeIDs := SplitIDPaths(idPaths, e.edgePrefix)
	var (
		vertices []models.Vertex
		edges    []models.Edge
	)
	err = e.run(ctx, "attributes", func(ctx context.Context, r DBRunner) error {
		var err error
		if vertices, err = fetchVertices(ctx, r, nodeIDs); err != nil {
			return err
		}
		edges, err = fetchEdges(ctx, r, edgeIDs)
		return err
	})
	if err != nil {
		return nil, err
	}

	rs = FlattenRecords(vertices, edges, nodeIDs, edgeIDs)
	rs.HighlightNodes = append(rs.HighlightNodes, req.IDs...)
	e.reportMalformed(rs)
	return rs, nil
}

func seedPaths(ids []string) []models.Path {
	seen := make(map[string]bool, len(ids))
	out := make([]models.Path, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, models.Path{Vertices: []models.Vertex{{ID: id}}})
	}
	return out
}

// idPathOf lists vertex and edge identifiers alternately.
func idPathOf(p models.Path) models.IDPath {
	out := make(models.IDPath, 0, len(p.Vertices)+len(p.Edges))
	for i, v := range p.Vertices {
		if i > 0 {
			out = append(out, p.Edges[i-1].EID)
		}
		out = append(out, v.ID)
	}
	return out
}

func (e *Engine) reportMalformed(rs *models.ResultSet) {
	if len(rs.MalformedEdges) == 0 {
		return
	}
	e.metrics.malformed(len(rs.MalformedEdges))
	for _, m := range rs.MalformedEdges {
		e.logger.Warn("dropping edge with malformed attribute",
			zap.String("eid", m.EID),
			zap.String("reason", m.Reason))
	}
}
