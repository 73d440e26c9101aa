package neopaths

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
)

// candidate is one step out of a frontier vertex.
type candidate struct {
	from string
	edge models.Edge
	to   models.Vertex
}

// expansion describes one round of the bounded-expansion primitive.
type expansion struct {
	types []string
	dir   models.Direction

	// limit caps the extensions kept for each path after pruning; 0 means no cap.
	limit int

	// visited, when non-nil, is shared across rounds: a vertex reached in one round
	// is never entered again in a later round. Without it only simple-path
	// pruning applies.
	visited map[string]bool

	// idsOnly fetches identifiers instead of full records.
	idsOnly bool
}

// expand extends every path by one hop. Extensions that revisit a vertex already on
// the path are pruned, as are vertices in x.visited; x.limit then applies to what
// survives. The result order is the order of paths, then the query's candidate order.
func expand(ctx context.Context, r DBRunner, paths []models.Path, x expansion) ([]models.Path, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	cands, err := queryCandidates(ctx, r, tails(paths), x)
	if err != nil {
		return nil, err
	}

	var next []models.Path
	for _, p := range paths {
		kept := 0
		for _, h := range cands[p.Tail().ID] {
			if x.limit > 0 && kept == x.limit {
				break
			}
			if p.Contains(h.to.ID) {
				continue
			}
			if x.visited != nil && x.visited[h.to.ID] {
				continue
			}
			next = append(next, p.Extend(h.edge, h.to))
			kept++
		}
	}
	if x.visited != nil {
		for _, p := range next {
			x.visited[p.Tail().ID] = true
		}
	}
	return next, nil
}

func tails(paths []models.Path) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		id := p.Tail().ID
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func queryCandidates(ctx context.Context, r DBRunner, frontier []string, x expansion) (map[string][]candidate, error) {
	query, params := expandQuery(frontier, x.types, x.dir, x.idsOnly)
	res, err := r.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]candidate, len(frontier))
	for _, rec := range res.Records {
		h, err := decodeCandidate(rec, x.idsOnly)
		if err != nil {
			return nil, err
		}
		out[h.from] = append(out[h.from], h)
	}
	return out, nil
}

func decodeCandidate(rec *neo4j.Record, idsOnly bool) (candidate, error) {
	from, err := recordID(rec, "vid")
	if err != nil {
		return candidate{}, err
	}
	if idsOnly {
		eid, err := recordID(rec, "eid")
		if err != nil {
			return candidate{}, err
		}
		nid, err := recordID(rec, "nid")
		if err != nil {
			return candidate{}, err
		}
		return candidate{from: from, edge: models.Edge{EID: eid}, to: models.Vertex{ID: nid}}, nil
	}

	rel, err := recordValue[neo4j.Relationship](rec, "e")
	if err != nil {
		return candidate{}, err
	}
	node, err := recordValue[neo4j.Node](rec, "n")
	if err != nil {
		return candidate{}, err
	}
	src, err := recordID(rec, "src")
	if err != nil {
		return candidate{}, err
	}
	dst, err := recordID(rec, "dst")
	if err != nil {
		return candidate{}, err
	}
	return candidate{from: from, edge: toEdge(rel, src, dst), to: toVertex(node)}, nil
}

// splitTail separates paths ending at target from the rest.
func splitTail(paths []models.Path, target string) (hits, rest []models.Path) {
	for _, p := range paths {
		if p.Tail().ID == target {
			hits = append(hits, p)
		} else {
			rest = append(rest, p)
		}
	}
	return hits, rest
}

// untilTarget expands for at most loops rounds and stops after the first round in
// which some path reaches target; those paths are returned.
func untilTarget(ctx context.Context, r DBRunner, frontier []models.Path, target string, loops int, x expansion) ([]models.Path, error) {
	for loop := 1; loop <= loops && len(frontier) > 0; loop++ {
		var err error
		if frontier, err = expand(ctx, r, frontier, x); err != nil {
			return nil, err
		}
		hits, rest := splitTail(frontier, target)
		if len(hits) > 0 {
			return hits, nil
		}
		frontier = rest
	}
	return nil, nil
}

func fetchVertices(ctx context.Context, r DBRunner, ids []string) ([]models.Vertex, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := r.Run(ctx, verticesQuery, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	out := make([]models.Vertex, 0, len(res.Records))
	for _, rec := range res.Records {
		node, err := recordValue[neo4j.Node](rec, "v")
		if err != nil {
			return nil, err
		}
		out = append(out, toVertex(node))
	}
	return out, nil
}

func fetchEdges(ctx context.Context, r DBRunner, eids []string) ([]models.Edge, error) {
	if len(eids) == 0 {
		return nil, nil
	}
	res, err := r.Run(ctx, edgesQuery, map[string]any{"eids": eids})
	if err != nil {
		return nil, err
	}
	out := make([]models.Edge, 0, len(res.Records))
	for _, rec := range res.Records {
		rel, err := recordValue[neo4j.Relationship](rec, "e")
		if err != nil {
			return nil, err
		}
		src, err := recordID(rec, "src")
		if err != nil {
			return nil, err
		}
		dst, err := recordID(rec, "dst")
		if err != nil {
			return nil, err
		}
		out = append(out, toEdge(rel, src, dst))
	}
	return out, nil
}

func queryPaths(ctx context.Context, r DBRunner, query string, params map[string]any) ([]models.Path, error) {
	res, err := r.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	out := make([]models.Path, 0, len(res.Records))
	for _, rec := range res.Records {
		p, err := recordValue[neo4j.Path](rec, "p")
		if err != nil {
			return nil, err
		}
		out = append(out, toPath(p))
	}
	return out, nil
}
