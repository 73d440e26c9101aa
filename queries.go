package neopaths

import (
	"fmt"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
)

// Edge types of the regulation network.
const (
	EdgeCPI  = "CPI"  // compound-protein interaction
	EdgePPI  = "PPI"  // protein-protein interaction
	EdgeTFGI = "TFGI" // transcription factor-gene interaction
	EdgeSFGI = "SFGI" // sigma factor-gene interaction
	EdgeSRGI = "sRGI" // small RNA-gene interaction
)

// InteractionEdgeTypes are the edge types followed past the first hop of a
// regulation search.
var InteractionEdgeTypes = []string{EdgeTFGI, EdgeSFGI, EdgeSRGI, EdgePPI}

// hopPattern returns the MATCH pattern for one hop from v to n.
func hopPattern(dir models.Direction) string {
	switch dir {
	case models.DirectionIn:
		return "(v {id: vid})<-[e]-(n)"
	case models.DirectionBoth:
		return "(v {id: vid})-[e]-(n)"
	default:
		return "(v {id: vid})-[e]->(n)"
	}
}

// expandQuery fetches every edge leaving the frontier vertices in one direction,
// optionally restricted to a set of edge types. Results are ordered so that
// repeated runs against an unchanged graph see candidates in the same order.
func expandQuery(frontier []string, types []string, dir models.Direction, idsOnly bool) (string, map[string]any) {
	var b strings.Builder
	params := map[string]any{"frontier": frontier}

	b.WriteString("UNWIND $frontier AS vid\n")
	b.WriteString("MATCH " + hopPattern(dir) + "\n")
	if len(types) > 0 {
		b.WriteString("WHERE type(e) IN $types\n")
		params["types"] = types
	}
	if idsOnly {
		b.WriteString("RETURN vid, e.eid AS eid, n.id AS nid\n")
	} else {
		b.WriteString("RETURN vid, e, n, startNode(e).id AS src, endNode(e).id AS dst\n")
	}
	b.WriteString("ORDER BY vid, e.eid, n.id")
	return b.String(), params
}

// chainQuery walks the vertex chain ids with one undirected edge between each
// consecutive pair. When types is non-empty every edge must have one of those types.
func chainQuery(ids []string, types []string) (string, map[string]any) {
	params := make(map[string]any, len(ids)+1)
	var pattern strings.Builder
	var where []string

	for i, id := range ids {
		key := fmt.Sprintf("id%d", i)
		params[key] = id
		if i > 0 {
			fmt.Fprintf(&pattern, "-[e%d]-", i-1)
			if len(types) > 0 {
				where = append(where, fmt.Sprintf("type(e%d) IN $types", i-1))
			}
		}
		fmt.Fprintf(&pattern, "(v%d {id: $%s})", i, key)
	}

	query := "MATCH p = " + pattern.String() + "\n"
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + "\n"
		params["types"] = types
	}
	query += "RETURN p"
	return query, params
}

const verticesQuery = "MATCH (v) WHERE v.id IN $ids RETURN v"

const edgesQuery = "MATCH (a)-[e]->(b) WHERE e.eid IN $eids RETURN e, a.id AS src, b.id AS dst"

const pingQuery = "RETURN 1 AS ok"
