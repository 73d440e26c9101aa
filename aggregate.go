package neopaths

import (
	"fmt"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neopaths/literal"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
)

// MaxResults is the number of accepted paths kept under any policy other than "all".
const MaxResults = 5

// DefaultEdgePrefix marks edge identifiers in identifier-only paths.
const DefaultEdgePrefix = "Edge_"

// TallyLabels are the edge labels counted per accepted regulation path.
var TallyLabels = []string{EdgeCPI, EdgePPI, EdgeTFGI, EdgeSFGI, EdgeSRGI}

// signatureSep cannot occur inside an identifier, so distinct vertex sequences
// never share a signature.
const signatureSep = "\x1f"

// Signature identifies a path by its vertex identifiers in traversal order.
func Signature(p models.Path) string {
	ids := make([]string, len(p.Vertices))
	for i, v := range p.Vertices {
		ids[i] = v.ID
	}
	return strings.Join(ids, signatureSep)
}

// EdgeSignature identifies a path by its vertex and edge identifiers, so paths
// over parallel edges between the same vertices stay distinct.
func EdgeSignature(p models.Path) string {
	ids := make([]string, 0, len(p.Vertices)+len(p.Edges))
	for i, v := range p.Vertices {
		if i > 0 {
			ids = append(ids, p.Edges[i-1].EID)
		}
		ids = append(ids, v.ID)
	}
	return strings.Join(ids, signatureSep)
}

// AcceptOptions configures an Accumulator.
type AcceptOptions struct {
	// MustVisit lists vertex identifiers every accepted path must contain.
	MustVisit []string
	// Tally attaches a per-path count of edge labels to every accepted path.
	Tally bool
	// DistinctEdges deduplicates by EdgeSignature instead of Signature.
	DistinctEdges bool
}

// Accumulator collects raw paths across one or more traversals, keeping the first
// occurrence of each signature and dropping paths that miss a must-visit vertex.
type Accumulator struct {
	tally     bool
	signature func(models.Path) string
	mustVisit map[string]struct{}
	seen      map[string]struct{}
	accepted  []models.AcceptedPath
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator(opts AcceptOptions) *Accumulator {
	must := make(map[string]struct{}, len(opts.MustVisit))
	for _, id := range opts.MustVisit {
		must[id] = struct{}{}
	}
	sig := Signature
	if opts.DistinctEdges {
		sig = EdgeSignature
	}
	return &Accumulator{
		tally:     opts.Tally,
		signature: sig,
		mustVisit: must,
		seen:      make(map[string]struct{}),
	}
}

// Add offers paths in discovery order and returns how many were accepted.
func (a *Accumulator) Add(paths []models.Path) int {
	added := 0
	for _, p := range paths {
		sig := a.signature(p)
		if _, dup := a.seen[sig]; dup {
			continue
		}
		a.seen[sig] = struct{}{}
		if !a.visitsAll(p) {
			continue
		}
		ap := models.AcceptedPath{Path: p}
		if a.tally {
			ap.Tally = tallyEdges(p)
		}
		a.accepted = append(a.accepted, ap)
		added++
	}
	return added
}

func (a *Accumulator) visitsAll(p models.Path) bool {
	if len(a.mustVisit) == 0 {
		return true
	}
	found := make(map[string]struct{}, len(a.mustVisit))
	for _, v := range p.Vertices {
		if _, ok := a.mustVisit[v.ID]; ok {
			found[v.ID] = struct{}{}
		}
	}
	return len(found) == len(a.mustVisit)
}

// Len returns the number of accepted paths so far.
func (a *Accumulator) Len() int { return len(a.accepted) }

// Accepted returns the accepted paths after applying the result-count policy:
// "all" keeps everything, anything else keeps the first MaxResults.
func (a *Accumulator) Accepted(policy string) []models.AcceptedPath {
	if policy != models.PolicyAll && len(a.accepted) > MaxResults {
		return a.accepted[:MaxResults]
	}
	return a.accepted
}

func tallyEdges(p models.Path) models.EdgeTally {
	t := make(models.EdgeTally, len(TallyLabels))
	for _, l := range TallyLabels {
		t[l] = 0
	}
	for _, e := range p.Edges {
		if _, ok := t[e.Label]; ok {
			t[e.Label]++
		}
	}
	return t
}

// Flatten builds a ResultSet from accepted paths: every vertex once by `id`, every
// edge once by `eid`, in order of first occurrence. Edge hover displays are decoded;
// edges whose display is malformed are reported instead of surfaced.
func Flatten(accepted []models.AcceptedPath) *models.ResultSet {
	rs := models.NewResultSet()
	seenNodes := make(map[string]bool)
	seenEdges := make(map[string]bool)
	var edges []models.Edge

	for _, ap := range accepted {
		for _, v := range ap.Path.Vertices {
			if v.ID != "" && !seenNodes[v.ID] {
				rs.Nodes = append(rs.Nodes, v)
				seenNodes[v.ID] = true
			}
		}
		for _, e := range ap.Path.Edges {
			if e.EID != "" && !seenEdges[e.EID] {
				edges = append(edges, e)
				seenEdges[e.EID] = true
			}
		}
	}

	decoded := surfaceEdges(rs, edges)

	rs.Paths = make([]models.AcceptedPath, len(accepted))
	for i, ap := range accepted {
		p := ap.Path
		p.Edges = make([]models.Edge, len(ap.Path.Edges))
		for j, e := range ap.Path.Edges {
			if d, ok := decoded[e.EID]; ok {
				e = d
			}
			p.Edges[j] = e
		}
		rs.Paths[i] = models.AcceptedPath{Path: p, Tally: ap.Tally}
	}
	return rs
}

// surfaceEdges decodes and appends edges to rs, returning the decoded edges by eid.
// Malformed edges are returned marked, with the raw display removed.
func surfaceEdges(rs *models.ResultSet, edges []models.Edge) map[string]models.Edge {
	decoded := make(map[string]models.Edge, len(edges))
	for _, e := range edges {
		d, err := decodeHover(e)
		if err != nil {
			rs.MalformedEdges = append(rs.MalformedEdges, models.MalformedEdge{EID: e.EID, Reason: err.Error()})
			d.Malformed = true
			decoded[e.EID] = d
			continue
		}
		rs.Edges = append(rs.Edges, d)
		decoded[e.EID] = d
	}
	return decoded
}

// decodeHover parses the string-encoded `linehoverdisplay` attribute into its
// structured form. Values that are already structured pass through.
func decodeHover(e models.Edge) (models.Edge, error) {
	raw, ok := e.Attributes[models.AttrHoverDisplay]
	if !ok {
		return e, nil
	}
	attrs := make(map[string]any, len(e.Attributes))
	for k, v := range e.Attributes {
		if k != models.AttrHoverDisplay {
			attrs[k] = v
		}
	}
	e.Attributes = attrs

	s, isString := raw.(string)
	if !isString {
		e.HoverDisplay = raw
		return e, nil
	}
	v, err := literal.Parse(s)
	if err != nil {
		return e, fmt.Errorf("decode %s: %w", models.AttrHoverDisplay, err)
	}
	e.HoverDisplay = v
	return e, nil
}

// SplitIDPaths separates the identifiers of identifier-only paths into vertex and
// edge identifiers by prefix, each deduplicated in order of first occurrence.
func SplitIDPaths(paths []models.IDPath, edgePrefix string) (nodeIDs, edgeIDs []string) {
	seen := make(map[string]bool)
	for _, p := range paths {
		for _, id := range p {
			if seen[id] {
				continue
			}
			seen[id] = true
			if strings.HasPrefix(id, edgePrefix) {
				edgeIDs = append(edgeIDs, id)
			} else {
				nodeIDs = append(nodeIDs, id)
			}
		}
	}
	return nodeIDs, edgeIDs
}

// FlattenRecords builds a ResultSet from separately fetched vertex and edge records,
// ordering them by ids and dropping duplicates.
func FlattenRecords(vertices []models.Vertex, edges []models.Edge, nodeIDs, edgeIDs []string) *models.ResultSet {
	rs := models.NewResultSet()

	byID := make(map[string]models.Vertex, len(vertices))
	for _, v := range vertices {
		if _, dup := byID[v.ID]; !dup {
			byID[v.ID] = v
		}
	}
	for _, id := range nodeIDs {
		if v, ok := byID[id]; ok {
			rs.Nodes = append(rs.Nodes, v)
		}
	}

	byEID := make(map[string]models.Edge, len(edges))
	for _, e := range edges {
		if _, dup := byEID[e.EID]; !dup {
			byEID[e.EID] = e
		}
	}
	ordered := make([]models.Edge, 0, len(edgeIDs))
	for _, id := range edgeIDs {
		if e, ok := byEID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	surfaceEdges(rs, ordered)
	return rs
}
