// Package models contains the graph entities and data transfer objects returned by
// neopaths searches. The structs are designed to serialize into the flat node/edge
// maps consumed by graph visualization frontends (e.g. Cytoscape.js, ECharts).
package models

import (
	"encoding/json"
)

// Attribute keys with a fixed meaning in the graph.
const (
	// AttrID is the property holding a vertex's identifier.
	AttrID = "id"
	// AttrEID is the property holding an edge's identifier.
	AttrEID = "eid"
	// AttrLabel is the property holding a vertex's or edge's label.
	AttrLabel = "label"
	// AttrSource and AttrTarget hold an edge's endpoint vertex identifiers.
	AttrSource = "source"
	AttrTarget = "target"
	// AttrHoverDisplay holds a string-encoded literal shown when hovering an edge.
	AttrHoverDisplay = "linehoverdisplay"
)

// ProjectedAttributes is the attribute vocabulary surfaced to clients. Properties
// outside this list are dropped when records are decoded.
var ProjectedAttributes = []string{
	"id", "Gene_Name", "Swiss_Prot", "Protein", "Function", "Description", "name",
	"bigg.metabolite", "biocyc", "kegg.compound", "label", "source", "target",
	"attribute", "eid", "linehoverdisplay", "equation",
}

var projected = func() map[string]bool {
	m := make(map[string]bool, len(ProjectedAttributes))
	for _, k := range ProjectedAttributes {
		m[k] = true
	}
	return m
}()

// Project returns a copy of props restricted to ProjectedAttributes.
func Project(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if projected[k] {
			out[k] = v
		}
	}
	return out
}

// Vertex is a node of the property graph. Attributes are sparse: not every vertex
// carries every key.
type Vertex struct {
	// ID is the value of the vertex's `id` property.
	ID string

	// Label is the vertex label (e.g. "Gene", "Metabolite").
	Label string

	// Attributes holds the projected properties of the vertex.
	Attributes map[string]any
}

// MarshalJSON flattens the vertex into a single attribute map keyed by `id`.
func (v Vertex) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Attributes)+2)
	for k, val := range v.Attributes {
		out[k] = val
	}
	out[AttrID] = v.ID
	if v.Label != "" {
		out[AttrLabel] = v.Label
	}
	return json.Marshal(out)
}

// Edge is a relationship of the property graph. Its identifier space (`eid`) is
// disjoint from the vertex identifier space.
type Edge struct {
	// EID is the value of the edge's `eid` property.
	EID string

	// Label is the relationship type, one of the interaction categories (e.g. "PPI").
	Label string

	// Source and Target are the identifiers of the edge's endpoint vertices.
	Source string
	Target string

	// Attributes holds the projected properties of the edge. The raw
	// `linehoverdisplay` string stays here until the aggregator decodes it.
	Attributes map[string]any

	// HoverDisplay is the decoded `linehoverdisplay` value. It is nil until the
	// edge has been surfaced in a ResultSet.
	HoverDisplay any

	// Malformed marks an edge whose `linehoverdisplay` failed to decode. Such an
	// edge is listed in ResultSet.MalformedEdges instead of ResultSet.Edges.
	Malformed bool
}

// MarshalJSON flattens the edge into a single attribute map keyed by `eid`.
func (e Edge) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Attributes)+5)
	for k, val := range e.Attributes {
		out[k] = val
	}
	out[AttrEID] = e.EID
	out[AttrLabel] = e.Label
	out[AttrSource] = e.Source
	out[AttrTarget] = e.Target
	if e.HoverDisplay != nil {
		out[AttrHoverDisplay] = e.HoverDisplay
	}
	if e.Malformed {
		out["malformed"] = true
	}
	return json.Marshal(out)
}

// Path is one traversal result: Vertices[i] and Vertices[i+1] are joined by Edges[i].
type Path struct {
	Vertices []Vertex
	Edges    []Edge
}

// Len returns the number of hops in the path.
func (p Path) Len() int { return len(p.Edges) }

// Tail returns the last vertex of the path.
func (p Path) Tail() Vertex { return p.Vertices[len(p.Vertices)-1] }

// Contains reports whether the vertex id appears anywhere on the path.
func (p Path) Contains(id string) bool {
	for _, v := range p.Vertices {
		if v.ID == id {
			return true
		}
	}
	return false
}

// Extend returns a new path with e and v appended. The receiver is not modified.
func (p Path) Extend(e Edge, v Vertex) Path {
	vs := make([]Vertex, len(p.Vertices), len(p.Vertices)+1)
	copy(vs, p.Vertices)
	es := make([]Edge, len(p.Edges), len(p.Edges)+1)
	copy(es, p.Edges)
	return Path{Vertices: append(vs, v), Edges: append(es, e)}
}

// IDPath is the identifier-only shape of a path: vertex and edge identifiers
// alternate, starting and ending with a vertex.
type IDPath []string

// EdgeTally counts the edge labels encountered along one path.
type EdgeTally map[string]int

// AcceptedPath is a path that passed deduplication and filtering. When Tally is
// set it is serialized as a trailing element after the path's records.
type AcceptedPath struct {
	Path  Path
	Tally EdgeTally
}

// MarshalJSON renders the path as an alternating list of vertex and edge records,
// followed by the tally when present.
func (a AcceptedPath) MarshalJSON() ([]byte, error) {
	elems := make([]any, 0, len(a.Path.Vertices)+len(a.Path.Edges)+1)
	for i, v := range a.Path.Vertices {
		elems = append(elems, v)
		if i < len(a.Path.Edges) {
			elems = append(elems, a.Path.Edges[i])
		}
	}
	if a.Tally != nil {
		elems = append(elems, a.Tally)
	}
	return json.Marshal(elems)
}

// MalformedEdge reports an edge that could not be surfaced because one of its
// string-encoded attributes failed to decode.
type MalformedEdge struct {
	EID    string `json:"eid"`
	Reason string `json:"reason"`
}

// ResultSet is the client-consumable outcome of a search.
type ResultSet struct {
	// Paths holds the accepted paths, in discovery order. Simple searches leave it empty.
	Paths []AcceptedPath `json:"data,omitempty"`

	// Nodes contains every vertex of the accepted paths exactly once.
	Nodes []Vertex `json:"nodes"`

	// Edges contains every well-formed edge of the accepted paths exactly once.
	Edges []Edge `json:"edges"`

	// HighlightNodes are the endpoint identifiers the client should emphasize.
	HighlightNodes []string `json:"highlight_nodes"`

	// HighlightEdges are the edge identifiers the client should emphasize.
	HighlightEdges []string `json:"highlight_edges"`

	// MalformedEdges lists edges dropped because their attributes failed to decode.
	MalformedEdges []MalformedEdge `json:"malformed_edges,omitempty"`
}

// NewResultSet returns an empty ResultSet whose collections serialize as [] rather than null.
func NewResultSet() *ResultSet {
	return &ResultSet{
		Nodes:          make([]Vertex, 0),
		Edges:          make([]Edge, 0),
		HighlightNodes: make([]string, 0),
		HighlightEdges: make([]string, 0),
	}
}
