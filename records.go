package neopaths

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
)

// propString renders an identifier property. Identifiers are opaque: strings pass
// through, integers are formatted in base 10.
func propString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toVertex(n neo4j.Node) models.Vertex {
	label := propString(n.Props, models.AttrLabel)
	if label == "" && len(n.Labels) > 0 {
		label = n.Labels[0]
	}
	return models.Vertex{
		ID:         propString(n.Props, models.AttrID),
		Label:      label,
		Attributes: models.Project(n.Props),
	}
}

// toEdge converts a relationship. src and dst are the `id` properties of its start
// and end nodes; when empty, the edge's own source/target properties are used.
func toEdge(r neo4j.Relationship, src, dst string) models.Edge {
	if src == "" {
		src = propString(r.Props, models.AttrSource)
	}
	if dst == "" {
		dst = propString(r.Props, models.AttrTarget)
	}
	return models.Edge{
		EID:        propString(r.Props, models.AttrEID),
		Label:      r.Type,
		Source:     src,
		Target:     dst,
		Attributes: models.Project(r.Props),
	}
}

func toPath(p neo4j.Path) models.Path {
	ids := make(map[string]string, len(p.Nodes))
	out := models.Path{
		Vertices: make([]models.Vertex, 0, len(p.Nodes)),
		Edges:    make([]models.Edge, 0, len(p.Relationships)),
	}
	for _, n := range p.Nodes {
		v := toVertex(n)
		ids[n.ElementId] = v.ID
		out.Vertices = append(out.Vertices, v)
	}
	for _, r := range p.Relationships {
		out.Edges = append(out.Edges, toEdge(r, ids[r.StartElementId], ids[r.EndElementId]))
	}
	return out
}

func recordValue[T any](rec *neo4j.Record, key string) (T, error) {
	var zero T
	raw, ok := rec.Get(key)
	if !ok {
		return zero, fmt.Errorf("could not find return value '%s' in query result", key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("return value '%s' has type %T, want %T", key, raw, zero)
	}
	return v, nil
}

// recordID reads an identifier column that may be a string or an integer.
func recordID(rec *neo4j.Record, key string) (string, error) {
	raw, ok := rec.Get(key)
	if !ok {
		return "", fmt.Errorf("could not find return value '%s' in query result", key)
	}
	if raw == nil {
		return "", nil
	}
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return fmt.Sprint(raw), nil
}
