package neopaths

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/require"
)

// fakeGraph is an in-memory DBRunner that answers the queries this package issues.
type fakeGraph struct {
	mu       sync.Mutex
	order    []string
	nodes    map[string]neo4j.Node
	edges    []neo4j.Relationship
	failures []error
	failOn   map[string]error
	calls    []fakeCall
	dials    int
	closes   int
}

type fakeCall struct {
	query  string
	params map[string]any
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: make(map[string]neo4j.Node)}
}

func (g *fakeGraph) node(id, label string, props map[string]any) *fakeGraph {
	p := map[string]any{"id": id}
	for k, v := range props {
		p[k] = v
	}
	g.order = append(g.order, id)
	g.nodes[id] = neo4j.Node{ElementId: "n:" + id, Labels: []string{label}, Props: p}
	return g
}

func (g *fakeGraph) edge(eid, label, src, dst string, props map[string]any) *fakeGraph {
	p := map[string]any{"eid": eid}
	for k, v := range props {
		p[k] = v
	}
	g.edges = append(g.edges, neo4j.Relationship{
		ElementId:      "r:" + eid,
		StartElementId: "n:" + src,
		EndElementId:   "n:" + dst,
		Type:           label,
		Props:          p,
	})
	return g
}

// failNext makes the next len(errs) calls to Run fail in order.
func (g *fakeGraph) failNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, errs...)
}

// failWhen makes the next call whose query contains substr fail with err.
func (g *fakeGraph) failWhen(substr string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOn == nil {
		g.failOn = make(map[string]error)
	}
	g.failOn[substr] = err
}

func (g *fakeGraph) dial(context.Context) (DBRunner, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dials++
	return g, nil
}

func (g *fakeGraph) Close(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes++
	return nil
}

// callsMatching returns the recorded calls whose query contains s.
func (g *fakeGraph) callsMatching(s string) []fakeCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []fakeCall
	for _, c := range g.calls {
		if strings.Contains(c.query, s) {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGraph) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGraph) Run(_ context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.failures) > 0 {
		err := g.failures[0]
		g.failures = g.failures[1:]
		return nil, err
	}
	for substr, err := range g.failOn {
		if strings.Contains(query, substr) {
			delete(g.failOn, substr)
			return nil, err
		}
	}
	g.calls = append(g.calls, fakeCall{query: query, params: params})

	switch {
	case strings.Contains(query, "UNWIND $frontier"):
		return g.expand(query, params), nil
	case strings.HasPrefix(query, "MATCH p ="):
		return g.chain(params), nil
	case strings.Contains(query, "WHERE v.id IN $ids"):
		return g.vertices(params["ids"].([]string)), nil
	case strings.Contains(query, "WHERE e.eid IN $eids"):
		return g.edgesByID(params["eids"].([]string)), nil
	default:
		return g.lookup(query, params), nil
	}
}

func (g *fakeGraph) idOf(elementID string) string {
	return strings.TrimPrefix(elementID, "n:")
}

func hasType(types []string, t string) bool {
	if len(types) == 0 {
		return true
	}
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (g *fakeGraph) expand(query string, params map[string]any) *neo4j.EagerResult {
	frontier := append([]string(nil), params["frontier"].([]string)...)
	sort.Strings(frontier)
	types, _ := params["types"].([]string)
	idsOnly := strings.Contains(query, "AS nid")
	out := strings.Contains(query, ")-[e]->(")
	in := strings.Contains(query, ")<-[e]-(")
	both := strings.Contains(query, ")-[e]-(")

	type row struct {
		rel  neo4j.Relationship
		next string
	}
	res := &neo4j.EagerResult{Keys: []string{"vid", "e", "n", "src", "dst"}}
	if idsOnly {
		res.Keys = []string{"vid", "eid", "nid"}
	}
	for _, vid := range frontier {
		var rows []row
		for _, r := range g.edges {
			if !hasType(types, r.Type) {
				continue
			}
			src, dst := g.idOf(r.StartElementId), g.idOf(r.EndElementId)
			switch {
			case (out || both) && src == vid:
				rows = append(rows, row{r, dst})
			case (in || both) && dst == vid:
				rows = append(rows, row{r, src})
			}
		}
		sort.SliceStable(rows, func(i, j int) bool {
			ei, ej := rows[i].rel.Props["eid"].(string), rows[j].rel.Props["eid"].(string)
			if ei != ej {
				return ei < ej
			}
			return rows[i].next < rows[j].next
		})
		for _, rw := range rows {
			rec := &neo4j.Record{Keys: res.Keys}
			if idsOnly {
				rec.Values = []any{vid, rw.rel.Props["eid"], rw.next}
			} else {
				rec.Values = []any{vid, rw.rel, g.nodes[rw.next],
					g.idOf(rw.rel.StartElementId), g.idOf(rw.rel.EndElementId)}
			}
			res.Records = append(res.Records, rec)
		}
	}
	return res
}

func (g *fakeGraph) chain(params map[string]any) *neo4j.EagerResult {
	var ids []string
	for i := 0; ; i++ {
		id, ok := params[fmt.Sprintf("id%d", i)].(string)
		if !ok {
			break
		}
		ids = append(ids, id)
	}
	types, _ := params["types"].([]string)
	res := &neo4j.EagerResult{Keys: []string{"p"}}

	first, ok := g.nodes[ids[0]]
	if !ok {
		return res
	}
	partial := []neo4j.Path{{Nodes: []neo4j.Node{first}}}
	for i := 1; i < len(ids); i++ {
		next, ok := g.nodes[ids[i]]
		if !ok {
			return res
		}
		var grown []neo4j.Path
		for _, p := range partial {
			for _, r := range g.edges {
				src, dst := g.idOf(r.StartElementId), g.idOf(r.EndElementId)
				linked := (src == ids[i-1] && dst == ids[i]) || (src == ids[i] && dst == ids[i-1])
				if !linked || !hasType(types, r.Type) {
					continue
				}
				grown = append(grown, neo4j.Path{
					Nodes:         append(append([]neo4j.Node(nil), p.Nodes...), next),
					Relationships: append(append([]neo4j.Relationship(nil), p.Relationships...), r),
				})
			}
		}
		partial = grown
	}
	for _, p := range partial {
		res.Records = append(res.Records, &neo4j.Record{Keys: res.Keys, Values: []any{p}})
	}
	return res
}

func (g *fakeGraph) vertices(ids []string) *neo4j.EagerResult {
	res := &neo4j.EagerResult{Keys: []string{"v"}}
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			res.Records = append(res.Records, &neo4j.Record{Keys: res.Keys, Values: []any{n}})
		}
	}
	return res
}

func (g *fakeGraph) edgesByID(eids []string) *neo4j.EagerResult {
	res := &neo4j.EagerResult{Keys: []string{"e", "src", "dst"}}
	for _, eid := range eids {
		for _, r := range g.edges {
			if r.Props["eid"] == eid {
				res.Records = append(res.Records, &neo4j.Record{Keys: res.Keys,
					Values: []any{r, g.idOf(r.StartElementId), g.idOf(r.EndElementId)}})
			}
		}
	}
	return res
}

// lookup answers a single-vertex MATCH by looking for a known id among the
// parameter values, then in the query text.
func (g *fakeGraph) lookup(query string, params map[string]any) *neo4j.EagerResult {
	res := &neo4j.EagerResult{Keys: []string{"v"}}
	for _, v := range params {
		if id, ok := v.(string); ok {
			if n, ok := g.nodes[id]; ok {
				res.Records = append(res.Records, &neo4j.Record{Keys: res.Keys, Values: []any{n}})
				return res
			}
		}
	}
	for _, id := range g.order {
		if strings.Contains(query, `"`+id+`"`) || strings.Contains(query, `'`+id+`'`) {
			res.Records = append(res.Records, &neo4j.Record{Keys: res.Keys, Values: []any{g.nodes[id]}})
			return res
		}
	}
	return res
}

// regulationGraph is a small network with two routes from metabolite A to gene B:
//
//	A -CPI-> P -TFGI-> B
//	A -CPI-> Q -PPI-> R -TFGI-> B
func regulationGraph() *fakeGraph {
	return newFakeGraph().
		node("A", "metabolite", map[string]any{"name": "lactose"}).
		node("P", "protein", map[string]any{"Gene_Name": "lacI"}).
		node("Q", "protein", map[string]any{"Gene_Name": "crp"}).
		node("R", "protein", map[string]any{"Gene_Name": "cyaA"}).
		node("B", "gene", map[string]any{"Gene_Name": "lacZ"}).
		edge("Edge_1", EdgeCPI, "A", "P", nil).
		edge("Edge_2", EdgeCPI, "A", "Q", nil).
		edge("Edge_3", EdgeTFGI, "P", "B", map[string]any{
			"linehoverdisplay": "{'regulator': 'lacI', 'evidence': ['strong', 'curated'], 'score': 0.9}",
		}).
		edge("Edge_4", EdgePPI, "Q", "R", nil).
		edge("Edge_5", EdgeTFGI, "R", "B", nil)
}

var errClosed = fmt.Errorf("write tcp 10.0.0.1:8182: %w", net.ErrClosed)

func newTestEngine(t *testing.T, g *fakeGraph, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(RetryPolicy{MaxAttempts: 5})}, opts...)
	e, err := Connect(context.Background(), g.dial, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}
