package neopaths

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeIDs(vs []models.Vertex) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.ID
	}
	return out
}

func edgeIDs(es []models.Edge) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.EID
	}
	return out
}

func pathIDs(ap models.AcceptedPath) []string {
	return nodeIDs(ap.Path.Vertices)
}

func TestRegulation_ShortestStopsAtFirstAcceptedHop(t *testing.T) {
	g := regulationGraph()
	e := newTestEngine(t, g)

	rs, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A",
		Target: "B",
		Step:   3,
		Nodes:  []string{"A", "B"},
		Number: models.PolicyShortest,
		Type:   models.SearchMetabolite,
	})
	require.NoError(t, err)

	require.Len(t, rs.Paths, 1)
	assert.Equal(t, []string{"A", "P", "B"}, pathIDs(rs.Paths[0]))
	assert.Equal(t, []string{"A", "P", "B"}, nodeIDs(rs.Nodes))
	assert.Equal(t, []string{"Edge_1", "Edge_3"}, edgeIDs(rs.Edges))
	assert.Equal(t, []string{"A", "B"}, rs.HighlightNodes)
	assert.Empty(t, rs.HighlightEdges)

	// hop 1: seed + CPI expansion; hop 2: seed + CPI + one interaction round.
	assert.Equal(t, 5, g.callCount(), "hop 3 must not be attempted")
}

func TestRegulation_Tally(t *testing.T) {
	e := newTestEngine(t, regulationGraph())

	rs, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 2, Number: models.PolicyShortest, Type: models.SearchMetabolite,
	})
	require.NoError(t, err)
	require.Len(t, rs.Paths, 1)
	assert.Equal(t, models.EdgeTally{EdgeCPI: 1, EdgePPI: 0, EdgeTFGI: 1, EdgeSFGI: 0, EdgeSRGI: 0}, rs.Paths[0].Tally)
}

func TestRegulation_AllAccumulatesAcrossHops(t *testing.T) {
	e := newTestEngine(t, regulationGraph())

	rs, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 3, Number: models.PolicyAll, Type: models.SearchMetabolite,
	})
	require.NoError(t, err)

	require.Len(t, rs.Paths, 2)
	assert.Equal(t, []string{"A", "P", "B"}, pathIDs(rs.Paths[0]))
	assert.Equal(t, []string{"A", "Q", "R", "B"}, pathIDs(rs.Paths[1]))
	assert.Equal(t, []string{"A", "P", "B", "Q", "R"}, nodeIDs(rs.Nodes))
	assert.Equal(t, []string{"Edge_1", "Edge_3", "Edge_2", "Edge_4", "Edge_5"}, edgeIDs(rs.Edges))
}

func TestRegulation_MustVisit(t *testing.T) {
	e := newTestEngine(t, regulationGraph())

	rs, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 3, Nodes: []string{"R"}, Number: models.PolicyShortest, Type: models.SearchMetabolite,
	})
	require.NoError(t, err)

	require.Len(t, rs.Paths, 1)
	assert.Equal(t, []string{"A", "Q", "R", "B"}, pathIDs(rs.Paths[0]))
}

func TestRegulation_WideHopUsesVisitedSet(t *testing.T) {
	e := newTestEngine(t, regulationGraph())

	rs, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 5, Number: models.PolicyAll, Type: models.SearchMetabolite,
	})
	require.NoError(t, err)

	// Hop 5 stops at the first round reaching B, so it adds nothing new.
	require.Len(t, rs.Paths, 2)
	assert.Equal(t, []string{"A", "P", "B"}, pathIDs(rs.Paths[0]))
	assert.Equal(t, []string{"A", "Q", "R", "B"}, pathIDs(rs.Paths[1]))
}

func TestRegulation_Gene(t *testing.T) {
	g := newFakeGraph().
		node("G1", "gene", nil).
		node("G2", "gene", nil).
		node("G3", "gene", nil).
		node("G4", "gene", nil).
		edge("Edge_a", EdgePPI, "G1", "G2", nil).
		edge("Edge_b", EdgeTFGI, "G2", "G4", nil).
		edge("Edge_c", EdgeSFGI, "G1", "G3", nil).
		edge("Edge_d", EdgeSRGI, "G3", "G2", nil).
		edge("Edge_e", EdgeCPI, "G1", "G4", nil)
	e := newTestEngine(t, g)

	rs, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "G1", Target: "G4", Step: 3, Number: models.PolicyAll, Type: models.SearchGene,
	})
	require.NoError(t, err)

	// CPI edges are never followed, and G2 is claimed by the first round, so the
	// route through G3 cannot reach it again.
	require.Len(t, rs.Paths, 1)
	assert.Equal(t, []string{"G1", "G2", "G4"}, pathIDs(rs.Paths[0]))
}

func TestRegulation_Cap(t *testing.T) {
	g := newFakeGraph().node("A", "metabolite", nil).node("B", "gene", nil)
	for i := 1; i <= 7; i++ {
		p := fmt.Sprintf("P%d", i)
		g.node(p, "protein", nil).
			edge(fmt.Sprintf("Edge_c%d", i), EdgeCPI, "A", p, nil).
			edge(fmt.Sprintf("Edge_t%d", i), EdgeTFGI, p, "B", nil)
	}
	e := newTestEngine(t, g)

	capped, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 2, Number: "10", Type: models.SearchMetabolite,
	})
	require.NoError(t, err)
	assert.Len(t, capped.Paths, MaxResults)

	all, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 2, Number: models.PolicyAll, Type: models.SearchMetabolite,
	})
	require.NoError(t, err)
	assert.Len(t, all.Paths, 7)
}

func TestRegulation_Idempotent(t *testing.T) {
	e := newTestEngine(t, regulationGraph())
	req := models.RegulationRequest{Source: "A", Target: "B", Step: 4, Number: models.PolicyAll, Type: models.SearchMetabolite}

	first, err := e.Regulation(context.Background(), req)
	require.NoError(t, err)
	second, err := e.Regulation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRegulation_DecodesHoverDisplay(t *testing.T) {
	e := newTestEngine(t, regulationGraph())

	rs, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 2, Number: models.PolicyShortest, Type: models.SearchMetabolite,
	})
	require.NoError(t, err)

	require.Len(t, rs.Edges, 2)
	assert.Equal(t, map[string]any{
		"regulator": "lacI",
		"evidence":  []any{"strong", "curated"},
		"score":     0.9,
	}, rs.Edges[1].HoverDisplay)
	assert.NotContains(t, rs.Edges[1].Attributes, models.AttrHoverDisplay)
	assert.Equal(t, rs.Edges[1].HoverDisplay, rs.Paths[0].Path.Edges[1].HoverDisplay)
}

func TestRegulation_MalformedHoverDisplay(t *testing.T) {
	g := regulationGraph().
		node("C", "protein", nil).
		edge("Edge_6", EdgeCPI, "A", "C", nil).
		edge("Edge_7", EdgeTFGI, "C", "B", map[string]any{"linehoverdisplay": "{'regulator': [1, 2"})
	m := NewMetrics(prometheus.NewRegistry())
	e := newTestEngine(t, g, WithMetrics(m))

	rs, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 2, Number: models.PolicyAll, Type: models.SearchMetabolite,
	})
	require.NoError(t, err)

	require.Len(t, rs.Paths, 2)
	assert.Equal(t, []string{"Edge_1", "Edge_3", "Edge_6"}, edgeIDs(rs.Edges))
	require.Len(t, rs.MalformedEdges, 1)
	assert.Equal(t, "Edge_7", rs.MalformedEdges[0].EID)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MalformedEdges))

	// The path keeps the edge, marked and without the raw display.
	bad := rs.Paths[1].Path.Edges[1]
	assert.Equal(t, "Edge_7", bad.EID)
	assert.True(t, bad.Malformed)
	assert.NotContains(t, bad.Attributes, models.AttrHoverDisplay)
	assert.Nil(t, bad.HoverDisplay)
	assert.False(t, rs.Paths[0].Path.Edges[1].Malformed)
}

func TestRegulation_InvalidRequest(t *testing.T) {
	g := regulationGraph()
	e := newTestEngine(t, g)

	_, err := e.Regulation(context.Background(), models.RegulationRequest{Source: "A", Step: 2, Number: "all", Type: "protein"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, ClassValidation, Classify(err))
	assert.Zero(t, g.callCount())
}

func TestRegulation_ReconnectsOnClosedTransport(t *testing.T) {
	g := regulationGraph()
	m := NewMetrics(prometheus.NewRegistry())
	e := newTestEngine(t, g, WithMetrics(m))
	g.failNext(errClosed)

	rs, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 2, Number: models.PolicyShortest, Type: models.SearchMetabolite,
	})
	require.NoError(t, err)
	require.Len(t, rs.Paths, 1)

	assert.Equal(t, 2, g.dials, "one initial dial plus exactly one reconnect")
	assert.Equal(t, 1, g.closes)
	assert.Equal(t, uint64(1), e.Sessions().Generation())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Reconnects))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Retries.WithLabelValues("connection")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Queries.WithLabelValues("regulation", "success")))
}

func TestRegulation_ExhaustionIsNotRetried(t *testing.T) {
	g := regulationGraph()
	e := newTestEngine(t, g)
	g.failNext(errors.New("Query aborted due to memory limitations"))

	_, err := e.Regulation(context.Background(), models.RegulationRequest{
		Source: "A", Target: "B", Step: 2, Number: models.PolicyShortest, Type: models.SearchMetabolite,
	})
	require.Error(t, err)
	assert.Equal(t, KindResourceExhausted, KindOf(err))
	assert.Equal(t, ExhaustedMessage, UserMessage(err))
	assert.Equal(t, 1, g.dials)
	assert.Zero(t, g.callCount())
}

func TestDeep_ConstrainedMatch(t *testing.T) {
	g := regulationGraph()
	e := newTestEngine(t, g)

	rs, err := e.Deep(context.Background(), models.DeepRequest{
		IDs:   []string{"A", "Q", "R"},
		Edges: []string{EdgeCPI, EdgePPI},
	})
	require.NoError(t, err)

	require.Len(t, rs.Paths, 1)
	assert.Equal(t, []string{"A", "Q", "R"}, pathIDs(rs.Paths[0]))
	assert.Nil(t, rs.Paths[0].Tally)
	assert.Equal(t, []string{"A", "R"}, rs.HighlightNodes)
	assert.Len(t, g.callsMatching("MATCH p ="), 1)
}

func TestDeep_KeepsParallelEdges(t *testing.T) {
	g := regulationGraph().edge("Edge_8", EdgePPI, "P", "A", nil)
	e := newTestEngine(t, g)

	rs, err := e.Deep(context.Background(), models.DeepRequest{
		IDs:   []string{"A", "P"},
		Edges: []string{EdgeCPI, EdgePPI},
	})
	require.NoError(t, err)

	require.Len(t, rs.Paths, 2)
	assert.Equal(t, []string{"A", "P"}, nodeIDs(rs.Nodes))
	assert.Equal(t, []string{"Edge_1", "Edge_8"}, edgeIDs(rs.Edges))
}

func TestDeep_FallbackRunsExactlyOnce(t *testing.T) {
	g := regulationGraph()
	e := newTestEngine(t, g)

	rs, err := e.Deep(context.Background(), models.DeepRequest{
		IDs:   []string{"A", "P", "B"},
		Edges: []string{EdgePPI},
	})
	require.NoError(t, err)

	calls := g.callsMatching("MATCH p =")
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].params, "types")
	assert.NotContains(t, calls[1].params, "types")
	assert.NotContains(t, calls[1].query, "$types")
	for _, c := range calls {
		assert.Equal(t, "A", c.params["id0"])
		assert.Equal(t, "B", c.params["id2"])
	}

	require.Len(t, rs.Paths, 1)
	assert.Equal(t, []string{"A", "P", "B"}, pathIDs(rs.Paths[0]))
	assert.Equal(t, []string{"A", "B"}, rs.HighlightNodes)
}

func TestDeep_FallbackStillEmpty(t *testing.T) {
	g := regulationGraph()
	e := newTestEngine(t, g)

	rs, err := e.Deep(context.Background(), models.DeepRequest{
		IDs:   []string{"A", "B"},
		Edges: []string{EdgeTFGI},
	})
	require.NoError(t, err)
	assert.Len(t, g.callsMatching("MATCH p ="), 2)
	assert.Empty(t, rs.Paths)
	assert.Empty(t, rs.Nodes)
	assert.Equal(t, []string{"A", "B"}, rs.HighlightNodes)
}

func TestDeep_UnconstrainedSkipsFallback(t *testing.T) {
	g := regulationGraph()
	e := newTestEngine(t, g)

	rs, err := e.Deep(context.Background(), models.DeepRequest{IDs: []string{"B", "P"}})
	require.NoError(t, err)

	calls := g.callsMatching("MATCH p =")
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].params, "types")
	require.Len(t, rs.Paths, 1)
	assert.Equal(t, []string{"B", "P"}, pathIDs(rs.Paths[0]))
	assert.Equal(t, "P", rs.Edges[0].Source, "undirected walk keeps the stored direction")
}

func TestDeep_SingleVertex(t *testing.T) {
	e := newTestEngine(t, regulationGraph())

	rs, err := e.Deep(context.Background(), models.DeepRequest{IDs: []string{"Q"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q"}, nodeIDs(rs.Nodes))
	assert.Empty(t, rs.Edges)
	assert.Equal(t, []string{"Q", "Q"}, rs.HighlightNodes)
}

func TestSimple_Out(t *testing.T) {
	e := newTestEngine(t, regulationGraph())

	rs, err := e.Simple(context.Background(), models.SimpleRequest{
		IDs: []string{"A"}, Direction: models.DirectionOut, Times: 2,
	})
	require.NoError(t, err)

	assert.Empty(t, rs.Paths)
	assert.Equal(t, []string{"A", "P", "Q", "B", "R"}, nodeIDs(rs.Nodes))
	assert.Equal(t, []string{"Edge_1", "Edge_2", "Edge_3", "Edge_4"}, edgeIDs(rs.Edges))
	assert.Equal(t, []string{"A"}, rs.HighlightNodes)
	assert.Equal(t, "lacZ", rs.Nodes[3].Attributes["Gene_Name"])
}

func TestSimple_InWithEdgeTypes(t *testing.T) {
	e := newTestEngine(t, regulationGraph())

	rs, err := e.Simple(context.Background(), models.SimpleRequest{
		IDs: []string{"B"}, Direction: models.DirectionIn, EdgeTypes: []string{EdgeTFGI}, Times: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "P", "R"}, nodeIDs(rs.Nodes))
	assert.Equal(t, []string{"Edge_3", "Edge_5"}, edgeIDs(rs.Edges))
}

func TestSimple_BothCapsFanOut(t *testing.T) {
	g := newFakeGraph().node("H", "hub", nil)
	for i := 1; i <= 12; i++ {
		leaf := fmt.Sprintf("L%02d", i)
		g.node(leaf, "leaf", nil).edge(fmt.Sprintf("Edge_h%02d", i), EdgePPI, "H", leaf, nil)
	}
	e := newTestEngine(t, g)

	uncapped, err := e.Simple(context.Background(), models.SimpleRequest{
		IDs: []string{"H"}, Direction: models.DirectionBoth, Times: 2,
	})
	require.NoError(t, err)
	assert.Len(t, uncapped.Nodes, 13)

	capped, err := e.Simple(context.Background(), models.SimpleRequest{
		IDs: []string{"H"}, Direction: models.DirectionBoth, Times: 3,
	})
	require.NoError(t, err)
	assert.Len(t, capped.Nodes, 1+BothDirectionFanOut)
	assert.Equal(t, "L10", capped.Nodes[len(capped.Nodes)-1].ID)
}

func TestSimple_BothCapCountsOnlyUnvisitedNeighbours(t *testing.T) {
	g := newFakeGraph().
		node("A", "gene", nil).
		node("B", "hub", nil).
		edge("Edge_00", EdgePPI, "A", "B", nil)
	for i := 1; i <= 12; i++ {
		leaf := fmt.Sprintf("L%02d", i)
		g.node(leaf, "leaf", nil).edge(fmt.Sprintf("Edge_b%02d", i), EdgePPI, "B", leaf, nil)
	}
	e := newTestEngine(t, g)

	rs, err := e.Simple(context.Background(), models.SimpleRequest{
		IDs: []string{"A"}, Direction: models.DirectionBoth, Times: 3,
	})
	require.NoError(t, err)

	// The edge back to A is pruned and does not take one of the ten slots.
	require.Len(t, rs.Nodes, 2+BothDirectionFanOut)
	assert.Equal(t, "L10", rs.Nodes[len(rs.Nodes)-1].ID)
	assert.Len(t, rs.Edges, 1+BothDirectionFanOut)
}

func TestSimple_NoPaths(t *testing.T) {
	g := regulationGraph()
	e := newTestEngine(t, g)

	rs, err := e.Simple(context.Background(), models.SimpleRequest{
		IDs: []string{"B"}, Direction: models.DirectionOut, Times: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, models.NewResultSet(), rs)
	assert.Empty(t, g.callsMatching("WHERE v.id IN $ids"), "attributes are not fetched for an empty result")
}

func TestSimple_CustomEdgePrefix(t *testing.T) {
	g := newFakeGraph().
		node("x", "gene", nil).
		node("y", "gene", nil).
		edge("rel-1", EdgePPI, "x", "y", nil)
	e := newTestEngine(t, g, WithEdgePrefix("rel-"))

	rs, err := e.Simple(context.Background(), models.SimpleRequest{
		IDs: []string{"x"}, Direction: models.DirectionOut, Times: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, nodeIDs(rs.Nodes))
	assert.Equal(t, []string{"rel-1"}, edgeIDs(rs.Edges))
}

func TestSimple_RetriesAttributeFetchSeparately(t *testing.T) {
	g := regulationGraph()
	e := newTestEngine(t, g)
	g.failWhen("WHERE v.id IN $ids", errors.New("Neo.TransientError.Transaction.DeadlockDetected"))

	rs, err := e.Simple(context.Background(), models.SimpleRequest{
		IDs: []string{"Q"}, Direction: models.DirectionOut, Times: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q", "R"}, nodeIDs(rs.Nodes))

	assert.Len(t, g.callsMatching("UNWIND $frontier"), 1, "traversal is not repeated")
	assert.Len(t, g.callsMatching("WHERE v.id IN $ids"), 1)
	assert.Equal(t, 1, g.dials, "conflicts retry without reconnecting")
}
