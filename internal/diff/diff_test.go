package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftboard/draftboard/internal/spec"
)

func baseSpec() *spec.DiagramSpec {
	return &spec.DiagramSpec{
		Type:  spec.TypeFlowchart,
		Theme: spec.ThemeDark,
		Nodes: []spec.Node{
			{ID: "a", Label: "Start", Type: spec.ShapeStart},
			{ID: "b", Label: "Work", Type: spec.ShapeProcess, Color: "#336699"},
			{ID: "c", Label: "End", Type: spec.ShapeEnd},
		},
		Edges: []spec.Edge{
			{From: "a", To: "b"},
			{From: "b", To: "c", Label: "done"},
		},
		Groups: []spec.Group{
			{ID: "g1", Label: "Pipeline", NodeIDs: []string{"a", "b"}},
		},
	}
}

func TestIdenticalSpecsAreEmpty(t *testing.T) {
	r := Compute(baseSpec(), baseSpec())
	assert.True(t, r.Empty())
	assert.Nil(t, Describe(r))
	assert.Equal(t, "No changes", Summary(r))
}

func TestNodeAddRemoveChange(t *testing.T) {
	oldSpec := baseSpec()
	newSpec := baseSpec()
	newSpec.Nodes = append(newSpec.Nodes[:2], spec.Node{ID: "d", Label: "Review"})
	newSpec.Nodes[1].Label = "Work Harder"
	newSpec.Nodes[1].Color = "#ff0000"

	r := Compute(oldSpec, newSpec)

	require.Len(t, r.NodesAdded, 1)
	assert.Equal(t, "d", r.NodesAdded[0].ID)

	require.Len(t, r.NodesRemoved, 1)
	assert.Equal(t, "c", r.NodesRemoved[0].ID)

	require.Len(t, r.NodesChanged, 1)
	assert.Equal(t, "b", r.NodesChanged[0].ID)
	require.Len(t, r.NodesChanged[0].Fields, 2)
	assert.Equal(t, "label", r.NodesChanged[0].Fields[0].Field)
	assert.Equal(t, "Work", r.NodesChanged[0].Fields[0].Old)
	assert.Equal(t, "Work Harder", r.NodesChanged[0].Fields[0].New)
	assert.Equal(t, "color", r.NodesChanged[0].Fields[1].Field)
}

func TestNodePositionAndSizeDeltas(t *testing.T) {
	oldSpec := &spec.DiagramSpec{Nodes: []spec.Node{{ID: "a", Label: "A"}}}
	w, h := 120.0, 80.0
	newSpec := &spec.DiagramSpec{Nodes: []spec.Node{{
		ID: "a", Label: "A",
		Position: &spec.Position{X: 10, Y: 20},
		Width:    &w, Height: &h,
	}}}

	r := Compute(oldSpec, newSpec)
	require.Len(t, r.NodesChanged, 1)
	fields := r.NodesChanged[0].Fields
	require.Len(t, fields, 2)
	assert.Equal(t, "position", fields[0].Field)
	assert.Equal(t, "(10, 20)", fields[0].New)
	assert.Equal(t, "size", fields[1].Field)
	assert.Equal(t, "120x80", fields[1].New)
}

func TestEdgeIdentityByEndpoints(t *testing.T) {
	oldSpec := baseSpec()
	newSpec := baseSpec()
	// Rewire b→c to b→a: counts as remove + add, not a change.
	newSpec.Edges[1] = spec.Edge{From: "b", To: "a", Label: "done"}
	// Restyle a→b in place.
	newSpec.Edges[0].Style = spec.EdgeDashed

	r := Compute(oldSpec, newSpec)

	require.Len(t, r.EdgesAdded, 1)
	assert.Equal(t, "a", r.EdgesAdded[0].To)
	require.Len(t, r.EdgesRemoved, 1)
	assert.Equal(t, "c", r.EdgesRemoved[0].To)
	require.Len(t, r.EdgesChanged, 1)
	assert.Equal(t, "style", r.EdgesChanged[0].Fields[0].Field)
}

func TestGroupMembershipDelta(t *testing.T) {
	oldSpec := baseSpec()
	newSpec := baseSpec()
	newSpec.Groups[0].NodeIDs = []string{"a", "b", "c"}

	r := Compute(oldSpec, newSpec)
	require.Len(t, r.GroupsChanged, 1)
	f := r.GroupsChanged[0].Fields[0]
	assert.Equal(t, "nodeIds", f.Field)
	assert.Equal(t, "a,b", f.Old)
	assert.Equal(t, "a,b,c", f.New)
}

func TestMetaDelta(t *testing.T) {
	oldSpec := baseSpec()
	newSpec := baseSpec()
	newSpec.Theme = spec.ThemeLight

	r := Compute(oldSpec, newSpec)
	require.Len(t, r.Meta, 1)
	assert.Equal(t, "theme", r.Meta[0].Field)
	assert.Equal(t, "dark", r.Meta[0].Old)
	assert.Equal(t, "light", r.Meta[0].New)
}

func TestNilSpecTreatedAsEmpty(t *testing.T) {
	s := baseSpec()

	r := Compute(nil, s)
	assert.Len(t, r.NodesAdded, 3)
	assert.Len(t, r.EdgesAdded, 2)
	assert.Len(t, r.GroupsAdded, 1)

	r = Compute(s, nil)
	assert.Len(t, r.NodesRemoved, 3)
	assert.Len(t, r.EdgesRemoved, 2)
	assert.Len(t, r.GroupsRemoved, 1)
}

func TestDescribeAndSummary(t *testing.T) {
	oldSpec := baseSpec()
	newSpec := baseSpec()
	newSpec.Nodes = append(newSpec.Nodes, spec.Node{ID: "d", Label: "Review"})
	newSpec.Edges[0].Label = "go"

	r := Compute(oldSpec, newSpec)
	lines := Describe(r)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `Added node "Review"`)
	assert.Contains(t, lines[1], "Updated edge a → b")

	assert.Equal(t, "1 node added, 1 edge updated", Summary(r))
}
