package spec

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFlowchart() *DiagramSpec {
	return &DiagramSpec{
		Type: TypeFlowchart,
		Nodes: []Node{
			{ID: "a", Label: "A"},
			{ID: "b", Label: "B"},
		},
		Edges: []Edge{{From: "a", To: "b"}},
	}
}

func TestParseValidSpec(t *testing.T) {
	data, err := json.Marshal(validFlowchart())
	require.NoError(t, err)

	s, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, s.Valid)
	assert.Equal(t, TypeFlowchart, s.Type)
	assert.Len(t, s.Nodes, 2)
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "$", verr.Issues[0].Path)
}

func TestParseRejectsUnknownType(t *testing.T) {
	s := validFlowchart()
	s.Type = "gantt"
	data, _ := json.Marshal(s)

	_, err := Parse(data)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "$.type", verr.Issues[0].Path)
}

func TestEdgeEndpointIntegrity(t *testing.T) {
	s := validFlowchart()
	s.Edges = append(s.Edges, Edge{From: "a", To: "ghost"})

	issues := Check(s)
	require.Len(t, issues, 1)
	assert.Equal(t, "$.edges[1].to", issues[0].Path)
	assert.Contains(t, issues[0].Message, "ghost")
}

func TestGroupMemberIntegrity(t *testing.T) {
	s := validFlowchart()
	s.Groups = []Group{{ID: "g1", Label: "G", NodeIDs: []string{"a", "missing"}}}

	issues := Check(s)
	require.Len(t, issues, 1)
	assert.Equal(t, "$.groups[0].nodeIds[1]", issues[0].Path)
}

func TestMessagesOnlyOnSequence(t *testing.T) {
	s := validFlowchart()
	s.Messages = []SequenceMessage{{From: "a", To: "b", Label: "hi", Type: MessageSync}}

	issues := Check(s)
	require.Len(t, issues, 1)
	assert.Equal(t, "$.messages", issues[0].Path)

	s.Type = TypeSequence
	assert.Empty(t, Check(s))
}

func TestRelationshipsOnlyOnER(t *testing.T) {
	s := validFlowchart()
	s.Relationships = []ERRelationship{{Entity1: "a", Entity2: "b", Cardinality: CardinalityOneToMany}}

	issues := Check(s)
	require.Len(t, issues, 1)

	s.Type = TypeER
	assert.Empty(t, Check(s))
}

func TestNodeBounds(t *testing.T) {
	w := float64(20000)
	s := &DiagramSpec{
		Type: TypeFlowchart,
		Nodes: []Node{{
			ID:       "a",
			Label:    "A",
			Position: &Position{X: 200000, Y: 0},
			Width:    &w,
		}},
	}

	issues := Check(s)
	paths := make([]string, len(issues))
	for i, is := range issues {
		paths[i] = is.Path
	}
	assert.Contains(t, paths, "$.nodes[0].position.x")
	assert.Contains(t, paths, "$.nodes[0].width")
}

func TestDuplicateNodeID(t *testing.T) {
	s := validFlowchart()
	s.Nodes = append(s.Nodes, Node{ID: "a", Label: "A again"})

	issues := Check(s)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "duplicate")
}

func TestTooManyNodes(t *testing.T) {
	s := &DiagramSpec{Type: TypeFlowchart}
	for i := 0; i <= MaxNodes; i++ {
		s.Nodes = append(s.Nodes, Node{ID: fmt.Sprintf("n%d", i), Label: "n"})
	}

	issues := Check(s)
	require.NotEmpty(t, issues)
	assert.Equal(t, "$.nodes", issues[0].Path)
}

func TestColorValidation(t *testing.T) {
	valid := []string{"#fff", "#FFFFFF", "#ffffff80", "red", "RebeccaPurple", "transparent"}
	for _, c := range valid {
		assert.True(t, IsValidColor(c), c)
	}
	invalid := []string{"", "#ff", "#fffff", "redd", "url(javascript:alert(1))", "rgb(0,0,0)"}
	for _, c := range invalid {
		assert.False(t, IsValidColor(c), c)
	}
}

func TestParseLenientKeepsBadSpec(t *testing.T) {
	s := validFlowchart()
	s.Edges = append(s.Edges, Edge{From: "a", To: "gone"})
	data, _ := json.Marshal(s)

	got, err := ParseLenient(data)
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.NotEmpty(t, got.Issues)
	assert.Len(t, got.Edges, 2) // tree preserved despite issues
}

func TestRoundTrip(t *testing.T) {
	s := validFlowchart()
	data, err := s.Marshal()
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, s.Nodes, got.Nodes)
	assert.Equal(t, s.Edges, got.Edges)
}
