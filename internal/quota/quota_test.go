package quota

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftboard/draftboard/internal/spec"
)

func TestCheckSpecWithinLimits(t *testing.T) {
	l := DefaultLimits()
	s := &spec.DiagramSpec{
		Type:  spec.TypeFlowchart,
		Nodes: []spec.Node{{ID: "a", Label: "A"}},
	}
	data, err := s.Marshal()
	require.NoError(t, err)
	assert.NoError(t, l.CheckSpec(s, data))
}

func TestCheckSpecTooManyNodes(t *testing.T) {
	l := DefaultLimits()
	l.MaxNodes = 2

	s := &spec.DiagramSpec{Type: spec.TypeFlowchart}
	for i := 0; i < 3; i++ {
		s.Nodes = append(s.Nodes, spec.Node{ID: fmt.Sprintf("n%d", i), Label: "n"})
	}
	data, _ := s.Marshal()

	err := l.CheckSpec(s, data)
	var qerr *ExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "NODES", qerr.Resource)
	assert.Equal(t, 2, qerr.Limit)
	assert.Equal(t, 3, qerr.Actual)
	assert.Equal(t, "QUOTA_NODES", qerr.Code)
}

func TestCheckSpecSizeCap(t *testing.T) {
	l := DefaultLimits()
	l.MaxSpecSizeBytes = 10

	s := &spec.DiagramSpec{Type: spec.TypeFlowchart}
	data, _ := s.Marshal()

	err := l.CheckSpec(s, data)
	var qerr *ExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "SPEC_SIZE", qerr.Resource)
}

func TestCheckOwnerCount(t *testing.T) {
	l := DefaultLimits()
	l.MaxDiagramsPerUser = 2

	assert.NoError(t, l.CheckOwnerCount("alice", 1))
	assert.Error(t, l.CheckOwnerCount("alice", 2))

	// Anonymous owners are unlimited.
	assert.NoError(t, l.CheckOwnerCount("", 10_000))
}
