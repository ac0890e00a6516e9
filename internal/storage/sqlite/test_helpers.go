package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/draftboard/draftboard/internal/quota"
	"github.com/draftboard/draftboard/internal/spec"
)

// newTestStore creates a Store on a temp-file database.
//
// File-based databases are used instead of ":memory:" for test isolation:
// the shared-cache in-memory database is one instance per process, so
// parallel tests would interfere with each other.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(context.Background(), t.TempDir()+"/test.db", quota.DefaultLimits())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})
	return store
}

// testSpec builds a small valid flowchart spec with n nodes chained by
// edges.
func testSpec(n int) *spec.DiagramSpec {
	s := &spec.DiagramSpec{Type: spec.TypeFlowchart}
	for i := 0; i < n; i++ {
		s.Nodes = append(s.Nodes, spec.Node{ID: fmt.Sprintf("n%d", i), Label: fmt.Sprintf("Node %d", i)})
		if i > 0 {
			s.Edges = append(s.Edges, spec.Edge{From: fmt.Sprintf("n%d", i-1), To: fmt.Sprintf("n%d", i)})
		}
	}
	return s
}
