package sqlite

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftboard/draftboard/internal/spec"
	"github.com/draftboard/draftboard/internal/storage"
)

func TestListByProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		project := "a"
		if i%2 == 1 {
			project = "b"
		}
		_, err := s.Create(ctx, fmt.Sprintf("d%d", i), project, testSpec(1), storage.CreateOptions{})
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	onlyA, err := s.List(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)
}

func TestListPaginatedSearchFTS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 15 diagrams "API Test 00".."API Test 14" plus noise.
	for i := 0; i < 15; i++ {
		_, err := s.Create(ctx, fmt.Sprintf("API Test %02d", i), "p", testSpec(1), storage.CreateOptions{})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, "Unrelated", "p", testSpec(1), storage.CreateOptions{})
	require.NoError(t, err)

	page, err := s.ListPaginated(ctx, storage.ListOptions{Project: "p", Search: "API Test 0", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 10, page.Total)
	require.Len(t, page.Diagrams, 10)
	for _, d := range page.Diagrams {
		assert.Contains(t, strings.ToLower(d.Name), "api test 0")
	}

	// Case-insensitive.
	lower, err := s.ListPaginated(ctx, storage.ListOptions{Project: "p", Search: "api test 0", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 10, lower.Total)
}

func TestListPaginatedShortSearchUsesLike(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "Alpha", "", testSpec(1), storage.CreateOptions{})
	require.NoError(t, err)
	_, err = s.Create(ctx, "Beta", "", testSpec(1), storage.CreateOptions{})
	require.NoError(t, err)

	// 2-char query falls back to LIKE.
	page, err := s.ListPaginated(ctx, storage.ListOptions{Search: "al", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "Alpha", page.Diagrams[0].Name)
}

func TestListPaginatedTypeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "Flow", "p", testSpec(1), storage.CreateOptions{})
	require.NoError(t, err)

	seq := testSpec(2)
	seq.Type = spec.TypeSequence
	seq.Messages = []spec.SequenceMessage{{From: "n0", To: "n1", Label: "m", Type: spec.MessageSync}}
	_, err = s.Create(ctx, "Seq", "p", seq, storage.CreateOptions{})
	require.NoError(t, err)

	page, err := s.ListPaginated(ctx, storage.ListOptions{
		Project: "p", Types: []spec.DiagramType{spec.TypeFlowchart}, Limit: 20,
	})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Flow", page.Diagrams[0].Name)

	// Unknown types short-circuit to an empty page.
	empty, err := s.ListPaginated(ctx, storage.ListOptions{Types: []spec.DiagramType{"gantt"}})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.Diagrams)
}

func TestListPaginatedSortAndPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	names := []string{"charlie", "alpha", "bravo"}
	for _, n := range names {
		_, err := s.Create(ctx, n, "", testSpec(1), storage.CreateOptions{})
		require.NoError(t, err)
	}

	page, err := s.ListPaginated(ctx, storage.ListOptions{
		SortBy: storage.SortByName, SortOrder: storage.SortAsc, Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Diagrams, 2)
	assert.Equal(t, "alpha", page.Diagrams[0].Name)
	assert.Equal(t, "bravo", page.Diagrams[1].Name)

	next, err := s.ListPaginated(ctx, storage.ListOptions{
		SortBy: storage.SortByName, SortOrder: storage.SortAsc, Limit: 2, Offset: 2,
	})
	require.NoError(t, err)
	require.Len(t, next.Diagrams, 1)
	assert.Equal(t, "charlie", next.Diagrams[0].Name)
}

func TestListForUserAccessPredicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owned, err := s.Create(ctx, "owned", "", testSpec(1), storage.CreateOptions{OwnerID: "alice"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "legacy", "", testSpec(1), storage.CreateOptions{})
	require.NoError(t, err)
	_, err = s.Create(ctx, "public", "", testSpec(1), storage.CreateOptions{OwnerID: "bob", IsPublic: true})
	require.NoError(t, err)
	private, err := s.Create(ctx, "private", "", testSpec(1), storage.CreateOptions{OwnerID: "bob"})
	require.NoError(t, err)
	shared, err := s.Create(ctx, "shared", "", testSpec(1), storage.CreateOptions{OwnerID: "bob"})
	require.NoError(t, err)
	ok, err := s.AddShare(ctx, shared.ID, "alice", storage.ShareViewer)
	require.NoError(t, err)
	require.True(t, ok)

	page, err := s.ListForUser(ctx, "alice", storage.UserListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	ids := map[string]bool{}
	for _, d := range page.Diagrams {
		ids[d.ID] = true
	}
	assert.True(t, ids[owned.ID])
	assert.True(t, ids[shared.ID])
	assert.False(t, ids[private.ID])

	// Anonymous callers see only public and legacy rows.
	anon, err := s.ListForUser(ctx, "", storage.UserListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, anon.Total)
}

func TestListForUserRejectsInvalidUserID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ListForUser(context.Background(), `x" OR 1=1 --`, storage.UserListOptions{})
	require.Error(t, err)
}

// A userId that is a substring of another must not match via the GLOB
// membership test.
func TestListForUserNoSubstringLeak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Create(ctx, "doc", "", testSpec(1), storage.CreateOptions{OwnerID: "bob"})
	require.NoError(t, err)
	ok, err := s.AddShare(ctx, d.ID, "alice-smith", storage.ShareEditor)
	require.NoError(t, err)
	require.True(t, ok)

	page, err := s.ListForUser(ctx, "alice", storage.UserListOptions{})
	require.NoError(t, err)
	for _, got := range page.Diagrams {
		assert.NotEqual(t, d.ID, got.ID)
	}
}
