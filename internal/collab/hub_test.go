package collab

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftboard/draftboard/internal/spec"
)

// fakeConn is an in-memory Conn capturing everything the hub sends.
type fakeConn struct {
	mu        sync.Mutex
	sent      []string
	open      bool
	closeCode int
	userID    string
	role      string
}

func newFakeConn() *fakeConn {
	return &fakeConn{open: true}
}

func (c *fakeConn) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closeCode = code
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Identity() (string, string) {
	return c.userID, c.role
}

// frames decodes every sent message of the given type.
func (c *fakeConn) frames(msgType string) []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]interface{}
	for _, raw := range c.sent {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// newTestHub returns a hub with a controllable clock. The cleanup loop is
// not started; tests call CleanupInactive directly.
func newTestHub() (*Hub, *time.Time) {
	h := NewHub()
	now := time.Now()
	h.now = func() time.Time { return now }
	return h, &now
}

func join(h *Hub, c Conn, diagramID, name string) {
	h.Register(c)
	h.JoinRoom(c, diagramID, name)
}

func TestJoinRoomHandshake(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	a := newFakeConn()
	b := newFakeConn()
	join(h, a, "d1", "Alice")
	join(h, b, "d1", "Bob")

	// Joiner gets the full room snapshot.
	joined := b.frames(MsgJoined)
	require.Len(t, joined, 1)
	room := joined[0]["room"].(map[string]interface{})
	assert.Equal(t, "d1", room["diagramId"])
	assert.Len(t, room["participants"], 2)

	// The rest of the room hears about the newcomer.
	notified := a.frames(MsgParticipantJoined)
	require.Len(t, notified, 1)
	p := notified[0]["participant"].(map[string]interface{})
	assert.Equal(t, "Bob", p["name"])

	// Participants get distinct palette colors.
	selfA := a.frames(MsgJoined)[0]["participant"].(map[string]interface{})
	assert.NotEqual(t, selfA["color"], p["color"])
}

func TestRoomFullRejectsOverflow(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	for i := 0; i < MaxParticipants; i++ {
		join(h, newFakeConn(), "d1", fmt.Sprintf("user-%d", i))
	}

	late := newFakeConn()
	join(h, late, "d1", "latecomer")

	errs := late.frames(MsgError)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeRoomFull, errs[0]["code"])
	assert.Empty(t, late.frames(MsgJoined))

	stats := h.Stats()
	assert.Equal(t, MaxParticipants, stats.Participants)
}

func TestUnregisteredConnectionGetsNotRegistered(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	c := newFakeConn()
	h.JoinRoom(c, "d1", "Ghost")
	h.UpdateCursor(c, 1, 2)
	h.UpdateSelection(c, []string{"n1"})
	h.HandleChanges(c, []DiagramChange{{Action: ActionRemoveNode, Target: "n1"}}, 0)

	errs := c.frames(MsgError)
	require.Len(t, errs, 4)
	for _, e := range errs {
		assert.Equal(t, CodeNotRegistered, e["code"])
	}
	assert.Empty(t, c.frames(MsgJoined))
	assert.Equal(t, 0, h.Stats().Rooms)
}

func TestChangesOutsideRoomGetNotInRoom(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	c := newFakeConn()
	h.Register(c)
	h.HandleChanges(c, []DiagramChange{{Action: ActionRemoveNode, Target: "n1"}}, 0)

	errs := c.frames(MsgError)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeNotInRoom, errs[0]["code"])
}

func TestChangeVersionGating(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	c := &fakeConn{open: true, userID: "carol", role: RoleUser}
	d := &fakeConn{open: true, userID: "dave", role: RoleUser}
	join(h, c, "d1", "Carol")
	join(h, d, "d1", "Dave")

	batch := []DiagramChange{{
		Action: ActionAddNode,
		Data:   json.RawMessage(`{"id":"x","label":"X"}`),
	}}

	// First writer at baseVersion 0 wins; everyone, author included, sees
	// the batch stamped with version 1.
	h.HandleChanges(c, batch, 0)
	for _, conn := range []*fakeConn{c, d} {
		changes := conn.frames(MsgChanges)
		require.Len(t, changes, 1)
		assert.Equal(t, float64(1), changes[0]["version"])
	}

	// Second writer still at baseVersion 0 conflicts; only the sender is
	// told, and nothing is broadcast.
	before := c.sentCount()
	h.HandleChanges(d, batch, 0)
	conflicts := d.frames(MsgConflict)
	require.Len(t, conflicts, 1)
	assert.Equal(t, float64(1), conflicts[0]["currentVersion"])
	assert.Equal(t, before, c.sentCount())
	assert.Len(t, d.frames(MsgChanges), 1)
}

func TestConsecutiveChangeVersions(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	c := &fakeConn{open: true, userID: "carol", role: RoleUser}
	join(h, c, "d1", "Carol")

	batch := []DiagramChange{{Action: ActionRemoveNode, Target: "x"}}
	for v := int64(0); v < 5; v++ {
		h.HandleChanges(c, batch, v)
	}

	changes := c.frames(MsgChanges)
	require.Len(t, changes, 5)
	for i, m := range changes {
		assert.Equal(t, float64(i+1), m["version"])
	}
}

func TestRateLimitEscalation(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	c := newFakeConn()
	h.Register(c)

	// All messages land in one window. The first 20 pass, the next three
	// draw warnings, and the third warning closes the connection.
	passed := 0
	for i := 0; i < 61 && c.IsOpen(); i++ {
		if h.CheckRateLimit(c) {
			passed++
		}
	}
	assert.Equal(t, MaxMessagesPerWindow, passed)

	warnings := c.frames(MsgError)
	var warnCount, exceeded int
	for _, w := range warnings {
		switch w["code"] {
		case CodeRateLimitWarning:
			warnCount++
		case CodeRateLimitExceeded:
			exceeded++
		}
	}
	assert.Equal(t, MaxRateWarnings, warnCount)
	assert.Equal(t, 1, exceeded)
	assert.False(t, c.IsOpen())

	// Warning messages carry the escalation counter.
	assert.Contains(t, warnings[0]["message"], "(1/3)")

	// The connection is fully released.
	assert.Equal(t, 0, h.Stats().Connections)
}

func TestRateLimitWindowReset(t *testing.T) {
	h, now := newTestHub()
	defer h.CloseAll("test over")

	c := newFakeConn()
	h.Register(c)

	for i := 0; i < MaxMessagesPerWindow; i++ {
		require.True(t, h.CheckRateLimit(c))
	}
	assert.False(t, h.CheckRateLimit(c))

	*now = now.Add(2 * RateWindow)
	assert.True(t, h.CheckRateLimit(c))
}

func TestCursorAndSelectionBroadcast(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	a := newFakeConn()
	b := newFakeConn()
	join(h, a, "d1", "Alice")
	join(h, b, "d1", "Bob")

	h.UpdateCursor(a, 10, 20)
	h.UpdateSelection(a, []string{"n1", "n2"})

	// Peers see the updates; the sender does not echo them.
	cursors := b.frames(MsgCursorUpdate)
	require.Len(t, cursors, 1)
	assert.Empty(t, a.frames(MsgCursorUpdate))

	selections := b.frames(MsgSelectionUpdate)
	require.Len(t, selections, 1)
	assert.Len(t, selections[0]["selection"], 2)
}

func TestPresenceTimeoutRemovesParticipant(t *testing.T) {
	h, now := newTestHub()
	defer h.CloseAll("test over")

	a := newFakeConn()
	b := newFakeConn()
	join(h, a, "d1", "Alice")
	join(h, b, "d1", "Bob")

	// Bob goes idle past the presence timeout; Alice stays fresh.
	*now = now.Add(PresenceTimeout + time.Second)
	h.UpdateCursor(a, 1, 1)
	h.CleanupInactive()

	left := a.frames(MsgParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, 1, h.Stats().Participants)
}

func TestEmptyRoomTTLReap(t *testing.T) {
	h, now := newTestHub()
	defer h.CloseAll("test over")

	a := newFakeConn()
	join(h, a, "d1", "Alice")
	h.LeaveRoom(a)
	assert.Equal(t, 1, h.Stats().Rooms)

	*now = now.Add(EmptyRoomTTL + time.Minute)
	h.CleanupInactive()
	assert.Equal(t, 0, h.Stats().Rooms)
}

func TestStaleConnectionReaped(t *testing.T) {
	h, now := newTestHub()
	defer h.CloseAll("test over")

	a := newFakeConn()
	join(h, a, "d1", "Alice")

	*now = now.Add(ConnectionStaleTimeout + time.Second)
	h.CleanupInactive()

	assert.Equal(t, 0, h.Stats().Connections)
	assert.False(t, a.IsOpen())
}

func TestBroadcastSyncVersionAlignment(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	a := newFakeConn()
	join(h, a, "d1", "Alice")

	s := &spec.DiagramSpec{Type: spec.TypeFlowchart, Nodes: []spec.Node{{ID: "a", Label: "A"}}}

	// Explicit version aligns the room with storage.
	h.BroadcastSync("d1", s, 7)
	syncs := a.frames(MsgSync)
	require.Len(t, syncs, 1)
	assert.Equal(t, float64(7), syncs[0]["version"])

	// Without a version the hub re-counters.
	h.BroadcastSync("d1", s, 0)
	syncs = a.frames(MsgSync)
	require.Len(t, syncs, 2)
	assert.Equal(t, float64(8), syncs[1]["version"])

	// No room for the diagram: silently skipped.
	h.BroadcastSync("other", s, 3)
}

func TestCanWrite(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	anon := newFakeConn()
	viewer := &fakeConn{open: true, userID: "v", role: RoleViewer}
	editor := &fakeConn{open: true, userID: "e", role: RoleUser}
	admin := &fakeConn{open: true, userID: "a", role: RoleAdmin}
	for _, c := range []*fakeConn{anon, viewer, editor, admin} {
		h.Register(c)
	}

	assert.False(t, h.CanWrite(anon))
	assert.False(t, h.CanWrite(viewer))
	assert.True(t, h.CanWrite(editor))
	assert.True(t, h.CanWrite(admin))
}

func TestSwitchingRoomsLeavesFirst(t *testing.T) {
	h, _ := newTestHub()
	defer h.CloseAll("test over")

	a := newFakeConn()
	b := newFakeConn()
	join(h, a, "d1", "Alice")
	join(h, b, "d1", "Bob")

	h.JoinRoom(b, "d2", "Bob")

	left := a.frames(MsgParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, 2, h.Stats().Rooms)
	assert.Equal(t, 2, h.Stats().Participants)
}

func TestCloseAllNotifiesAndClears(t *testing.T) {
	h, _ := newTestHub()

	a := newFakeConn()
	b := newFakeConn()
	join(h, a, "d1", "Alice")
	join(h, b, "d2", "Bob")

	h.CloseAll("maintenance")

	for _, c := range []*fakeConn{a, b} {
		errs := c.frames(MsgError)
		require.NotEmpty(t, errs)
		assert.Equal(t, CodeServerShutdown, errs[len(errs)-1]["code"])
		assert.False(t, c.IsOpen())
	}
	assert.Equal(t, HubStats{}, h.Stats())
}
