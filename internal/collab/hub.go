package collab

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/draftboard/draftboard/internal/debug"
	"github.com/draftboard/draftboard/internal/spec"
)

// Hub timing and capacity constants.
const (
	MaxParticipants        = 50
	PingInterval           = 15 * time.Second
	PresenceTimeout        = 30 * time.Second
	EmptyRoomTTL           = 30 * time.Minute
	ConnectionStaleTimeout = 90 * time.Second
)

// Hub owns every live room and connection. A single coarse mutex serializes
// all state mutation; per-operation work is small, so contention stays low
// and every room observes a total order of version bumps and broadcasts.
type Hub struct {
	mu              sync.Mutex
	rooms           map[string]*room
	connections     map[Conn]*connState
	roomConnections map[string]map[Conn]struct{}
	emptyRooms      map[string]time.Time
	colorIndex      int

	now func() time.Time

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewHub creates an empty hub. Call Start to begin the background cleanup
// loop; Close stops it and disconnects everyone.
func NewHub() *Hub {
	return &Hub{
		rooms:           make(map[string]*room),
		connections:     make(map[Conn]*connState),
		roomConnections: make(map[string]map[Conn]struct{}),
		emptyRooms:      make(map[string]time.Time),
		now:             time.Now,
	}
}

// Start launches the periodic inactive-state cleanup.
func (h *Hub) Start() {
	h.stopCleanup = make(chan struct{})
	h.cleanupDone = make(chan struct{})
	go func() {
		defer close(h.cleanupDone)
		ticker := time.NewTicker(PresenceTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCleanup:
				return
			case <-ticker.C:
				h.CleanupInactive()
			}
		}
	}()
}

// Register admits a new connection: allocates its participant id, snapshots
// its identity, and starts the periodic pong emitter.
func (h *Hub) Register(c Conn) {
	userID, role := c.Identity()
	state := &connState{
		ParticipantID: uuid.NewString()[:8],
		UserID:        userID,
		Role:          role,
		LastActivity:  h.now(),
		stopPinger:    make(chan struct{}),
	}

	h.mu.Lock()
	h.connections[c] = state
	h.mu.Unlock()

	go h.runPinger(c, state.stopPinger)
}

// runPinger emits a pong frame every PingInterval. It holds no reference to
// hub state beyond the stop channel and self-terminates when the transport
// reports not-open.
func (h *Hub) runPinger(c Conn, stop chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	frame := encode(pongMsg{Type: MsgPong})
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.IsOpen() {
				return
			}
			if err := c.Send(frame); err != nil {
				return
			}
		}
	}
}

// Disconnect removes a connection entirely: leaves its room, stops its
// pinger, and drops its state. Idempotent.
func (h *Hub) Disconnect(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(c)
}

func (h *Hub) disconnectLocked(c Conn) {
	state, ok := h.connections[c]
	if !ok {
		return
	}
	h.leaveRoomLocked(c, state)
	close(state.stopPinger)
	delete(h.connections, c)
}

// JoinRoom admits the connection into the room for diagramID, creating the
// room lazily. A connection already in a room leaves it first.
func (h *Hub) JoinRoom(c Conn, diagramID, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.connections[c]
	if !ok {
		h.send(c, EncodeError(CodeNotRegistered, "connection is not registered"))
		return
	}
	if state.DiagramID != "" {
		h.leaveRoomLocked(c, state)
	}

	r, ok := h.rooms[diagramID]
	if !ok {
		r = &room{
			DiagramID:    diagramID,
			Participants: make(map[string]*participant),
			CreatedAt:    h.now(),
		}
		h.rooms[diagramID] = r
		h.roomConnections[diagramID] = make(map[Conn]struct{})
	}

	if len(r.Participants) >= MaxParticipants {
		h.send(c, EncodeError(CodeRoomFull, "room is full"))
		return
	}

	p := &participant{
		ID:       state.ParticipantID,
		Name:     name,
		Color:    participantPalette[h.colorIndex%len(participantPalette)],
		LastSeen: h.now(),
		UserID:   state.UserID,
	}
	h.colorIndex = (h.colorIndex + 1) % len(participantPalette)

	r.Participants[p.ID] = p
	h.roomConnections[diagramID][c] = struct{}{}
	state.DiagramID = diagramID
	delete(h.emptyRooms, diagramID)

	h.send(c, encode(joinedMsg{Type: MsgJoined, Participant: p.info(), Room: r.info()}))
	h.broadcastLocked(diagramID, encode(participantJoinedMsg{
		Type:        MsgParticipantJoined,
		Participant: p.info(),
	}), c)
}

// LeaveRoom removes the connection from its current room, if any.
func (h *Hub) LeaveRoom(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if state, ok := h.connections[c]; ok {
		h.leaveRoomLocked(c, state)
	}
}

func (h *Hub) leaveRoomLocked(c Conn, state *connState) {
	if state.DiagramID == "" {
		return
	}
	diagramID := state.DiagramID
	state.DiagramID = ""

	if conns, ok := h.roomConnections[diagramID]; ok {
		delete(conns, c)
	}
	r, ok := h.rooms[diagramID]
	if !ok {
		return
	}
	delete(r.Participants, state.ParticipantID)

	h.broadcastLocked(diagramID, encode(participantLeftMsg{
		Type:          MsgParticipantLeft,
		ParticipantID: state.ParticipantID,
	}), nil)

	if len(r.Participants) == 0 {
		h.emptyRooms[diagramID] = h.now()
	}
}

// UpdateCursor records the sender's cursor and broadcasts it to the rest of
// the room. Best-effort presence data, not version-ordered.
func (h *Hub) UpdateCursor(c Conn, x, y float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, registered := h.connections[c]; !registered {
		h.send(c, EncodeError(CodeNotRegistered, "connection is not registered"))
		return
	}
	state, p, ok := h.participantLocked(c)
	if !ok {
		return
	}
	p.Cursor = &spec.Position{X: x, Y: y}
	p.LastSeen = h.now()

	h.broadcastLocked(state.DiagramID, encode(cursorUpdateMsg{
		Type:          MsgCursorUpdate,
		ParticipantID: p.ID,
		Cursor:        *p.Cursor,
	}), c)
}

// UpdateSelection records the sender's node selection and broadcasts it.
func (h *Hub) UpdateSelection(c Conn, nodeIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, registered := h.connections[c]; !registered {
		h.send(c, EncodeError(CodeNotRegistered, "connection is not registered"))
		return
	}
	state, p, ok := h.participantLocked(c)
	if !ok {
		return
	}
	p.Selection = nodeIDs
	p.LastSeen = h.now()

	h.broadcastLocked(state.DiagramID, encode(selectionUpdateMsg{
		Type:          MsgSelectionUpdate,
		ParticipantID: p.ID,
		Selection:     nodeIDs,
	}), c)
}

// HandleChanges applies a version-gated change batch. On a version mismatch
// only the sender gets a conflict frame; on success the room version bumps
// by one and the batch is broadcast to everyone including the sender, which
// doubles as the author's ack and ordering barrier.
func (h *Hub) HandleChanges(c Conn, changes []DiagramChange, baseVersion int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, registered := h.connections[c]; !registered {
		h.send(c, EncodeError(CodeNotRegistered, "connection is not registered"))
		return
	}
	state, p, ok := h.participantLocked(c)
	if !ok {
		h.send(c, EncodeError(CodeNotInRoom, "join a room before sending changes"))
		return
	}
	r := h.rooms[state.DiagramID]

	if baseVersion != r.Version {
		h.send(c, encode(conflictMsg{
			Type:           MsgConflict,
			Message:        "version conflict, refresh and retry",
			CurrentVersion: r.Version,
		}))
		return
	}

	r.Version++
	p.LastSeen = h.now()
	h.broadcastLocked(state.DiagramID, encode(changesMsg{
		Type:    MsgChanges,
		Changes: changes,
		Author:  p.ID,
		Version: r.Version,
	}), nil)
}

// BroadcastSync pushes a fresh spec into the room after a write that did not
// come through the hub. When newVersion > 0 the room version aligns with
// storage; otherwise the hub increments its own counter. No room, no work.
func (h *Hub) BroadcastSync(diagramID string, s *spec.DiagramSpec, newVersion int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[diagramID]
	if !ok {
		return
	}
	if newVersion > 0 {
		r.Version = newVersion
	} else {
		r.Version++
	}
	h.broadcastLocked(diagramID, encode(syncMsg{
		Type:    MsgSync,
		Spec:    s,
		Version: r.Version,
	}), nil)
}

// CheckRateLimit admits one inbound message against the sender's window.
// Returns false when the message must not reach downstream handlers; the
// third warning escalates to a disconnect.
func (h *Hub) CheckRateLimit(c Conn) bool {
	h.mu.Lock()
	state, ok := h.connections[c]
	if !ok {
		h.mu.Unlock()
		return false
	}
	verdict, warnings := state.RateLimit.admit(h.now())
	h.mu.Unlock()

	switch verdict {
	case rateOK:
		return true
	case rateWarn:
		h.send(c, EncodeError(CodeRateLimitWarning,
			fmt.Sprintf("Rate limit warning (%d/%d)", warnings, MaxRateWarnings)))
		if warnings >= MaxRateWarnings {
			h.send(c, EncodeError(CodeRateLimitExceeded, "rate limit exceeded"))
			_ = c.Close(websocket.ClosePolicyViolation, "rate limit exceeded")
			h.Disconnect(c)
		}
		return false
	default:
		h.send(c, EncodeError(CodeRateLimitExceeded, "rate limit exceeded"))
		_ = c.Close(websocket.ClosePolicyViolation, "rate limit exceeded")
		h.Disconnect(c)
		return false
	}
}

// UpdateActivity stamps the connection on every inbound message, feeding the
// stale-connection reaper.
func (h *Hub) UpdateActivity(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if state, ok := h.connections[c]; ok {
		state.LastActivity = h.now()
	}
}

// CanWrite reports whether the connection may mutate diagrams: it must be
// authenticated and not a viewer.
func (h *Hub) CanWrite(c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.connections[c]
	if !ok {
		return false
	}
	return state.UserID != "" && state.Role != RoleViewer
}

// CleanupInactive runs one pass of the periodic reaper: presence timeouts,
// empty-room TTL expiry, and stale or closed connections.
func (h *Hub) CleanupInactive() {
	now := h.now()

	h.mu.Lock()
	// Pass 1: participants idle past the presence timeout.
	for _, state := range h.connections {
		if state.DiagramID == "" {
			continue
		}
		r := h.rooms[state.DiagramID]
		if r == nil {
			continue
		}
		p := r.Participants[state.ParticipantID]
		if p != nil && now.Sub(p.LastSeen) > PresenceTimeout {
			h.leaveRoomLocked(h.connFor(state), state)
		}
	}

	// Pass 2: rooms empty past the TTL.
	for diagramID, emptyAt := range h.emptyRooms {
		if now.Sub(emptyAt) > EmptyRoomTTL {
			delete(h.rooms, diagramID)
			delete(h.roomConnections, diagramID)
			delete(h.emptyRooms, diagramID)
		}
	}

	// Pass 3: stale or closed connections, collected first so Disconnect's
	// pinger teardown happens outside map iteration.
	var stale []Conn
	for c, state := range h.connections {
		if now.Sub(state.LastActivity) > ConnectionStaleTimeout || !c.IsOpen() {
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		h.disconnectLocked(c)
	}
	h.mu.Unlock()

	for _, c := range stale {
		_ = c.Close(websocket.CloseGoingAway, "connection stale")
	}
	if len(stale) > 0 {
		debug.Logf("hub cleanup: reaped %d stale connection(s)", len(stale))
	}
}

// CloseAll is the shutdown hook: notifies every connection, closes it, and
// clears all hub state.
func (h *Hub) CloseAll(reason string) {
	if h.stopCleanup != nil {
		close(h.stopCleanup)
		<-h.cleanupDone
		h.stopCleanup = nil
	}

	h.mu.Lock()
	conns := make([]Conn, 0, len(h.connections))
	for c, state := range h.connections {
		conns = append(conns, c)
		close(state.stopPinger)
	}
	h.rooms = make(map[string]*room)
	h.connections = make(map[Conn]*connState)
	h.roomConnections = make(map[string]map[Conn]struct{})
	h.emptyRooms = make(map[string]time.Time)
	h.mu.Unlock()

	frame := EncodeError(CodeServerShutdown, reason)
	for _, c := range conns {
		_ = c.Send(frame)
		_ = c.Close(websocket.CloseNormalClosure, reason)
	}
}

// HubStats is a point-in-time snapshot for diagnostics.
type HubStats struct {
	Rooms        int `json:"rooms"`
	Connections  int `json:"connections"`
	Participants int `json:"participants"`
}

// Stats returns current hub counters.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := HubStats{
		Rooms:       len(h.rooms),
		Connections: len(h.connections),
	}
	for _, r := range h.rooms {
		s.Participants += len(r.Participants)
	}
	return s
}

// participantLocked resolves the connection's room participant. Callers hold
// the hub mutex.
func (h *Hub) participantLocked(c Conn) (*connState, *participant, bool) {
	state, ok := h.connections[c]
	if !ok || state.DiagramID == "" {
		return nil, nil, false
	}
	r, ok := h.rooms[state.DiagramID]
	if !ok {
		return nil, nil, false
	}
	p, ok := r.Participants[state.ParticipantID]
	if !ok {
		return nil, nil, false
	}
	return state, p, true
}

// connFor finds the connection owning a state. O(|connections|), used only
// by the cleanup pass.
func (h *Hub) connFor(state *connState) Conn {
	for c, s := range h.connections {
		if s == state {
			return c
		}
	}
	return nil
}

// broadcastLocked sends frame to every connection in the room except skip.
// Send is a bounded enqueue on the transport, so the loop never waits on the
// network; an error means a dead or severed peer and is logged.
func (h *Hub) broadcastLocked(diagramID, frame string, skip Conn) {
	for c := range h.roomConnections[diagramID] {
		if c == skip {
			continue
		}
		if err := c.Send(frame); err != nil {
			debug.Logf("hub broadcast: send failed for room %s: %v", diagramID, err)
		}
	}
}

// send writes one frame to a single connection, logging failures.
func (h *Hub) send(c Conn, frame string) {
	if err := c.Send(frame); err != nil {
		debug.Logf("hub send failed: %v", err)
	}
}
