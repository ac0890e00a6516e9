package collab

import (
	"time"

	"github.com/draftboard/draftboard/internal/spec"
)

// Conn is the hub's view of a live connection. The WebSocket adapter in
// conn.go implements it; tests substitute an in-memory fake.
type Conn interface {
	// Send queues one text frame. It must not block on the network; a peer
	// too slow to drain its queue returns an error and is severed.
	Send(msg string) error
	// Close terminates the connection with a close code and reason.
	Close(code int, reason string) error
	// IsOpen reports whether the transport is still usable.
	IsOpen() bool
	// Identity returns the authenticated user, empty strings when anonymous.
	Identity() (userID, role string)
}

// Roles attached to authenticated connections.
const (
	RoleAdmin  = "admin"
	RoleUser   = "user"
	RoleViewer = "viewer"
)

// participant is one live identity inside a room.
type participant struct {
	ID        string
	Name      string
	Color     string
	Cursor    *spec.Position
	Selection []string
	LastSeen  time.Time
	UserID    string
}

func (p *participant) info() ParticipantInfo {
	return ParticipantInfo{
		ID:        p.ID,
		Name:      p.Name,
		Color:     p.Color,
		Cursor:    p.Cursor,
		Selection: p.Selection,
		UserID:    p.UserID,
	}
}

// room is the in-memory aggregate for one diagram.
type room struct {
	DiagramID    string
	Participants map[string]*participant
	Version      int64
	CreatedAt    time.Time
}

func (r *room) info() RoomInfo {
	info := RoomInfo{
		DiagramID:    r.DiagramID,
		Version:      r.Version,
		Participants: make([]ParticipantInfo, 0, len(r.Participants)),
	}
	for _, p := range r.Participants {
		info.Participants = append(info.Participants, p.info())
	}
	return info
}

// connState tracks per-connection hub state.
type connState struct {
	ParticipantID string
	DiagramID     string // "" when not in a room
	UserID        string
	Role          string
	LastActivity  time.Time
	RateLimit     rateWindow
	stopPinger    chan struct{}
}

// participantPalette is the rotating color assignment for new participants.
var participantPalette = []string{
	"#4E79A7", "#F28E2B", "#E15759", "#76B7B2", "#59A14F",
	"#EDC948", "#B07AA1", "#FF9DA7", "#9C755F", "#BAB0AC",
}
