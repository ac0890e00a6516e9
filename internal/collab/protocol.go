// Package collab implements the real-time collaboration layer: the message
// codec, the room hub, and the WebSocket transport adapter.
//
// Wire messages are discriminated unions keyed by a "type" field (client and
// server directions) and, inside change batches, by an "action" field. The
// codec validates shape and bounds at the boundary; a frame that fails
// validation is answered with an error message and never touches hub state.
package collab

import (
	"encoding/json"
	"fmt"

	"github.com/draftboard/draftboard/internal/spec"
)

// Client message types.
const (
	MsgJoin      = "join"
	MsgLeave     = "leave"
	MsgCursor    = "cursor"
	MsgSelection = "selection"
	MsgChange    = "change"
	MsgPing      = "ping"
)

// Server message types.
const (
	MsgJoined            = "joined"
	MsgParticipantJoined = "participant_joined"
	MsgParticipantLeft   = "participant_left"
	MsgCursorUpdate      = "cursor_update"
	MsgSelectionUpdate   = "selection_update"
	MsgChanges           = "changes"
	MsgSync              = "sync"
	MsgConflict          = "conflict"
	MsgError             = "error"
	MsgPong              = "pong"
)

// Error codes sent in error frames.
const (
	CodeInvalidJSON       = "INVALID_JSON"
	CodeInvalidMessage    = "INVALID_MESSAGE"
	CodeInvalidChangeData = "INVALID_CHANGE_DATA"
	CodeTooManyChanges    = "TOO_MANY_CHANGES"
	CodeNotRegistered     = "NOT_REGISTERED"
	CodeRoomFull          = "ROOM_FULL"
	CodeNotInRoom         = "NOT_IN_ROOM"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeRateLimitWarning  = "RATE_LIMIT_WARNING"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeMessageTooLarge   = "MESSAGE_TOO_LARGE"
	CodeServerShutdown    = "SERVER_SHUTDOWN"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Codec bounds.
const (
	MaxDiagramIDLen    = 100
	MaxNameLen         = 100
	MaxSelectionIDs    = 100
	MaxSelectionIDLen  = 100
	MaxChangesPerBatch = 100
	MaxCursorCoord     = 1_000_000

	// Batch quotas, cheaper than the storage-side caps.
	MaxAddNodesPerBatch = 100
	MaxAddEdgesPerBatch = 500

	DefaultParticipantName = "Anonymous"
)

// CodecError reports a frame that failed boundary validation.
type CodecError struct {
	Code    string
	Message string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func codecErrorf(code, format string, args ...interface{}) *CodecError {
	return &CodecError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ClientMessage is one decoded inbound frame. Exactly the payload matching
// Type is non-nil.
type ClientMessage struct {
	Type      string
	Join      *JoinPayload
	Cursor    *CursorPayload
	Selection *SelectionPayload
	Change    *ChangePayload
}

// JoinPayload asks to enter the room for a diagram.
type JoinPayload struct {
	DiagramID string `json:"diagramId"`
	Name      string `json:"name"`
}

// CursorPayload is a cursor position update.
type CursorPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SelectionPayload is the sender's current node selection.
type SelectionPayload struct {
	NodeIDs []string `json:"nodeIds"`
}

// ChangePayload is a version-gated batch of diagram changes.
type ChangePayload struct {
	Changes     []DiagramChange `json:"changes"`
	BaseVersion int64           `json:"baseVersion"`
}

// Change actions.
const (
	ActionAddNode     = "add_node"
	ActionUpdateNode  = "update_node"
	ActionRemoveNode  = "remove_node"
	ActionAddEdge     = "add_edge"
	ActionUpdateEdge  = "update_edge"
	ActionRemoveEdge  = "remove_edge"
	ActionUpdateStyle = "update_style"
)

// DiagramChange is one element of a change batch, keyed by Action.
type DiagramChange struct {
	Action string `json:"action"`
	// Target names the node or edge id for update/remove actions.
	Target string `json:"target,omitempty"`
	// Data carries the variant payload: a full Node or Edge for adds, a
	// partial patch for updates, a StylePatch for update_style.
	Data json.RawMessage `json:"data,omitempty"`
}

// NodePatch is a partial node update. Nil fields are untouched.
type NodePatch struct {
	Label    *string         `json:"label,omitempty"`
	Type     *spec.NodeShape `json:"type,omitempty"`
	Color    *string         `json:"color,omitempty"`
	Details  *string         `json:"details,omitempty"`
	Position *spec.Position  `json:"position,omitempty"`
	Width    *float64        `json:"width,omitempty"`
	Height   *float64        `json:"height,omitempty"`
}

func (p *NodePatch) empty() bool {
	return p.Label == nil && p.Type == nil && p.Color == nil &&
		p.Details == nil && p.Position == nil && p.Width == nil && p.Height == nil
}

// EdgePatch is a partial edge update. Nil fields are untouched.
type EdgePatch struct {
	Label *string         `json:"label,omitempty"`
	Style *spec.EdgeStyle `json:"style,omitempty"`
	Color *string         `json:"color,omitempty"`
}

func (p *EdgePatch) empty() bool {
	return p.Label == nil && p.Style == nil && p.Color == nil
}

// StylePatch is a diagram-wide style update.
type StylePatch struct {
	Theme           *spec.Theme `json:"theme,omitempty"`
	NodeColor       *string     `json:"nodeColor,omitempty"`
	EdgeColor       *string     `json:"edgeColor,omitempty"`
	BackgroundColor *string     `json:"backgroundColor,omitempty"`
}

func (p *StylePatch) empty() bool {
	return p.Theme == nil && p.NodeColor == nil && p.EdgeColor == nil && p.BackgroundColor == nil
}

// DecodeClientMessage parses and validates one inbound frame.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, codecErrorf(CodeInvalidJSON, "invalid JSON: %v", err)
	}

	msg := &ClientMessage{Type: envelope.Type}
	switch envelope.Type {
	case MsgLeave, MsgPing:
		return msg, nil

	case MsgJoin:
		var p JoinPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, codecErrorf(CodeInvalidJSON, "invalid join payload: %v", err)
		}
		if err := validateJoin(&p); err != nil {
			return nil, err
		}
		msg.Join = &p
		return msg, nil

	case MsgCursor:
		var p CursorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, codecErrorf(CodeInvalidJSON, "invalid cursor payload: %v", err)
		}
		if p.X < -MaxCursorCoord || p.X > MaxCursorCoord ||
			p.Y < -MaxCursorCoord || p.Y > MaxCursorCoord {
			return nil, codecErrorf(CodeInvalidMessage, "cursor out of range")
		}
		msg.Cursor = &p
		return msg, nil

	case MsgSelection:
		var p SelectionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, codecErrorf(CodeInvalidJSON, "invalid selection payload: %v", err)
		}
		if len(p.NodeIDs) > MaxSelectionIDs {
			return nil, codecErrorf(CodeInvalidMessage, "selection has %d ids, max %d", len(p.NodeIDs), MaxSelectionIDs)
		}
		for _, id := range p.NodeIDs {
			if id == "" || len(id) > MaxSelectionIDLen {
				return nil, codecErrorf(CodeInvalidMessage, "selection id length must be 1..%d", MaxSelectionIDLen)
			}
		}
		msg.Selection = &p
		return msg, nil

	case MsgChange:
		var p ChangePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, codecErrorf(CodeInvalidJSON, "invalid change payload: %v", err)
		}
		if err := validateChangeBatch(&p); err != nil {
			return nil, err
		}
		msg.Change = &p
		return msg, nil

	default:
		return nil, codecErrorf(CodeInvalidMessage, "unknown message type %q", envelope.Type)
	}
}

func validateJoin(p *JoinPayload) error {
	if p.DiagramID == "" || len(p.DiagramID) > MaxDiagramIDLen {
		return codecErrorf(CodeInvalidMessage, "diagramId length must be 1..%d", MaxDiagramIDLen)
	}
	if p.Name == "" {
		p.Name = DefaultParticipantName
	}
	if len(p.Name) > MaxNameLen {
		return codecErrorf(CodeInvalidMessage, "name exceeds %d chars", MaxNameLen)
	}
	return nil
}

func validateChangeBatch(p *ChangePayload) error {
	if p.BaseVersion < 0 {
		return codecErrorf(CodeInvalidChangeData, "baseVersion must be >= 0")
	}
	if len(p.Changes) == 0 {
		return codecErrorf(CodeInvalidChangeData, "empty change batch")
	}
	if len(p.Changes) > MaxChangesPerBatch {
		return codecErrorf(CodeTooManyChanges, "batch has %d changes, max %d", len(p.Changes), MaxChangesPerBatch)
	}

	addNodes, addEdges := 0, 0
	for i := range p.Changes {
		c := &p.Changes[i]
		if err := validateChange(c); err != nil {
			return err
		}
		switch c.Action {
		case ActionAddNode:
			addNodes++
		case ActionAddEdge:
			addEdges++
		}
	}
	if addNodes > MaxAddNodesPerBatch {
		return codecErrorf(CodeTooManyChanges, "batch adds %d nodes, max %d", addNodes, MaxAddNodesPerBatch)
	}
	if addEdges > MaxAddEdgesPerBatch {
		return codecErrorf(CodeTooManyChanges, "batch adds %d edges, max %d", addEdges, MaxAddEdgesPerBatch)
	}
	return nil
}

func validateChange(c *DiagramChange) error {
	switch c.Action {
	case ActionAddNode:
		var n spec.Node
		if err := json.Unmarshal(c.Data, &n); err != nil {
			return codecErrorf(CodeInvalidChangeData, "add_node data: %v", err)
		}
		if n.ID == "" || len(n.ID) > MaxDiagramIDLen {
			return codecErrorf(CodeInvalidChangeData, "add_node: id length must be 1..%d", MaxDiagramIDLen)
		}
		if n.Label == "" {
			return codecErrorf(CodeInvalidChangeData, "add_node: label is required")
		}
		if n.Color != "" && !spec.IsValidColor(n.Color) {
			return codecErrorf(CodeInvalidChangeData, "add_node: invalid color %q", n.Color)
		}
		return nil

	case ActionUpdateNode:
		if err := requireTarget(c); err != nil {
			return err
		}
		var p NodePatch
		if err := json.Unmarshal(c.Data, &p); err != nil {
			return codecErrorf(CodeInvalidChangeData, "update_node data: %v", err)
		}
		if p.empty() {
			return codecErrorf(CodeInvalidChangeData, "update_node: patch has no fields")
		}
		if p.Color != nil && !spec.IsValidColor(*p.Color) {
			return codecErrorf(CodeInvalidChangeData, "update_node: invalid color %q", *p.Color)
		}
		if p.Type != nil && !p.Type.IsValid() {
			return codecErrorf(CodeInvalidChangeData, "update_node: invalid type %q", *p.Type)
		}
		return nil

	case ActionRemoveNode, ActionRemoveEdge:
		return requireTarget(c)

	case ActionAddEdge:
		var e spec.Edge
		if err := json.Unmarshal(c.Data, &e); err != nil {
			return codecErrorf(CodeInvalidChangeData, "add_edge data: %v", err)
		}
		if e.From == "" || e.To == "" {
			return codecErrorf(CodeInvalidChangeData, "add_edge: from and to are required")
		}
		if e.Color != "" && !spec.IsValidColor(e.Color) {
			return codecErrorf(CodeInvalidChangeData, "add_edge: invalid color %q", e.Color)
		}
		return nil

	case ActionUpdateEdge:
		if err := requireTarget(c); err != nil {
			return err
		}
		var p EdgePatch
		if err := json.Unmarshal(c.Data, &p); err != nil {
			return codecErrorf(CodeInvalidChangeData, "update_edge data: %v", err)
		}
		if p.empty() {
			return codecErrorf(CodeInvalidChangeData, "update_edge: patch has no fields")
		}
		if p.Style != nil && !p.Style.IsValid() {
			return codecErrorf(CodeInvalidChangeData, "update_edge: invalid style %q", *p.Style)
		}
		if p.Color != nil && !spec.IsValidColor(*p.Color) {
			return codecErrorf(CodeInvalidChangeData, "update_edge: invalid color %q", *p.Color)
		}
		return nil

	case ActionUpdateStyle:
		var p StylePatch
		if err := json.Unmarshal(c.Data, &p); err != nil {
			return codecErrorf(CodeInvalidChangeData, "update_style data: %v", err)
		}
		if p.empty() {
			return codecErrorf(CodeInvalidChangeData, "update_style: patch has no fields")
		}
		if p.Theme != nil && !p.Theme.IsValid() {
			return codecErrorf(CodeInvalidChangeData, "update_style: invalid theme %q", *p.Theme)
		}
		for name, color := range map[string]*string{
			"nodeColor":       p.NodeColor,
			"edgeColor":       p.EdgeColor,
			"backgroundColor": p.BackgroundColor,
		} {
			if color != nil && !spec.IsValidColor(*color) {
				return codecErrorf(CodeInvalidChangeData, "update_style: invalid %s %q", name, *color)
			}
		}
		return nil

	default:
		return codecErrorf(CodeInvalidChangeData, "unknown change action %q", c.Action)
	}
}

func requireTarget(c *DiagramChange) error {
	if c.Target == "" || len(c.Target) > MaxDiagramIDLen {
		return codecErrorf(CodeInvalidChangeData, "%s: target length must be 1..%d", c.Action, MaxDiagramIDLen)
	}
	return nil
}

// ── Server messages ─────────────────────────────────────────────────────────

// ParticipantInfo is a participant as seen on the wire.
type ParticipantInfo struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Color     string         `json:"color"`
	Cursor    *spec.Position `json:"cursor,omitempty"`
	Selection []string       `json:"selection,omitempty"`
	UserID    string         `json:"userId,omitempty"`
}

// RoomInfo is a room snapshot sent to a joining participant.
type RoomInfo struct {
	DiagramID    string            `json:"diagramId"`
	Version      int64             `json:"version"`
	Participants []ParticipantInfo `json:"participants"`
}

type joinedMsg struct {
	Type        string          `json:"type"`
	Participant ParticipantInfo `json:"participant"`
	Room        RoomInfo        `json:"room"`
}

type participantJoinedMsg struct {
	Type        string          `json:"type"`
	Participant ParticipantInfo `json:"participant"`
}

type participantLeftMsg struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participantId"`
}

type cursorUpdateMsg struct {
	Type          string        `json:"type"`
	ParticipantID string        `json:"participantId"`
	Cursor        spec.Position `json:"cursor"`
}

type selectionUpdateMsg struct {
	Type          string   `json:"type"`
	ParticipantID string   `json:"participantId"`
	Selection     []string `json:"selection"`
}

type changesMsg struct {
	Type    string          `json:"type"`
	Changes []DiagramChange `json:"changes"`
	Author  string          `json:"author"`
	Version int64           `json:"version"`
}

type syncMsg struct {
	Type    string            `json:"type"`
	Spec    *spec.DiagramSpec `json:"spec"`
	Version int64             `json:"version"`
}

type conflictMsg struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	CurrentVersion int64  `json:"currentVersion"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pongMsg struct {
	Type string `json:"type"`
}

// encode marshals a server message; marshal failures cannot happen for the
// closed set of message types above, so the error is swallowed into "".
func encode(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// EncodeError builds an error frame, exported for transport-level failures
// (oversized frames) that are detected before the codec runs.
func EncodeError(code, message string) string {
	return encode(errorMsg{Type: MsgError, Code: code, Message: message})
}
