package collab

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/draftboard/draftboard/internal/debug"
)

// TokenVerifier authenticates a handshake token. Verification itself lives
// outside this package; the handler only consumes the result.
type TokenVerifier interface {
	// Verify returns the identity bound to token, or ok=false when the
	// token is invalid.
	Verify(token string) (userID, role string, ok bool)
}

// Handler upgrades HTTP requests to WebSocket connections and pumps inbound
// frames into the hub.
type Handler struct {
	hub      *Hub
	verifier TokenVerifier
	upgrader websocket.Upgrader
}

// NewHandler builds the collaboration endpoint. verifier may be nil, in
// which case every connection is anonymous.
func NewHandler(hub *Hub, verifier TokenVerifier) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Access control is enforced per-diagram by roles and shares,
			// not by origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var userID, role string
	if token := r.URL.Query().Get("token"); token != "" {
		if h.verifier == nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		var ok bool
		userID, role, ok = h.verifier.Verify(token)
		if !ok {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Logf("websocket upgrade failed: %v", err)
		return
	}

	conn := newWSConn(ws, userID, role)
	h.hub.Register(conn)
	go h.readLoop(conn, ws)
}

// readLoop pumps frames from one connection until it closes, dispatching
// each decoded message into the hub.
func (h *Handler) readLoop(conn *wsConn, ws *websocket.Conn) {
	defer func() {
		conn.markClosed()
		h.hub.Disconnect(conn)
	}()

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				_ = conn.Send(EncodeError(CodeMessageTooLarge, "message exceeds 1 MiB"))
				_ = conn.Close(websocket.CloseMessageTooBig, "message too large")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		h.hub.UpdateActivity(conn)
		if !h.hub.CheckRateLimit(conn) {
			if !conn.IsOpen() {
				return
			}
			continue
		}

		h.dispatch(conn, data)
	}
}

func (h *Handler) dispatch(conn *wsConn, data []byte) {
	msg, err := DecodeClientMessage(data)
	if err != nil {
		var ce *CodecError
		if errors.As(err, &ce) {
			_ = conn.Send(EncodeError(ce.Code, ce.Message))
		} else {
			_ = conn.Send(EncodeError(CodeInternalError, "failed to process message"))
		}
		return
	}

	switch msg.Type {
	case MsgJoin:
		h.hub.JoinRoom(conn, msg.Join.DiagramID, msg.Join.Name)
	case MsgLeave:
		h.hub.LeaveRoom(conn)
	case MsgCursor:
		h.hub.UpdateCursor(conn, msg.Cursor.X, msg.Cursor.Y)
	case MsgSelection:
		h.hub.UpdateSelection(conn, msg.Selection.NodeIDs)
	case MsgChange:
		if !h.hub.CanWrite(conn) {
			_ = conn.Send(EncodeError(CodePermissionDenied, "write access required"))
			return
		}
		h.hub.HandleChanges(conn, msg.Change.Changes, msg.Change.BaseVersion)
	case MsgPing:
		_ = conn.Send(encode(pongMsg{Type: MsgPong}))
	}
}
