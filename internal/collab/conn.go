package collab

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MaxMessageSize caps inbound frames before the codec runs.
const MaxMessageSize = 1 << 20 // 1 MiB

// writeTimeout bounds a single frame write so a wedged peer cannot hold the
// writer goroutine forever.
const writeTimeout = 5 * time.Second

// outboundQueueSize bounds the per-connection send queue. A peer that falls
// this far behind is severed rather than allowed to stall its room.
const outboundQueueSize = 64

// errSlowConsumer is returned by Send when the outbound queue is full.
var errSlowConsumer = errors.New("outbound queue full, connection severed")

// wsConn adapts a gorilla websocket connection to the hub's Conn interface.
// Send enqueues onto a bounded channel drained by a single writer goroutine,
// so hub broadcasts never block on the network; gorilla's one-writer rule is
// satisfied by that goroutine owning all data frames.
type wsConn struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	open   bool
	userID string
	role   string

	outbound  chan string
	done      chan struct{}
	closeOnce sync.Once
}

var _ Conn = (*wsConn)(nil)

// newWSConn wraps an upgraded connection carrying the authenticated
// identity. Empty userID means anonymous.
func newWSConn(ws *websocket.Conn, userID, role string) *wsConn {
	ws.SetReadLimit(MaxMessageSize)
	c := &wsConn{
		ws:       ws,
		open:     true,
		userID:   userID,
		role:     role,
		outbound: make(chan string, outboundQueueSize),
		done:     make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// writeLoop drains the outbound queue onto the socket until the connection
// is closed or a write fails.
func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.outbound:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				c.markClosed()
				return
			}
		}
	}
}

// Send enqueues one frame. It never blocks: a full queue means the peer
// cannot keep up, and the connection is severed on the spot.
func (c *wsConn) Send(msg string) error {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return websocket.ErrCloseSent
	}
	select {
	case c.outbound <- msg:
		return nil
	default:
		c.markClosed()
		return errSlowConsumer
	}
}

func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	c.mu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	c.stop()
	return c.ws.Close()
}

func (c *wsConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *wsConn) Identity() (string, string) {
	return c.userID, c.role
}

// markClosed flips the open flag without writing a close frame, for when the
// peer already went away or fell too far behind.
func (c *wsConn) markClosed() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.stop()
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// stop terminates the writer goroutine. Idempotent.
func (c *wsConn) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}
