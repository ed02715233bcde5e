package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ConnState is the connection lifecycle state. Transitions are
// one-directional: connecting -> connected -> closed.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateClosed
)

// Client is one websocket session. Writes to the connection go through
// the bounded send queue and a single writer goroutine, since the
// transport does not allow concurrent writes on one socket.
type Client struct {
	ID     string
	UserID string

	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	srv      *Server
	teardown sync.Once
}

func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Send queues a message for the client without blocking. A full queue
// means the client cannot keep up; it is disconnected rather than
// letting its backlog grow without bound.
func (c *Client) Send(msg []byte) bool {
	if c.State() == StateClosed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.srv.logger.Warn("client send queue overflow, disconnecting",
			zapSession(c)...)
		c.srv.closeClient(c)
		return false
	}
}

// readPump consumes inbound frames and doubles as the connection
// watchdog via read deadlines and pong handling.
func (c *Client) readPump() {
	defer c.srv.closeClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.srv.logger.Warn("websocket read error", zapSessionErr(c, err)...)
			}
			return
		}
		c.srv.handleCommand(c, message)
	}
}

// writePump is the single writer for the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.srv.logger.Warn("websocket write error", zapSessionErr(c, err)...)
				c.srv.closeClient(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.srv.closeClient(c)
				return
			}
		}
	}
}
