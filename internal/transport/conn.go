package transport

import (
	"errors"
	"sync"

	"github.com/coder/websocket"
)

var (
	ErrClosed   = errors.New("connection closed")
	ErrOverflow = errors.New("send buffer full")
)

// conn is a broadcast.Client backed by a WebSocket. Send only enqueues; the
// connection's write loop does the network I/O.
type conn struct {
	id  string
	ws  *websocket.Conn
	out chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(id string, ws *websocket.Conn, buffer int) *conn {
	return &conn{
		id:   id,
		ws:   ws,
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return ErrOverflow
	}
}

func (c *conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
