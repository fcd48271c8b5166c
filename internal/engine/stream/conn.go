package stream

import (
	"context"
	"errors"
	"time"
)

// MessageWriter is the transport half of a connection. The websocket handler
// supplies one backed by the socket; tests supply a channel-backed one.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg Message) error
}

var (
	errConnClosed = errors.New("stream: connection closed")
	errBufferFull = errors.New("stream: send buffer full")
)

// Conn is one live duplex connection. It owns a buffered outbound queue
// drained by a single write loop, and exactly one periodic-update scheduler
// task tied to its context.
type Conn struct {
	ID       string
	Identity string
	OpenedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	out    chan Message
	writer MessageWriter
}

func newConn(id, identity string, writer MessageWriter, buffer int) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ID:       id,
		Identity: identity,
		OpenedAt: time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		out:      make(chan Message, buffer),
		writer:   writer,
	}
}

// Done is closed when the connection is torn down. The read loop and the
// scheduler both watch it.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Conn) closed() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// enqueue hands a message to the write loop. It never blocks: a full queue
// or a closed connection returns an error instead.
func (c *Conn) enqueue(msg Message) error {
	select {
	case <-c.ctx.Done():
		return errConnClosed
	default:
	}

	select {
	case c.out <- msg:
		return nil
	case <-c.ctx.Done():
		return errConnClosed
	default:
		return errBufferFull
	}
}

// writeLoop is the only goroutine touching the underlying transport. A write
// failure cancels the connection.
func (c *Conn) writeLoop(onExit func()) {
	defer onExit()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.out:
			if err := c.writer.WriteMessage(c.ctx, msg); err != nil {
				c.cancel()
				return
			}
		}
	}
}
