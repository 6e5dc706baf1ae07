package router

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/routio/routio/wire"
)

// ConnState is a connection's position in the state machine of §4.3.
type ConnState int

// Connection states.
const (
	StateNew ConnState = iota
	StateGreeting
	StateReady
	StateClosing
	StateDead
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateGreeting:
		return "GREETING"
	case StateReady:
		return "READY"
	case StateClosing:
		return "CLOSING"
	case StateDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

type frameBody interface {
	Encode(w *wire.Writer)
}

// Connection is the per-peer state machine of §4.3: inbound frame
// reassembly, outbound queue with a bounded byte cap, and liveness
// bookkeeping. A Connection is driven exclusively by the Router's single
// event-loop goroutine; it holds no locks.
type Connection struct {
	fd     int
	router *Router

	peerID   uint32
	peerName string
	state    ConnState

	inbound         []byte
	maxInboundFrame int

	outbound      []byte
	outboundWrite int
	outboundCap   int
	writable      bool

	greetingDeadline time.Time
	nextPingAt       time.Time
	pongDeadline     time.Time
	pingNonce        uint64
}

func newConnection(fd int, peerID uint32, router *Router) *Connection {
	now := nowFunc()
	return &Connection{
		fd:               fd,
		router:           router,
		peerID:           peerID,
		state:            StateNew,
		maxInboundFrame:  router.config.MaxInboundFrame,
		outboundCap:      router.config.MaxOutboundBuffer,
		greetingDeadline: now.Add(greetingTimeout),
		nextPingAt:       now.Add(idlePingInterval),
	}
}

// FD implements eventloop.Handler.
func (c *Connection) FD() int { return c.fd }

// OnReadable implements eventloop.Handler: it reads as many bytes as are
// immediately available, splits out complete frames, and hands each to
// the router's dispatch core.
func (c *Connection) OnReadable() error {
	if c.state == StateClosing || c.state == StateDead {
		return nil
	}

	var buf [64 * 1024]byte
	for {
		n, err := unix.Read(c.fd, buf[:])
		if n > 0 {
			c.inbound = append(c.inbound, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				break
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return errors.WithStack(err)
		}
		if n == 0 {
			// Peer closed its write side.
			return errEOF
		}
		if n < len(buf) {
			break
		}
	}

	return c.drainInbound()
}

var errEOF = errors.New("connection closed by peer")

func (c *Connection) drainInbound() error {
	for {
		kind, body, consumed, ok, err := wire.Split(c.inbound, c.maxInboundFrame)
		if err != nil {
			return err
		}
		if !ok {
			if len(c.inbound) > c.maxInboundFrame+wire.HeaderLen {
				return errors.New("inbound frame exceeds maximum length")
			}
			return nil
		}

		c.inbound = c.inbound[consumed:]

		if err := c.router.handleFrame(c, kind, body); err != nil {
			return err
		}
		if c.state != StateReady && c.state != StateGreeting {
			return nil
		}
	}
}

// OnWritable implements eventloop.Handler: it flushes as much of the
// outbound buffer as the socket will currently accept.
func (c *Connection) OnWritable() error {
	for c.outboundWrite < len(c.outbound) {
		n, err := unix.Write(c.fd, c.outbound[c.outboundWrite:])
		if n > 0 {
			c.outboundWrite += n
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				break
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return errors.WithStack(err)
		}
	}

	if c.outboundWrite == len(c.outbound) {
		c.outbound = c.outbound[:0]
		c.outboundWrite = 0
		if c.writable {
			c.writable = false
			_ = c.router.loop.SetInterest(c, c.state != StateClosing, false)
		}
		if c.state == StateClosing {
			c.router.killConnection(c)
		}
	}

	return nil
}

// OnError implements eventloop.Handler.
func (c *Connection) OnError(err error) {
	c.router.connectionFailed(c, err)
}

// queuedBytes returns the number of bytes still pending in the outbound
// buffer.
func (c *Connection) queuedBytes() int {
	return len(c.outbound) - c.outboundWrite
}

// enqueue appends an already wire-encoded frame to the outbound buffer.
// It returns false (and drops the frame) if doing so would exceed the
// connection's outbound byte cap (§4.3 slow-consumer policy); the caller
// is never blocked.
func (c *Connection) enqueue(frame []byte) bool {
	if c.state == StateDead {
		return false
	}
	if c.queuedBytes()+len(frame) > c.outboundCap {
		return false
	}

	c.outbound = append(c.outbound, frame...)
	if !c.writable {
		c.writable = true
		_ = c.router.loop.SetInterest(c, c.state != StateClosing, true)
	}
	return true
}

// beginClosing transitions the connection to CLOSING: no further inbound
// frames are processed, but the outbound buffer already queued continues
// draining up to its existing cap.
func (c *Connection) beginClosing() {
	if c.state == StateClosing || c.state == StateDead {
		return
	}
	c.state = StateClosing
	if c.queuedBytes() == 0 {
		c.router.killConnection(c)
		return
	}
	_ = c.router.loop.SetInterest(c, false, true)
}
