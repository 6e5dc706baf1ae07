// Package router implements the dispatch core of the routio message bus:
// the event loop driving a local stream-socket listener, the per-peer
// connection state machine, the channel registry, and the control-frame
// dispatcher that ties them together (components C2 through C5).
package router

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/outofforest/logger"
	"github.com/routio/routio/router/eventloop"
	"github.com/routio/routio/wire"
)

// Router is the router daemon's dispatch core: one event loop, one
// listener, and the set of live connections and channels it coordinates.
// A Router must be driven by Run from a single goroutine.
type Router struct {
	config Config
	loop   *eventloop.Loop
	reg    *Registry

	listenFD int

	connections map[uint32]*Connection
	nextPeerID  uint32

	stats       routerStats
	nextStatsAt time.Time
}

type routerStats struct {
	accepted uint64
	rejected uint64
}

// New creates a Router listening on config.SocketPath. The socket file is
// removed and recreated if one already exists at that path.
func New(config Config) (*Router, error) {
	config = config.WithDefaults()

	_ = os.Remove(config.SocketPath)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	addr := &unix.SockaddrUnix{Name: config.SocketPath}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, errors.WithStack(err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, errors.WithStack(err)
	}

	loop, err := eventloop.New()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	r := &Router{
		config:      config,
		loop:        loop,
		listenFD:    fd,
		connections: map[uint32]*Connection{},
	}
	r.reg = NewRegistry(r)
	if config.StatsInterval > 0 {
		r.nextStatsAt = nowFunc().Add(config.StatsInterval)
	}

	if err := loop.AddHandler(&listenerHandler{router: r}, true, false); err != nil {
		unix.Close(fd)
		_ = loop.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the listening socket, event loop, and socket file.
func (r *Router) Close() error {
	err := r.loop.Close()
	unix.Close(r.listenFD)
	_ = os.Remove(r.config.SocketPath)
	return err
}

// Run drives the event loop until ctx is cancelled, then drains
// connections for up to the shutdown limit before returning.
func (r *Router) Run(ctx context.Context) error {
	log := logger.Get(ctx)
	log.Info("Router listening", zap.String("socket", r.config.SocketPath))

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.loop.Stop()
		case <-stopped:
		}
	}()
	defer close(stopped)

	for {
		timeout := r.nextDeadlineMillis()
		again, err := r.loop.Wait(timeout)
		if err != nil {
			return err
		}
		r.checkTimeouts(ctx)
		if !again {
			break
		}
	}

	return r.drainOnShutdown(ctx)
}

func (r *Router) drainOnShutdown(ctx context.Context) error {
	deadline := nowFunc().Add(shutdownDrainLimit)
	for len(r.connections) > 0 && nowFunc().Before(deadline) {
		remaining := int(time.Until(deadline) / time.Millisecond)
		if remaining <= 0 {
			break
		}
		if _, err := r.loop.Wait(remaining); err != nil {
			return err
		}
	}
	for _, c := range r.connections {
		r.killConnection(c)
	}
	logger.Get(ctx).Info("Router drained",
		zap.Uint64("accepted", r.stats.accepted),
		zap.Uint64("rejected", r.stats.rejected))
	return nil
}

// nextDeadlineMillis computes the poll timeout that lets Wait return in
// time for the nearest connection deadline (GREETING timeout, idle PING,
// or PONG wait), folding the timer-handler concept into the main loop's
// wait budget rather than a dedicated timerfd handler (§9 design notes).
func (r *Router) nextDeadlineMillis() int {
	now := nowFunc()
	next := now.Add(time.Second)
	if !r.nextStatsAt.IsZero() && r.nextStatsAt.Before(next) {
		next = r.nextStatsAt
	}

	if len(r.connections) == 0 {
		ms := int(next.Sub(now) / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		return ms
	}

	for _, c := range r.connections {
		if c.state == StateGreeting && c.greetingDeadline.Before(next) {
			next = c.greetingDeadline
		}
		if c.state == StateReady {
			if !c.pongDeadline.IsZero() && c.pongDeadline.Before(next) {
				next = c.pongDeadline
			} else if c.pongDeadline.IsZero() && c.nextPingAt.Before(next) {
				next = c.nextPingAt
			}
		}
	}

	ms := int(next.Sub(now) / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	return ms
}

func (r *Router) checkTimeouts(ctx context.Context) {
	now := nowFunc()
	for _, c := range r.connections {
		switch {
		case c.state == StateGreeting && !now.Before(c.greetingDeadline):
			r.closeWithError(c, wire.ErrMalformed, "HELLO not received in time")
		case c.state == StateReady && !c.pongDeadline.IsZero() && !now.Before(c.pongDeadline):
			r.closeWithError(c, wire.ErrMalformed, "PONG not received in time")
		case c.state == StateReady && c.pongDeadline.IsZero() && !now.Before(c.nextPingAt):
			r.sendPing(c)
		}
	}

	if !r.nextStatsAt.IsZero() && !now.Before(r.nextStatsAt) {
		r.reg.LogState(ctx)
		r.nextStatsAt = now.Add(r.config.StatsInterval)
	}
}

func (r *Router) sendPing(c *Connection) {
	c.pingNonce++
	c.pongDeadline = nowFunc().Add(pongTimeout)
	r.sendControl(c.peerID, wire.KindPing, wire.Nonce{Value: c.pingNonce})
}

func (r *Router) allocatePeerID() uint32 {
	r.nextPeerID++
	return r.nextPeerID
}

func (r *Router) connectionFailed(c *Connection, err error) {
	if errors.Is(err, errEOF) {
		c.beginClosing()
		return
	}
	r.closeWithError(c, wire.ErrMalformed, err.Error())
}

func (r *Router) closeWithError(c *Connection, code wire.ErrorCode, text string) {
	r.sendControl(c.peerID, wire.KindError, wire.ErrorFrame{Code: code, Text: text})
	c.beginClosing()
}

// killConnection tears a connection down fully: removes it from the
// event loop and registry, and closes its file descriptor. Peer ids are
// never reused.
func (r *Router) killConnection(c *Connection) {
	if c.state == StateDead {
		return
	}
	c.state = StateDead
	_ = r.loop.RemoveHandler(c)
	unix.Close(c.fd)
	delete(r.connections, c.peerID)
	r.reg.ForgetPeer(c.peerID)
}

// sendControl implements Notifier for control-frame kinds.
func (r *Router) sendControl(peerID uint32, kind wire.Kind, body frameBody) {
	c, ok := r.connections[peerID]
	if !ok || c.state == StateDead {
		return
	}
	w := wire.NewWriter()
	body.Encode(w)
	c.enqueue(wire.Encode(kind, w.Bytes()))
}

// sendData implements Notifier for the DATA kind, reporting whether the
// frame was accepted.
func (r *Router) sendData(peerID uint32, channelID uint32, payload []byte) bool {
	c, ok := r.connections[peerID]
	if !ok || c.state == StateDead {
		return false
	}
	w := wire.NewWriter()
	wire.Data{ChannelID: channelID, Payload: payload}.Encode(w)
	return c.enqueue(wire.Encode(wire.KindData, w.Bytes()))
}

type listenerHandler struct {
	router *Router
}

func (h *listenerHandler) FD() int { return h.router.listenFD }

func (h *listenerHandler) OnReadable() error {
	r := h.router
	for {
		fd, _, err := unix.Accept4(r.listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return nil
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return errors.WithStack(err)
		}

		if len(r.connections) >= r.config.MaxPeers {
			r.stats.rejected++
			rejectOverload(fd)
			unix.Close(fd)
			continue
		}

		peerID := r.allocatePeerID()
		conn := newConnection(fd, peerID, r)
		r.connections[peerID] = conn
		r.stats.accepted++

		if err := r.loop.AddHandler(conn, true, false); err != nil {
			unix.Close(fd)
			delete(r.connections, peerID)
			continue
		}
		conn.state = StateGreeting
	}
}

// rejectOverload writes a best-effort ERROR{OVERLOAD} frame before
// closing a connection that arrived past the soft peer-count limit. The
// write is opportunistic: the fd is about to be closed regardless.
func rejectOverload(fd int) {
	w := wire.NewWriter()
	wire.ErrorFrame{Code: wire.ErrOverload, Text: "too many peers"}.Encode(w)
	_, _ = unix.Write(fd, wire.Encode(wire.KindError, w.Bytes()))
}

func (h *listenerHandler) OnWritable() error { return nil }

func (h *listenerHandler) OnError(err error) {}
