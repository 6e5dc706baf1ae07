// Package eventloop implements a single-threaded, readiness-based
// multiplexer (component C2): one goroutine drives epoll directly over
// raw, non-blocking file descriptors so the router's dispatch core never
// needs locks.
package eventloop

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Handler is a capability set the loop drives on readiness. The set of
// concrete kinds (listener, connection) is closed; realize new
// handler behavior by implementing this interface rather than growing an
// open-ended class hierarchy.
type Handler interface {
	// FD returns the handler's readiness file descriptor.
	FD() int
	// OnReadable is invoked when the fd is readable. Runs to completion
	// without preemption; the loop will not reenter this handler
	// concurrently with itself.
	OnReadable() error
	// OnWritable is invoked when the fd is writable and the handler has
	// requested write-readiness via AddHandler or SetInterest.
	OnWritable() error
	// OnError is invoked when epoll reports a hangup or error condition
	// for the fd, or when OnReadable/OnWritable returns a fatal error.
	OnError(err error)
}

// Loop is a single epoll instance. A Loop must be driven by exactly one
// goroutine calling Wait in a loop; AddHandler/RemoveHandler/SetInterest
// are called from that same goroutine, typically during a callback, and
// take effect on the next Wait. They are not synchronized and do not wake
// a blocked Wait; Stop is the only method meant for another goroutine.
type Loop struct {
	epfd int

	// wakeR/wakeW is a pipe Stop writes to so that a blocking epoll_wait
	// returns promptly.
	wakeR int
	wakeW int

	handlers    map[int]Handler
	terminating bool
}

// New creates an empty Loop backed by a fresh epoll instance.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	fds, err := unixPipe2()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	l := &Loop{
		epfd:     epfd,
		wakeR:    fds[0],
		wakeW:    fds[1],
		handlers: map[int]Handler{},
	}

	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(l.wakeR)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, l.wakeR, &event); err != nil {
		l.Close()
		return nil, errors.WithStack(err)
	}

	return l, nil
}

func unixPipe2() ([2]int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return [2]int{}, errors.WithStack(err)
	}
	return fds, nil
}

// Close releases the epoll instance and wake pipe. Registered handlers
// are not closed; the caller owns their lifecycle.
func (l *Loop) Close() error {
	unix.Close(l.wakeR)
	unix.Close(l.wakeW)
	return errors.WithStack(unix.Close(l.epfd))
}

// AddHandler registers h for the readiness conditions selected by
// readable and/or writable.
func (l *Loop) AddHandler(h Handler, readable, writable bool) error {
	event := unix.EpollEvent{Events: interestMask(readable, writable), Fd: int32(h.FD())}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, h.FD(), &event); err != nil {
		return errors.WithStack(err)
	}
	l.handlers[h.FD()] = h
	return nil
}

// RemoveHandler unregisters h. Idempotent: removing an fd that is not
// registered (or already removed) is not an error.
func (l *Loop) RemoveHandler(h Handler) error {
	delete(l.handlers, h.FD())
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, h.FD(), nil); err != nil &&
		!errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return errors.WithStack(err)
	}
	return nil
}

func interestMask(readable, writable bool) uint32 {
	var events uint32
	if readable {
		events |= unix.EPOLLIN
	}
	if writable {
		events |= unix.EPOLLOUT
	}
	return events
}

// SetInterest changes which readiness conditions an already-registered
// handler is notified for, used when a connection stops accepting
// inbound frames (CLOSING) or when its outbound queue transitions
// between empty and non-empty.
func (l *Loop) SetInterest(h Handler, readable, writable bool) error {
	event := unix.EpollEvent{Events: interestMask(readable, writable), Fd: int32(h.FD())}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, h.FD(), &event); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Stop marks the loop as terminating; the next Wait call (waking it if
// currently blocked) returns false.
func (l *Loop) Stop() {
	l.terminating = true
	l.wake()
}

func (l *Loop) wake() {
	var b [1]byte
	_, _ = unix.Write(l.wakeW, b[:])
}

const maxEpollEvents = 128

// Wait blocks up to timeoutMs milliseconds for readiness on any
// registered handler, dispatches the corresponding callbacks, and
// returns. It returns (false, nil) once Stop has been called and
// observed; later calls still poll and dispatch, so a caller can keep
// calling Wait to drain remaining work. A negative timeoutMs blocks
// indefinitely; zero polls without blocking.
func (l *Loop) Wait(timeoutMs int) (bool, error) {
	var events [maxEpollEvents]unix.EpollEvent
	n, err := unix.EpollWait(l.epfd, events[:], timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return true, nil
		}
		return false, errors.WithStack(err)
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == l.wakeR {
			drainWake(l.wakeR)
			continue
		}

		h, ok := l.handlers[fd]
		if !ok {
			continue
		}

		ev := events[i].Events
		if ev&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			h.OnError(errors.New("fd hangup or error"))
			continue
		}
		if ev&unix.EPOLLIN != 0 {
			if err := h.OnReadable(); err != nil {
				h.OnError(err)
				continue
			}
		}
		if ev&unix.EPOLLOUT != 0 {
			if err := h.OnWritable(); err != nil {
				h.OnError(err)
			}
		}
	}

	if l.terminating {
		return false, nil
	}
	return true, nil
}

func drainWake(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
