package eventloop_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/routio/routio/router/eventloop"
)

type pipeHandler struct {
	fd         int
	readable   chan struct{}
	writable   chan struct{}
	errs       chan error
}

func newPipeHandler(fd int) *pipeHandler {
	return &pipeHandler{
		fd:       fd,
		readable: make(chan struct{}, 8),
		writable: make(chan struct{}, 8),
		errs:     make(chan error, 8),
	}
}

func (h *pipeHandler) FD() int { return h.fd }
func (h *pipeHandler) OnReadable() error {
	h.readable <- struct{}{}
	return nil
}
func (h *pipeHandler) OnWritable() error {
	h.writable <- struct{}{}
	return nil
}
func (h *pipeHandler) OnError(err error) {
	h.errs <- err
}

func TestLoopDispatchesReadable(t *testing.T) {
	requireT := require.New(t)

	var fds [2]int
	requireT.NoError(unix.Pipe2(fds[:], unix.O_NONBLOCK))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	l, err := eventloop.New()
	requireT.NoError(err)
	defer l.Close()

	h := newPipeHandler(fds[0])
	requireT.NoError(l.AddHandler(h, true, false))

	_, err = unix.Write(fds[1], []byte("x"))
	requireT.NoError(err)

	again, err := l.Wait(1000)
	requireT.NoError(err)
	requireT.True(again)

	select {
	case <-h.readable:
	default:
		t.Fatal("expected OnReadable to fire")
	}
}

func TestLoopStopInterruptsWait(t *testing.T) {
	requireT := require.New(t)

	l, err := eventloop.New()
	requireT.NoError(err)
	defer l.Close()

	done := make(chan bool, 1)
	go func() {
		again, err := l.Wait(5000)
		requireT.NoError(err)
		done <- again
	}()

	time.Sleep(20 * time.Millisecond)
	l.Stop()

	select {
	case again := <-done:
		requireT.False(again)
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt Wait")
	}
}

func TestRemoveHandlerIdempotent(t *testing.T) {
	requireT := require.New(t)

	var fds [2]int
	requireT.NoError(unix.Pipe2(fds[:], unix.O_NONBLOCK))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	l, err := eventloop.New()
	requireT.NoError(err)
	defer l.Close()

	h := newPipeHandler(fds[0])
	requireT.NoError(l.AddHandler(h, true, false))
	requireT.NoError(l.RemoveHandler(h))
	requireT.NoError(l.RemoveHandler(h))
}
