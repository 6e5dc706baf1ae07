package router

import (
	"encoding/binary"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/parallel"
	"github.com/outofforest/qa"

	"github.com/routio/routio/wire"
)

// startRouter boots a Router against a fresh socket under the test's temp
// dir, drives it with the same qa/parallel supervision style as the rest
// of the corpus, and tears it down on test cleanup. The returned stop
// func lets a test halt the router's event-loop goroutine early, which is
// required before any test reads Router-owned state directly (it is
// documented as single-goroutine-owned, same as the rest of this
// package).
func startRouter(t *testing.T, cfg Config) (r *Router, socketPath string, stop func()) {
	t.Helper()

	socketPath = filepath.Join(t.TempDir(), "routio.sock")
	cfg.SocketPath = socketPath

	r, err := New(cfg)
	require.NoError(t, err)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)
	group.Spawn("router", parallel.Fail, r.Run)

	var once sync.Once
	stop = func() {
		once.Do(func() {
			group.Exit(nil)
			require.NoError(t, group.Wait())
			require.NoError(t, r.Close())
		})
	}
	t.Cleanup(stop)

	return r, socketPath, stop
}

// testClient is a minimal hand-rolled wire client: just enough framing to
// drive a Router from the outside without depending on the generated
// bindings under test elsewhere in this module.
type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dialTestClient(t *testing.T, socketPath, peerName string) (*testClient, uint32) {
	t.Helper()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	tc := &testClient{t: t, conn: conn}
	tc.send(wire.KindHello, wire.Hello{PeerName: peerName})

	kind, body := tc.recv()
	require.Equal(t, wire.KindWelcome, kind)
	welcome, err := wire.DecodeWelcome(wire.NewReader(body, 0))
	require.NoError(t, err)
	return tc, welcome.PeerID
}

func (tc *testClient) send(kind wire.Kind, body interface{ Encode(*wire.Writer) }) {
	tc.t.Helper()
	w := wire.NewWriter()
	body.Encode(w)
	_, err := tc.conn.Write(wire.Encode(kind, w.Bytes()))
	require.NoError(tc.t, err)
}

// recv blocks for one frame, failing the test if none arrives in time.
func (tc *testClient) recv() (wire.Kind, []byte) {
	tc.t.Helper()
	require.NoError(tc.t, tc.conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var lenBuf [4]byte
	_, err := io.ReadFull(tc.conn, lenBuf[:])
	require.NoError(tc.t, err)

	rest := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	_, err = io.ReadFull(tc.conn, rest)
	require.NoError(tc.t, err)

	return wire.Kind(rest[0]), rest[1:]
}

// expectNothing asserts no frame arrives within a short window.
func (tc *testClient) expectNothing(t *testing.T) {
	t.Helper()
	require.NoError(t, tc.conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var b [1]byte
	_, err := tc.conn.Read(b[:])
	require.Error(t, err, "expected no frame to arrive")
}

func TestSoloPublishBeforeSubscribeThenDeliver(t *testing.T) {
	_, socketPath, _ := startRouter(t, Config{})

	pub, pubID := dialTestClient(t, socketPath, "pub")
	_ = pubID

	pub.send(wire.KindPublish, wire.ChannelRequest{Channel: "topic", TypeTag: "TAG"})
	kind, body := pub.recv()
	require.Equal(t, wire.KindPublishAck, kind)
	ack, err := wire.DecodeChannelAck(wire.NewReader(body, 0))
	require.NoError(t, err)

	// Publish before anyone subscribes: accepted, delivered to nobody.
	pub.send(wire.KindData, wire.Data{ChannelID: ack.ChannelID, Payload: []byte("before")})

	sub, _ := dialTestClient(t, socketPath, "sub")
	sub.send(wire.KindSubscribe, wire.ChannelRequest{Channel: "topic", TypeTag: "TAG"})
	kind, body = sub.recv()
	require.Equal(t, wire.KindSubscribeAck, kind)
	subAck, err := wire.DecodeChannelAck(wire.NewReader(body, 0))
	require.NoError(t, err)
	require.Equal(t, ack.ChannelID, subAck.ChannelID)

	// No backlog: the pre-subscription message never arrives.
	pub.send(wire.KindData, wire.Data{ChannelID: ack.ChannelID, Payload: []byte("after")})
	kind, body = sub.recv()
	require.Equal(t, wire.KindData, kind)
	data, err := wire.DecodeData(wire.NewReader(body, 0))
	require.NoError(t, err)
	require.Equal(t, []byte("after"), data.Payload)

	sub.expectNothing(t)
}

func TestTagMismatchReturnsAdvisoryError(t *testing.T) {
	_, socketPath, _ := startRouter(t, Config{})

	pub, _ := dialTestClient(t, socketPath, "pub")
	pub.send(wire.KindPublish, wire.ChannelRequest{Channel: "t2", TypeTag: "TAG"})
	kind, _ := pub.recv()
	require.Equal(t, wire.KindPublishAck, kind)

	sub, _ := dialTestClient(t, socketPath, "sub")
	sub.send(wire.KindSubscribe, wire.ChannelRequest{Channel: "t2", TypeTag: "OTHER"})
	kind, body := sub.recv()
	require.Equal(t, wire.KindError, kind)
	errFrame, err := wire.DecodeErrorFrame(wire.NewReader(body, 0))
	require.NoError(t, err)
	require.Equal(t, wire.ErrTagMismatch, errFrame.Code)

	// The mismatch is advisory: the connection stays usable.
	sub.send(wire.KindSubscribe, wire.ChannelRequest{Channel: "t2", TypeTag: "TAG"})
	kind, _ = sub.recv()
	require.Equal(t, wire.KindSubscribeAck, kind)
}

func TestWatcherReceivesPresenceOnJoinAndLeave(t *testing.T) {
	_, socketPath, _ := startRouter(t, Config{})

	pub, _ := dialTestClient(t, socketPath, "pub")
	pub.send(wire.KindPublish, wire.ChannelRequest{Channel: "watched", TypeTag: "TAG"})
	_, body := pub.recv()
	ack, err := wire.DecodeChannelAck(wire.NewReader(body, 0))
	require.NoError(t, err)

	watcher, watcherID := dialTestClient(t, socketPath, "watcher")
	watcher.send(wire.KindWatch, wire.ChannelRef{ChannelID: ack.ChannelID})

	sub, subID := dialTestClient(t, socketPath, "sub")
	sub.send(wire.KindSubscribe, wire.ChannelRequest{Channel: "watched", TypeTag: "TAG"})
	kind, _ := sub.recv()
	require.Equal(t, wire.KindSubscribeAck, kind)

	kind, body = watcher.recv()
	require.Equal(t, wire.KindPresence, kind)
	presence, err := wire.DecodePresence(wire.NewReader(body, 0))
	require.NoError(t, err)
	require.Equal(t, wire.RoleSubscriber, presence.Role)
	require.True(t, presence.Joined)
	require.Equal(t, subID, presence.PeerID)

	sub.send(wire.KindUnsubscribe, wire.ChannelRef{ChannelID: ack.ChannelID})
	kind, body = watcher.recv()
	require.Equal(t, wire.KindPresence, kind)
	presence, err = wire.DecodePresence(wire.NewReader(body, 0))
	require.NoError(t, err)
	require.False(t, presence.Joined)

	// UNWATCH stops further notifications.
	watcher.send(wire.KindUnwatch, wire.ChannelRef{ChannelID: ack.ChannelID})
	pub.send(wire.KindUnpublish, wire.ChannelRef{ChannelID: ack.ChannelID})
	watcher.expectNothing(t)
	_ = watcherID
}

func TestSlowConsumerDropsExcessData(t *testing.T) {
	r, socketPath, stop := startRouter(t, Config{MaxOutboundBuffer: 30})

	pub, _ := dialTestClient(t, socketPath, "pub")
	pub.send(wire.KindPublish, wire.ChannelRequest{Channel: "bulk", TypeTag: "TAG"})
	_, body := pub.recv()
	ack, err := wire.DecodeChannelAck(wire.NewReader(body, 0))
	require.NoError(t, err)

	sub, _ := dialTestClient(t, socketPath, "sub")
	sub.send(wire.KindSubscribe, wire.ChannelRequest{Channel: "bulk", TypeTag: "TAG"})
	kind, _ := sub.recv()
	require.Equal(t, wire.KindSubscribeAck, kind)

	// Write every DATA frame in a single syscall so the router drains
	// them all from one OnReadable call, before its event loop gets a
	// chance to flush any of them to the subscriber in between.
	w := wire.NewWriter()
	dataBody := wire.NewWriter()
	wire.Data{ChannelID: ack.ChannelID, Payload: []byte("0123456789")}.Encode(dataBody)
	frameSize := wire.HeaderLen + dataBody.Len()
	for i := 0; i < 5; i++ {
		w.WriteBytes(wire.Encode(wire.KindData, dataBody.Bytes()))
	}
	_, err = pub.conn.Write(w.Bytes())
	require.NoError(t, err)

	kind, body = sub.recv()
	require.Equal(t, wire.KindData, kind)
	data, err := wire.DecodeData(wire.NewReader(body, 0))
	require.NoError(t, err)
	require.Equal(t, []byte("0123456789"), data.Payload)
	sub.expectNothing(t)

	// Stop the event loop before touching Router-owned state directly;
	// it is single-goroutine-owned while Run is active.
	stop()

	ch, ok := r.reg.ChannelByID(ack.ChannelID)
	require.True(t, ok)
	require.EqualValues(t, 5*frameSize, ch.Received)
	require.EqualValues(t, 4, ch.Dropped)
}
