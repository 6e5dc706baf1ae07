package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/routio/routio/wire"
)

func TestFrameSplitRoundTrip(t *testing.T) {
	requireT := require.New(t)

	bodyW := wire.NewWriter()
	wire.Data{ChannelID: 7, Payload: []byte("hi")}.Encode(bodyW)
	frame := wire.Encode(wire.KindData, bodyW.Bytes())

	kind, body, consumed, ok, err := wire.Split(frame, 0)
	requireT.NoError(err)
	requireT.True(ok)
	requireT.Equal(len(frame), consumed)
	requireT.Equal(wire.KindData, kind)

	r := wire.NewReader(body, 0)
	data, err := wire.DecodeData(r)
	requireT.NoError(err)
	requireT.Equal(uint32(7), data.ChannelID)
	requireT.Equal([]byte("hi"), data.Payload)
}

func TestFrameSplitNeedsMoreData(t *testing.T) {
	requireT := require.New(t)

	bodyW := wire.NewWriter()
	wire.Hello{PeerName: "alice"}.Encode(bodyW)
	frame := wire.Encode(wire.KindHello, bodyW.Bytes())

	_, _, _, ok, err := wire.Split(frame[:len(frame)-1], 0)
	requireT.NoError(err)
	requireT.False(ok)

	_, _, _, ok, err = wire.Split(frame[:2], 0)
	requireT.NoError(err)
	requireT.False(ok)
}

func TestFrameSplitOverlong(t *testing.T) {
	requireT := require.New(t)

	bodyW := wire.NewWriter()
	wire.Hello{PeerName: "alice"}.Encode(bodyW)
	frame := wire.Encode(wire.KindHello, bodyW.Bytes())

	_, _, _, _, err := wire.Split(frame, 4)
	requireT.Error(err)

	var decErr *wire.DecodeError
	requireT.ErrorAs(err, &decErr)
	requireT.Equal(wire.Overlong, decErr.Kind)
}

func TestFrameSplitMultiple(t *testing.T) {
	requireT := require.New(t)

	f1 := wire.Encode(wire.KindPing, func() []byte {
		w := wire.NewWriter()
		wire.Nonce{Value: 42}.Encode(w)
		return w.Bytes()
	}())
	f2 := wire.Encode(wire.KindPong, func() []byte {
		w := wire.NewWriter()
		wire.Nonce{Value: 42}.Encode(w)
		return w.Bytes()
	}())

	buf := append(append([]byte{}, f1...), f2...)

	kind, body, consumed, ok, err := wire.Split(buf, 0)
	requireT.NoError(err)
	requireT.True(ok)
	requireT.Equal(wire.KindPing, kind)
	n1, err := wire.DecodeNonce(wire.NewReader(body, 0))
	requireT.NoError(err)
	requireT.Equal(uint64(42), n1.Value)

	buf = buf[consumed:]
	kind, body, consumed, ok, err = wire.Split(buf, 0)
	requireT.NoError(err)
	requireT.True(ok)
	requireT.Equal(wire.KindPong, kind)
	requireT.Equal(len(buf), consumed)
	n2, err := wire.DecodeNonce(wire.NewReader(body, 0))
	requireT.NoError(err)
	requireT.Equal(uint64(42), n2.Value)
}
