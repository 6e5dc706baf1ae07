package wire

// Kind identifies the shape of a frame body (§6).
type Kind uint8

// Frame kinds.
const (
	KindHello Kind = iota + 1
	KindWelcome
	KindPublish
	KindPublishAck
	KindSubscribe
	KindSubscribeAck
	KindUnpublish
	KindUnsubscribe
	KindWatch
	KindUnwatch
	KindData
	KindPresence
	KindError
	KindPing
	KindPong
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "HELLO"
	case KindWelcome:
		return "WELCOME"
	case KindPublish:
		return "PUBLISH"
	case KindPublishAck:
		return "PUBLISH_ACK"
	case KindSubscribe:
		return "SUBSCRIBE"
	case KindSubscribeAck:
		return "SUBSCRIBE_ACK"
	case KindUnpublish:
		return "UNPUBLISH"
	case KindUnsubscribe:
		return "UNSUBSCRIBE"
	case KindWatch:
		return "WATCH"
	case KindUnwatch:
		return "UNWATCH"
	case KindData:
		return "DATA"
	case KindPresence:
		return "PRESENCE"
	case KindError:
		return "ERROR"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// ErrorCode enumerates the ERROR frame dispositions of §4.5/§7.
type ErrorCode uint8

// Error codes carried by an ERROR frame.
const (
	ErrUnknownChannel ErrorCode = iota + 1
	ErrTagMismatch
	ErrNotPublisher
	ErrMalformed
	ErrOverload
)

func (c ErrorCode) String() string {
	switch c {
	case ErrUnknownChannel:
		return "UNKNOWN_CHANNEL"
	case ErrTagMismatch:
		return "TAG_MISMATCH"
	case ErrNotPublisher:
		return "NOT_PUBLISHER"
	case ErrMalformed:
		return "MALFORMED"
	case ErrOverload:
		return "OVERLOAD"
	default:
		return "UNKNOWN"
	}
}

// Role identifies which registry role a PRESENCE notification describes.
type Role uint8

// Presence roles.
const (
	RolePublisher Role = 0
	RoleSubscriber Role = 1
)

// HeaderLen is the length of the u32-length-prefix + u8-kind frame header.
const HeaderLen = 5

// Encode renders kind and body as a complete on-wire frame: the u32
// total_body_length prefix (excluding itself), the kind byte, then body.
func Encode(kind Kind, body []byte) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(body) + 1))
	w.WriteU8(uint8(kind))
	w.WriteBytes(body)
	return w.Bytes()
}

// Split attempts to extract one complete frame from the front of buf. It
// returns ok=false (and no error) when buf does not yet hold a full frame
// and the caller should wait for more bytes. maxBodyLen bounds the
// declared body length against the inbound-frame cap of §5; a violation
// is fatal (Overlong) rather than "need more data".
func Split(buf []byte, maxBodyLen int) (kind Kind, body []byte, consumed int, ok bool, err error) {
	if len(buf) < 4 {
		return 0, nil, 0, false, nil
	}
	r := NewReader(buf[:4], 4)
	bodyLen, _ := r.ReadU32()
	if maxBodyLen > 0 && int(bodyLen) > maxBodyLen {
		return 0, nil, 0, false, errOverlong("declared frame length exceeds maximum")
	}
	total := 4 + int(bodyLen)
	if len(buf) < total {
		return 0, nil, 0, false, nil
	}
	if bodyLen < 1 {
		return 0, nil, 0, false, errTruncated("frame body missing kind byte")
	}
	kind = Kind(buf[4])
	body = buf[5:total]
	return kind, body, total, true, nil
}

// Hello is the HELLO control frame body: C->S peer-name negotiation.
type Hello struct {
	PeerName string
}

// Encode appends the HELLO body to w.
func (m Hello) Encode(w *Writer) { w.WriteString(m.PeerName) }

// DecodeHello decodes a HELLO body.
func DecodeHello(r *Reader) (Hello, error) {
	name, err := r.ReadString()
	if err != nil {
		return Hello{}, err
	}
	return Hello{PeerName: name}, nil
}

// Welcome is the WELCOME control frame body: S->C HELLO acknowledgment.
type Welcome struct {
	PeerID        uint32
	ServerVersion string
}

// Encode appends the WELCOME body to w.
func (m Welcome) Encode(w *Writer) {
	w.WriteU32(m.PeerID)
	w.WriteString(m.ServerVersion)
}

// DecodeWelcome decodes a WELCOME body.
func DecodeWelcome(r *Reader) (Welcome, error) {
	peerID, err := r.ReadU32()
	if err != nil {
		return Welcome{}, err
	}
	version, err := r.ReadString()
	if err != nil {
		return Welcome{}, err
	}
	return Welcome{PeerID: peerID, ServerVersion: version}, nil
}

// ChannelRequest is the shared body of PUBLISH and SUBSCRIBE.
type ChannelRequest struct {
	Channel string
	TypeTag string
}

// Encode appends the body to w.
func (m ChannelRequest) Encode(w *Writer) {
	w.WriteString(m.Channel)
	w.WriteString(m.TypeTag)
}

// DecodeChannelRequest decodes a PUBLISH/SUBSCRIBE body.
func DecodeChannelRequest(r *Reader) (ChannelRequest, error) {
	channel, err := r.ReadString()
	if err != nil {
		return ChannelRequest{}, err
	}
	tag, err := r.ReadString()
	if err != nil {
		return ChannelRequest{}, err
	}
	return ChannelRequest{Channel: channel, TypeTag: tag}, nil
}

// ChannelAck is the shared body of PUBLISH_ACK and SUBSCRIBE_ACK.
type ChannelAck struct {
	ChannelID uint32
}

// Encode appends the body to w.
func (m ChannelAck) Encode(w *Writer) { w.WriteU32(m.ChannelID) }

// DecodeChannelAck decodes a PUBLISH_ACK/SUBSCRIBE_ACK body.
func DecodeChannelAck(r *Reader) (ChannelAck, error) {
	id, err := r.ReadU32()
	if err != nil {
		return ChannelAck{}, err
	}
	return ChannelAck{ChannelID: id}, nil
}

// ChannelRef is the shared body of UNPUBLISH, UNSUBSCRIBE, WATCH, UNWATCH.
type ChannelRef struct {
	ChannelID uint32
}

// Encode appends the body to w.
func (m ChannelRef) Encode(w *Writer) { w.WriteU32(m.ChannelID) }

// DecodeChannelRef decodes an UNPUBLISH/UNSUBSCRIBE/WATCH/UNWATCH body.
func DecodeChannelRef(r *Reader) (ChannelRef, error) {
	id, err := r.ReadU32()
	if err != nil {
		return ChannelRef{}, err
	}
	return ChannelRef{ChannelID: id}, nil
}

// Data is the DATA frame body carrying an opaque payload for a channel.
type Data struct {
	ChannelID uint32
	Payload   []byte
}

// Encode appends the body to w.
func (m Data) Encode(w *Writer) {
	w.WriteU32(m.ChannelID)
	w.WriteLenBytes(m.Payload)
}

// DecodeData decodes a DATA body.
func DecodeData(r *Reader) (Data, error) {
	id, err := r.ReadU32()
	if err != nil {
		return Data{}, err
	}
	payload, err := r.ReadLenBytes()
	if err != nil {
		return Data{}, err
	}
	return Data{ChannelID: id, Payload: payload}, nil
}

// Presence is the asynchronous S->C watcher notification.
type Presence struct {
	ChannelID uint32
	PeerID    uint32
	Role      Role
	Joined    bool
}

// Encode appends the body to w.
func (m Presence) Encode(w *Writer) {
	w.WriteU32(m.ChannelID)
	w.WriteU32(m.PeerID)
	w.WriteU8(uint8(m.Role))
	w.WriteBool(m.Joined)
}

// DecodePresence decodes a PRESENCE body.
func DecodePresence(r *Reader) (Presence, error) {
	chID, err := r.ReadU32()
	if err != nil {
		return Presence{}, err
	}
	peerID, err := r.ReadU32()
	if err != nil {
		return Presence{}, err
	}
	role, err := r.ReadU8()
	if err != nil {
		return Presence{}, err
	}
	joined, err := r.ReadBool()
	if err != nil {
		return Presence{}, err
	}
	return Presence{ChannelID: chID, PeerID: peerID, Role: Role(role), Joined: joined}, nil
}

// ErrorFrame is the S->C ERROR frame body.
type ErrorFrame struct {
	Code ErrorCode
	Text string
}

// Encode appends the body to w.
func (m ErrorFrame) Encode(w *Writer) {
	w.WriteU8(uint8(m.Code))
	w.WriteString(m.Text)
}

// DecodeErrorFrame decodes an ERROR body.
func DecodeErrorFrame(r *Reader) (ErrorFrame, error) {
	code, err := r.ReadU8()
	if err != nil {
		return ErrorFrame{}, err
	}
	text, err := r.ReadString()
	if err != nil {
		return ErrorFrame{}, err
	}
	return ErrorFrame{Code: ErrorCode(code), Text: text}, nil
}

// Ping/Pong share a liveness-nonce body.
type Nonce struct {
	Value uint64
}

// Encode appends the body to w.
func (m Nonce) Encode(w *Writer) { w.WriteU64(m.Value) }

// DecodeNonce decodes a PING/PONG body.
func DecodeNonce(r *Reader) (Nonce, error) {
	v, err := r.ReadU64()
	if err != nil {
		return Nonce{}, err
	}
	return Nonce{Value: v}, nil
}
