package router

import (
	"github.com/pkg/errors"

	"github.com/routio/routio/wire"
)

// handleFrame is the dispatch core (C5): it interprets one decoded
// control or data frame from c and mutates the registry or connection
// state accordingly. A returned error is always treated as fatal for c;
// the caller (Connection.drainInbound, via connectionFailed) closes the
// connection with ERROR{MALFORMED}.
func (r *Router) handleFrame(c *Connection, kind wire.Kind, body []byte) error {
	if c.state == StateGreeting {
		if kind != wire.KindHello {
			return errors.Errorf("expected HELLO, got %s", kind)
		}
		return r.handleHello(c, body)
	}

	switch kind {
	case wire.KindPublish:
		return r.handlePublish(c, body)
	case wire.KindSubscribe:
		return r.handleSubscribe(c, body)
	case wire.KindUnpublish:
		return r.handleUnpublish(c, body)
	case wire.KindUnsubscribe:
		return r.handleUnsubscribe(c, body)
	case wire.KindWatch:
		return r.handleWatch(c, body)
	case wire.KindUnwatch:
		return r.handleUnwatch(c, body)
	case wire.KindData:
		return r.handleData(c, body)
	case wire.KindPing:
		return r.handlePing(c, body)
	case wire.KindPong:
		return r.handlePong(c, body)
	default:
		return errors.Errorf("unexpected frame kind %s in state %s", kind, c.state)
	}
}

func (r *Router) handleHello(c *Connection, body []byte) error {
	hello, err := wire.DecodeHello(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}
	c.peerName = hello.PeerName
	c.state = StateReady

	r.sendControl(c.peerID, wire.KindWelcome, wire.Welcome{
		PeerID:        c.peerID,
		ServerVersion: r.config.ServerVersion,
	})
	return nil
}

func (r *Router) handlePublish(c *Connection, body []byte) error {
	req, err := wire.DecodeChannelRequest(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}

	id, err := r.reg.PublishRegister(c.peerID, req.Channel, req.TypeTag)
	if err != nil {
		r.sendControl(c.peerID, wire.KindError, wire.ErrorFrame{
			Code: wire.ErrTagMismatch,
			Text: "channel already registered with a different type tag",
		})
		return nil
	}
	r.sendControl(c.peerID, wire.KindPublishAck, wire.ChannelAck{ChannelID: id})
	return nil
}

func (r *Router) handleSubscribe(c *Connection, body []byte) error {
	req, err := wire.DecodeChannelRequest(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}

	id, err := r.reg.Subscribe(c.peerID, req.Channel, req.TypeTag)
	if err != nil {
		r.sendControl(c.peerID, wire.KindError, wire.ErrorFrame{
			Code: wire.ErrTagMismatch,
			Text: "channel already registered with a different type tag",
		})
		return nil
	}
	r.sendControl(c.peerID, wire.KindSubscribeAck, wire.ChannelAck{ChannelID: id})
	return nil
}

func (r *Router) handleUnpublish(c *Connection, body []byte) error {
	ref, err := wire.DecodeChannelRef(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}
	if ch, ok := r.reg.ChannelByID(ref.ChannelID); ok {
		r.reg.PublishUnregister(c.peerID, ch.Name)
	}
	return nil
}

func (r *Router) handleUnsubscribe(c *Connection, body []byte) error {
	ref, err := wire.DecodeChannelRef(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}
	if ch, ok := r.reg.ChannelByID(ref.ChannelID); ok {
		r.reg.Unsubscribe(c.peerID, ch.Name)
	}
	return nil
}

func (r *Router) handleWatch(c *Connection, body []byte) error {
	ref, err := wire.DecodeChannelRef(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}
	r.reg.WatchByID(c.peerID, ref.ChannelID)
	return nil
}

func (r *Router) handleUnwatch(c *Connection, body []byte) error {
	ref, err := wire.DecodeChannelRef(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}
	r.reg.UnwatchByID(c.peerID, ref.ChannelID)
	return nil
}

func (r *Router) handleData(c *Connection, body []byte) error {
	data, err := wire.DecodeData(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}
	r.reg.Deliver(data.ChannelID, c.peerID, data.Payload, wire.HeaderLen+len(body))
	return nil
}

func (r *Router) handlePing(c *Connection, body []byte) error {
	n, err := wire.DecodeNonce(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}
	r.sendControl(c.peerID, wire.KindPong, n)
	return nil
}

func (r *Router) handlePong(c *Connection, body []byte) error {
	_, err := wire.DecodeNonce(wire.NewReader(body, r.config.MaxInboundFrame))
	if err != nil {
		return err
	}
	c.pongDeadline = timeZero
	c.nextPingAt = nowFunc().Add(idlePingInterval)
	return nil
}
