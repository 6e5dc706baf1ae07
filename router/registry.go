package router

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/routio/routio/wire"
)

// ErrTagMismatch is returned by PublishRegister/Subscribe when a channel
// already carries a different type_tag than the one requested.
var ErrTagMismatch = errors.New("type tag mismatch")

// Channel is a named communication endpoint (§3). Subscriber order is the
// order subscriptions were registered, which Deliver replays exactly.
type Channel struct {
	ID      uint32
	Name    string
	TypeTag string

	publishers  map[uint32]struct{}
	subscribers []uint32
	subIndex    map[uint32]int
	watchers    map[uint32]struct{}

	// Dropped counts DATA frames this channel delivered to a subscriber
	// whose outbound buffer was full (§4.3 slow-consumer policy).
	Dropped uint64
	// Received counts on-wire frame bytes accepted from a registered
	// publisher, regardless of whether any subscriber was present to
	// receive them (§8 scenario 1: the inbound byte counter increments by
	// frame size, not payload size).
	Received uint64
}

func newChannel(id uint32, name, typeTag string) *Channel {
	return &Channel{
		ID:         id,
		Name:       name,
		TypeTag:    typeTag,
		publishers: map[uint32]struct{}{},
		subIndex:   map[uint32]int{},
		watchers:   map[uint32]struct{}{},
	}
}

func (c *Channel) empty() bool {
	return len(c.publishers) == 0 && len(c.subscribers) == 0 && len(c.watchers) == 0
}

func (c *Channel) addSubscriber(peer uint32) {
	if _, ok := c.subIndex[peer]; ok {
		return
	}
	c.subIndex[peer] = len(c.subscribers)
	c.subscribers = append(c.subscribers, peer)
}

func (c *Channel) removeSubscriber(peer uint32) {
	idx, ok := c.subIndex[peer]
	if !ok {
		return
	}
	delete(c.subIndex, peer)
	c.subscribers = append(c.subscribers[:idx], c.subscribers[idx+1:]...)
	for p, i := range c.subIndex {
		if i > idx {
			c.subIndex[p] = i - 1
		}
	}
}

// Notifier delivers outbound frames to connected peers on behalf of the
// registry. The dispatch core (Router) implements it.
type Notifier interface {
	// sendControl enqueues a control frame for peerID; best-effort.
	sendControl(peerID uint32, kind wire.Kind, body frameBody)
	// sendData enqueues a DATA frame for peerID and reports whether it
	// was accepted (false means the peer's outbound buffer is saturated
	// and the frame was dropped).
	sendData(peerID uint32, channelID uint32, payload []byte) bool
}

// Registry is the channel registry (C4): named channels, their
// publisher/subscriber/watcher sets, and the reverse index used to clean
// up a departing peer.
type Registry struct {
	notifier Notifier

	channels      map[string]*Channel
	byID          map[uint32]*Channel
	nextChannelID uint32

	// peerChannels maps a peer to every channel name it touches, so
	// ForgetPeer can walk it without scanning every channel.
	peerChannels map[uint32]map[string]struct{}
}

// NewRegistry creates an empty channel registry delivering notifications
// through notifier.
func NewRegistry(notifier Notifier) *Registry {
	return &Registry{
		notifier:     notifier,
		channels:     map[string]*Channel{},
		byID:         map[uint32]*Channel{},
		peerChannels: map[uint32]map[string]struct{}{},
	}
}

func (r *Registry) touch(peer uint32, name string) {
	set, ok := r.peerChannels[peer]
	if !ok {
		set = map[string]struct{}{}
		r.peerChannels[peer] = set
	}
	set[name] = struct{}{}
}

func (r *Registry) getOrCreate(name, typeTag string) (*Channel, error) {
	if ch, ok := r.channels[name]; ok {
		if ch.TypeTag != typeTag {
			return nil, ErrTagMismatch
		}
		return ch, nil
	}
	r.nextChannelID++
	ch := newChannel(r.nextChannelID, name, typeTag)
	r.channels[name] = ch
	r.byID[ch.ID] = ch
	return ch, nil
}

func (r *Registry) gc(ch *Channel) {
	if !ch.empty() {
		return
	}
	delete(r.channels, ch.Name)
	delete(r.byID, ch.ID)
}

// ChannelByID looks up a channel by its numeric id; ok is false if no
// channel currently holds that id (either never allocated or already
// garbage-collected).
func (r *Registry) ChannelByID(id uint32) (*Channel, bool) {
	ch, ok := r.byID[id]
	return ch, ok
}

// PublishRegister registers peer as a publisher on channel, creating it
// if absent, and notifies watchers. Fails with ErrTagMismatch if the
// channel already carries a different type_tag.
func (r *Registry) PublishRegister(peer uint32, channel, typeTag string) (uint32, error) {
	ch, err := r.getOrCreate(channel, typeTag)
	if err != nil {
		return 0, err
	}
	if _, already := ch.publishers[peer]; !already {
		ch.publishers[peer] = struct{}{}
		r.touch(peer, channel)
		r.notifyPresence(ch, peer, wire.RolePublisher, true)
	}
	return ch.ID, nil
}

// PublishUnregister removes peer as a publisher on channel. Idempotent.
func (r *Registry) PublishUnregister(peer uint32, channel string) {
	ch, ok := r.channels[channel]
	if !ok {
		return
	}
	if _, present := ch.publishers[peer]; !present {
		return
	}
	delete(ch.publishers, peer)
	r.notifyPresence(ch, peer, wire.RolePublisher, false)
	r.gc(ch)
}

// Subscribe registers peer as a subscriber on channel, creating it if
// absent, and notifies watchers.
func (r *Registry) Subscribe(peer uint32, channel, typeTag string) (uint32, error) {
	ch, err := r.getOrCreate(channel, typeTag)
	if err != nil {
		return 0, err
	}
	if _, already := ch.subIndex[peer]; !already {
		ch.addSubscriber(peer)
		r.touch(peer, channel)
		r.notifyPresence(ch, peer, wire.RoleSubscriber, true)
	}
	return ch.ID, nil
}

// Unsubscribe removes peer as a subscriber on channel. Idempotent.
func (r *Registry) Unsubscribe(peer uint32, channel string) {
	ch, ok := r.channels[channel]
	if !ok {
		return
	}
	if _, present := ch.subIndex[peer]; !present {
		return
	}
	ch.removeSubscriber(peer)
	r.notifyPresence(ch, peer, wire.RoleSubscriber, false)
	r.gc(ch)
}

// WatchByID registers peer as a watcher of the channel identified by id.
// Idempotent; a stale or unknown id is a silent no-op (WATCH/UNWATCH
// never fail per §4.5).
func (r *Registry) WatchByID(peer uint32, id uint32) {
	ch, ok := r.byID[id]
	if !ok {
		return
	}
	if _, already := ch.watchers[peer]; already {
		return
	}
	ch.watchers[peer] = struct{}{}
	r.touch(peer, ch.Name)
}

// UnwatchByID removes peer as a watcher of the channel identified by id.
// Idempotent.
func (r *Registry) UnwatchByID(peer uint32, id uint32) {
	ch, ok := r.byID[id]
	if !ok {
		return
	}
	if _, present := ch.watchers[peer]; !present {
		return
	}
	delete(ch.watchers, peer)
	r.gc(ch)
}

// ForgetPeer removes peer from every set of every channel it touched,
// garbage-collecting channels left empty, and emitting PRESENCE departure
// notifications for roles the peer held.
func (r *Registry) ForgetPeer(peer uint32) {
	names := r.peerChannels[peer]
	delete(r.peerChannels, peer)

	for name := range names {
		ch, ok := r.channels[name]
		if !ok {
			continue
		}
		if _, ok := ch.publishers[peer]; ok {
			delete(ch.publishers, peer)
			r.notifyPresence(ch, peer, wire.RolePublisher, false)
		}
		if _, ok := ch.subIndex[peer]; ok {
			ch.removeSubscriber(peer)
			r.notifyPresence(ch, peer, wire.RoleSubscriber, false)
		}
		delete(ch.watchers, peer)
		r.gc(ch)
	}
}

// Deliver enqueues a DATA frame for every subscriber of the channel
// identified by id, in subscription-registration order. frameSize is the
// total on-wire size of the inbound DATA frame (header + body), used
// only to advance the channel's Received byte counter. Delivery is
// best-effort: a saturated subscriber outbound buffer drops the frame
// and increments the channel's Dropped counter (§4.3). If sender is not
// a registered publisher, or id names no channel, the frame is dropped
// silently (§4.5).
func (r *Registry) Deliver(id uint32, sender uint32, payload []byte, frameSize int) {
	ch, ok := r.byID[id]
	if !ok {
		return
	}
	if _, isPublisher := ch.publishers[sender]; !isPublisher {
		return
	}
	ch.Received += uint64(frameSize)

	for _, sub := range ch.subscribers {
		if !r.notifier.sendData(sub, id, payload) {
			ch.Dropped++
		}
	}
}

func (r *Registry) notifyPresence(ch *Channel, peer uint32, role wire.Role, joined bool) {
	for watcher := range ch.watchers {
		r.notifier.sendControl(watcher, wire.KindPresence, wire.Presence{
			ChannelID: ch.ID,
			PeerID:    peer,
			Role:      role,
			Joined:    joined,
		})
	}
}

// LogState logs a one-line summary of registry occupancy, used by the
// daemon's periodic stats dump.
func (r *Registry) LogState(ctx context.Context) {
	logger.Get(ctx).Info("registry state",
		zap.Int("channels", len(r.channels)),
		zap.Int("peers_tracked", len(r.peerChannels)))
}
