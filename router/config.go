package router

import "time"

// Timing constants fixed by §5.
const (
	greetingTimeout    = 5 * time.Second
	idlePingInterval   = 30 * time.Second
	pongTimeout        = 10 * time.Second
	shutdownDrainLimit = 2 * time.Second
)

// nowFunc is indirected so tests can control time without sleeping.
var nowFunc = time.Now

// timeZero is the zero time.Time, used to mark "no deadline pending".
var timeZero time.Time

// Config configures a Router (§5 resource policy).
type Config struct {
	// SocketPath is the local stream-socket path to listen on. Defaults
	// to /tmp/routio.sock.
	SocketPath string
	// MaxOutboundBuffer bounds queued-but-unsent bytes per peer. Defaults
	// to 16 MiB; overflow drops frames rather than blocking the loop.
	MaxOutboundBuffer int
	// MaxInboundFrame bounds the declared length of a single in-flight
	// inbound frame. Defaults to 64 MiB; violations are fatal to the
	// offending peer.
	MaxInboundFrame int
	// MaxPeers soft-limits concurrent connections. Defaults to 4096;
	// HELLO is refused with OVERLOAD beyond this.
	MaxPeers int
	// ServerVersion is reported in WELCOME.
	ServerVersion string
	// StatsInterval, if non-zero, logs a one-line registry occupancy
	// summary on this cadence (original_source's router.cpp periodic
	// stats dump; not part of the wire protocol).
	StatsInterval time.Duration
}

// DefaultSocketPath is the default local socket path (§6).
const DefaultSocketPath = "/tmp/routio.sock"

// WithDefaults returns a copy of c with zero-valued fields replaced by
// their documented defaults.
func (c Config) WithDefaults() Config {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.MaxOutboundBuffer <= 0 {
		c.MaxOutboundBuffer = 16 << 20
	}
	if c.MaxInboundFrame <= 0 {
		c.MaxInboundFrame = 64 << 20
	}
	if c.MaxPeers <= 0 {
		c.MaxPeers = 4096
	}
	if c.ServerVersion == "" {
		c.ServerVersion = "routio/1"
	}
	return c
}
