// Command routiod runs the routio pub/sub message bus daemon: a single
// local stream-socket listener dispatching PUBLISH/SUBSCRIBE/DATA/PRESENCE
// traffic between connected peers (§2, §6).
package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"

	"github.com/routio/routio/router"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))

	if err := run(ctx, cfg); err != nil {
		logger.Get(ctx).Error("routiod exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func parseFlags() (router.Config, error) {
	flags := pflag.NewFlagSet("routiod", pflag.ContinueOnError)

	socketPath := flags.String("socket", router.DefaultSocketPath, "local socket path to listen on")
	maxPeers := flags.Int("max-peers", 0, "soft limit on concurrent peers (0 = default)")
	outboundBuf := flags.Int("outbound-buffer", 0, "per-peer outbound buffer cap in bytes (0 = default)")
	inboundFrame := flags.Int("inbound-frame", 0, "max declared inbound frame length in bytes (0 = default)")
	serverVersion := flags.String("server-version", "", "server version string reported in WELCOME")
	statsInterval := flags.Duration("stats-interval", 0, "interval for periodic registry occupancy logging (0 disables)")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return router.Config{}, errors.WithStack(err)
	}

	return router.Config{
		SocketPath:        *socketPath,
		MaxPeers:          *maxPeers,
		MaxOutboundBuffer: *outboundBuf,
		MaxInboundFrame:   *inboundFrame,
		ServerVersion:     *serverVersion,
		StatsInterval:     *statsInterval,
	}, nil
}

func run(ctx context.Context, cfg router.Config) error {
	r, err := router.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			logger.Get(ctx).Warn("error closing router", zap.Error(closeErr))
		}
	}()

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("router", parallel.Fail, func(ctx context.Context) error {
			return r.Run(ctx)
		})
		return nil
	})
}
