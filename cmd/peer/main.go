package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Rendezvous/internal/adapters/rtc"
	"github.com/dkeye/Rendezvous/internal/adapters/wsclient"
	"github.com/dkeye/Rendezvous/internal/config"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/negotiation"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "peer",
		Short:         "Join a Rendezvous room and negotiate WebRTC sessions with its members",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadPeer(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("peer stopped")
				return err
			}
			return nil
		},
	}
	config.PeerFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.PeerConfig) error {
	zerolog.SetGlobalLevel(cfg.Level())

	id, err := domain.NewIdentity(cfg.Identity)
	if err != nil {
		return err
	}
	room, err := domain.NewRoomCode(cfg.Room)
	if err != nil {
		return err
	}

	api, err := rtc.NewAPI()
	if err != nil {
		return err
	}

	client, err := wsclient.Dial(ctx, cfg.Server, wsclient.Options{
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	n := negotiation.New(negotiation.Config{
		Identity: id,
		Room:     room,
		Timeout:  cfg.NegotiationTimeout,
		NewPeer:  rtc.NewFactory(api, rtc.Configuration(cfg.ICEServers)),
	})
	defer n.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go watchEvents(ctx, n.Events())
	go func() {
		_ = n.Run(ctx, client.Messages())
		cancel()
	}()

	n.Join()
	log.Info().Str("identity", id.String()).Str("room", room.String()).Str("server", cfg.Server).Msg("joining")

	err = client.Run(ctx, n.Outbound())
	n.Close()
	return err
}

func watchEvents(ctx context.Context, events <-chan negotiation.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			logEvent(ctx, ev)
		}
	}
}

func logEvent(ctx context.Context, ev negotiation.Event) {
	l := log.With().Str("module", "peer").Stringer("event", ev.Kind).Str("remote", ev.Remote.String()).Logger()
	switch ev.Kind {
	case negotiation.EventJoined:
		l.Info().Str("room", ev.Room.String()).Msg("joined")
	case negotiation.EventStateChanged:
		l.Info().Stringer("state", ev.State).Msg("negotiation state")
	case negotiation.EventTransport:
		l.Info().Str("transport", ev.Transport.String()).Msg("transport state")
	case negotiation.EventTrack:
		l.Info().Str("kind", ev.Track.Kind().String()).Str("track_id", ev.Track.ID()).Msg("remote track")
		go func() {
			tl := l.With().Str("track_id", ev.Track.ID()).Logger()
			stats := rtc.DrainTrack(ctx, ev.Track, &tl)
			tl.Info().
				Str("kind", stats.Kind).
				Uint64("packets", stats.Packets).
				Uint64("bytes", stats.Bytes).
				Msg("track drained")
		}()
	case negotiation.EventNegotiationFailed, negotiation.EventRoutingMiss, negotiation.EventServerError:
		l.Warn().Err(ev.Err).Msg("negotiation problem")
	case negotiation.EventPeerLeft:
		l.Info().Msg("peer left")
	}
}
