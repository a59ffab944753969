package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Rendezvous/internal/adapters/http"
	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/app/relay"
	"github.com/dkeye/Rendezvous/internal/config"
	"github.com/dkeye/Rendezvous/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Watch can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Watch(func(next *config.Config) {
		zerolog.SetGlobalLevel(next.Level())
		log.Info().Str("module", "config").Str("log_level", next.Level().String()).Msg("log level applied")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	reg := app.NewRegistry()
	rooms := app.NewRoomDirectory(cfg.RoomCapacity)
	limiter := app.NewRateLimiter(cfg.JoinLimit, cfg.JoinInterval)
	m := metrics.New()
	policy, err := app.PolicyByName(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid backpressure policy")
	}
	rl := relay.New(reg, rooms, policy, limiter, m)

	relayDone := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(relayDone)
	}()

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Relay:    rl,
		Presence: reg,
		Rooms:    rooms,
		Metrics:  m,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Rendezvous server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	<-relayDone
	log.Info().Msg("Server exited gracefully")
}
