package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Rendezvous/internal/adapters/signal"
	"github.com/dkeye/Rendezvous/internal/app/relay"
	"github.com/dkeye/Rendezvous/internal/config"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Deps are the shared components the router exposes. Presence and Rooms are
// only read here; every mutation goes through Relay.
type Deps struct {
	Relay    *relay.Relay
	Presence core.Presence
	Rooms    core.RoomDirectory
	Metrics  *metrics.Metrics
}

func SignalOptions(cfg *config.Config) signal.Options {
	return signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PongWait:   cfg.PongWait,
		PingPeriod: cfg.PingPeriod,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctrl := signal.NewSignalWSController(d.Relay, SignalOptions(cfg))
	h := &handlers{deps: d}

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(metrics.PrometheusHandler(d.Metrics)))

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.Request.RemoteAddr).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:code", h.room)
	api.GET("/stats", h.stats)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

type handlers struct {
	deps Deps
}

type roomsResponse struct {
	Rooms []core.RoomInfo `json:"rooms"`
}

type roomResponse struct {
	Code    domain.RoomCode   `json:"code"`
	Members []domain.Identity `json:"members"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connected": h.deps.Presence.Count()})
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms := h.deps.Rooms.List()
	if rooms == nil {
		rooms = []core.RoomInfo{}
	}
	c.JSON(http.StatusOK, roomsResponse{Rooms: rooms})
}

func (h *handlers) room(c *gin.Context) {
	code, err := domain.NewRoomCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	members := h.deps.Rooms.MembersOf(code)
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, roomResponse{Code: code, Members: members})
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Metrics.Snapshot())
}
