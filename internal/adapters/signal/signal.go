package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Rendezvous/internal/app/relay"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Options tunes keepalive and buffering of every signal connection.
type Options struct {
	ReadLimit  int64
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  64 * 1024,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
		WriteWait:  10 * time.Second,
		SendBuffer: 64,
	}
}

type SignalWSController struct {
	Relay *relay.Relay
	Opts  Options
}

func NewSignalWSController(r *relay.Relay, opts Options) *SignalWSController {
	return &SignalWSController{Relay: r, Opts: opts}
}

// WsSignalConn is the core.Endpoint of one WebSocket. Frames are queued on
// send and written by writePump.
type WsSignalConn struct {
	id   core.EndpointID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) ID() core.EndpointID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrEndpointClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. writePump flushes what is queued, sends a
// close frame and closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   core.EndpointID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, ctl.Opts.SendBuffer),
	}
	log.Info().Str("module", "signal").Str("endpoint", string(conn.id)).Str("remote", c.Request.RemoteAddr).Msg("new WS connection")

	go ctl.writePump(conn)
	go ctl.readPump(ctx, conn)
}
