package signal

import (
	"context"
	"time"

	"github.com/dkeye/Rendezvous/internal/app/relay"
	"github.com/dkeye/Rendezvous/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				log.Debug().Str("module", "signal").Str("endpoint", string(c.id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("endpoint", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("endpoint", string(c.id)).Msg("ping failed")
				return
			}
		}
	}
}

// readPump decodes frames in arrival order and submits them to the relay.
// When the connection ends it submits exactly one disconnect.
func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("endpoint", string(c.id)).Msg("readPump closing")
		c.Close()
		if err := ctl.Relay.Submit(context.Background(), relay.Inbound{From: c, Disconnect: true}); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("endpoint", string(c.id)).Msg("disconnect not delivered")
		}
	}()

	c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("module", "signal").Str("endpoint", string(c.id)).Msg("readPump read error")
			}
			return
		}
		msg, err := protocol.Decode(data, protocol.FromClient)
		if err := ctl.Relay.Submit(ctx, relay.Inbound{From: c, Msg: msg, Err: err}); err != nil {
			log.Info().Err(err).Str("module", "signal").Str("endpoint", string(c.id)).Msg("relay unavailable")
			return
		}
	}
}
