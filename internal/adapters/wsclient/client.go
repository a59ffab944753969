// Package wsclient is the peer side of the signaling WebSocket: it carries
// negotiator output to the server and server messages back.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Rendezvous/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrConnectionLost = errors.New("signaling connection lost")

type Options struct {
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	Buffer     int
}

func DefaultOptions() Options {
	return Options{
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  10 * time.Second,
		Buffer:     64,
	}
}

type Client struct {
	conn *websocket.Conn
	opts Options

	in       chan protocol.Message
	readDone chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to url and starts reading server messages.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultOptions().Buffer
	}
	c := &Client{
		conn:     conn,
		opts:     opts,
		in:       make(chan protocol.Message, opts.Buffer),
		readDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	log.Info().Str("module", "wsclient").Str("url", url).Msg("connected")
	return c, nil
}

// Messages yields decoded server messages and is closed when the connection
// ends.
func (c *Client) Messages() <-chan protocol.Message { return c.in }

func (c *Client) readLoop() {
	defer close(c.in)
	defer close(c.readDone)

	if c.opts.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "wsclient").Msg("read error")
			}
			return
		}
		m, err := protocol.Decode(data, protocol.FromServer)
		if err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("dropping undecodable frame")
			continue
		}
		select {
		case c.in <- m:
		case <-c.closed:
			return
		}
	}
}

// Run writes every message from out and keeps the connection alive with
// pings. It returns nil once out is closed, ctx.Err() when ctx is done, and
// ErrConnectionLost when the server goes away. It is the only writer.
func (c *Client) Run(ctx context.Context, out <-chan protocol.Message) error {
	var tick <-chan time.Time
	if c.opts.PingPeriod > 0 {
		ticker := time.NewTicker(c.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.writeClose()
			return ctx.Err()
		case <-c.readDone:
			return ErrConnectionLost
		case m, ok := <-out:
			if !ok {
				c.writeClose()
				return nil
			}
			data, err := protocol.Encode(m)
			if err != nil {
				log.Error().Err(err).Str("module", "wsclient").Str("type", string(m.Type)).Msg("encode")
				continue
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
		case <-tick:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	if c.opts.WriteWait > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(kind, data)
}

func (c *Client) writeClose() {
	_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close drops the connection. Call it after Run has returned.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		<-c.readDone
	})
	return err
}
