// Package relay routes signaling messages between live endpoints. All state
// changes happen on one goroutine, in submission order.
package relay

import (
	"context"
	"errors"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/dkeye/Rendezvous/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("relay stopped")

const inboxSize = 256

// Inbound is one event submitted by a connection: a decoded message, a
// decode failure, or the end of the connection.
type Inbound struct {
	From       core.Endpoint
	Msg        protocol.Message
	Err        error
	Disconnect bool
}

type Relay struct {
	Registry core.Presence
	Rooms    core.RoomDirectory
	Policy   app.Policy
	Limiter  *app.RateLimiter
	Metrics  *metrics.Metrics

	events chan Inbound
	done   chan struct{}
}

func New(reg core.Presence, rooms core.RoomDirectory, policy app.Policy, limiter *app.RateLimiter, m *metrics.Metrics) *Relay {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	return &Relay{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Limiter:  limiter,
		Metrics:  m,
		events:   make(chan Inbound, inboxSize),
		done:     make(chan struct{}),
	}
}

// Run processes submitted events until ctx is done, then closes every
// registered endpoint.
func (r *Relay) Run(ctx context.Context) {
	log.Info().Str("module", "relay").Msg("relay loop started")
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.Shutdown()
			log.Info().Str("module", "relay").Msg("relay loop stopped")
			return
		case in := <-r.events:
			r.Handle(in)
		}
	}
}

// Submit hands an event to the loop. It blocks while the inbox is full.
func (r *Relay) Submit(ctx context.Context, in Inbound) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.events <- in:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one event synchronously.
func (r *Relay) Handle(in Inbound) {
	if in.From == nil {
		return
	}
	if in.Disconnect {
		r.HandleDisconnect(in.From)
		return
	}
	if in.Err != nil {
		r.Metrics.Inc(metrics.BadPayload)
		log.Warn().Err(in.Err).Str("module", "relay").Str("endpoint", string(in.From.ID())).Msg("bad payload")
		r.replyError(in.From, protocol.CodeBadPayload, in.Err.Error())
		return
	}

	m := in.Msg
	switch m.Type {
	case protocol.TypeJoinRoom:
		r.HandleJoin(in.From, m.Identity, m.RoomCode)
	case protocol.TypeCallUser:
		r.HandleCall(in.From, m.TargetIdentity, *m.Offer)
	case protocol.TypeCallAnswered:
		r.HandleAnswer(in.From, m.TargetIdentity, *m.Answer)
	case protocol.TypeIceCandidate:
		r.HandleIceCandidate(in.From, m.RoomCode, *m.Candidate)
	case protocol.TypeLeaveRoom:
		r.HandleLeave(in.From, m.RoomCode)
	case protocol.TypePing:
		r.HandlePing(in.From)
	default:
		r.Metrics.Inc(metrics.BadPayload)
		log.Warn().Str("module", "relay").Str("type", string(m.Type)).Msg("unexpected message from client")
		r.replyError(in.From, protocol.CodeBadPayload, "unexpected message type "+string(m.Type))
	}
}

// Shutdown closes every registered endpoint.
func (r *Relay) Shutdown() {
	eps := r.Registry.Endpoints()
	for _, ep := range eps {
		ep.Close()
	}
	log.Info().Str("module", "relay").Int("endpoints", len(eps)).Msg("closed all endpoints")
}

// send never blocks. A full queue goes through the backpressure policy.
func (r *Relay) send(ep core.Endpoint, m protocol.Message) bool {
	frame, err := protocol.Encode(m)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("type", string(m.Type)).Msg("encode")
		return false
	}
	err = ep.TrySend(core.Frame(frame))
	switch {
	case err == nil:
		return true
	case errors.Is(err, core.ErrBackpressure):
		r.onBackpressure(ep, frame)
	case errors.Is(err, core.ErrEndpointClosed):
		log.Debug().Str("module", "relay").Str("endpoint", string(ep.ID())).Msg("send on closed endpoint")
	default:
		log.Error().Err(err).Str("module", "relay").Str("endpoint", string(ep.ID())).Msg("send")
	}
	return false
}

func (r *Relay) onBackpressure(ep core.Endpoint, frame core.Frame) {
	action := r.Policy.OnBackPressure(ep, frame)
	log.Warn().
		Str("module", "relay").
		Str("endpoint", string(ep.ID())).
		Stringer("action", action).
		Msg("send queue full")
	switch action {
	case app.KickMember:
		r.Metrics.Inc(metrics.BackpressureKicks)
		ep.Close()
		r.HandleDisconnect(ep)
	case app.DropFrame:
		r.Metrics.Inc(metrics.FramesDropped)
	}
}

func (r *Relay) replyError(ep core.Endpoint, code protocol.ErrorCode, msg string) {
	r.send(ep, protocol.Error(code, msg))
}

func (r *Relay) broadcast(members []domain.Identity, skip domain.Identity, m protocol.Message) int {
	n := 0
	for _, id := range members {
		if id == skip {
			continue
		}
		ep, ok := r.Registry.EndpointFor(id)
		if !ok {
			continue
		}
		if r.send(ep, m) {
			n++
		}
	}
	return n
}
