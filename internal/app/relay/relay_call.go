package relay

import (
	"slices"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/dkeye/Rendezvous/internal/protocol"
	"github.com/rs/zerolog/log"
)

// HandleCall forwards an offer to target as incoming-call. A target with no
// live endpoint gets the sender a routing-miss error.
func (r *Relay) HandleCall(from core.Endpoint, target domain.Identity, offer protocol.SDP) {
	id, ok := r.identityOrReject(from)
	if !ok {
		return
	}
	if r.forward(from, target, protocol.IncomingCall(id, offer)) {
		r.Metrics.Inc(metrics.CallsForwarded)
	}
}

func (r *Relay) HandleAnswer(from core.Endpoint, target domain.Identity, answer protocol.SDP) {
	id, ok := r.identityOrReject(from)
	if !ok {
		return
	}
	if r.forward(from, target, protocol.CallAnswered(id, answer)) {
		r.Metrics.Inc(metrics.AnswersForwarded)
	}
}

// HandleIceCandidate sends the candidate to every other member of the room.
// The sender has to be a member itself.
func (r *Relay) HandleIceCandidate(from core.Endpoint, code domain.RoomCode, c protocol.Candidate) {
	id, ok := r.identityOrReject(from)
	if !ok {
		return
	}
	members := r.Rooms.MembersOf(code)
	if !slices.Contains(members, id) {
		r.replyError(from, protocol.CodeNotInRoom, "not a member of room "+code.String())
		return
	}
	n := r.broadcast(members, id, protocol.RelayCandidate(id, c))
	r.Metrics.Add(metrics.CandidatesForwarded, uint64(n))
}

func (r *Relay) HandlePing(from core.Endpoint) {
	r.send(from, protocol.Pong())
}

func (r *Relay) forward(from core.Endpoint, target domain.Identity, m protocol.Message) bool {
	ep, ok := r.Registry.EndpointFor(target)
	if !ok {
		r.Metrics.Inc(metrics.RoutingMisses)
		log.Info().Str("module", "relay").Str("type", string(m.Type)).Str("target", target.String()).Msg("routing miss")
		r.send(from, protocol.RoutingMiss(target))
		return false
	}
	return r.send(ep, m)
}
