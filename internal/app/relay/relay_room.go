package relay

import (
	"errors"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/dkeye/Rendezvous/internal/protocol"
	"github.com/rs/zerolog/log"
)

// HandleJoin puts the sender's identity into the room and tells the other
// members. Once the room accepts the join, an endpoint that was registered
// under another identity drops it with the full disconnect cascade. A
// rejected join changes nothing.
func (r *Relay) HandleJoin(from core.Endpoint, id domain.Identity, code domain.RoomCode) {
	if !r.Limiter.Allow(from.ID()) {
		r.Metrics.Inc(metrics.RateLimited)
		log.Warn().Str("module", "relay").Str("endpoint", string(from.ID())).Msg("join rate limited")
		r.replyError(from, protocol.CodeRateLimited, "too many joins")
		return
	}

	others, err := r.Rooms.Join(code, id)
	if err != nil {
		if errors.Is(err, app.ErrRoomFull) {
			r.Metrics.Inc(metrics.RoomFull)
			log.Info().Str("module", "relay").Str("identity", id.String()).Str("room", code.String()).Msg("room full")
			r.replyError(from, protocol.CodeRoomFull, "room "+code.String()+" is full")
			return
		}
		log.Error().Err(err).Str("module", "relay").Str("room", code.String()).Msg("join")
		return
	}

	if prev, ok := r.Registry.IdentityFor(from.ID()); ok && prev != id {
		log.Info().
			Str("module", "relay").
			Str("endpoint", string(from.ID())).
			Str("old_identity", prev.String()).
			Str("identity", id.String()).
			Msg("endpoint switched identity")
		r.Registry.Remove(from.ID())
		r.leaveAll(prev)
	}

	if displaced := r.Registry.Register(id, from); displaced != nil {
		r.Metrics.Inc(metrics.IdentityDisplaced)
	}
	r.Metrics.Inc(metrics.Joins)
	log.Info().Str("module", "relay").Str("identity", id.String()).Str("room", code.String()).Int("others", len(others)).Msg("join")

	r.send(from, protocol.JoinedRoom(code))
	// The reply can get the joiner kicked, and then it has already left.
	if ep, ok := r.Registry.EndpointFor(id); !ok || ep.ID() != from.ID() {
		return
	}
	r.broadcast(others, id, protocol.UserJoined(id))
}

// HandleLeave removes the sender from one room without closing the
// connection.
func (r *Relay) HandleLeave(from core.Endpoint, code domain.RoomCode) {
	id, ok := r.identityOrReject(from)
	if !ok {
		return
	}
	if !r.Rooms.Leave(code, id) {
		r.replyError(from, protocol.CodeNotInRoom, "not a member of room "+code.String())
		return
	}
	r.Metrics.Inc(metrics.Leaves)
	log.Info().Str("module", "relay").Str("identity", id.String()).Str("room", code.String()).Msg("leave")

	r.broadcast(r.Rooms.MembersOf(code), id, protocol.UserLeft(id))
	r.send(from, protocol.LeftRoom(code))
}

// HandleDisconnect removes the sender from every room and from the registry.
// Calling it again for the same endpoint does nothing.
func (r *Relay) HandleDisconnect(from core.Endpoint) {
	r.Limiter.Forget(from.ID())
	id, ok := r.Registry.Remove(from.ID())
	if !ok {
		return
	}
	r.Metrics.Inc(metrics.Disconnects)
	log.Info().Str("module", "relay").Str("identity", id.String()).Str("endpoint", string(from.ID())).Msg("disconnect")
	r.leaveAll(id)
}

func (r *Relay) leaveAll(id domain.Identity) {
	for _, code := range r.Rooms.RoomsOf(id) {
		if !r.Rooms.Leave(code, id) {
			continue
		}
		r.broadcast(r.Rooms.MembersOf(code), id, protocol.UserLeft(id))
	}
}

func (r *Relay) identityOrReject(from core.Endpoint) (domain.Identity, bool) {
	id, ok := r.Registry.IdentityFor(from.ID())
	if !ok {
		r.replyError(from, protocol.CodeNotJoined, "join a room first")
	}
	return id, ok
}
