package negotiation

import (
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/pion/webrtc/v4"
)

type EventKind int

const (
	EventJoined EventKind = iota
	EventStateChanged
	EventNegotiationFailed
	EventRoutingMiss
	EventPeerLeft
	EventTrack
	EventTransport
	EventServerError
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventStateChanged:
		return "state-changed"
	case EventNegotiationFailed:
		return "negotiation-failed"
	case EventRoutingMiss:
		return "routing-miss"
	case EventPeerLeft:
		return "peer-left"
	case EventTrack:
		return "track"
	case EventTransport:
		return "transport"
	case EventServerError:
		return "server-error"
	default:
		return "unknown"
	}
}

// Event is what the surrounding application observes. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Remote    domain.Identity
	Room      domain.RoomCode
	State     State
	Transport webrtc.PeerConnectionState
	Err       error
	Track     *webrtc.TrackRemote
	Receiver  *webrtc.RTPReceiver
}
