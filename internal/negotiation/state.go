package negotiation

import "github.com/dkeye/Rendezvous/internal/domain"

type State int

const (
	Idle State = iota
	OfferCreating
	OfferSet
	AwaitingAnswer
	AnswerCreating
	AnswerSet
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OfferCreating:
		return "offer-creating"
	case OfferSet:
		return "offer-set"
	case AwaitingAnswer:
		return "awaiting-answer"
	case AnswerCreating:
		return "answer-creating"
	case AnswerSet:
		return "answer-set"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// transitions lists the forward moves out of each state. Closed is reachable
// from everywhere and leads nowhere.
var transitions = map[State][]State{
	Idle:           {OfferCreating, AnswerCreating},
	OfferCreating:  {OfferSet},
	OfferSet:       {AwaitingAnswer},
	AwaitingAnswer: {Connected},
	AnswerCreating: {AnswerSet},
	AnswerSet:      {Connected},
}

func canTransition(from, to State) bool {
	if from == Closed {
		return false
	}
	if to == Closed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// PairKey names a session by its two ends.
type PairKey struct {
	Local  domain.Identity
	Remote domain.Identity
}

func (k PairKey) String() string { return k.Local.String() + "->" + k.Remote.String() }
