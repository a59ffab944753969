package negotiation

import (
	"errors"
	"fmt"

	"github.com/dkeye/Rendezvous/internal/domain"
)

var (
	ErrCreateOffer        = errors.New("create offer")
	ErrCreateAnswer       = errors.New("create answer")
	ErrSetLocal           = errors.New("set local description")
	ErrSetRemote          = errors.New("set remote description")
	ErrAddCandidate       = errors.New("add ice candidate")
	ErrUnexpectedMessage  = errors.New("unexpected message")
	ErrMediaUnavailable   = errors.New("media unavailable")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrTransportFailed    = errors.New("transport failed")
	ErrRoutingMiss        = errors.New("routing miss")
	ErrPeerLeft           = errors.New("peer left")
)

// NegotiationError reports which step failed against which remote.
type NegotiationError struct {
	Op     string
	Remote domain.Identity
	Err    error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation with %s: %s: %v", e.Remote, e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}
