package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Direction selects which payload shape Decode expects.
type Direction int

const (
	FromClient Direction = iota
	FromServer
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
	ErrInvalid     = errors.New("invalid message")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	identityRule = "required,max=254"
	roomCodeRule = "required,max=64"
)

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses one frame and checks that it carries the fields its type
// requires for the given direction.
func Decode(data []byte, dir Direction) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m.trim()
	if err := m.Validate(dir); err != nil {
		return m, err
	}
	return m, nil
}

// Validate checks m against the shape of its type. Unknown types fail with
// ErrUnknownType, missing or oversized fields with ErrInvalid.
func (m Message) Validate(dir Direction) error {
	var err error
	switch m.Type {
	case TypeJoinRoom:
		err = firstErr(
			checkVar("identity", m.Identity, identityRule),
			checkVar("roomCode", m.RoomCode, roomCodeRule),
		)
	case TypeJoinedRoom, TypeLeaveRoom, TypeLeftRoom:
		err = checkVar("roomCode", m.RoomCode, roomCodeRule)
	case TypeUserJoined, TypeUserLeft:
		err = checkVar("identity", m.Identity, identityRule)
	case TypeCallUser:
		err = firstErr(
			checkVar("targetIdentity", m.TargetIdentity, identityRule),
			checkSDP("offer", m.Offer, "offer"),
		)
	case TypeIncomingCall:
		err = firstErr(
			checkVar("fromIdentity", m.FromIdentity, identityRule),
			checkSDP("offer", m.Offer, "offer"),
		)
	case TypeCallAnswered:
		peer, field := m.TargetIdentity, "targetIdentity"
		if dir == FromServer {
			peer, field = m.FromIdentity, "fromIdentity"
		}
		err = firstErr(
			checkVar(field, peer, identityRule),
			checkSDP("answer", m.Answer, "answer"),
		)
	case TypeIceCandidate:
		var route error
		if dir == FromServer {
			route = checkVar("fromIdentity", m.FromIdentity, identityRule)
		} else {
			route = checkVar("roomCode", m.RoomCode, roomCodeRule)
		}
		err = firstErr(route, checkCandidate(m.Candidate))
	case TypePing, TypePong:
	case TypeError:
		err = checkVar("code", string(m.Code), "required")
	default:
		return fmt.Errorf("%w %q", ErrUnknownType, m.Type)
	}
	return err
}

// trim drops surrounding whitespace from identities and room codes so a
// blank value fails validation.
func (m *Message) trim() {
	m.Identity = domain.Identity(strings.TrimSpace(string(m.Identity)))
	m.TargetIdentity = domain.Identity(strings.TrimSpace(string(m.TargetIdentity)))
	m.FromIdentity = domain.Identity(strings.TrimSpace(string(m.FromIdentity)))
	m.RoomCode = domain.RoomCode(strings.TrimSpace(string(m.RoomCode)))
}

func checkVar[T ~string](field string, v T, rule string) error {
	if err := validate.Var(string(v), rule); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	return nil
}

func checkSDP(field string, s *SDP, want string) error {
	if s == nil {
		return fmt.Errorf("%w: %s missing", ErrInvalid, field)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	if s.Type != want {
		return fmt.Errorf("%w: %s has type %q", ErrInvalid, field, s.Type)
	}
	return nil
}

func checkCandidate(c *Candidate) error {
	if c == nil {
		return fmt.Errorf("%w: candidate missing", ErrInvalid)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: candidate: %v", ErrInvalid, err)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
