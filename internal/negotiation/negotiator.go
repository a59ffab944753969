// Package negotiation drives offer/answer/candidate exchange with every remote
// peer met in a room, from relayed signaling messages to a connected media
// session.
package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/protocol"
	"github.com/go4org/hashtriemap"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout = 30 * time.Second
	defaultBuffer  = 256
	// maxEarly bounds candidates held for a remote that has no session yet.
	maxEarly = 64
)

type Config struct {
	Identity domain.Identity
	Room     domain.RoomCode
	// Timeout closes a session that has not reached Connected in time.
	// Zero disables it.
	Timeout time.Duration
	NewPeer PeerFactory
	// Buffer sizes the outbound and event channels.
	Buffer int
}

// Negotiator owns one Session per remote identity and turns inbound
// signaling messages into session inputs. Outbound messages and events are
// delivered on channels that the caller must drain.
type Negotiator struct {
	cfg Config

	sessions hashtriemap.HashTrieMap[domain.Identity, *Session]

	earlyMu sync.Mutex
	early   map[domain.Identity][]protocol.Message

	out    chan protocol.Message
	events chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func New(cfg Config) *Negotiator {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Negotiator{
		cfg:    cfg,
		early:  make(map[domain.Identity][]protocol.Message),
		out:    make(chan protocol.Message, cfg.Buffer),
		events: make(chan Event, cfg.Buffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (n *Negotiator) Outbound() <-chan protocol.Message { return n.out }
func (n *Negotiator) Events() <-chan Event              { return n.events }

// Join asks the server to put this identity into the configured room.
func (n *Negotiator) Join() {
	n.send(protocol.JoinRoom(n.cfg.Identity, n.cfg.Room))
}

// Leave leaves the room and closes every session.
func (n *Negotiator) Leave() {
	n.send(protocol.LeaveRoom(n.cfg.Room))
	n.closeSessions()
}

// Run feeds messages from in to Handle until in is closed or ctx is done,
// then closes the negotiator.
func (n *Negotiator) Run(ctx context.Context, in <-chan protocol.Message) error {
	defer n.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-in:
			if !ok {
				return nil
			}
			n.Handle(m)
		}
	}
}

// Handle applies one message from the server.
func (n *Negotiator) Handle(m protocol.Message) {
	switch m.Type {
	case protocol.TypeJoinedRoom:
		log.Info().Str("module", "negotiation").Str("room", m.RoomCode.String()).Msg("joined room")
		n.emit(Event{Kind: EventJoined, Room: m.RoomCode})
	case protocol.TypeUserJoined:
		if m.Identity == n.cfg.Identity {
			return
		}
		if _, ok := n.sessions.Load(m.Identity); ok {
			log.Debug().Str("module", "negotiation").Str("identity", m.Identity.String()).Msg("already negotiating")
			return
		}
		if s := n.open(m.Identity, Initiator); s != nil {
			s.post(sessionInput{kind: inputStartOffer})
		}
	case protocol.TypeIncomingCall:
		if s := n.open(m.FromIdentity, Responder); s != nil {
			s.post(sessionInput{kind: inputRemote, msg: m})
		}
	case protocol.TypeCallAnswered:
		s, ok := n.sessions.Load(m.FromIdentity)
		if !ok {
			err := &NegotiationError{Op: "apply answer", Remote: m.FromIdentity, Err: fmt.Errorf("%w: answer without a session", ErrUnexpectedMessage)}
			log.Warn().Err(err).Str("module", "negotiation").Msg("stray answer")
			n.emit(Event{Kind: EventNegotiationFailed, Remote: m.FromIdentity, Err: err})
			return
		}
		s.post(sessionInput{kind: inputRemote, msg: m})
	case protocol.TypeIceCandidate:
		if s, ok := n.sessions.Load(m.FromIdentity); ok {
			s.post(sessionInput{kind: inputRemote, msg: m})
			return
		}
		n.holdEarly(m)
	case protocol.TypeUserLeft:
		n.dropEarly(m.Identity)
		if s, ok := n.sessions.LoadAndDelete(m.Identity); ok {
			s.closeWith(ErrPeerLeft)
		}
		log.Info().Str("module", "negotiation").Str("identity", m.Identity.String()).Msg("peer left")
		n.emit(Event{Kind: EventPeerLeft, Remote: m.Identity})
	case protocol.TypeError:
		n.handleError(m)
	case protocol.TypePong, protocol.TypeLeftRoom:
	default:
		log.Warn().Str("module", "negotiation").Str("type", string(m.Type)).Msg("unexpected message from server")
	}
}

func (n *Negotiator) handleError(m protocol.Message) {
	if m.Code == protocol.CodeRoutingMiss {
		n.dropEarly(m.TargetIdentity)
		if s, ok := n.sessions.LoadAndDelete(m.TargetIdentity); ok {
			s.closeWith(ErrRoutingMiss)
		}
		log.Info().Str("module", "negotiation").Str("target", m.TargetIdentity.String()).Msg("routing miss")
		n.emit(Event{Kind: EventRoutingMiss, Remote: m.TargetIdentity, Err: ErrRoutingMiss})
		return
	}
	err := fmt.Errorf("server error %s: %s", m.Code, m.Message)
	log.Warn().Err(err).Str("module", "negotiation").Msg("server error")
	n.emit(Event{Kind: EventServerError, Err: err})
}

// Session returns the live session with remote, if any.
func (n *Negotiator) Session(remote domain.Identity) (*Session, bool) {
	return n.sessions.Load(remote)
}

// Close closes every session and stops delivering events.
func (n *Negotiator) Close() {
	n.closeOnce.Do(func() {
		n.cancel()
		n.closeSessions()
	})
}

func (n *Negotiator) closeSessions() {
	var open []*Session
	n.sessions.Range(func(_ domain.Identity, s *Session) bool {
		open = append(open, s)
		return true
	})
	for _, s := range open {
		s.Close()
	}
}

// open returns the existing session with remote or starts a new one. A
// failing PeerFactory is reported and yields nil.
func (n *Negotiator) open(remote domain.Identity, role Role) *Session {
	if s, ok := n.sessions.Load(remote); ok {
		return s
	}
	peer, err := n.cfg.NewPeer(remote)
	if err != nil {
		nerr := &NegotiationError{Op: "new peer", Remote: remote, Err: fmt.Errorf("%w: %w", ErrMediaUnavailable, err)}
		log.Error().Err(nerr).Str("module", "negotiation").Msg("peer unavailable")
		n.emit(Event{Kind: EventNegotiationFailed, Remote: remote, Err: nerr})
		return nil
	}

	s := newSession(n.ctx, sessionConfig{
		key:     PairKey{Local: n.cfg.Identity, Remote: remote},
		role:    role,
		room:    n.cfg.Room,
		peer:    peer,
		timeout: n.cfg.Timeout,
		send:    n.send,
		emit:    n.emit,
		onClosed: func(s *Session) {
			n.sessions.CompareAndDelete(s.key.Remote, s)
		},
	})
	if actual, loaded := n.sessions.LoadOrStore(remote, s); loaded {
		s.Close()
		return actual
	}
	log.Info().Str("module", "negotiation").Str("pair", s.key.String()).Stringer("role", role).Msg("session opened")

	for _, m := range n.takeEarly(remote) {
		s.post(sessionInput{kind: inputRemote, msg: m})
	}
	return s
}

func (n *Negotiator) holdEarly(m protocol.Message) {
	n.earlyMu.Lock()
	defer n.earlyMu.Unlock()
	q := n.early[m.FromIdentity]
	if len(q) >= maxEarly {
		log.Warn().Str("module", "negotiation").Str("identity", m.FromIdentity.String()).Msg("early candidate dropped")
		return
	}
	n.early[m.FromIdentity] = append(q, m)
}

func (n *Negotiator) takeEarly(remote domain.Identity) []protocol.Message {
	n.earlyMu.Lock()
	defer n.earlyMu.Unlock()
	q := n.early[remote]
	delete(n.early, remote)
	return q
}

func (n *Negotiator) dropEarly(remote domain.Identity) {
	n.earlyMu.Lock()
	delete(n.early, remote)
	n.earlyMu.Unlock()
}

func (n *Negotiator) send(m protocol.Message) {
	select {
	case n.out <- m:
	case <-n.ctx.Done():
	}
}

func (n *Negotiator) emit(ev Event) {
	select {
	case n.events <- ev:
	case <-n.ctx.Done():
	}
}
