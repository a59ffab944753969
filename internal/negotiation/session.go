package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const sessionInbox = 64

type inputKind int

const (
	inputStartOffer inputKind = iota
	inputRemote
	inputLocalCandidate
	inputTransport
)

type sessionInput struct {
	kind      inputKind
	msg       protocol.Message
	candidate webrtc.ICECandidateInit
	transport webrtc.PeerConnectionState
}

// Session negotiates with one remote peer. Everything it does to the Peer
// happens on its own goroutine, one input at a time.
type Session struct {
	key  PairKey
	role Role
	room domain.RoomCode
	peer Peer

	send     func(protocol.Message)
	emit     func(Event)
	onClosed func(*Session)

	mu        sync.Mutex
	state     State
	cause     error
	remoteSet bool
	pending   []protocol.Candidate

	inbox   chan sessionInput
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	timeout time.Duration
}

type sessionConfig struct {
	key      PairKey
	role     Role
	room     domain.RoomCode
	peer     Peer
	timeout  time.Duration
	send     func(protocol.Message)
	emit     func(Event)
	onClosed func(*Session)
}

func newSession(parent context.Context, cfg sessionConfig) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		key:      cfg.key,
		role:     cfg.role,
		room:     cfg.room,
		peer:     cfg.peer,
		send:     cfg.send,
		emit:     cfg.emit,
		onClosed: cfg.onClosed,
		inbox:    make(chan sessionInput, sessionInbox),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		timeout:  cfg.timeout,
	}

	s.peer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		s.post(sessionInput{kind: inputLocalCandidate, candidate: c})
	})
	s.peer.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.post(sessionInput{kind: inputTransport, transport: st})
	})
	s.peer.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if s.ctx.Err() != nil {
			return
		}
		s.emit(Event{Kind: EventTrack, Remote: s.key.Remote, Track: track, Receiver: receiver})
	})

	go s.run()
	return s
}

func (s *Session) Key() PairKey { return s.key }
func (s *Session) Role() Role   { return s.role }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns why the session closed, or nil while it is open or after a
// plain Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// PendingCandidates is the number of remote candidates waiting for the
// remote description.
func (s *Session) PendingCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Done is closed once the session goroutine has exited and the peer is
// closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Close() { s.closeWith(nil) }

func (s *Session) post(in sessionInput) {
	select {
	case s.inbox <- in:
	case <-s.ctx.Done():
	}
}

func (s *Session) run() {
	defer close(s.done)
	defer func() {
		if err := s.peer.Close(); err != nil {
			log.Warn().Err(err).Str("module", "negotiation").Str("pair", s.key.String()).Msg("peer close")
		}
	}()

	var deadline <-chan time.Time
	if s.timeout > 0 {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-deadline:
			deadline = nil
			s.fail("timeout", ErrNegotiationTimeout)
		case in := <-s.inbox:
			s.handle(in)
			if s.State() == Connected {
				deadline = nil
			}
		}
	}
}

func (s *Session) handle(in sessionInput) {
	if s.State() == Closed {
		return
	}
	switch in.kind {
	case inputStartOffer:
		s.startOffer()
	case inputRemote:
		s.handleRemote(in.msg)
	case inputLocalCandidate:
		s.send(protocol.SendCandidate(s.room, protocol.CandidateFromPion(in.candidate)))
	case inputTransport:
		log.Info().Str("module", "negotiation").Str("pair", s.key.String()).Str("transport", in.transport.String()).Msg("transport state")
		s.emit(Event{Kind: EventTransport, Remote: s.key.Remote, Transport: in.transport})
		if in.transport == webrtc.PeerConnectionStateFailed {
			s.fail("transport", ErrTransportFailed)
		}
	}
}

func (s *Session) handleRemote(m protocol.Message) {
	switch m.Type {
	case protocol.TypeIncomingCall:
		s.acceptOffer(*m.Offer)
	case protocol.TypeCallAnswered:
		s.applyAnswer(*m.Answer)
	case protocol.TypeIceCandidate:
		s.addRemoteCandidate(*m.Candidate)
	default:
		s.fail("dispatch", fmt.Errorf("%w: %s", ErrUnexpectedMessage, m.Type))
	}
}

func (s *Session) startOffer() {
	if !s.transition(OfferCreating) {
		s.fail("create offer", fmt.Errorf("%w: start offer in state %s", ErrUnexpectedMessage, s.State()))
		return
	}
	offer, err := s.peer.CreateOffer()
	if s.discarded() {
		return
	}
	if err != nil {
		s.fail("create offer", fmt.Errorf("%w: %w", ErrCreateOffer, err))
		return
	}
	err = s.peer.SetLocalDescription(offer)
	if s.discarded() {
		return
	}
	if err != nil {
		s.fail("set local", fmt.Errorf("%w: %w", ErrSetLocal, err))
		return
	}
	if !s.transition(OfferSet) || !s.transition(AwaitingAnswer) {
		return
	}
	s.send(protocol.CallUser(s.key.Remote, protocol.SDPFromPion(offer)))
}

func (s *Session) acceptOffer(offer protocol.SDP) {
	if !s.transition(AnswerCreating) {
		s.fail("accept offer", fmt.Errorf("%w: offer in state %s", ErrUnexpectedMessage, s.State()))
		return
	}
	if !s.setRemote(offer) {
		return
	}
	answer, err := s.peer.CreateAnswer()
	if s.discarded() {
		return
	}
	if err != nil {
		s.fail("create answer", fmt.Errorf("%w: %w", ErrCreateAnswer, err))
		return
	}
	err = s.peer.SetLocalDescription(answer)
	if s.discarded() {
		return
	}
	if err != nil {
		s.fail("set local", fmt.Errorf("%w: %w", ErrSetLocal, err))
		return
	}
	if !s.transition(AnswerSet) {
		return
	}
	s.send(protocol.AnswerCall(s.key.Remote, protocol.SDPFromPion(answer)))
	s.transition(Connected)
}

func (s *Session) applyAnswer(answer protocol.SDP) {
	if st := s.State(); st != AwaitingAnswer {
		s.fail("apply answer", fmt.Errorf("%w: answer in state %s", ErrUnexpectedMessage, st))
		return
	}
	if !s.setRemote(answer) {
		return
	}
	s.transition(Connected)
}

// setRemote applies the remote description and then every queued candidate
// in arrival order.
func (s *Session) setRemote(sdp protocol.SDP) bool {
	desc, err := sdp.ToPion()
	if err != nil {
		s.fail("set remote", fmt.Errorf("%w: %w", ErrSetRemote, err))
		return false
	}
	err = s.peer.SetRemoteDescription(desc)
	if s.discarded() {
		return false
	}
	if err != nil {
		s.fail("set remote", fmt.Errorf("%w: %w", ErrSetRemote, err))
		return false
	}

	s.mu.Lock()
	s.remoteSet = true
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range queued {
		if !s.applyCandidate(c) {
			return false
		}
	}
	return true
}

func (s *Session) addRemoteCandidate(c protocol.Candidate) {
	s.mu.Lock()
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.applyCandidate(c)
}

func (s *Session) applyCandidate(c protocol.Candidate) bool {
	err := s.peer.AddICECandidate(c.ToPion())
	if s.discarded() {
		return false
	}
	if err != nil {
		s.fail("add candidate", fmt.Errorf("%w: %w", ErrAddCandidate, err))
		return false
	}
	return true
}

// discarded reports whether the session was closed while a Peer call was in
// flight. Its result must then be dropped.
func (s *Session) discarded() bool {
	return s.ctx.Err() != nil
}

func (s *Session) transition(to State) bool {
	s.mu.Lock()
	from := s.state
	if !canTransition(from, to) {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	log.Debug().
		Str("module", "negotiation").
		Str("pair", s.key.String()).
		Stringer("from", from).
		Stringer("to", to).
		Msg("state")
	s.emit(Event{Kind: EventStateChanged, Remote: s.key.Remote, State: to})
	return true
}

func (s *Session) fail(op string, err error) {
	nerr := &NegotiationError{Op: op, Remote: s.key.Remote, Err: err}
	if !s.closeWith(nerr) {
		return
	}
	log.Warn().Err(nerr).Str("module", "negotiation").Str("pair", s.key.String()).Msg("negotiation failed")
	s.emit(Event{Kind: EventNegotiationFailed, Remote: s.key.Remote, Err: nerr})
}

// closeWith moves the session to Closed exactly once and reports whether
// this call did it.
func (s *Session) closeWith(cause error) bool {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return false
	}
	s.state = Closed
	s.cause = cause
	s.mu.Unlock()

	s.cancel()
	log.Info().Str("module", "negotiation").Str("pair", s.key.String()).AnErr("cause", cause).Msg("session closed")
	s.emit(Event{Kind: EventStateChanged, Remote: s.key.Remote, State: Closed})
	if s.onClosed != nil {
		s.onClosed(s)
	}
	return true
}
