package negotiation

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/pion/webrtc/v4"
)

// fakePeer records every call in order and lets tests fire callbacks.
type fakePeer struct {
	mu    sync.Mutex
	calls []string

	offerErr     error
	answerErr    error
	setRemoteErr error
	addErr       error
	// autoCandidate, when set, is emitted as a local candidate right after
	// the local description is applied.
	autoCandidate string
	// holdLocal, when set, makes SetLocalDescription signal localHeld and
	// wait until holdLocal is closed.
	holdLocal chan struct{}
	localHeld chan struct{}

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func (p *fakePeer) record(c string) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func (p *fakePeer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	p.record("create-offer")
	if p.offerErr != nil {
		return webrtc.SessionDescription{}, p.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.record("create-answer")
	if p.answerErr != nil {
		return webrtc.SessionDescription{}, p.answerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (p *fakePeer) SetLocalDescription(d webrtc.SessionDescription) error {
	p.record("set-local:" + d.Type.String())
	if p.holdLocal != nil {
		close(p.localHeld)
		<-p.holdLocal
	}
	if p.autoCandidate != "" {
		p.mu.Lock()
		fn := p.onICE
		p.mu.Unlock()
		if fn != nil {
			go fn(webrtc.ICECandidateInit{Candidate: p.autoCandidate})
		}
	}
	return nil
}

func (p *fakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.record("set-remote:" + d.Type.String())
	return p.setRemoteErr
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.record("add-candidate:" + c.Candidate)
	return p.addErr
}

func (p *fakePeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.record("close")
	return nil
}

func (p *fakePeer) emitLocal(c string) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	fn(webrtc.ICECandidateInit{Candidate: c})
}

func (p *fakePeer) emitState(st webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(st)
}

func factoryOf(p Peer) PeerFactory {
	return func(domain.Identity) (Peer, error) { return p, nil }
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// eventCollector drains a negotiator's events so sessions never block.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func collect(n *Negotiator) *eventCollector {
	c := &eventCollector{}
	go func() {
		for ev := range n.Events() {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *eventCollector) find(kind EventKind, remote domain.Identity) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Kind == kind && ev.Remote == remote {
			return ev, true
		}
	}
	return Event{}, false
}

func (c *eventCollector) wait(t *testing.T, kind EventKind, remote domain.Identity) Event {
	t.Helper()
	var ev Event
	eventually(t, kind.String()+" event", func() bool {
		var ok bool
		ev, ok = c.find(kind, remote)
		return ok
	})
	return ev
}
