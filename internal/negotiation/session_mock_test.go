package negotiation

import (
	"errors"
	"testing"

	"github.com/dkeye/Rendezvous/internal/protocol"
	"github.com/pion/webrtc/v4"
	"go.uber.org/mock/gomock"
)

func expectCallbacks(mp *MockPeer) {
	mp.EXPECT().OnICECandidate(gomock.Any())
	mp.EXPECT().OnConnectionStateChange(gomock.Any())
	mp.EXPECT().OnTrack(gomock.Any())
}

func TestSession_InitiatorCallOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	mp := NewMockPeer(ctrl)
	expectCallbacks(mp)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"}
	gomock.InOrder(
		mp.EXPECT().CreateOffer().Return(offer, nil),
		mp.EXPECT().SetLocalDescription(offer).Return(nil),
		mp.EXPECT().SetRemoteDescription(answer).Return(nil),
		mp.EXPECT().AddICECandidate(webrtc.ICECandidateInit{Candidate: "c1"}).Return(nil),
		mp.EXPECT().Close().Return(nil),
	)

	n, _ := newTestNegotiator(t, "a", mp, 0)
	n.Handle(protocol.UserJoined("b"))
	s := sessionOf(t, n, "b")
	if out := nextOut(t, n); out.Offer == nil || out.Offer.SDP != "o" {
		t.Fatalf("outbound=%+v", out)
	}

	n.Handle(protocol.RelayCandidate("b", cand("c1")))
	n.Handle(protocol.CallAnswered("b", protocol.SDP{Type: "answer", SDP: "a"}))
	eventually(t, "connected", func() bool { return s.State() == Connected })

	s.Close()
	<-s.Done()
}

func TestSession_ResponderSetRemoteRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	mp := NewMockPeer(ctrl)
	expectCallbacks(mp)

	rejected := errors.New("invalid sdp")
	closed := make(chan struct{})
	gomock.InOrder(
		mp.EXPECT().SetRemoteDescription(gomock.Any()).Return(rejected),
		mp.EXPECT().Close().DoAndReturn(func() error {
			close(closed)
			return nil
		}),
	)
	mp.EXPECT().CreateAnswer().Times(0)

	n, events := newTestNegotiator(t, "b", mp, 0)
	n.Handle(protocol.IncomingCall("a", protocol.SDP{Type: "offer", SDP: "garbage"}))

	ev := events.wait(t, EventNegotiationFailed, "a")
	if !errors.Is(ev.Err, ErrSetRemote) || !errors.Is(ev.Err, rejected) {
		t.Fatalf("err=%v", ev.Err)
	}
	<-closed
}
