package negotiation

import (
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -source=peer.go -destination=mock_peer_test.go -package=negotiation

// Peer is the media transport one session drives.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// PeerFactory builds a fresh Peer for one remote identity.
type PeerFactory func(remote domain.Identity) (Peer, error)
