// Package protocol defines the signaling wire format: one JSON object per
// WebSocket text frame, discriminated by "type".
package protocol

import (
	"fmt"

	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Type string

const (
	TypeJoinRoom     Type = "join-room"
	TypeJoinedRoom   Type = "joined-room"
	TypeUserJoined   Type = "user-joined"
	TypeCallUser     Type = "call-user"
	TypeIncomingCall Type = "incoming-call"
	TypeCallAnswered Type = "call-answered"
	TypeIceCandidate Type = "ice-candidate"
	TypeUserLeft     Type = "user-left"
	TypeLeaveRoom    Type = "leave-room"
	TypeLeftRoom     Type = "left-room"
	TypePing         Type = "ping"
	TypePong         Type = "pong"
	TypeError        Type = "error"
)

type ErrorCode string

const (
	CodeBadPayload  ErrorCode = "bad-payload"
	CodeNotJoined   ErrorCode = "not-joined"
	CodeNotInRoom   ErrorCode = "not-in-room"
	CodeRoutingMiss ErrorCode = "routing-miss"
	CodeRoomFull    ErrorCode = "room-full"
	CodeRateLimited ErrorCode = "rate-limited"
)

// SDP is a session description as browsers serialize it.
type SDP struct {
	Type string `json:"type" validate:"required,oneof=offer answer"`
	SDP  string `json:"sdp" validate:"required"`
}

func SDPFromPion(desc webrtc.SessionDescription) SDP {
	return SDP{Type: desc.Type.String(), SDP: desc.SDP}
}

func (s SDP) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	if s.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("empty sdp")
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

// Candidate has the RTCIceCandidateInit shape. An empty Candidate string
// marks end of candidates.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" validate:"omitempty,max=256"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" validate:"omitempty,max=256"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// Message is the union of every signaling message. Which fields are set
// depends on Type and on the direction of travel.
type Message struct {
	Type           Type            `json:"type"`
	Identity       domain.Identity `json:"identity,omitempty"`
	RoomCode       domain.RoomCode `json:"roomCode,omitempty"`
	TargetIdentity domain.Identity `json:"targetIdentity,omitempty"`
	FromIdentity   domain.Identity `json:"fromIdentity,omitempty"`
	Offer          *SDP            `json:"offer,omitempty"`
	Answer         *SDP            `json:"answer,omitempty"`
	Candidate      *Candidate      `json:"candidate,omitempty"`
	Code           ErrorCode       `json:"code,omitempty"`
	Message        string          `json:"message,omitempty"`
}
