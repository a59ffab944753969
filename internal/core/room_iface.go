package core

import (
	"github.com/dkeye/Rendezvous/internal/domain"
)

type RoomInfo struct {
	Code        domain.RoomCode `json:"code"`
	MemberCount int             `json:"member_count"`
}

// RoomDirectory is the core-facing API of the room table.
// It owns the membership sets but never touches transport resources.
type RoomDirectory interface {
	// Join adds id to the room and returns the other current members.
	// Joining twice is a no-op on the set.
	Join(code domain.RoomCode, id domain.Identity) ([]domain.Identity, error)
	Leave(code domain.RoomCode, id domain.Identity) bool
	MembersOf(code domain.RoomCode) []domain.Identity
	RoomsOf(id domain.Identity) []domain.RoomCode
	List() []RoomInfo
}
