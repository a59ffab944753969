// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxIdentityLen = 254
	MaxRoomCodeLen = 64
)

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
	ErrRoomCodeEmpty   = errors.New("room code empty")
	ErrRoomCodeTooLong = errors.New("room code too long")
)

// Identity names a participant. It is supplied by the client (usually an
// email) and never authenticated.
type Identity string

// NewIdentity is a tiny helper to avoid ad-hoc conversions in adapters.
func NewIdentity(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(raw) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	return Identity(raw), nil
}

func (i Identity) String() string { return string(i) }
