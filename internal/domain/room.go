package domain

import "strings"

// RoomCode is the caller-supplied name two participants agree on.
type RoomCode string

func NewRoomCode(raw string) (RoomCode, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrRoomCodeEmpty
	}
	if len(raw) > MaxRoomCodeLen {
		return "", ErrRoomCodeTooLong
	}
	return RoomCode(raw), nil
}

func (c RoomCode) String() string { return string(c) }
