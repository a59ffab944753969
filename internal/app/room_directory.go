package app

import (
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrRoomFull = errors.New("room is full")

// DefaultRoomCapacity keeps rooms pairwise.
const DefaultRoomCapacity = 2

type RoomDirectoryImpl struct {
	mu       sync.RWMutex
	capacity int
	rooms    map[domain.RoomCode]map[domain.Identity]struct{}
}

// NewRoomDirectory returns a directory whose rooms hold at most capacity
// members. A non-positive capacity falls back to DefaultRoomCapacity.
func NewRoomDirectory(capacity int) core.RoomDirectory {
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return &RoomDirectoryImpl{
		capacity: capacity,
		rooms:    make(map[domain.RoomCode]map[domain.Identity]struct{}),
	}
}

// Join adds id to the room, creating it on first use, and returns the other
// members. Joining a room id is already in is a no-op on the set.
func (d *RoomDirectoryImpl) Join(code domain.RoomCode, id domain.Identity) ([]domain.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.rooms[code]
	if !ok {
		members = make(map[domain.Identity]struct{}, d.capacity)
		d.rooms[code] = members
		log.Info().Str("module", "app.rooms").Str("room", code.String()).Msg("room created")
	}
	if _, already := members[id]; !already {
		if len(members) >= d.capacity {
			return nil, ErrRoomFull
		}
		members[id] = struct{}{}
	}
	return others(members, id), nil
}

// Leave removes id from the room and destroys the room once empty. Reports
// whether id was a member.
func (d *RoomDirectoryImpl) Leave(code domain.RoomCode, id domain.Identity) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.rooms[code]
	if !ok {
		return false
	}
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(d.rooms, code)
		log.Info().Str("module", "app.rooms").Str("room", code.String()).Msg("room destroyed")
	}
	return true
}

func (d *RoomDirectoryImpl) MembersOf(code domain.RoomCode) []domain.Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return others(d.rooms[code], "")
}

func (d *RoomDirectoryImpl) RoomsOf(id domain.Identity) []domain.RoomCode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.RoomCode
	for code, members := range d.rooms {
		if _, ok := members[id]; ok {
			out = append(out, code)
		}
	}
	slices.Sort(out)
	return out
}

func (d *RoomDirectoryImpl) List() []core.RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(d.rooms))
	for code, members := range d.rooms {
		out = append(out, core.RoomInfo{Code: code, MemberCount: len(members)})
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int {
		if a.Code < b.Code {
			return -1
		}
		if a.Code > b.Code {
			return 1
		}
		return 0
	})
	return out
}

// others returns the sorted members, without skip.
func others(members map[domain.Identity]struct{}, skip domain.Identity) []domain.Identity {
	out := make([]domain.Identity, 0, len(members))
	for id := range members {
		if id != skip {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
