// Package registry maps room codes to live rooms and owns the
// best-effort JSON snapshot persistence.
package registry

import (
	"fmt"
	"sync"

	"github.com/CodeHiveAPP/codehive/internal/hive"
	"github.com/CodeHiveAPP/codehive/internal/metrics"
	"github.com/CodeHiveAPP/codehive/internal/relay/room"
)

// maxCodeRetries bounds room-code generation against collisions.
const maxCodeRetries = 50

// Registry tracks live rooms. Thread-safe; the registry lock guards
// only the map, never room internals.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{rooms: make(map[string]*room.Room)}
}

// CreateRoom generates a fresh room code and creates the room. Code
// generation retries on collision; exhaustion is reported to the
// caller as an error.
func (reg *Registry) CreateRoom(createdBy, password string, isPublic bool, expiresInHours int) (*room.Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for i := 0; i < maxCodeRetries; i++ {
		code := hive.GenerateRoomCode()
		if _, taken := reg.rooms[code]; taken {
			continue
		}
		r := room.New(code, createdBy, password, isPublic, expiresInHours)
		reg.rooms[code] = r
		metrics.ActiveRooms.Set(float64(len(reg.rooms)))
		return r, nil
	}
	return nil, fmt.Errorf("could not generate a unique room code")
}

// Add inserts an externally constructed room (snapshot restore).
func (reg *Registry) Add(r *room.Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rooms[r.Code()] = r
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
}

// Get returns the room for a code, or nil.
func (reg *Registry) Get(code string) *room.Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[code]
}

// Has reports whether a room exists for the code.
func (reg *Registry) Has(code string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.rooms[code]
	return ok
}

// Delete removes a room.
func (reg *Registry) Delete(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, code)
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
}

// Len returns the number of live rooms.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// All returns a snapshot slice of every live room.
func (reg *Registry) All() []*room.Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*room.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// PublicRooms returns the non-empty, discoverable rooms.
func (reg *Registry) PublicRooms() []*room.Room {
	var out []*room.Room
	for _, r := range reg.All() {
		if r.IsPublic() && !r.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

// PruneEmptyRooms deletes rooms with no members. Returns the number
// removed.
func (reg *Registry) PruneEmptyRooms() int {
	return reg.pruneIf(func(r *room.Room) bool { return r.IsEmpty() })
}

// PruneExpiredRooms deletes rooms whose last activity exceeded their
// expiry horizon. Returns the number removed.
func (reg *Registry) PruneExpiredRooms() int {
	return reg.pruneIf(func(r *room.Room) bool { return r.IsExpired() })
}

func (reg *Registry) pruneIf(cond func(*room.Room) bool) int {
	var doomed []string
	for _, r := range reg.All() {
		if cond(r) {
			doomed = append(doomed, r.Code())
		}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	pruned := 0
	for _, code := range doomed {
		r, ok := reg.rooms[code]
		if !ok || !cond(r) {
			continue
		}
		delete(reg.rooms, code)
		pruned++
	}
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	return pruned
}
