// internal/room/store.go
package room

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// inviteAlphabet omits 0/O and 1/I to keep codes readable over voice.
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const inviteCodeLen = 6

// Store is the injected room registry. Rooms are reachable by id or by
// invite code. The Manager holds one Store; tests hold as many independent
// ones as they need.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
	codes map[string]string // invite code -> room id
}

func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
		codes: make(map[string]string),
	}
}

// Create registers a new room with a unique invite code.
func (s *Store) Create(logCap int) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("room_%s", uuid.New().String()[:8])
	code := s.newInviteCode()
	r := newRoom(id, code, logCap)
	s.rooms[id] = r
	s.codes[code] = id
	return r
}

func (s *Store) newInviteCode() string {
	for {
		b := make([]byte, inviteCodeLen)
		for i := range b {
			b[i] = inviteAlphabet[rand.Intn(len(inviteAlphabet))]
		}
		code := string(b)
		if _, taken := s.codes[code]; !taken {
			return code
		}
	}
}

// Get returns the room with the given id.
func (s *Store) Get(id string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// Resolve looks a room up by id first, then by invite code.
func (s *Store) Resolve(idOrCode string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[idOrCode]; ok {
		return r, true
	}
	if id, ok := s.codes[strings.ToUpper(idOrCode)]; ok {
		r, ok := s.rooms[id]
		return r, ok
	}
	return nil, false
}

// Delete removes a room and frees its invite code.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		delete(s.codes, r.InviteCode)
		delete(s.rooms, id)
	}
}

// Len reports how many rooms are live.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
