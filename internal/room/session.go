// internal/room/session.go
//
// Package room owns the connection sessions, the room registry, the keyed
// timer scheduler, and the Manager that orchestrates the lobby and match
// lifecycle. All room mutation is serialized under the room's mutex; writes
// to clients go through each session's Sink so no network I/O happens while
// a lock is held.
package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/overture-games/mandate/internal/protocol"
)

// intentCacheCap bounds how many recently acknowledged intent ids a session
// remembers for duplicate detection.
const intentCacheCap = 64

// Sink delivers envelopes to one client. The websocket handler backs it
// with a buffered outbox drained by a write pump; tests use an in-memory
// collector. Send must never block.
type Sink interface {
	Send(env *protocol.Envelope)
	// CloseNow tears the connection down, e.g. on version mismatch or a
	// missed heartbeat.
	CloseNow()
}

// Session is one live connection.
type Session struct {
	ID       string
	PlayerID string
	Sink     Sink

	RoomID       string
	LastEventSeq uint64

	// lastPong is written by the read loop and read by the heartbeat
	// goroutine, so it takes its own lock.
	pongMu   sync.Mutex
	lastPong time.Time

	// intentCache maps client_intent_id to the ack already sent for it, so
	// a retried intent re-delivers the identical ack without re-executing.
	// intentOrder tracks insertion order for eviction once the cache is full.
	intentCache map[string]*protocol.Envelope
	intentOrder []string

	windowStart time.Time
	windowCount int
}

// NewSession creates a session with a fresh player identity.
func NewSession(sink Sink) *Session {
	id := uuid.New().String()
	return &Session{
		ID:          id,
		PlayerID:    fmt.Sprintf("p_%s", id[:8]),
		Sink:        sink,
		lastPong:    time.Now(),
		intentCache: make(map[string]*protocol.Envelope),
	}
}

// TouchPong records heartbeat liveness.
func (s *Session) TouchPong() {
	s.pongMu.Lock()
	s.lastPong = time.Now()
	s.pongMu.Unlock()
}

// SincePong reports how long ago the last pong arrived.
func (s *Session) SincePong(now time.Time) time.Duration {
	s.pongMu.Lock()
	defer s.pongMu.Unlock()
	return now.Sub(s.lastPong)
}

// CachedAck returns the ack previously issued for this intent id, if any.
func (s *Session) CachedAck(clientIntentID string) (*protocol.Envelope, bool) {
	ack, ok := s.intentCache[clientIntentID]
	return ack, ok
}

// CacheAck records the ack for an intent id, evicting the oldest entry once
// the cache is full.
func (s *Session) CacheAck(clientIntentID string, ack *protocol.Envelope) {
	if clientIntentID == "" {
		return
	}
	if _, seen := s.intentCache[clientIntentID]; !seen {
		if len(s.intentOrder) >= intentCacheCap {
			oldest := s.intentOrder[0]
			s.intentOrder = s.intentOrder[1:]
			delete(s.intentCache, oldest)
		}
		s.intentOrder = append(s.intentOrder, clientIntentID)
	}
	s.intentCache[clientIntentID] = ack
}

// AllowIntent applies a fixed-window rate limit to incoming intents.
func (s *Session) AllowIntent(now time.Time, limit int, window time.Duration) bool {
	if now.Sub(s.windowStart) >= window {
		s.windowStart = now
		s.windowCount = 0
	}
	if s.windowCount >= limit {
		return false
	}
	s.windowCount++
	return true
}
