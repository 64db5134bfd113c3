// internal/room/room.go
package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/overture-games/mandate/internal/match"
	"github.com/overture-games/mandate/internal/models"
	"github.com/overture-games/mandate/internal/protocol"
)

// Phase is the room lifecycle state.
type Phase string

const (
	RoomOpen       Phase = "ROOM_OPEN"
	RoomReadyCheck Phase = "ROOM_READY_CHECK"
	RoomLoading    Phase = "ROOM_LOADING"
	RoomInMatch    Phase = "ROOM_IN_MATCH"
	RoomPostMatch  Phase = "ROOM_POST_MATCH"
	RoomClosed     Phase = "ROOM_CLOSED"
)

// ConnState tracks a member's connection across the disconnect grace window.
type ConnState string

const (
	ConnConnected   ConnState = "CONNECTED"
	ConnGracePeriod ConnState = "DISCONNECTED_GRACE"
	ConnForfeited   ConnState = "FORFEITED"
)

// MaxPlayers is the fixed seat count.
const MaxPlayers = 3

// PlayerState is one room member.
type PlayerState struct {
	PlayerID    string
	DisplayName string
	Ready       bool
	Loaded      bool
	JoinOrder   int
}

// LogEntry is one retained event for replay.
type LogEntry struct {
	EventSeq uint64
	Type     protocol.EventType
	Payload  json.RawMessage
}

// pausedTimer records a turn or crisis timer suspended while its seat is in
// the disconnect grace window.
type pausedTimer struct {
	key       string
	seat      models.Seat
	remaining time.Duration
}

// Room is a lobby plus its match. Everything mutable is guarded by Mu;
// the Manager takes the lock on every entry point and timer callback.
type Room struct {
	Mu sync.Mutex

	ID         string
	InviteCode string
	Phase      Phase

	EventSeq uint64
	eventLog []LogEntry
	logCap   int

	Players      map[string]*PlayerState
	Sessions     map[string]*Session // player id -> live session
	ConnStates   map[string]ConnState
	HostPlayerID string
	JoinCounter  int

	Match *match.Match

	Sched  *Scheduler
	paused *pausedTimer

	CreatedAt time.Time
}

func newRoom(id, inviteCode string, logCap int) *Room {
	return &Room{
		ID:         id,
		InviteCode: inviteCode,
		Phase:      RoomOpen,
		logCap:     logCap,
		Players:    make(map[string]*PlayerState),
		Sessions:   make(map[string]*Session),
		ConnStates: make(map[string]ConnState),
		Sched:      NewScheduler(),
		CreatedAt:  time.Now(),
	}
}

// NextSeq assigns the next event sequence number. Lock held.
func (r *Room) NextSeq() uint64 {
	r.EventSeq++
	return r.EventSeq
}

// AppendLog retains an emitted event for replay, dropping the oldest entry
// once the cap is exceeded. Lock held.
func (r *Room) AppendLog(entry LogEntry) {
	r.eventLog = append(r.eventLog, entry)
	if len(r.eventLog) > r.logCap {
		r.eventLog = r.eventLog[1:]
	}
}

// EventsSince returns the retained events after fromSeq. The second return
// is false when the requested window has already been dropped, in which
// case the caller must fall back to a full snapshot. Lock held.
func (r *Room) EventsSince(fromSeq uint64) ([]LogEntry, bool) {
	if fromSeq >= r.EventSeq {
		return nil, true
	}
	// The log must still contain fromSeq+1 for a gap-free replay.
	if len(r.eventLog) == 0 || r.eventLog[0].EventSeq > fromSeq+1 {
		return nil, false
	}
	var out []LogEntry
	for _, entry := range r.eventLog {
		if entry.EventSeq > fromSeq {
			out = append(out, entry)
		}
	}
	return out, true
}

// PlayerSummaries renders the lobby view sorted by join order. Lock held.
func (r *Room) PlayerSummaries() []protocol.PlayerSummary {
	out := make([]protocol.PlayerSummary, 0, len(r.Players))
	for order := 1; order <= r.JoinCounter; order++ {
		for _, p := range r.Players {
			if p.JoinOrder != order {
				continue
			}
			out = append(out, protocol.PlayerSummary{
				PlayerID:    p.PlayerID,
				DisplayName: p.DisplayName,
				Ready:       p.Ready,
				Loaded:      p.Loaded,
				IsHost:      p.PlayerID == r.HostPlayerID,
			})
		}
	}
	return out
}

// Joinable reports whether a new player may enter. Lock held.
func (r *Room) Joinable() protocol.ReasonCode {
	if r.Phase != RoomOpen && r.Phase != RoomReadyCheck {
		return protocol.ReasonRoomNotJoinable
	}
	if len(r.Players) >= MaxPlayers {
		return protocol.ReasonRoomFull
	}
	return ""
}

// allReady reports whether all three members are ready. Lock held.
func (r *Room) allReady() bool {
	if len(r.Players) != MaxPlayers {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// allLoaded reports whether every member has reported loaded. Lock held.
func (r *Room) allLoaded() bool {
	for _, p := range r.Players {
		if !p.Loaded {
			return false
		}
	}
	return true
}

// resetReady clears every ready flag. Lock held.
func (r *Room) resetReady() {
	for _, p := range r.Players {
		p.Ready = false
	}
}

// successorHost returns the remaining player with the lowest join order.
// Lock held.
func (r *Room) successorHost() string {
	var best *PlayerState
	for _, p := range r.Players {
		if best == nil || p.JoinOrder < best.JoinOrder {
			best = p
		}
	}
	if best == nil {
		return ""
	}
	return best.PlayerID
}

// seatAssignments maps seats to players by join order. Lock held.
func (r *Room) seatAssignments() map[models.Seat]string {
	assignments := make(map[models.Seat]string, MaxPlayers)
	summaries := r.PlayerSummaries()
	for i, seat := range models.Seats {
		if i < len(summaries) {
			assignments[seat] = summaries[i].PlayerID
		}
	}
	return assignments
}
