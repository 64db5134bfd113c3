// internal/room/manager.go
package room

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/overture-games/mandate/internal/match"
	"github.com/overture-games/mandate/internal/models"
	"github.com/overture-games/mandate/internal/protocol"
)

// TokenIssuer signs and verifies resume tokens carried in HELLO_OK and the
// HELLO resume block. Optional; without one, reconnects are refused.
type TokenIssuer interface {
	Issue(playerID string) (string, error)
	Verify(token string) (string, error)
}

// EventRecord is the archived form of one emitted room event.
type EventRecord struct {
	RoomID    string          `json:"room_id"`
	MatchID   string          `json:"match_id,omitempty"`
	EventSeq  uint64          `json:"event_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// Archiver receives emitted events for offline archival. PublishEvent must
// not block; gameplay never waits on the archive path.
type Archiver interface {
	PublishEvent(rec EventRecord)
}

// Config bundles the room timing knobs so tests can shrink them.
type Config struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	GracePeriod     time.Duration
	TurnTimeout     time.Duration
	CrisisTimeout   time.Duration
	LoadingTimeout  time.Duration
	NextRoundDelay  time.Duration
	EventLogCap     int
	RateLimitCount  int
	RateLimitWindow time.Duration

	AssetManifestVersion string
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PingInterval:         10 * time.Second,
		PongTimeout:          30 * time.Second,
		GracePeriod:          45 * time.Second,
		TurnTimeout:          25 * time.Second,
		CrisisTimeout:        10 * time.Second,
		LoadingTimeout:       30 * time.Second,
		NextRoundDelay:       2 * time.Second,
		EventLogCap:          100,
		RateLimitCount:       30,
		RateLimitWindow:      10 * time.Second,
		AssetManifestVersion: "am_0.1.0",
	}
}

// Manager orchestrates sessions and rooms: handshake, lobby intents,
// gameplay intents, timers, and disconnect handling. One Manager serves
// every room in the process; each room is serialized by its own mutex.
type Manager struct {
	log      *logrus.Logger
	cfg      Config
	store    *Store
	tokens   TokenIssuer
	archiver Archiver

	mu       sync.Mutex
	sessions map[string]*Session // session id -> session
}

// NewManager wires a manager. tokens and archiver may be nil.
func NewManager(log *logrus.Logger, cfg Config, store *Store, tokens TokenIssuer, archiver Archiver) *Manager {
	return &Manager{
		log:      log,
		cfg:      cfg,
		store:    store,
		tokens:   tokens,
		archiver: archiver,
		sessions: make(map[string]*Session),
	}
}

// Attach registers a new connection and returns its session.
func (m *Manager) Attach(sink Sink) *Session {
	s := NewSession(sink)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.log.Infof("session %s attached as %s", s.ID, s.PlayerID)
	return s
}

// Detach unregisters a closed connection and runs disconnect handling.
func (m *Manager) Detach(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	m.handleDisconnect(s)
}

// HandlePong records heartbeat liveness.
func (m *Manager) HandlePong(s *Session) {
	s.TouchPong()
}

// RunHeartbeat pings every session on the configured interval and severs
// the ones that stopped answering. Blocks until the context is done.
func (m *Manager) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	now := time.Now()
	ping := protocol.NewPing()

	m.mu.Lock()
	stale := make([]*Session, 0)
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.SincePong(now) > m.cfg.PongTimeout {
			stale = append(stale, s)
			continue
		}
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.log.Warnf("session %s (%s) missed pong deadline, closing", s.ID, s.PlayerID)
		s.Sink.CloseNow()
	}
	for _, s := range live {
		s.Sink.Send(ping)
	}
}

// HandleHello processes the handshake, including the optional resume block,
// and replies with HELLO_OK at sequence 0.
func (m *Manager) HandleHello(s *Session, env *protocol.Envelope) {
	var hello protocol.HelloPayload
	if err := env.DecodePayload(&hello); err != nil {
		m.log.Warnf("session %s sent malformed HELLO payload: %v", s.ID, err)
	}

	if hello.Resume != nil && hello.Resume.RoomID != "" {
		m.tryResume(s, hello.Resume)
	}

	var token string
	if m.tokens != nil {
		issued, err := m.tokens.Issue(s.PlayerID)
		if err != nil {
			m.log.Errorf("issue resume token for %s: %v", s.PlayerID, err)
		} else {
			token = issued
		}
	}

	helloOK := protocol.NewEvent(s.RoomID, protocol.EventHelloOK, 0, protocol.HelloOKPayload{
		PlayerID:     s.PlayerID,
		ServerTimeMS: time.Now().UnixMilli(),
		ResumeToken:  token,
	})
	s.Sink.Send(helloOK)
}

// tryResume reattaches a reconnecting player to its room. The resume token
// must verify to a player id that is still a member; anything else falls
// through to a fresh identity.
func (m *Manager) tryResume(s *Session, resume *protocol.ResumeRequest) {
	if m.tokens == nil {
		m.log.Warnf("session %s requested resume but no token issuer is configured", s.ID)
		return
	}
	playerID, err := m.tokens.Verify(resume.ResumeToken)
	if err != nil {
		m.log.Warnf("session %s presented an invalid resume token: %v", s.ID, err)
		return
	}

	r, ok := m.store.Get(resume.RoomID)
	if !ok {
		m.log.Infof("resume for %s refused: room %s is gone", playerID, resume.RoomID)
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if _, member := r.Players[playerID]; !member {
		m.log.Infof("resume for %s refused: not a member of room %s", playerID, r.ID)
		return
	}
	if r.ConnStates[playerID] == ConnForfeited {
		m.log.Infof("resume for %s refused: seat already forfeited", playerID)
		return
	}

	s.PlayerID = playerID
	s.RoomID = r.ID
	r.Sessions[playerID] = s
	r.ConnStates[playerID] = ConnConnected
	r.Sched.Cancel(GraceKey(playerID))

	m.log.Infof("player %s reconnected to room %s", playerID, r.ID)

	if r.Match != nil {
		if seat, ok := r.Match.SeatFor(playerID); ok {
			m.emit(r, protocol.EventPlayerReconnected, protocol.PlayerReconnectedPayload{Seat: seat})
			m.resumePausedTimer(r, seat)
		}
	}

	entries, replayable := r.EventsSince(resume.LastEventSeq)
	if replayable {
		for _, entry := range entries {
			seq := entry.EventSeq
			s.Sink.Send(&protocol.Envelope{
				ProtocolVersion: protocol.Version,
				RoomID:          r.ID,
				Op:              protocol.OpEvent,
				Type:            string(entry.Type),
				EventSeq:        &seq,
				Payload:         entry.Payload,
			})
		}
		s.LastEventSeq = r.EventSeq
	} else {
		m.sendSnapshot(s, r)
	}

	if r.Match != nil && r.Match.CurrentRound != nil {
		if seat, ok := r.Match.SeatFor(playerID); ok {
			m.sendPrivateHand(r, seat)
		}
	}
}

// resumePausedTimer re-arms a turn or crisis timer that was suspended while
// this seat sat in the grace window. Lock held.
func (m *Manager) resumePausedTimer(r *Room, seat models.Seat) {
	if r.paused == nil || r.paused.seat != seat {
		return
	}
	if r.Match == nil || r.Match.CurrentRound == nil || r.Match.CurrentRound.ActiveSeat != seat {
		r.paused = nil
		return
	}

	paused := r.paused
	r.paused = nil
	round := r.Match.CurrentRound

	switch paused.key {
	case TimerTurn:
		m.armTurnTimer(r, round.ID, round.TurnNumber, seat, paused.remaining)
	case TimerCrisis:
		m.armCrisisTimer(r, round.ID, seat, paused.remaining)
	}
}

// handleDisconnect runs when a connection drops. Mid-match the seat enters
// the grace window; otherwise the player just leaves the room.
func (m *Manager) handleDisconnect(s *Session) {
	if s.RoomID == "" {
		return
	}
	r, ok := m.store.Get(s.RoomID)
	if !ok {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	// A resumed session may have replaced this one already.
	if current, ok := r.Sessions[s.PlayerID]; ok && current != s {
		return
	}

	if r.Phase == RoomInMatch && r.Match != nil {
		seat, inMatch := r.Match.SeatFor(s.PlayerID)
		if inMatch {
			delete(r.Sessions, s.PlayerID)
			r.ConnStates[s.PlayerID] = ConnGracePeriod
			m.log.Infof("player %s (%s) disconnected mid-match, grace %s", s.PlayerID, seat, m.cfg.GracePeriod)

			m.emit(r, protocol.EventPlayerDisconnected, protocol.PlayerDisconnectedPayload{Seat: seat})
			m.pauseActiveTimer(r, seat)

			playerID := s.PlayerID
			r.Sched.Schedule(GraceKey(playerID), m.cfg.GracePeriod, func() {
				m.onGraceExpiry(r, playerID)
			})
			return
		}
	}

	m.leaveLocked(r, s.PlayerID)
}

// pauseActiveTimer suspends the turn or crisis timer if it is guarding the
// disconnected seat's own action window, recording the remaining budget so
// a reconnect resumes rather than restarts it. Lock held.
func (m *Manager) pauseActiveTimer(r *Room, seat models.Seat) {
	round := r.Match.CurrentRound
	if round == nil || round.ActiveSeat != seat {
		return
	}

	switch round.Phase {
	case match.PhaseTurnAwaitAction:
		if rem, ok := r.Sched.CancelRemaining(TimerTurn); ok {
			r.paused = &pausedTimer{key: TimerTurn, seat: seat, remaining: rem}
		}
	case match.PhaseTurnAwaitCrisis:
		if rem, ok := r.Sched.CancelRemaining(TimerCrisis); ok {
			r.paused = &pausedTimer{key: TimerCrisis, seat: seat, remaining: rem}
		}
	}
}

func (m *Manager) onGraceExpiry(r *Room, playerID string) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.ConnStates[playerID] != ConnGracePeriod {
		return
	}
	if r.Match == nil || r.Phase != RoomInMatch {
		return
	}

	r.ConnStates[playerID] = ConnForfeited
	m.log.Infof("player %s grace expired, forfeiting", playerID)
	m.forfeit(r, playerID, "DISCONNECT_TIMEOUT")
}

// leaveLocked removes a player from the room: host succession by join
// order, ready-check revert, teardown when empty. Lock held.
func (m *Manager) leaveLocked(r *Room, playerID string) {
	if _, ok := r.Players[playerID]; !ok {
		return
	}
	if s, ok := r.Sessions[playerID]; ok {
		s.RoomID = ""
	}
	delete(r.Players, playerID)
	delete(r.Sessions, playerID)
	delete(r.ConnStates, playerID)
	m.log.Infof("player %s left room %s (%d remain)", playerID, r.ID, len(r.Players))

	if len(r.Players) == 0 {
		m.destroyLocked(r)
		return
	}

	if r.HostPlayerID == playerID {
		r.HostPlayerID = r.successorHost()
		m.log.Infof("room %s host reassigned to %s", r.ID, r.HostPlayerID)
	}

	if r.Phase == RoomReadyCheck {
		r.Phase = RoomOpen
		r.resetReady()
	}

	m.broadcastRoomState(r)
}

func (m *Manager) destroyLocked(r *Room) {
	r.Phase = RoomClosed
	r.Sched.CancelAll()
	r.paused = nil
	m.store.Delete(r.ID)
	m.log.Infof("room %s destroyed", r.ID)
}

// --- emission ---

// emit assigns the next sequence number, appends to the replay log, sends
// to every attached session, and hands the record to the archiver. Lock
// held; Sink.Send never blocks.
func (m *Manager) emit(r *Room, typ protocol.EventType, payload any) {
	seq := r.NextSeq()
	env := protocol.NewEvent(r.ID, typ, seq, payload)
	r.AppendLog(LogEntry{EventSeq: seq, Type: typ, Payload: env.Payload})

	for _, s := range r.Sessions {
		s.Sink.Send(env)
		s.LastEventSeq = seq
	}

	if m.archiver != nil {
		rec := EventRecord{
			RoomID:    r.ID,
			EventSeq:  seq,
			Type:      string(typ),
			Payload:   env.Payload,
			EmittedAt: time.Now(),
		}
		if r.Match != nil {
			rec.MatchID = r.Match.ID
		}
		m.archiver.PublishEvent(rec)
	}
}

// broadcastRoomState emits the lobby view. Lock held.
func (m *Manager) broadcastRoomState(r *Room) {
	m.emit(r, protocol.EventRoomState, protocol.RoomStatePayload{
		RoomPhase:    string(r.Phase),
		InviteCode:   r.InviteCode,
		Players:      r.PlayerSummaries(),
		HostPlayerID: r.HostPlayerID,
		PlayerCount:  len(r.Players),
		MaxPlayers:   MaxPlayers,
	})
}

// sendSnapshot delivers a FULL_SNAPSHOT to one session. Lock held.
func (m *Manager) sendSnapshot(s *Session, r *Room) {
	payload := protocol.SnapshotPayload{
		RoomPhase:    string(r.Phase),
		InviteCode:   r.InviteCode,
		Players:      r.PlayerSummaries(),
		HostPlayerID: r.HostPlayerID,
		YourPlayerID: s.PlayerID,
		PlayerCount:  len(r.Players),
		MaxPlayers:   MaxPlayers,
	}
	if r.Match != nil {
		matchState := r.Match.State()
		payload.Match = &matchState
		if r.Match.CurrentRound != nil {
			roundState := r.Match.CurrentRound.State()
			payload.Round = &roundState
		}
	}

	s.Sink.Send(protocol.NewSnapshot(r.ID, r.EventSeq, payload))
	s.LastEventSeq = r.EventSeq
}

// sendPrivateHand delivers the seat's hand to its own session only. The
// frame reuses the current sequence number and is never logged. Lock held.
func (m *Manager) sendPrivateHand(r *Room, seat models.Seat) {
	if r.Match == nil || r.Match.CurrentRound == nil {
		return
	}
	s, ok := r.Sessions[r.Match.PlayerFor(seat)]
	if !ok {
		return
	}
	env := protocol.NewEvent(r.ID, protocol.EventHandSnapshot, r.EventSeq, protocol.HandSnapshotPayload{
		Hand: r.Match.CurrentRound.PrivateHand(seat),
	})
	s.Sink.Send(env)
}
