// internal/room/intents.go
package room

import (
	"time"

	"github.com/overture-games/mandate/internal/protocol"
)

// HandleIntent validates, dispatches, and acknowledges one client intent.
// A duplicate client_intent_id re-delivers the cached ack without
// re-executing; a panic in any handler is confined to this room and
// surfaced as an INTERNAL_ERROR rejection.
func (m *Manager) HandleIntent(s *Session, env *protocol.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.Errorf("panic handling %s from %s: %v", env.Type, s.PlayerID, rec)
			s.Sink.Send(protocol.NewReject(s.RoomID, env.ClientIntentID, protocol.ReasonInternalError, "internal error"))
		}
	}()

	if !s.AllowIntent(time.Now(), m.cfg.RateLimitCount, m.cfg.RateLimitWindow) {
		s.Sink.Send(protocol.NewReject(s.RoomID, env.ClientIntentID, protocol.ReasonRateLimited, "too many intents"))
		return
	}

	if ack, ok := s.CachedAck(env.ClientIntentID); ok {
		s.Sink.Send(ack)
		return
	}

	switch protocol.IntentType(env.Type) {
	case protocol.IntentCreateRoom:
		m.handleCreateRoom(s, env)
	case protocol.IntentJoinRoom:
		m.handleJoinRoom(s, env)
	case protocol.IntentLeaveRoom:
		m.handleLeaveRoom(s, env)
	case protocol.IntentStartReadyCheck:
		m.handleStartReadyCheck(s, env)
	case protocol.IntentCancelReadyCheck:
		m.handleCancelReadyCheck(s, env)
	case protocol.IntentSetReady:
		m.handleSetReady(s, env)
	case protocol.IntentClientLoaded:
		m.handleClientLoaded(s, env)
	case protocol.IntentRequestSnapshot:
		m.handleRequestSnapshot(s, env)
	case protocol.IntentPlayCard:
		m.handlePlayCard(s, env)
	case protocol.IntentDeclareCrisis:
		m.handleDeclareCrisis(s, env)
	default:
		s.Sink.Send(protocol.NewReject(s.RoomID, env.ClientIntentID, protocol.ReasonInternalError, "unknown intent type"))
	}
}

// accept caches and sends an INTENT_ACCEPTED ack. Room lock may be held.
func (m *Manager) accept(s *Session, roomID, intentID string) {
	ack := protocol.NewAccept(roomID, intentID)
	s.CacheAck(intentID, ack)
	s.Sink.Send(ack)
}

// reject caches and sends an INTENT_REJECTED ack.
func (m *Manager) reject(s *Session, roomID, intentID string, reason protocol.ReasonCode, details string) {
	ack := protocol.NewReject(roomID, intentID, reason, details)
	s.CacheAck(intentID, ack)
	s.Sink.Send(ack)
}

// currentRoom resolves the session's room, or rejects.
func (m *Manager) currentRoom(s *Session, intentID string) (*Room, bool) {
	if s.RoomID == "" {
		m.reject(s, "", intentID, protocol.ReasonRoomNotFound, "not in a room")
		return nil, false
	}
	r, ok := m.store.Get(s.RoomID)
	if !ok {
		m.reject(s, "", intentID, protocol.ReasonRoomNotFound, "room not found")
		return nil, false
	}
	return r, true
}

func (m *Manager) handleCreateRoom(s *Session, env *protocol.Envelope) {
	if left := m.leaveCurrent(s, env.ClientIntentID); !left {
		return
	}

	r := m.store.Create(m.cfg.EventLogCap)
	r.Mu.Lock()
	defer r.Mu.Unlock()

	m.addPlayer(r, s)
	r.HostPlayerID = s.PlayerID
	m.log.Infof("room %s created (%s) by %s", r.ID, r.InviteCode, s.PlayerID)

	m.accept(s, r.ID, env.ClientIntentID)
	m.sendSnapshot(s, r)
	m.broadcastRoomState(r)
}

func (m *Manager) handleJoinRoom(s *Session, env *protocol.Envelope) {
	var payload protocol.JoinRoomPayload
	if err := env.DecodePayload(&payload); err != nil {
		m.reject(s, s.RoomID, env.ClientIntentID, protocol.ReasonRoomNotFound, "malformed payload")
		return
	}
	target := payload.RoomID
	if target == "" {
		target = payload.InviteCode
	}

	r, ok := m.store.Resolve(target)
	if !ok {
		m.reject(s, "", env.ClientIntentID, protocol.ReasonRoomNotFound, "room not found")
		return
	}

	if left := m.leaveCurrent(s, env.ClientIntentID); !left {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if reason := r.Joinable(); reason != "" {
		m.reject(s, "", env.ClientIntentID, reason, "room not joinable")
		return
	}

	m.addPlayer(r, s)
	m.log.Infof("player %s joined room %s (%d/%d)", s.PlayerID, r.ID, len(r.Players), MaxPlayers)

	m.accept(s, r.ID, env.ClientIntentID)
	m.sendSnapshot(s, r)
	m.broadcastRoomState(r)
}

// leaveCurrent detaches the session from its current room before it makes
// or joins another. A session mid-match may not abandon the room this way.
func (m *Manager) leaveCurrent(s *Session, intentID string) bool {
	if s.RoomID == "" {
		return true
	}
	r, ok := m.store.Get(s.RoomID)
	if !ok {
		s.RoomID = ""
		return true
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase == RoomInMatch {
		m.reject(s, r.ID, intentID, protocol.ReasonAlreadyInMatch, "leave the match first")
		return false
	}
	m.leaveLocked(r, s.PlayerID)
	return true
}

// addPlayer seats a session in the room. Lock held.
func (m *Manager) addPlayer(r *Room, s *Session) {
	r.JoinCounter++
	r.Players[s.PlayerID] = &PlayerState{
		PlayerID:    s.PlayerID,
		DisplayName: "Player " + s.PlayerID[2:],
		JoinOrder:   r.JoinCounter,
	}
	r.Sessions[s.PlayerID] = s
	r.ConnStates[s.PlayerID] = ConnConnected
	s.RoomID = r.ID
}

func (m *Manager) handleLeaveRoom(s *Session, env *protocol.Envelope) {
	roomID := s.RoomID
	if roomID == "" {
		m.accept(s, "", env.ClientIntentID)
		return
	}
	r, ok := m.store.Get(roomID)
	if !ok {
		s.RoomID = ""
		m.accept(s, "", env.ClientIntentID)
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	// Walking out mid-match is a forfeit, not a quiet exit.
	if r.Phase == RoomInMatch && r.Match != nil {
		if _, inMatch := r.Match.SeatFor(s.PlayerID); inMatch {
			r.ConnStates[s.PlayerID] = ConnForfeited
			m.forfeit(r, s.PlayerID, "LEFT_MATCH")
		}
	}

	m.leaveLocked(r, s.PlayerID)
	m.accept(s, roomID, env.ClientIntentID)
}

func (m *Manager) handleStartReadyCheck(s *Session, env *protocol.Envelope) {
	r, ok := m.currentRoom(s, env.ClientIntentID)
	if !ok {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostPlayerID != s.PlayerID {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonNotHost, "only the host can start a ready check")
		return
	}
	if r.Phase != RoomOpen || len(r.Players) < MaxPlayers {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonInvalidPhase, "need a full open room")
		return
	}

	r.Phase = RoomReadyCheck
	r.resetReady()
	m.log.Infof("room %s ready check started", r.ID)

	m.accept(s, r.ID, env.ClientIntentID)
	m.emit(r, protocol.EventReadyCheckStarted, protocol.ReadyCheckStartedPayload{})
	m.broadcastRoomState(r)
}

func (m *Manager) handleCancelReadyCheck(s *Session, env *protocol.Envelope) {
	r, ok := m.currentRoom(s, env.ClientIntentID)
	if !ok {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostPlayerID != s.PlayerID {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonNotHost, "only the host can cancel")
		return
	}
	if r.Phase != RoomReadyCheck {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonNotInReadyCheck, "no ready check running")
		return
	}

	r.Phase = RoomOpen
	r.resetReady()

	m.accept(s, r.ID, env.ClientIntentID)
	m.emit(r, protocol.EventReadyCheckCanceled, protocol.ReadyCheckCanceledPayload{})
	m.broadcastRoomState(r)
}

func (m *Manager) handleSetReady(s *Session, env *protocol.Envelope) {
	r, ok := m.currentRoom(s, env.ClientIntentID)
	if !ok {
		return
	}

	var payload protocol.SetReadyPayload
	_ = env.DecodePayload(&payload)
	ready := true
	if payload.Ready != nil {
		ready = *payload.Ready
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	// A full open room slides into the ready check on the first ready.
	if r.Phase == RoomOpen && len(r.Players) == MaxPlayers {
		r.Phase = RoomReadyCheck
	}
	if r.Phase != RoomReadyCheck {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonNotInReadyCheck, "not in a ready check")
		return
	}

	player, ok := r.Players[s.PlayerID]
	if !ok {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonRoomNotFound, "not a member")
		return
	}
	player.Ready = ready

	m.accept(s, r.ID, env.ClientIntentID)
	m.broadcastRoomState(r)

	if r.allReady() {
		m.transitionToLoading(r)
	}
}

func (m *Manager) handleClientLoaded(s *Session, env *protocol.Envelope) {
	r, ok := m.currentRoom(s, env.ClientIntentID)
	if !ok {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase != RoomLoading {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonInvalidPhase, "room is not loading")
		return
	}
	player, ok := r.Players[s.PlayerID]
	if !ok {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonRoomNotFound, "not a member")
		return
	}
	player.Loaded = true

	m.accept(s, r.ID, env.ClientIntentID)
	m.broadcastRoomState(r)

	if r.allLoaded() {
		r.Sched.Cancel(TimerLoading)
		m.transitionToMatch(r)
	}
}

// handleRequestSnapshot is deliberately not idempotency-cached; a retry
// should produce a fresh snapshot.
func (m *Manager) handleRequestSnapshot(s *Session, env *protocol.Envelope) {
	if s.RoomID == "" {
		s.Sink.Send(protocol.NewReject("", env.ClientIntentID, protocol.ReasonRoomNotFound, "not in a room"))
		return
	}
	r, ok := m.store.Get(s.RoomID)
	if !ok {
		s.Sink.Send(protocol.NewReject("", env.ClientIntentID, protocol.ReasonRoomNotFound, "room not found"))
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	s.Sink.Send(protocol.NewAccept(r.ID, env.ClientIntentID))
	m.sendSnapshot(s, r)

	if r.Match != nil && r.Match.CurrentRound != nil {
		if seat, ok := r.Match.SeatFor(s.PlayerID); ok {
			m.sendPrivateHand(r, seat)
		}
	}
}

// transitionToLoading moves a fully ready room into asset loading. Lock
// held.
func (m *Manager) transitionToLoading(r *Room) {
	r.Phase = RoomLoading
	for _, p := range r.Players {
		p.Loaded = false
	}
	m.log.Infof("room %s loading", r.ID)

	m.emit(r, protocol.EventMatchLoadingBegin, protocol.MatchLoadingBeginPayload{
		AssetManifestVersion: m.cfg.AssetManifestVersion,
	})
	m.broadcastRoomState(r)

	r.Sched.Schedule(TimerLoading, m.cfg.LoadingTimeout, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if r.Phase != RoomLoading {
			return
		}
		m.log.Infof("room %s loading timed out, starting match anyway", r.ID)
		m.transitionToMatch(r)
	})
}
