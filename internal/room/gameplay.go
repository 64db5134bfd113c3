// internal/room/gameplay.go
//
// Match orchestration: seat assignment, the turn/draw/claim loop, crisis
// declarations, timer-driven auto-actions, and forfeiture. Every function
// here runs with the room lock held; timer callbacks re-lock and re-check
// state before acting so a stale timer can never corrupt a turn.
package room

import (
	"time"

	"github.com/overture-games/mandate/internal/match"
	"github.com/overture-games/mandate/internal/models"
	"github.com/overture-games/mandate/internal/protocol"
)

// transitionToMatch seats players by join order, builds the match, deals
// round one, and opens the first turn. Lock held.
func (m *Manager) transitionToMatch(r *Room) {
	r.Phase = RoomInMatch
	seats := r.seatAssignments()
	r.Match = match.NewMatch(seats)
	round := r.Match.StartNextRound()
	m.log.Infof("room %s match %s started, round 1 seat %s opens", r.ID, r.Match.ID, round.ActiveSeat)

	m.emit(r, protocol.EventMatchStarted, protocol.MatchStartedPayload{
		MatchID: r.Match.ID,
		Seats:   seats,
	})
	m.emitRoundStarted(r, round)

	round.StartTurn()
	m.emitTurnStarted(r, round)
}

func (m *Manager) emitRoundStarted(r *Room, round *match.Round) {
	m.emit(r, protocol.EventRoundStarted, protocol.RoundStartedPayload{
		RoundID:       round.ID,
		RoundIndex:    round.Index,
		StartingSeat:  round.StartingSeat,
		ActiveSeat:    round.ActiveSeat,
		DrawPileCount: round.DrawPileCount(),
		HandCounts:    round.HandCounts(),
	})
	for _, seat := range models.Seats {
		m.sendPrivateHand(r, seat)
	}
}

// emitTurnStarted announces the open turn and arms its timer. Lock held.
func (m *Manager) emitTurnStarted(r *Room, round *match.Round) {
	m.emit(r, protocol.EventTurnStarted, protocol.TurnStartedPayload{
		ActiveSeat: round.ActiveSeat,
		TurnNumber: round.TurnNumber,
	})
	m.scheduleTurnTimer(r, round)
}

// scheduleTurnTimer arms the turn timer unless the active seat is in the
// grace window, in which case the full budget is parked until reconnect.
// Lock held.
func (m *Manager) scheduleTurnTimer(r *Room, round *match.Round) {
	seat := round.ActiveSeat
	if r.ConnStates[r.Match.PlayerFor(seat)] != ConnConnected {
		r.paused = &pausedTimer{key: TimerTurn, seat: seat, remaining: m.cfg.TurnTimeout}
		return
	}
	m.armTurnTimer(r, round.ID, round.TurnNumber, seat, m.cfg.TurnTimeout)
}

func (m *Manager) armTurnTimer(r *Room, roundID string, turnNumber int, seat models.Seat, d time.Duration) {
	r.Sched.Schedule(TimerTurn, d, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()

		round := m.activeRound(r)
		if round == nil || round.ID != roundID || round.TurnNumber != turnNumber ||
			round.ActiveSeat != seat || round.Phase != match.PhaseTurnAwaitAction {
			return
		}
		m.handleTurnTimeout(r, round, seat)
	})
}

func (m *Manager) armCrisisTimer(r *Room, roundID string, seat models.Seat, d time.Duration) {
	r.Sched.Schedule(TimerCrisis, d, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()

		round := m.activeRound(r)
		if round == nil || round.ID != roundID || round.Phase != match.PhaseTurnAwaitCrisis ||
			round.Pending == nil || round.Pending.Seat != seat {
			return
		}
		m.autoDeclareCrisis(r, round, seat)
	})
}

// activeRound returns the running round or nil. Lock held.
func (m *Manager) activeRound(r *Room) *match.Round {
	if r.Phase != RoomInMatch || r.Match == nil {
		return nil
	}
	return r.Match.CurrentRound
}

// --- client gameplay intents ---

func (m *Manager) handlePlayCard(s *Session, env *protocol.Envelope) {
	r, ok := m.currentRoom(s, env.ClientIntentID)
	if !ok {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	round := m.activeRound(r)
	if round == nil {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonNoMatch, "no active match")
		return
	}
	seat, inMatch := r.Match.SeatFor(s.PlayerID)
	if !inMatch {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonNotInMatch, "not seated in this match")
		return
	}

	var payload protocol.PlayCardPayload
	if err := env.DecodePayload(&payload); err != nil {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonPlayFailed, "malformed payload")
		return
	}

	if reason := round.ValidatePlayCard(seat, payload.CardInstanceID, payload.DistrictID, payload.SlotIndex); reason != "" {
		m.log.Warnf("room %s: play by %s rejected: %s", r.ID, seat, reason)
		m.reject(s, r.ID, env.ClientIntentID, reason, string(reason))
		return
	}

	card := round.PlayCard(seat, payload.CardInstanceID, payload.DistrictID, payload.SlotIndex)
	r.Sched.Cancel(TimerTurn)
	if card == nil {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonPlayFailed, "failed to play card")
		return
	}

	if card.Kind == models.KindCrisis {
		m.accept(s, r.ID, env.ClientIntentID)
		m.emit(r, protocol.EventCrisisDeclarationRequired, protocol.CrisisDeclarationRequiredPayload{
			Seat:           seat,
			CardInstanceID: payload.CardInstanceID,
			DeadlineMS:     time.Now().Add(m.cfg.CrisisTimeout).UnixMilli(),
		})
		m.armCrisisTimer(r, round.ID, seat, m.cfg.CrisisTimeout)
		return
	}

	m.accept(s, r.ID, env.ClientIntentID)
	m.continueAfterPlay(r, round, seat, payload.DistrictID, payload.SlotIndex, "")
}

func (m *Manager) handleDeclareCrisis(s *Session, env *protocol.Envelope) {
	r, ok := m.currentRoom(s, env.ClientIntentID)
	if !ok {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	round := m.activeRound(r)
	if round == nil {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonNoMatch, "no active match")
		return
	}
	seat, inMatch := r.Match.SeatFor(s.PlayerID)
	if !inMatch {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonNotInMatch, "not seated in this match")
		return
	}

	if round.Phase != match.PhaseTurnAwaitCrisis {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonCrisisNotPending, "no crisis pending")
		return
	}
	if round.ActiveSeat != seat {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonNotYourTurn, "not your turn")
		return
	}

	var payload protocol.DeclareCrisisPayload
	if err := env.DecodePayload(&payload); err != nil {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonCrisisInvalid, "malformed payload")
		return
	}
	if round.Pending == nil || round.Pending.CardInstanceID != payload.CardInstanceID {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonCrisisNotPending, "card mismatch")
		return
	}
	if payload.DeclaredValue == models.ValueAce || !payload.DeclaredValue.IsValid() {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonCrisisValueNotAllowed, "value must be 2-10")
		return
	}
	if !payload.DeclaredColor.IsValid() {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonCrisisInvalid, "invalid color")
		return
	}

	pending, ok := round.DeclareCrisis(seat, payload.DeclaredColor, payload.DeclaredValue)
	if !ok {
		m.reject(s, r.ID, env.ClientIntentID, protocol.ReasonCrisisInvalid, "declaration failed")
		return
	}
	r.Sched.Cancel(TimerCrisis)

	m.accept(s, r.ID, env.ClientIntentID)
	m.emit(r, protocol.EventCrisisDeclared, protocol.CrisisDeclaredPayload{
		Seat:           seat,
		CardInstanceID: payload.CardInstanceID,
		DeclaredColor:  payload.DeclaredColor,
		DeclaredValue:  payload.DeclaredValue,
	})

	m.continueAfterPlay(r, round, seat, pending.DistrictID, pending.SlotIndex, "")
}

// --- timer-driven actions ---

// handleTurnTimeout plays the deterministic stand-in action for the seat.
// Timer outcomes are events, never acks. Lock held.
func (m *Manager) handleTurnTimeout(r *Room, round *match.Round, seat models.Seat) {
	action := match.SelectAutoPlay(round, seat)
	if action.Pass {
		m.log.Infof("room %s: %s timed out with no legal plays, passing", r.ID, seat)
		m.advanceTurnFlow(r, round, seat, protocol.SourceAuto)
		return
	}

	m.log.Infof("room %s: %s timed out, auto-playing %s to %s[%d]",
		r.ID, seat, action.CardDefID, action.DistrictID, action.SlotIndex)

	card := round.PlayCard(seat, action.CardInstanceID, action.DistrictID, action.SlotIndex)
	if card == nil {
		m.advanceTurnFlow(r, round, seat, protocol.SourceAuto)
		return
	}

	if card.Kind == models.KindCrisis {
		color, value := match.SelectAutoCrisis()
		if _, ok := round.DeclareCrisis(seat, color, value); !ok {
			m.advanceTurnFlow(r, round, seat, protocol.SourceAuto)
			return
		}
		m.emit(r, protocol.EventCrisisDeclared, protocol.CrisisDeclaredPayload{
			Seat:           seat,
			CardInstanceID: action.CardInstanceID,
			DeclaredColor:  color,
			DeclaredValue:  value,
			Source:         protocol.SourceAuto,
		})
	}

	m.continueAfterPlay(r, round, seat, action.DistrictID, action.SlotIndex, protocol.SourceAuto)
}

// autoDeclareCrisis applies the fixed default declaration when the crisis
// timer expires, then finishes the suspended play. Lock held.
func (m *Manager) autoDeclareCrisis(r *Room, round *match.Round, seat models.Seat) {
	cardInstanceID := round.Pending.CardInstanceID
	color, value := match.SelectAutoCrisis()

	pending, ok := round.DeclareCrisis(seat, color, value)
	if !ok {
		return
	}
	m.log.Infof("room %s: crisis timer expired for %s, declaring %s %s", r.ID, seat, color, value)

	m.emit(r, protocol.EventCrisisDeclared, protocol.CrisisDeclaredPayload{
		Seat:           seat,
		CardInstanceID: cardInstanceID,
		DeclaredColor:  color,
		DeclaredValue:  value,
		Source:         protocol.SourceAuto,
	})

	m.continueAfterPlay(r, round, seat, pending.DistrictID, pending.SlotIndex, protocol.SourceAuto)
}

// --- shared turn continuation ---

// continueAfterPlay finishes a resolved placement: CARD_PLAYED, claim
// resolution, round/match end checks, then draw and turn advance. Lock
// held.
func (m *Manager) continueAfterPlay(r *Room, round *match.Round, seat models.Seat, districtID string, slotIndex int, source string) {
	card := round.District(districtID).Sides[seat].Slots[slotIndex]

	m.emit(r, protocol.EventCardPlayed, protocol.CardPlayedPayload{
		Seat:       seat,
		DistrictID: districtID,
		SlotIndex:  slotIndex,
		Card:       card,
		HandCounts: round.HandCounts(),
		Source:     source,
	})

	round.Phase = match.PhaseTurnClaimCheck
	for _, result := range round.ResolveClaims() {
		m.emit(r, protocol.EventDistrictClaimed, protocol.DistrictClaimedPayload{
			DistrictID:    result.DistrictID,
			Winner:        result.Winner,
			WinningConfig: result.WinningConfig,
			ClaimedCounts: round.State().ClaimedCounts,
		})
	}

	if winner, ended := round.CheckRoundEnd(); ended {
		m.endRound(r, round, winner)
		return
	}

	m.advanceTurnFlow(r, round, seat, source)
}

// advanceTurnFlow runs draw, turn end, and the next turn start. Lock held.
func (m *Manager) advanceTurnFlow(r *Room, round *match.Round, seat models.Seat, source string) {
	round.Phase = match.PhaseTurnDraw
	if drawn := round.DrawCard(seat); drawn != nil {
		m.sendPrivateHand(r, seat)
	}
	m.emit(r, protocol.EventCardDrawn, protocol.CardDrawnPayload{
		Seat:          seat,
		DrawPileCount: round.DrawPileCount(),
		HandCounts:    round.HandCounts(),
		Source:        source,
	})

	round.Phase = match.PhaseTurnEnd
	m.emit(r, protocol.EventTurnEnded, protocol.TurnEndedPayload{
		Seat:       seat,
		TurnNumber: round.TurnNumber,
		Source:     source,
	})

	round.AdvanceTurn()
	round.StartTurn()
	m.emitTurnStarted(r, round)
}

// endRound records the round, then either terminates the match or pauses
// briefly before the next round. Lock held.
func (m *Manager) endRound(r *Room, round *match.Round, winner models.Seat) {
	r.Match.EndRound(winner)
	m.log.Infof("room %s: round %d won by %s", r.ID, round.Index, winner)

	m.emit(r, protocol.EventRoundEnded, protocol.RoundEndedPayload{
		Winner:        winner,
		ClaimedCounts: round.State().ClaimedCounts,
		MatchScore:    r.Match.State().MatchScore,
	})

	if result := r.Match.CheckMatchEnd(); result != nil {
		m.finishMatch(r, result, "")
		return
	}

	matchID := r.Match.ID
	roundIndex := round.Index
	r.Sched.Schedule(TimerNextRound, m.cfg.NextRoundDelay, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()

		if r.Phase != RoomInMatch || r.Match == nil || r.Match.ID != matchID || r.Match.RoundIndex != roundIndex {
			return
		}
		m.startNextRound(r)
	})
}

// startNextRound deals the next round and opens its first turn. Lock held.
func (m *Manager) startNextRound(r *Room) {
	round := r.Match.StartNextRound()
	m.log.Infof("room %s: round %d started, %s opens", r.ID, round.Index, round.ActiveSeat)

	m.emitRoundStarted(r, round)
	round.StartTurn()
	m.emitTurnStarted(r, round)
}

// finishMatch emits the terminal MATCH_RESULT and parks the room in
// ROOM_POST_MATCH. Lock held.
func (m *Manager) finishMatch(r *Room, result *match.Result, reason string) {
	payload := protocol.MatchResultPayload{
		Winner:     result.Winner,
		MatchScore: result.MatchScore,
		Tiebreak:   result.Tiebreak,
		Reason:     reason,
	}
	m.emit(r, protocol.EventMatchResult, payload)

	if result.Winner != nil {
		m.log.Infof("room %s: match over, winner %s", r.ID, *result.Winner)
	} else {
		m.log.Infof("room %s: match over with no winner", r.ID)
	}

	r.Phase = RoomPostMatch
	r.Sched.CancelAll()
	r.paused = nil
	m.broadcastRoomState(r)
}

// --- forfeiture ---

// forfeit ends the match against the named player. Lock held.
func (m *Manager) forfeit(r *Room, playerID, reason string) {
	if r.Match == nil {
		return
	}
	seat, ok := r.Match.SeatFor(playerID)
	if !ok {
		return
	}

	m.emit(r, protocol.EventPlayerForfeited, protocol.PlayerForfeitedPayload{
		Seat:   seat,
		Reason: reason,
	})

	winner := m.winnerOnForfeit(r, seat)
	m.finishMatch(r, &match.Result{
		Winner:     &winner,
		MatchScore: r.Match.State().MatchScore,
	}, "FORFEIT")
}

// winnerOnForfeit picks the forfeit beneficiary among the remaining seats:
// most round wins, then most districts in the current round, then seat
// order. Lock held.
func (m *Manager) winnerOnForfeit(r *Room, forfeited models.Seat) models.Seat {
	var winner models.Seat
	bestWins, bestDistricts := -1, -1

	for _, seat := range models.Seats {
		if seat == forfeited {
			continue
		}
		wins := r.Match.Score[seat]
		districts := 0
		if r.Match.CurrentRound != nil {
			districts = r.Match.CurrentRound.ClaimedCounts[seat]
		}
		if wins > bestWins || (wins == bestWins && districts > bestDistricts) {
			winner = seat
			bestWins = wins
			bestDistricts = districts
		}
	}
	return winner
}
