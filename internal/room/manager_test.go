// internal/room/manager_test.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overture-games/mandate/internal/protocol"
)

// mockSink collects frames instead of sending them over WS.
type mockSink struct {
	mu     sync.Mutex
	frames []*protocol.Envelope
	closed bool
}

func (ms *mockSink) Send(env *protocol.Envelope) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.frames = append(ms.frames, env)
}

func (ms *mockSink) CloseNow() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = true
}

func (ms *mockSink) all() []*protocol.Envelope {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]*protocol.Envelope, len(ms.frames))
	copy(out, ms.frames)
	return out
}

func (ms *mockSink) ofType(typ string) []*protocol.Envelope {
	var out []*protocol.Envelope
	for _, f := range ms.all() {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func (ms *mockSink) lastOfType(typ string) *protocol.Envelope {
	matches := ms.ofType(typ)
	if len(matches) == 0 {
		return nil
	}
	return matches[len(matches)-1]
}

// ackFor returns the ack sent for the given intent id, if any.
func (ms *mockSink) ackFor(intentID string) *protocol.Envelope {
	for _, f := range ms.all() {
		if f.Op == protocol.OpAck && f.ClientIntentID == intentID {
			return f
		}
	}
	return nil
}

func (ms *mockSink) clear() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.frames = nil
}

// stubIssuer maps tokens to player ids without real signing.
type stubIssuer struct{}

func (stubIssuer) Issue(playerID string) (string, error) { return "tok:" + playerID, nil }

func (stubIssuer) Verify(token string) (string, error) {
	if !strings.HasPrefix(token, "tok:") {
		return "", errors.New("bad token")
	}
	return strings.TrimPrefix(token, "tok:"), nil
}

// captureArchiver records published events in memory.
type captureArchiver struct {
	mu   sync.Mutex
	recs []EventRecord
}

func (ca *captureArchiver) PublishEvent(rec EventRecord) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.recs = append(ca.recs, rec)
}

func (ca *captureArchiver) count() int {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	return len(ca.recs)
}

// testConfig keeps production-shaped timings but short enough for tests.
// Turn and grace windows stay long so they never fire unless a test shrinks
// them on purpose.
func testConfig() Config {
	return Config{
		PingInterval:         50 * time.Millisecond,
		PongTimeout:          10 * time.Second,
		GracePeriod:          10 * time.Second,
		TurnTimeout:          10 * time.Second,
		CrisisTimeout:        10 * time.Second,
		LoadingTimeout:       10 * time.Second,
		NextRoundDelay:       10 * time.Millisecond,
		EventLogCap:          100,
		RateLimitCount:       1000,
		RateLimitWindow:      time.Second,
		AssetManifestVersion: "am_test",
	}
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewManager(log, cfg, NewStore(), stubIssuer{}, nil)
}

func intentEnv(typ protocol.IntentType, intentID string, payload any) *protocol.Envelope {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	return &protocol.Envelope{
		ProtocolVersion: protocol.Version,
		Op:              protocol.OpIntent,
		Type:            string(typ),
		ClientIntentID:  intentID,
		Payload:         raw,
	}
}

func helloEnv(resume *protocol.ResumeRequest) *protocol.Envelope {
	raw, _ := json.Marshal(protocol.HelloPayload{Resume: resume})
	return &protocol.Envelope{
		ProtocolVersion: protocol.Version,
		Op:              protocol.OpHello,
		Type:            "HELLO",
		Payload:         raw,
	}
}

// fullRoom attaches three sessions, creates a room with the first, and joins
// the other two.
func fullRoom(t *testing.T, m *Manager) (*Room, []*Session, []*mockSink) {
	t.Helper()

	sinks := []*mockSink{{}, {}, {}}
	sessions := make([]*Session, 3)
	for i, sink := range sinks {
		sessions[i] = m.Attach(sink)
		m.HandleHello(sessions[i], helloEnv(nil))
	}

	m.HandleIntent(sessions[0], intentEnv(protocol.IntentCreateRoom, "create-0", nil))
	require.NotEmpty(t, sessions[0].RoomID)

	for i := 1; i < 3; i++ {
		m.HandleIntent(sessions[i], intentEnv(protocol.IntentJoinRoom, "join", protocol.JoinRoomPayload{
			RoomID: sessions[0].RoomID,
		}))
		require.Equal(t, sessions[0].RoomID, sessions[i].RoomID)
	}

	r, ok := m.store.Get(sessions[0].RoomID)
	require.True(t, ok)
	return r, sessions, sinks
}

// startMatch walks a full room through ready check and loading.
func startMatch(t *testing.T, m *Manager, r *Room, sessions []*Session) {
	t.Helper()

	m.HandleIntent(sessions[0], intentEnv(protocol.IntentStartReadyCheck, "ready-check", nil))
	for _, s := range sessions {
		m.HandleIntent(s, intentEnv(protocol.IntentSetReady, "ready", nil))
	}
	for _, s := range sessions {
		m.HandleIntent(s, intentEnv(protocol.IntentClientLoaded, "loaded", nil))
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	require.Equal(t, RoomInMatch, r.Phase)
	require.NotNil(t, r.Match)
	require.NotNil(t, r.Match.CurrentRound)
}

func roomPhase(r *Room) Phase {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.Phase
}

func TestHelloIssuesIdentityAndToken(t *testing.T) {
	m := newTestManager(t, testConfig())
	sink := &mockSink{}
	s := m.Attach(sink)

	m.HandleHello(s, helloEnv(nil))

	frame := sink.lastOfType(string(protocol.EventHelloOK))
	require.NotNil(t, frame)
	require.NotNil(t, frame.EventSeq)
	assert.Equal(t, uint64(0), *frame.EventSeq)

	var payload protocol.HelloOKPayload
	require.NoError(t, frame.DecodePayload(&payload))
	assert.Equal(t, s.PlayerID, payload.PlayerID)
	assert.Equal(t, "tok:"+s.PlayerID, payload.ResumeToken)
	assert.NotZero(t, payload.ServerTimeMS)
}

func TestCreateAndJoinRoom(t *testing.T) {
	m := newTestManager(t, testConfig())
	r, sessions, sinks := fullRoom(t, m)

	assert.Equal(t, RoomOpen, roomPhase(r))

	r.Mu.Lock()
	assert.Len(t, r.Players, 3)
	assert.Equal(t, sessions[0].PlayerID, r.HostPlayerID)
	assert.Len(t, r.InviteCode, 6)
	r.Mu.Unlock()

	// Creator got an accept, a snapshot, and the lobby broadcast.
	require.NotNil(t, sinks[0].ackFor("create-0"))
	assert.Equal(t, protocol.AckAccepted, sinks[0].ackFor("create-0").Type)
	require.NotEmpty(t, sinks[0].ofType(protocol.SnapshotType))

	state := sinks[2].lastOfType(string(protocol.EventRoomState))
	require.NotNil(t, state)
	var payload protocol.RoomStatePayload
	require.NoError(t, state.DecodePayload(&payload))
	assert.Equal(t, 3, payload.PlayerCount)
	assert.True(t, payload.Players[0].IsHost)
}

func TestJoinByInviteCode(t *testing.T) {
	m := newTestManager(t, testConfig())

	host := m.Attach(&mockSink{})
	m.HandleIntent(host, intentEnv(protocol.IntentCreateRoom, "c", nil))
	r, ok := m.store.Get(host.RoomID)
	require.True(t, ok)

	r.Mu.Lock()
	code := r.InviteCode
	r.Mu.Unlock()

	joiner := m.Attach(&mockSink{})
	m.HandleIntent(joiner, intentEnv(protocol.IntentJoinRoom, "j", protocol.JoinRoomPayload{
		InviteCode: strings.ToLower(code),
	}))
	assert.Equal(t, r.ID, joiner.RoomID)
}

func TestJoinFullRoomRejected(t *testing.T) {
	m := newTestManager(t, testConfig())
	r, _, _ := fullRoom(t, m)

	late := &mockSink{}
	s := m.Attach(late)
	m.HandleIntent(s, intentEnv(protocol.IntentJoinRoom, "late", protocol.JoinRoomPayload{RoomID: r.ID}))

	ack := late.ackFor("late")
	require.NotNil(t, ack)
	assert.Equal(t, protocol.AckRejected, ack.Type)

	var payload protocol.AckPayload
	require.NoError(t, ack.DecodePayload(&payload))
	assert.Equal(t, protocol.ReasonRoomFull, payload.ReasonCode)
	assert.Empty(t, s.RoomID)
}

func TestJoinUnknownRoomRejected(t *testing.T) {
	m := newTestManager(t, testConfig())
	sink := &mockSink{}
	s := m.Attach(sink)

	m.HandleIntent(s, intentEnv(protocol.IntentJoinRoom, "j", protocol.JoinRoomPayload{RoomID: "room_nope"}))

	ack := sink.ackFor("j")
	require.NotNil(t, ack)
	var payload protocol.AckPayload
	require.NoError(t, ack.DecodePayload(&payload))
	assert.Equal(t, protocol.ReasonRoomNotFound, payload.ReasonCode)
}

func TestDuplicateIntentReplaysCachedAck(t *testing.T) {
	m := newTestManager(t, testConfig())
	sink := &mockSink{}
	s := m.Attach(sink)

	m.HandleIntent(s, intentEnv(protocol.IntentCreateRoom, "dup-1", nil))
	require.Equal(t, 1, m.store.Len())
	first := sink.ackFor("dup-1")
	require.NotNil(t, first)

	sink.clear()
	m.HandleIntent(s, intentEnv(protocol.IntentCreateRoom, "dup-1", nil))

	// No second room, and the resent ack is the identical envelope.
	assert.Equal(t, 1, m.store.Len())
	replayed := sink.ackFor("dup-1")
	require.NotNil(t, replayed)
	assert.Same(t, first, replayed)
}

func TestRateLimitRejectsWithoutCaching(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitCount = 2
	m := newTestManager(t, cfg)
	sink := &mockSink{}
	s := m.Attach(sink)

	m.HandleIntent(s, intentEnv(protocol.IntentRequestSnapshot, "rl-1", nil))
	m.HandleIntent(s, intentEnv(protocol.IntentRequestSnapshot, "rl-2", nil))
	m.HandleIntent(s, intentEnv(protocol.IntentRequestSnapshot, "rl-3", nil))

	ack := sink.ackFor("rl-3")
	require.NotNil(t, ack)
	var payload protocol.AckPayload
	require.NoError(t, ack.DecodePayload(&payload))
	assert.Equal(t, protocol.ReasonRateLimited, payload.ReasonCode)

	// A rate-limit rejection is not the intent's answer; retrying after the
	// window must re-execute.
	_, cached := s.CachedAck("rl-3")
	assert.False(t, cached)
}

func TestHostControlsReadyCheck(t *testing.T) {
	m := newTestManager(t, testConfig())
	r, sessions, sinks := fullRoom(t, m)

	// Non-host may not start it.
	m.HandleIntent(sessions[1], intentEnv(protocol.IntentStartReadyCheck, "nh", nil))
	ack := sinks[1].ackFor("nh")
	require.NotNil(t, ack)
	var payload protocol.AckPayload
	require.NoError(t, ack.DecodePayload(&payload))
	assert.Equal(t, protocol.ReasonNotHost, payload.ReasonCode)

	m.HandleIntent(sessions[0], intentEnv(protocol.IntentStartReadyCheck, "rc", nil))
	assert.Equal(t, RoomReadyCheck, roomPhase(r))
	require.NotNil(t, sinks[2].lastOfType(string(protocol.EventReadyCheckStarted)))

	m.HandleIntent(sessions[0], intentEnv(protocol.IntentCancelReadyCheck, "cancel", nil))
	assert.Equal(t, RoomOpen, roomPhase(r))
	require.NotNil(t, sinks[2].lastOfType(string(protocol.EventReadyCheckCanceled)))
}

func TestAllReadyBeginsLoadingThenMatch(t *testing.T) {
	m := newTestManager(t, testConfig())
	r, sessions, sinks := fullRoom(t, m)

	m.HandleIntent(sessions[0], intentEnv(protocol.IntentStartReadyCheck, "rc", nil))
	for _, s := range sessions {
		m.HandleIntent(s, intentEnv(protocol.IntentSetReady, "ready", nil))
	}
	assert.Equal(t, RoomLoading, roomPhase(r))

	loading := sinks[1].lastOfType(string(protocol.EventMatchLoadingBegin))
	require.NotNil(t, loading)
	var lp protocol.MatchLoadingBeginPayload
	require.NoError(t, loading.DecodePayload(&lp))
	assert.Equal(t, "am_test", lp.AssetManifestVersion)

	for _, s := range sessions {
		m.HandleIntent(s, intentEnv(protocol.IntentClientLoaded, "loaded", nil))
	}
	assert.Equal(t, RoomInMatch, roomPhase(r))

	for _, sink := range sinks {
		require.NotNil(t, sink.lastOfType(string(protocol.EventMatchStarted)))
		require.NotNil(t, sink.lastOfType(string(protocol.EventRoundStarted)))
		require.NotNil(t, sink.lastOfType(string(protocol.EventTurnStarted)))
		// Every seat got a private hand of six.
		hand := sink.lastOfType(string(protocol.EventHandSnapshot))
		require.NotNil(t, hand)
		var hp protocol.HandSnapshotPayload
		require.NoError(t, hand.DecodePayload(&hp))
		assert.Len(t, hp.Hand, 6)
	}
}

func TestLoadingTimeoutStartsMatchAnyway(t *testing.T) {
	cfg := testConfig()
	cfg.LoadingTimeout = 30 * time.Millisecond
	m := newTestManager(t, cfg)
	r, sessions, _ := fullRoom(t, m)

	m.HandleIntent(sessions[0], intentEnv(protocol.IntentStartReadyCheck, "rc", nil))
	for _, s := range sessions {
		m.HandleIntent(s, intentEnv(protocol.IntentSetReady, "ready", nil))
	}
	// Only one client reports loaded; the timer carries the rest.
	m.HandleIntent(sessions[0], intentEnv(protocol.IntentClientLoaded, "loaded", nil))

	require.Eventually(t, func() bool {
		return roomPhase(r) == RoomInMatch
	}, time.Second, 5*time.Millisecond)
}

func TestEventSeqIsGapFree(t *testing.T) {
	m := newTestManager(t, testConfig())
	r, sessions, sinks := fullRoom(t, m)
	startMatch(t, m, r, sessions)

	var last uint64
	for _, f := range sinks[0].all() {
		if f.Op != protocol.OpEvent || f.EventSeq == nil {
			continue
		}
		switch f.Type {
		case string(protocol.EventHelloOK), string(protocol.EventHandSnapshot):
			// Unsequenced frames reuse or predate the room counter.
			continue
		}
		assert.Equal(t, last+1, *f.EventSeq, "gap before %s", f.Type)
		last = *f.EventSeq
	}
	assert.Greater(t, last, uint64(0))
}

func TestArchiverReceivesEveryEvent(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	archiver := &captureArchiver{}
	m := NewManager(log, testConfig(), NewStore(), stubIssuer{}, archiver)

	r, sessions, _ := fullRoom(t, m)
	startMatch(t, m, r, sessions)

	r.Mu.Lock()
	emitted := r.EventSeq
	matchID := r.Match.ID
	r.Mu.Unlock()

	require.Equal(t, int(emitted), archiver.count())

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	lastRec := archiver.recs[len(archiver.recs)-1]
	assert.Equal(t, r.ID, lastRec.RoomID)
	assert.Equal(t, matchID, lastRec.MatchID)
	assert.NotEmpty(t, lastRec.Payload)
}

func TestLeaveRoomHostSuccession(t *testing.T) {
	m := newTestManager(t, testConfig())
	r, sessions, sinks := fullRoom(t, m)

	m.HandleIntent(sessions[0], intentEnv(protocol.IntentLeaveRoom, "leave", nil))
	require.NotNil(t, sinks[0].ackFor("leave"))
	assert.Empty(t, sessions[0].RoomID)

	r.Mu.Lock()
	assert.Len(t, r.Players, 2)
	assert.Equal(t, sessions[1].PlayerID, r.HostPlayerID)
	r.Mu.Unlock()
}

func TestRoomDestroyedWhenEmpty(t *testing.T) {
	m := newTestManager(t, testConfig())

	sink := &mockSink{}
	s := m.Attach(sink)
	m.HandleIntent(s, intentEnv(protocol.IntentCreateRoom, "c", nil))
	require.Equal(t, 1, m.store.Len())

	m.HandleIntent(s, intentEnv(protocol.IntentLeaveRoom, "leave", nil))
	assert.Equal(t, 0, m.store.Len())
}

func TestHeartbeatSweepConcurrentWithPong(t *testing.T) {
	cfg := testConfig()
	cfg.PingInterval = time.Millisecond
	m := newTestManager(t, cfg)

	sink := &mockSink{}
	s := m.Attach(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.RunHeartbeat(ctx)

	// Pong updates from the read loop must be safe against a concurrent
	// sweep. The race detector flags any unguarded access here.
	for i := 0; i < 500; i++ {
		m.HandlePong(s)
	}

	require.Eventually(t, func() bool {
		for _, f := range sink.all() {
			if f.Op == protocol.OpPing {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.False(t, sink.closed)
}

func TestLobbyDisconnectLeavesRoom(t *testing.T) {
	m := newTestManager(t, testConfig())
	r, sessions, _ := fullRoom(t, m)

	m.Detach(sessions[2])

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Len(t, r.Players, 2)
	_, present := r.Players[sessions[2].PlayerID]
	assert.False(t, present)
}
