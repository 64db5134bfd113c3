// internal/room/room_test.go
package room

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overture-games/mandate/internal/protocol"
)

func appendN(r *Room, n int) {
	for i := 0; i < n; i++ {
		seq := r.NextSeq()
		r.AppendLog(LogEntry{EventSeq: seq, Type: protocol.EventRoomState, Payload: json.RawMessage(`{}`)})
	}
}

func TestEventsSinceReplaysTail(t *testing.T) {
	r := newRoom("room_t", "ABCDEF", 100)
	appendN(r, 5)

	entries, ok := r.EventsSince(2)
	require.True(t, ok)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(3), entries[0].EventSeq)
	assert.Equal(t, uint64(5), entries[2].EventSeq)

	// Fully caught up.
	entries, ok = r.EventsSince(5)
	require.True(t, ok)
	assert.Empty(t, entries)
}

func TestEventsSinceDetectsDroppedWindow(t *testing.T) {
	r := newRoom("room_t", "ABCDEF", 3)
	appendN(r, 10)

	// Entries 1..7 were dropped by the cap; seq 5 cannot be replayed.
	_, ok := r.EventsSince(5)
	assert.False(t, ok)

	// The retained tail still replays.
	entries, ok := r.EventsSince(7)
	require.True(t, ok)
	assert.Len(t, entries, 3)
}

func TestPlayerSummariesSortedByJoinOrder(t *testing.T) {
	r := newRoom("room_t", "ABCDEF", 100)
	for i, id := range []string{"p_cc", "p_aa", "p_bb"} {
		r.Players[id] = &PlayerState{PlayerID: id, JoinOrder: i + 1}
	}
	r.JoinCounter = 3
	r.HostPlayerID = "p_cc"

	out := r.PlayerSummaries()
	require.Len(t, out, 3)
	assert.Equal(t, "p_cc", out[0].PlayerID)
	assert.True(t, out[0].IsHost)
	assert.Equal(t, "p_aa", out[1].PlayerID)
	assert.Equal(t, "p_bb", out[2].PlayerID)
}

func TestJoinableByPhase(t *testing.T) {
	r := newRoom("room_t", "ABCDEF", 100)
	assert.Empty(t, r.Joinable())

	r.Phase = RoomReadyCheck
	assert.Empty(t, r.Joinable())

	r.Phase = RoomInMatch
	assert.Equal(t, protocol.ReasonRoomNotJoinable, r.Joinable())

	r.Phase = RoomOpen
	for i := 0; i < MaxPlayers; i++ {
		id := fmt.Sprintf("p_%d", i)
		r.Players[id] = &PlayerState{PlayerID: id, JoinOrder: i + 1}
	}
	assert.Equal(t, protocol.ReasonRoomFull, r.Joinable())
}

func TestStoreResolveByIDAndCode(t *testing.T) {
	store := NewStore()
	r := store.Create(100)

	byID, ok := store.Resolve(r.ID)
	require.True(t, ok)
	assert.Same(t, r, byID)

	byCode, ok := store.Resolve(strings.ToLower(r.InviteCode))
	require.True(t, ok)
	assert.Same(t, r, byCode)

	_, ok = store.Resolve("nope")
	assert.False(t, ok)

	store.Delete(r.ID)
	_, ok = store.Resolve(r.InviteCode)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestInviteCodesAvoidAmbiguousCharacters(t *testing.T) {
	store := NewStore()
	for i := 0; i < 20; i++ {
		r := store.Create(10)
		require.Len(t, r.InviteCode, 6)
		assert.NotContains(t, r.InviteCode, "O")
		assert.NotContains(t, r.InviteCode, "0")
		assert.NotContains(t, r.InviteCode, "I")
		assert.NotContains(t, r.InviteCode, "1")
	}
}

func TestSessionRateLimitWindowResets(t *testing.T) {
	s := NewSession(&mockSink{})
	now := time.Now()

	assert.True(t, s.AllowIntent(now, 2, time.Second))
	assert.True(t, s.AllowIntent(now, 2, time.Second))
	assert.False(t, s.AllowIntent(now, 2, time.Second))

	// A new window admits intents again.
	assert.True(t, s.AllowIntent(now.Add(time.Second), 2, time.Second))
}

func TestIntentCacheEvictsOldest(t *testing.T) {
	s := NewSession(&mockSink{})

	for i := 0; i < intentCacheCap+1; i++ {
		s.CacheAck(fmt.Sprintf("in-%d", i), protocol.NewAccept("room_t", fmt.Sprintf("in-%d", i)))
	}

	_, ok := s.CachedAck("in-0")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = s.CachedAck("in-1")
	assert.True(t, ok)
	_, ok = s.CachedAck(fmt.Sprintf("in-%d", intentCacheCap))
	assert.True(t, ok)
	assert.Len(t, s.intentCache, intentCacheCap)

	// Re-caching a known id replaces the ack without consuming a slot.
	replacement := protocol.NewAccept("room_t", "in-5")
	s.CacheAck("in-5", replacement)
	cached, ok := s.CachedAck("in-5")
	require.True(t, ok)
	assert.Same(t, replacement, cached)
	assert.Len(t, s.intentCache, intentCacheCap)
}
