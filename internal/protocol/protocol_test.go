// internal/protocol/protocol_test.go
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsWrongVersion(t *testing.T) {
	raw := []byte(`{"protocol_version":"9.9","op":"INTENT","type":"PLAY_CARD"}`)
	env, err := Decode(raw)
	require.ErrorIs(t, err, ErrVersionMismatch)
	// The envelope still comes back so callers can report what they got.
	require.NotNil(t, env)
	assert.Equal(t, "9.9", env.ProtocolVersion)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVersionMismatch)
}

func TestDecodeRoundTrip(t *testing.T) {
	env := NewEvent("room_1", EventTurnStarted, 42, TurnStartedPayload{
		ActiveSeat: "LEFT",
		TurnNumber: 3,
	})
	data, err := Encode(env)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, OpEvent, back.Op)
	assert.Equal(t, string(EventTurnStarted), back.Type)
	require.NotNil(t, back.EventSeq)
	assert.Equal(t, uint64(42), *back.EventSeq)

	var payload TurnStartedPayload
	require.NoError(t, back.DecodePayload(&payload))
	assert.Equal(t, 3, payload.TurnNumber)
}

func TestEventSeqZeroIsSerialized(t *testing.T) {
	env := NewEvent("", EventHelloOK, 0, HelloOKPayload{PlayerID: "p_1"})
	data, err := Encode(env)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	seq, ok := m["event_seq"]
	require.True(t, ok, "HELLO_OK must carry event_seq 0 explicitly")
	assert.Equal(t, "0", string(seq))
}

func TestAcksOmitEventSeq(t *testing.T) {
	env := NewAccept("room_1", "intent-1")
	data, err := Encode(env)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	_, ok := m["event_seq"]
	assert.False(t, ok)
	assert.Equal(t, AckAccepted, env.Type)
	assert.Equal(t, "intent-1", env.ClientIntentID)
}

func TestRejectCarriesReason(t *testing.T) {
	env := NewReject("room_1", "intent-2", ReasonNotYourTurn, "seat RIGHT is active")
	require.Equal(t, AckRejected, env.Type)

	var payload AckPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, ReasonNotYourTurn, payload.ReasonCode)
	assert.Equal(t, "seat RIGHT is active", payload.Details)
}

func TestEncodedEnvelopeIsStableAcrossResends(t *testing.T) {
	env := NewReject("room_1", "intent-3", ReasonSlotOccupied, "")
	first, err := Encode(env)
	require.NoError(t, err)
	second, err := Encode(env)
	require.NoError(t, err)
	// Retried intents get the cached ack re-sent byte for byte.
	assert.Equal(t, first, second)
}

func TestVersionMismatchErrorNamesBothVersions(t *testing.T) {
	env := NewVersionMismatchError("0.0")
	assert.Equal(t, OpError, env.Op)
	assert.Equal(t, ErrCodeVersionMismatch, env.ErrorCode)
	assert.Contains(t, env.Message, Version)
	assert.Contains(t, env.Message, "0.0")
}
