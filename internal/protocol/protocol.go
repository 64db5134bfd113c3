// internal/protocol/protocol.go
//
// Package protocol defines the JSON wire envelope exchanged over the
// websocket: operations, intent and event types, ack reason codes, and the
// typed payload structs for every message the server emits. The server is
// authoritative; clients only send HELLO, INTENT, and PONG.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the wire protocol version. A client presenting any other
// version receives an ERROR frame and the connection is closed.
const Version = "0.1"

// Op is the envelope operation.
type Op string

const (
	OpHello    Op = "HELLO"
	OpIntent   Op = "INTENT"
	OpAck      Op = "ACK"
	OpEvent    Op = "EVENT"
	OpSnapshot Op = "SNAPSHOT"
	OpPing     Op = "PING"
	OpPong     Op = "PONG"
	OpError    Op = "ERROR"
)

// IntentType identifies a client request.
type IntentType string

const (
	IntentCreateRoom       IntentType = "CREATE_ROOM"
	IntentJoinRoom         IntentType = "JOIN_ROOM"
	IntentLeaveRoom        IntentType = "LEAVE_ROOM"
	IntentStartReadyCheck  IntentType = "START_READY_CHECK"
	IntentCancelReadyCheck IntentType = "CANCEL_READY_CHECK"
	IntentSetReady         IntentType = "SET_READY"
	IntentClientLoaded     IntentType = "CLIENT_LOADED"
	IntentRequestSnapshot  IntentType = "REQUEST_SNAPSHOT"
	IntentPlayCard         IntentType = "PLAY_CARD"
	IntentDeclareCrisis    IntentType = "DECLARE_CRISIS"
)

// EventType identifies a sequenced server broadcast.
type EventType string

const (
	EventHelloOK                   EventType = "HELLO_OK"
	EventRoomState                 EventType = "ROOM_STATE"
	EventReadyCheckStarted         EventType = "READY_CHECK_STARTED"
	EventReadyCheckCanceled        EventType = "READY_CHECK_CANCELED"
	EventMatchLoadingBegin         EventType = "MATCH_LOADING_BEGIN"
	EventMatchStarted              EventType = "MATCH_STARTED"
	EventRoundStarted              EventType = "ROUND_STARTED"
	EventTurnStarted               EventType = "TURN_STARTED"
	EventTurnEnded                 EventType = "TURN_ENDED"
	EventRoundEnded                EventType = "ROUND_ENDED"
	EventMatchResult               EventType = "MATCH_RESULT"
	EventCardPlayed                EventType = "CARD_PLAYED"
	EventCardDrawn                 EventType = "CARD_DRAWN"
	EventDistrictClaimed           EventType = "DISTRICT_CLAIMED"
	EventCrisisDeclarationRequired EventType = "CRISIS_DECLARATION_REQUIRED"
	EventCrisisDeclared            EventType = "CRISIS_DECLARED"
	EventHandSnapshot              EventType = "HAND_SNAPSHOT"
	EventPlayerDisconnected        EventType = "PLAYER_DISCONNECTED"
	EventPlayerReconnected         EventType = "PLAYER_RECONNECTED"
	EventPlayerForfeited           EventType = "PLAYER_FORFEITED"
)

// SnapshotType is the only SNAPSHOT frame type.
const SnapshotType = "FULL_SNAPSHOT"

// Ack types.
const (
	AckAccepted = "INTENT_ACCEPTED"
	AckRejected = "INTENT_REJECTED"
)

// ReasonCode explains an INTENT_REJECTED ack. Rejections are data, not Go
// errors; a rejected intent mutates nothing.
type ReasonCode string

const (
	ReasonRoomFull         ReasonCode = "ROOM_FULL"
	ReasonRoomNotFound     ReasonCode = "ROOM_NOT_FOUND"
	ReasonRoomNotJoinable  ReasonCode = "ROOM_NOT_JOINABLE"
	ReasonNotHost          ReasonCode = "NOT_HOST"
	ReasonNotInReadyCheck  ReasonCode = "NOT_IN_READY_CHECK"
	ReasonAlreadyInMatch   ReasonCode = "ALREADY_IN_MATCH"
	ReasonNoMatch          ReasonCode = "NO_MATCH"
	ReasonNotInMatch       ReasonCode = "NOT_IN_MATCH"
	ReasonInvalidPhase     ReasonCode = "INVALID_PHASE"
	ReasonNotYourTurn      ReasonCode = "NOT_YOUR_TURN"
	ReasonNoLegalMoves     ReasonCode = "NO_LEGAL_MOVES"
	ReasonCardNotInHand    ReasonCode = "CARD_NOT_IN_HAND"
	ReasonDistrictNotFound ReasonCode = "DISTRICT_NOT_FOUND"
	ReasonDistrictClaimed  ReasonCode = "DISTRICT_CLAIMED"
	ReasonSideFull         ReasonCode = "SIDE_FULL"
	ReasonSlotOccupied     ReasonCode = "SLOT_OCCUPIED"
	ReasonInvalidSlotIndex ReasonCode = "INVALID_SLOT_INDEX"
	ReasonPlayFailed       ReasonCode = "PLAY_FAILED"

	ReasonCrisisNotPending      ReasonCode = "CRISIS_NOT_PENDING"
	ReasonCrisisInvalid         ReasonCode = "CRISIS_DECLARATION_INVALID"
	ReasonCrisisValueNotAllowed ReasonCode = "CRISIS_VALUE_NOT_ALLOWED"

	ReasonRateLimited     ReasonCode = "RATE_LIMITED"
	ReasonInternalError   ReasonCode = "INTERNAL_ERROR"
	ReasonVersionMismatch ReasonCode = "VERSION_MISMATCH"
)

// Error codes for ERROR frames (protocol-level failures, not intent acks).
const (
	ErrCodeParse           = "PARSE_ERROR"
	ErrCodeVersionMismatch = "VERSION_MISMATCH"
	ErrCodeUnknownOp       = "UNKNOWN_OP"
)

// ErrVersionMismatch is returned by Decode when the envelope carries a
// protocol version other than Version. The caller sends an ERROR frame and
// closes the connection.
var ErrVersionMismatch = errors.New("protocol version mismatch")

// Envelope is the wire message. Outbound envelopes are built by the helpers
// in builders.go with their payload already marshaled, so a cached ack can
// be re-sent byte for byte.
type Envelope struct {
	ProtocolVersion string          `json:"protocol_version"`
	RoomID          string          `json:"room_id,omitempty"`
	Op              Op              `json:"op"`
	Type            string          `json:"type,omitempty"`
	ClientIntentID  string          `json:"client_intent_id,omitempty"`
	EventSeq        *uint64         `json:"event_seq,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	Message         string          `json:"message,omitempty"`
}

// Decode parses a raw frame and enforces the protocol version.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.ProtocolVersion != Version {
		return &env, ErrVersionMismatch
	}
	return &env, nil
}

// DecodePayload unmarshals the envelope payload into the given struct.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
