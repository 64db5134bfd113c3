// internal/protocol/builders.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// marshalPayload marshals an outbound payload. Payload structs contain only
// marshallable fields, so a failure here indicates a programming error; the
// caller gets an empty object rather than a malformed frame.
func marshalPayload(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// NewEvent builds a sequenced EVENT envelope.
func NewEvent(roomID string, typ EventType, seq uint64, payload any) *Envelope {
	return &Envelope{
		ProtocolVersion: Version,
		RoomID:          roomID,
		Op:              OpEvent,
		Type:            string(typ),
		EventSeq:        &seq,
		Payload:         marshalPayload(payload),
	}
}

// NewAccept builds an INTENT_ACCEPTED ack.
func NewAccept(roomID, clientIntentID string) *Envelope {
	return &Envelope{
		ProtocolVersion: Version,
		RoomID:          roomID,
		Op:              OpAck,
		Type:            AckAccepted,
		ClientIntentID:  clientIntentID,
		Payload:         marshalPayload(AckPayload{}),
	}
}

// NewReject builds an INTENT_REJECTED ack with a reason code.
func NewReject(roomID, clientIntentID string, reason ReasonCode, details string) *Envelope {
	return &Envelope{
		ProtocolVersion: Version,
		RoomID:          roomID,
		Op:              OpAck,
		Type:            AckRejected,
		ClientIntentID:  clientIntentID,
		Payload:         marshalPayload(AckPayload{ReasonCode: reason, Details: details}),
	}
}

// NewSnapshot builds a FULL_SNAPSHOT envelope at the given sequence number.
func NewSnapshot(roomID string, seq uint64, payload SnapshotPayload) *Envelope {
	return &Envelope{
		ProtocolVersion: Version,
		RoomID:          roomID,
		Op:              OpSnapshot,
		Type:            SnapshotType,
		EventSeq:        &seq,
		Payload:         marshalPayload(payload),
	}
}

func NewPing() *Envelope {
	return &Envelope{ProtocolVersion: Version, Op: OpPing}
}

func NewPong() *Envelope {
	return &Envelope{ProtocolVersion: Version, Op: OpPong}
}

// NewError builds a protocol-level ERROR frame.
func NewError(code, message string) *Envelope {
	return &Envelope{
		ProtocolVersion: Version,
		Op:              OpError,
		ErrorCode:       code,
		Message:         message,
	}
}

// NewVersionMismatchError reports the version the server expected.
func NewVersionMismatchError(got string) *Envelope {
	return NewError(ErrCodeVersionMismatch, fmt.Sprintf("expected protocol %s, got %q", Version, got))
}

// Encode marshals an envelope for the wire.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}
