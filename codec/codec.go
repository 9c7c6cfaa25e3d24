// Package codec turns inbound event-channel messages into event batches.
//
// The backend pushes binary frames holding a UTF-8 JSON document:
//
//	{"events":[{"type":4}, {"type":7,"payload":"x"}]}
//
// Text frames are control traffic (heartbeat echoes) and never carry events.
// The client only ever encodes the heartbeat marker; Encode is the backend side.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/risa-org/evchan/transport"
)

// HeartbeatMarker is the keep-alive text agreed with the backend.
const HeartbeatMarker = "keep-alive"

// TypeForceLogout is the reserved tag that invalidates the console session.
const TypeForceLogout = 4

// ErrMalformedFrame is wrapped by every decode failure.
var ErrMalformedFrame = errors.New("malformed event frame")

// Event is one tagged notification. Only Type is interpreted here.
type Event struct {
	Type    int
	Payload json.RawMessage // the record's "payload" field, nil when absent
	Raw     json.RawMessage // the whole record, for handlers that need other fields
}

// Batch is the ordered set of events carried by one frame.
type Batch []Event

type frame struct {
	Events *[]json.RawMessage `json:"events"`
}

type record struct {
	Type    *int            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode interprets one inbound message.
// Text messages yield a nil batch and a nil error. Binary messages yield a
// batch (possibly empty) or an error wrapping ErrMalformedFrame; a frame is
// accepted or rejected as a whole.
func Decode(msg transport.Message) (Batch, error) {
	if msg.Kind == transport.KindText {
		return nil, nil
	}
	if !utf8.Valid(msg.Payload) {
		return nil, fmt.Errorf("%w: payload is not utf-8", ErrMalformedFrame)
	}

	var f frame
	if err := json.Unmarshal(msg.Payload, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Events == nil {
		return nil, fmt.Errorf("%w: missing events field", ErrMalformedFrame)
	}

	batch := make(Batch, 0, len(*f.Events))
	for i, raw := range *f.Events {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrMalformedFrame, i, err)
		}
		if r.Type == nil {
			return nil, fmt.Errorf("%w: event %d has no type", ErrMalformedFrame, i)
		}
		batch = append(batch, Event{
			Type:    *r.Type,
			Payload: nullToNil(r.Payload),
			Raw:     raw,
		})
	}
	return batch, nil
}

// Heartbeat returns the keep-alive message sent while the channel is open.
func Heartbeat() transport.Message {
	return transport.Message{Kind: transport.KindText, Payload: []byte(HeartbeatMarker)}
}

// IsHeartbeat reports whether msg is the keep-alive marker.
func IsHeartbeat(msg transport.Message) bool {
	return msg.Kind == transport.KindText && bytes.Equal(bytes.TrimSpace(msg.Payload), []byte(HeartbeatMarker))
}

func nullToNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}

// Outbound is one event the backend pushes.
type Outbound struct {
	Type    int         `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Encode builds the binary frame carrying events, in order.
func Encode(events ...Outbound) (transport.Message, error) {
	if events == nil {
		events = []Outbound{}
	}
	data, err := json.Marshal(struct {
		Events []Outbound `json:"events"`
	}{events})
	if err != nil {
		return transport.Message{}, fmt.Errorf("encode events: %w", err)
	}
	return transport.Message{Kind: transport.KindBinary, Payload: data}, nil
}
