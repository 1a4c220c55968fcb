package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/CodeHiveAPP/codehive/internal/util/timefmt"
)

// ErrInvalidFrame is returned by Decode for frames that are not a
// JSON object carrying a string "type". The relay replies with an
// in-band error frame and keeps the connection open.
var ErrInvalidFrame = fmt.Errorf("invalid message format")

// NewHeader builds an envelope header stamped with the current time.
func NewHeader(msgType, deviceID string) Header {
	return Header{
		Type:      msgType,
		Timestamp: timefmt.NowMillis(),
		DeviceID:  deviceID,
	}
}

// Encode marshals an envelope to a JSON text frame.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode parses the envelope header of an inbound frame. The payload
// must be a JSON object with a non-empty string "type"; anything else
// yields ErrInvalidFrame. Per-type validation is left to handlers,
// which unmarshal the full struct from the same bytes. Unknown fields
// are ignored throughout.
func Decode(data []byte) (Header, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Header{}, ErrInvalidFrame
	}
	rawType, ok := probe["type"]
	if !ok {
		return Header{}, ErrInvalidFrame
	}
	var msgType string
	if err := json.Unmarshal(rawType, &msgType); err != nil || msgType == "" {
		return Header{}, ErrInvalidFrame
	}

	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return Header{}, ErrInvalidFrame
	}
	return h, nil
}

// DecodeAs unmarshals a full typed envelope from frame bytes.
func DecodeAs[T any](data []byte) (*T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &msg, nil
}
