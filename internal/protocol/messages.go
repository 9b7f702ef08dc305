// Package protocol defines the JSON messages exchanged with ground stations
// and companion computers over the websocket link and the HTTP API.
package protocol

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cjeanneret/MountGo/internal/logic/geometry"
	"github.com/cjeanneret/MountGo/internal/logic/mount"
)

// Message types
const (
	TypePing          = "ping"
	TypePong          = "pong"
	TypeConfigure     = "mount_configure"
	TypeControl       = "mount_control"
	TypeStatusRequest = "mount_status_request"
	TypeMountStatus   = "mount_status"
	TypeROI           = "roi"
	TypeRCInput       = "rc_input"
	TypeAttitude      = "attitude"
	TypePosition      = "position"
	TypeEvent         = "event"
	TypeAck           = "ack"
	TypeError         = "error"
)

// Error codes
const (
	ErrInvalidMessage = "INVALID_MESSAGE"
	ErrUnknownType    = "UNKNOWN_TYPE"
	ErrCommand        = "COMMAND_FAILED"
)

// Message is the base envelope for all messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Address selects the mount a command is meant for. Zero is a broadcast.
type Address struct {
	TargetSystem    uint8 `json:"target_system"`
	TargetComponent uint8 `json:"target_component"`
}

// Matches reports whether the command addresses the mount at (system, component).
func (a Address) Matches(system, component uint8) bool {
	return (a.TargetSystem == 0 || a.TargetSystem == system) &&
		(a.TargetComponent == 0 || a.TargetComponent == component)
}

// PingPayload for ping messages
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload for pong messages
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// ConfigurePayload selects mode and stabilization.
type ConfigurePayload struct {
	Address
	mount.ConfigureCommand
}

// ControlPayload carries the mode-dependent inputs A, B and C.
type ControlPayload struct {
	Address
	mount.ControlCommand
}

// StatusRequestPayload asks a mount for its status.
type StatusRequestPayload struct {
	Address
}

// ROIPayload points the mount at a location.
type ROIPayload struct {
	geometry.Location
}

// RCInputPayload is one raw manual channel reading (PWM microseconds).
type RCInputPayload struct {
	Channel int `json:"channel"` // 1-based
	Raw     int `json:"raw"`
}

// AttitudePayload is the vehicle attitude in degrees.
type AttitudePayload struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Validate rejects angles that are not finite or beyond one full turn.
func (p AttitudePayload) Validate() error {
	for _, a := range []struct {
		name string
		v    float64
	}{{"roll", p.Roll}, {"pitch", p.Pitch}, {"yaw", p.Yaw}} {
		if math.IsNaN(a.v) || math.Abs(a.v) > 360 {
			return fmt.Errorf("attitude %s %g out of range [-360, 360]", a.name, a.v)
		}
	}
	return nil
}

// PositionPayload is a vehicle position fix.
type PositionPayload struct {
	geometry.Location
}

// AckPayload acknowledges a command.
type AckPayload struct {
	Command string `json:"command"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// NewError builds an error message.
func NewError(code, text string) *Message {
	msg, _ := NewMessage(TypeError, ErrorPayload{Code: code, Message: text})
	return msg
}

// ParsePayload unmarshals the payload into the given struct
func (m *Message) ParsePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s payload: %w", m.Type, err)
	}
	return nil
}
