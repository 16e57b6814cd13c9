// Package v1 defines the realtime wire envelope shared by the client and the
// smoke tool.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxFrameBytes bounds a single inbound frame.
const MaxFrameBytes = 64 << 10

// Type constants (wire-stable).
const (
	// TypeConnection is dispatched locally on open and close; it never
	// travels on the wire.
	TypeConnection = "connection"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Connection statuses carried by TypeConnection.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Validate performs structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}
	return nil
}

// New builds an envelope, encoding payload as JSON. A nil payload becomes null.
func New(typ string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %q payload: %w", typ, err)
	}
	env := Envelope{Type: typ, Payload: raw}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Decode parses and validates one frame. A missing payload decodes as null.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("null")
	}
	return env, nil
}

// ---- Payloads ----

// ConnectionPayload reports the local connection status.
type ConnectionPayload struct {
	Status string `json:"status"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
