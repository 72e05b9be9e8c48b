package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Requests - state queries from IPC and WebSocket clients
// ============================================================================
// Engine state is owned by the scheduler goroutine. Other goroutines never
// touch it; they send a StateQuery into the scheduler loop and wait for the
// snapshot it replies with between cycles.
// ============================================================================

// Request is a marker interface for client requests.
type Request interface {
	requestMarker()
}

// GetState asks for the full engine snapshot.
type GetState struct{}

func (GetState) requestMarker() {}

// GetDevice asks for the device diagnostics only.
type GetDevice struct{}

func (GetDevice) requestMarker() {}

// Ping checks that the scheduler loop is alive.
type Ping struct{}

func (Ping) requestMarker() {}

// StateQuery carries a request into the scheduler loop.
// Reply must be buffered; the loop never blocks on it.
type StateQuery struct {
	Request Request
	Reply   chan StateSnapshot
}

// RequestEnvelope wraps a request with a type discriminator for JSON marshaling
type RequestEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalRequest deserializes a JSON request envelope into a concrete Request
func UnmarshalRequest(data []byte) (Request, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "get_state":
		return GetState{}, nil
	case "get_device":
		return GetDevice{}, nil
	case "ping":
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("unknown request type: %q", env.Type)
	}
}

// responseData shapes the snapshot into the payload for request r.
func responseData(r Request, snap StateSnapshot) any {
	switch r.(type) {
	case GetDevice:
		return struct {
			Path string     `json:"path"`
			Info DeviceInfo `json:"info"`
		}{Path: snap.DevicePath, Info: snap.Device}
	case Ping:
		return struct {
			State string `json:"state"`
		}{State: snap.State}
	default:
		return snap
	}
}
