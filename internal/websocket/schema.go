package websocket

import "encoding/json"

// The monitor stream is one-directional: proctors receive attempt lifecycle
// events, the only client-to-server traffic is the ping keepalive.

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventAttempt Event = "attempt"
	EventPong    Event = "pong"
)

// AttemptEventMessage wraps a raw attempt lifecycle event as published on the
// exam's monitor channel.
type AttemptEventMessage struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
