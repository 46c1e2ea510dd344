package api

import (
	"encoding/json"
	"time"
)

// FrameTypeEvent is the only frame type the websocket stream sends.
const FrameTypeEvent = "event"

// Frame is the envelope of every websocket message.
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Seq     int64           `json:"seq,omitempty"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	f := Frame{
		Type:  FrameTypeEvent,
		Event: event,
		Seq:   seq,
		Time:  time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}

// InvokeResponse is returned by /invoke_harvester.
type InvokeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Database string `json:"database,omitempty"`
	Clients  int    `json:"clients"`
	Uptime   string `json:"uptime,omitempty"`
}

// ErrorResponse is the body of non-2xx JSON responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Path  string `json:"path,omitempty"`
}
