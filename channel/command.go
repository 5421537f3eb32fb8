package channel

import "encoding/json"

// CommandMessage is the payload enqueued on a comsrv:{cid}:{C|A}:TODO list
// (§4.6 step 3), JSON-encoded the way the teacher encodes queue job
// payloads (coordinator.messages.go). Pulse/PulseDurationMs are only
// meaningful for Control-point commands; an Adjustment command ignores them.
type CommandMessage struct {
	PointID         uint32  `json:"point_id"`
	Value           float64 `json:"value"`
	OriginIID       uint32  `json:"origin_iid"`
	RequestID       string  `json:"request_id"`
	Pulse           bool    `json:"pulse,omitempty"`
	PulseDurationMs uint32  `json:"pulse_duration_ms,omitempty"`
}

// EncodeCommand serializes msg for placement on a channel's TODO queue.
// Exported so the dispatcher package's M2C producer can build the same
// wire format the channel engine's consumer decodes.
func EncodeCommand(msg CommandMessage) (string, error) {
	b, err := json.Marshal(msg)
	return string(b), err
}

func decodeCommand(raw string) (CommandMessage, error) {
	var msg CommandMessage
	err := json.Unmarshal([]byte(raw), &msg)
	return msg, err
}

// CommandResult is the outcome recorded per request id (§4.6 step 5).
type CommandResult struct {
	RequestID string `json:"request_id"`
	PointID   uint32 `json:"point_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func encodeResult(r CommandResult) (string, error) {
	b, err := json.Marshal(r)
	return string(b), err
}
