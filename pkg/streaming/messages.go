package streaming

import (
	"encoding/json"
	"fmt"
)

// Message type constants matching the chunk streaming protocol.
const (
	TypeChunkRequest  = "chunk_request"
	TypeChunkResponse = "chunk_response"
	TypeError         = "error"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ChunkRequest asks the side owning the recording files for the chunk files
// at the given paths, relative to the recording root.
type ChunkRequest struct {
	RequestID     uint64   `json:"requestId"`
	RelativePaths []string `json:"relativePaths"`
}

// ChunkResponse carries the raw file contents for a request, in request path
// order. A non-empty Error means the request failed as a whole.
type ChunkResponse struct {
	RequestID uint64   `json:"requestId"`
	Chunks    [][]byte `json:"chunks"`
	Error     string   `json:"error,omitempty"`
}

// ErrorMessage reports a message the peer could not handle.
type ErrorMessage struct {
	For     string `json:"for"`
	Message string `json:"message"`
}

// MarshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func MarshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
