// ABOUTME: Level feed message type definitions
// ABOUTME: Defines the JSON envelope and payloads exchanged over the feed websocket
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the feed protocol version
const Version = 1

// Path is the websocket endpoint of a level feed
const Path = "/vumeter"

// Message types
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeLevels      = "levels"
	TypeError       = "server/error"
)

// Message is the top-level wrapper for all feed messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is a received message with its payload left undecoded
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ClientHello is sent by watchers after connecting
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello describes the metered source
type ServerHello struct {
	ServerID   string `json:"server_id"`
	Name       string `json:"name"`
	Version    int    `json:"version"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
}

// Levels carries the latest per-channel levels in dBFS
type Levels struct {
	Seq    uint64    `json:"seq"`
	Title  string    `json:"title,omitempty"`
	Levels []float32 `json:"levels"`
}

// ServerError is sent before the server closes a connection it rejects
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Decode parses an envelope and checks its type
func Decode(data []byte, wantType string, payload interface{}) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}
	if env.Type != wantType {
		return fmt.Errorf("expected %s, got %s", wantType, env.Type)
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return fmt.Errorf("failed to parse %s payload: %w", wantType, err)
	}
	return nil
}
