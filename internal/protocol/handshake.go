// internal/protocol/handshake.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// The handshake phase speaks JSON text frames and never changes between
// protocol versions; it exists only to pick one.

// HelloMessage is the first frame a client sends: the protocol versions
// it can speak. The server picks the highest one it also supports.
type HelloMessage struct {
	KnownProtocols []uint32 `json:"known_protocols"`
}

// HelloResponse is a tagged union: exactly one of Success or Failure is
// set. It marshals as {"Success":{...}} or {"Failure":{...}}.
type HelloResponse struct {
	Success *HelloSuccess `json:"Success,omitempty"`
	Failure *HelloFailure `json:"Failure,omitempty"`
}

type HelloSuccess struct {
	ProtocolVersion uint32 `json:"protocol_version"`
}

// ParseHelloMessage parses the opening handshake frame.
func ParseHelloMessage(data []byte) (*HelloMessage, error) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse hello message: %w", err)
	}
	return &msg, nil
}

// Encode renders the response as a JSON text frame.
func (r HelloResponse) Encode() ([]byte, error) {
	return json.Marshal(r)
}

type HelloFailure struct {
	ShouldReload bool `json:"should_reload"`
}

// DisconnectMessage is sent as a bare JSON string by whichever side
// initiates an orderly shutdown.
type DisconnectMessage string

const (
	DisconnectFromClient DisconnectMessage = "FromClient"
	DisconnectFromServer DisconnectMessage = "FromServer"
)

// ParseDisconnectMessage reports whether data is a DisconnectMessage
// frame. Anything that is not one of the two known variants is not a
// disconnect frame; the caller decides what it is instead.
func ParseDisconnectMessage(data []byte) (DisconnectMessage, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	switch DisconnectMessage(s) {
	case DisconnectFromClient, DisconnectFromServer:
		return DisconnectMessage(s), true
	}
	return "", false
}

func (d DisconnectMessage) Encode() []byte {
	out, err := json.Marshal(string(d))
	if err != nil {
		// A plain string cannot fail to marshal.
		panic(fmt.Sprintf("encode disconnect message: %v", err))
	}
	return out
}
