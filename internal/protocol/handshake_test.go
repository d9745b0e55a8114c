// internal/protocol/handshake_test.go
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHelloMessage(t *testing.T) {
	msg, err := ParseHelloMessage([]byte(`{"known_protocols":[1,2,3]}`))
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, msg.KnownProtocols)

	_, err = ParseHelloMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestHelloResponseEncoding(t *testing.T) {
	out, err := HelloResponse{Success: &HelloSuccess{ProtocolVersion: 1}}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"Success":{"protocol_version":1}}`, string(out))

	out, err = HelloResponse{Failure: &HelloFailure{ShouldReload: true}}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"Failure":{"should_reload":true}}`, string(out))
}

func TestDisconnectMessage(t *testing.T) {
	assert.Equal(t, `"FromServer"`, string(DisconnectFromServer.Encode()))

	dm, ok := ParseDisconnectMessage([]byte(`"FromClient"`))
	require.True(t, ok)
	assert.Equal(t, DisconnectFromClient, dm)

	_, ok = ParseDisconnectMessage([]byte(`"SomethingElse"`))
	assert.False(t, ok)

	_, ok = ParseDisconnectMessage([]byte(`{"known_protocols":[1]}`))
	assert.False(t, ok)
}

func TestErrorMessageWire(t *testing.T) {
	err := NewProtocolError(CodeUnexpectedBinary, "binary frame before handshake", nil)
	msg := err.Message()
	require.NotNil(t, msg.ErrorCode)
	assert.Equal(t, CodeUnexpectedBinary, *msg.ErrorCode)
	assert.True(t, msg.ShouldHandshake, "protocol errors demand a new handshake")

	out, encErr := msg.Encode()
	require.NoError(t, encErr)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, float64(CodeUnexpectedBinary), decoded["error_code"])
	assert.Equal(t, true, decoded["should_handshake"])
	assert.Equal(t, false, decoded["should_reload"])
}

func TestErrorDefaultsAndClassification(t *testing.T) {
	lerr := NewLobbyError(0, "something lobby-ish", nil)
	msg := lerr.Message()
	require.NotNil(t, msg.ErrorCode)
	assert.Equal(t, CodeLobbyError, *msg.ErrorCode)
	assert.False(t, msg.ShouldHandshake)

	assert.Contains(t, NewGameError(CodeIllegalMove, "bad move", nil).Error(), "game error 401")
}
