// internal/protocol/v1/codec_test.go
package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func roundTripClient(t *testing.T, in RunningClientMessage) RunningClientMessage {
	t.Helper()
	data, err := Encode(&in)
	require.NoError(t, err)
	out, err := DecodeRunningClientMessage(data)
	require.NoError(t, err)
	return *out
}

func TestUnitVariantIsBareString(t *testing.T) {
	data, err := Encode(&RunningClientMessage{Lobby: &LobbyClientMessage{AskGameList: true}})
	require.NoError(t, err)

	// {"Lobby": "AskGameList"}
	var generic map[string]string
	require.NoError(t, msgpack.Unmarshal(data, &generic))
	assert.Equal(t, map[string]string{"Lobby": "AskGameList"}, generic)
}

func TestClientMessageRoundTrips(t *testing.T) {
	out := roundTripClient(t, RunningClientMessage{
		Lobby: &LobbyClientMessage{CreateGame: &CreateGame{RequestUID: "req-7"}},
	})
	require.NotNil(t, out.Lobby)
	require.NotNil(t, out.Lobby.CreateGame)
	assert.Equal(t, "req-7", out.Lobby.CreateGame.RequestUID)

	out = roundTripClient(t, RunningClientMessage{
		Lobby: &LobbyClientMessage{JoinGame: &JoinGame{GameUID: "some-id"}},
	})
	require.NotNil(t, out.Lobby.JoinGame)
	assert.Equal(t, "some-id", out.Lobby.JoinGame.GameUID)

	out = roundTripClient(t, RunningClientMessage{
		Game: &ClientGameRequest{GameID: "g", RequestID: "r", Action: GameActionMove},
	})
	require.NotNil(t, out.Game)
	assert.Equal(t, GameActionMove, out.Game.Action)
}

func TestLoginMessageRoundTrip(t *testing.T) {
	uid := "user-uid"
	sid := "session-uid"
	data, err := Encode(&LoginMessage{Name: "alice", UID: &uid, SessionUID: &sid})
	require.NoError(t, err)

	out, err := DecodeLoginMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "alice", out.Name)
	require.NotNil(t, out.UID)
	assert.Equal(t, uid, *out.UID)

	data, err = Encode(&LoginMessage{Name: "bob"})
	require.NoError(t, err)
	out, err = DecodeLoginMessage(data)
	require.NoError(t, err)
	assert.Nil(t, out.UID)
	assert.Nil(t, out.SessionUID)
}

func TestServerMessageRoundTrips(t *testing.T) {
	alice := "alice"
	in := RunningServerMessage{
		Lobby: &LobbyServerMessage{GameCreated: &GameCreated{
			RequestUID: "req-1",
			Info: GameDetails{
				ID:            "id-1",
				Name:          "Bold Heron",
				Seat1Username: &alice,
			},
			Role: RoleSeat1,
		}},
	}
	data, err := Encode(&in)
	require.NoError(t, err)
	var out RunningServerMessage
	require.NoError(t, msgpack.Unmarshal(data, &out))
	require.NotNil(t, out.Lobby)
	require.NotNil(t, out.Lobby.GameCreated)
	assert.Equal(t, in.Lobby.GameCreated.Info, out.Lobby.GameCreated.Info)
	assert.Equal(t, RoleSeat1, out.Lobby.GameCreated.Role)

	action := GameActionInit
	in = RunningServerMessage{
		Game: &ServerGameEnvelope{
			GameID:  "id-1",
			Message: GameServerMessage{Action: &action},
		},
	}
	data, err = Encode(&in)
	require.NoError(t, err)
	out = RunningServerMessage{}
	require.NoError(t, msgpack.Unmarshal(data, &out))
	require.NotNil(t, out.Game)
	require.NotNil(t, out.Game.Message.Action)
	assert.Equal(t, GameActionInit, *out.Game.Message.Action)
}

func TestActionResponseWireTag(t *testing.T) {
	// The verdict's wire tag stays "GameActionResponse" even though the
	// Go field is named ActionResponse.
	in := RunningServerMessage{
		Game: &ServerGameEnvelope{
			GameID: "id-1",
			Message: GameServerMessage{ActionResponse: &GameActionResult{
				RequestID: "req-9",
				Response:  GameActionResponse{Ok: true},
			}},
		},
	}
	data, err := Encode(&in)
	require.NoError(t, err)

	var generic map[string]map[string]any
	require.NoError(t, msgpack.Unmarshal(data, &generic))
	inner, ok := generic["Game"]["message"].(map[string]any)
	require.True(t, ok, "message should be a tagged map, got %T", generic["Game"]["message"])
	_, ok = inner["GameActionResponse"]
	assert.True(t, ok)

	var out RunningServerMessage
	require.NoError(t, msgpack.Unmarshal(data, &out))
	require.NotNil(t, out.Game.Message.ActionResponse)
	assert.True(t, out.Game.Message.ActionResponse.Response.Ok)
}

func TestIllegalActionRoundTrip(t *testing.T) {
	in := GameActionResponse{Illegal: &IllegalAction{Reason: 401}}
	data, err := Encode(&in)
	require.NoError(t, err)
	var out GameActionResponse
	require.NoError(t, msgpack.Unmarshal(data, &out))
	require.NotNil(t, out.Illegal)
	assert.False(t, out.Ok)
	assert.Equal(t, uint32(401), out.Illegal.Reason)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeRunningClientMessage([]byte{0xc1})
	assert.Error(t, err)

	// A multi-key map is not a tagged union.
	data, err := msgpack.Marshal(map[string]string{"a": "x", "b": "y"})
	require.NoError(t, err)
	_, err = DecodeRunningClientMessage(data)
	assert.Error(t, err)
}

func TestRoleAndActionMappings(t *testing.T) {
	for _, a := range []GameAction{GameActionInit, GameActionMove, GameActionFinished} {
		r, err := a.Rules()
		require.NoError(t, err)
		assert.Equal(t, a, FromRulesAction(r))
	}
	_, err := GameAction("Teleport").Rules()
	assert.Error(t, err)
}
