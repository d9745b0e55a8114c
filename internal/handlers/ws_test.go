// internal/handlers/ws_test.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jason-s-yu/ygame/internal/client"
	"github.com/jason-s-yu/ygame/internal/game"
	"github.com/jason-s-yu/ygame/internal/lobby"
	"github.com/jason-s-yu/ygame/internal/protocol"
	v1 "github.com/jason-s-yu/ygame/internal/protocol/v1"
	"github.com/jason-s-yu/ygame/internal/rules"
)

func newTestServer(t *testing.T, opts ...client.Option) *httptest.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	lob := lobby.New(logger, lobby.WithGameOptions(game.WithSeatPicker(
		func(empty []rules.UserRole) rules.UserRole { return empty[0] },
	))).Start()
	t.Cleanup(lob.Stop)
	srv := httptest.NewServer(NewServer(logger, lob, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+WebsocketPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, typ websocket.MessageType, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, typ, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) (websocket.MessageType, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	return typ, data
}

func handshake(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	hello, err := json.Marshal(protocol.HelloMessage{KnownProtocols: []uint32{1, 2}})
	require.NoError(t, err)
	writeFrame(t, conn, websocket.MessageText, hello)

	typ, data := readFrame(t, conn)
	require.Equal(t, websocket.MessageText, typ)
	var resp protocol.HelloResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.NotNil(t, resp.Success)
	require.Equal(t, uint32(1), resp.Success.ProtocolVersion)
}

func login(t *testing.T, conn *websocket.Conn, name string, uid, sessionUID *string) v1.LoginResponse {
	t.Helper()
	data, err := v1.Encode(&v1.LoginMessage{Name: name, UID: uid, SessionUID: sessionUID})
	require.NoError(t, err)
	writeFrame(t, conn, websocket.MessageBinary, data)

	typ, raw := readFrame(t, conn)
	require.Equal(t, websocket.MessageBinary, typ)
	var resp v1.LoginResponse
	require.NoError(t, msgpack.Unmarshal(raw, &resp))
	return resp
}

func readServerMessage(t *testing.T, conn *websocket.Conn) v1.RunningServerMessage {
	t.Helper()
	typ, raw := readFrame(t, conn)
	require.Equal(t, websocket.MessageBinary, typ, "unexpected frame: %s", raw)
	var msg v1.RunningServerMessage
	require.NoError(t, msgpack.Unmarshal(raw, &msg))
	return msg
}

// readUntil reads server messages until pred accepts one, failing the
// test after a few frames. Broadcast ordering across sources is not
// deterministic, so tests match on content.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(v1.RunningServerMessage) bool) v1.RunningServerMessage {
	t.Helper()
	for i := 0; i < 8; i++ {
		msg := readServerMessage(t, conn)
		if pred(msg) {
			return msg
		}
	}
	t.Fatal("expected server message never arrived")
	return v1.RunningServerMessage{}
}

func readErrorMessage(t *testing.T, conn *websocket.Conn) protocol.ErrorMessage {
	t.Helper()
	typ, data := readFrame(t, conn)
	require.Equal(t, websocket.MessageText, typ)
	var msg protocol.ErrorMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendLobby(t *testing.T, conn *websocket.Conn, msg v1.LobbyClientMessage) {
	t.Helper()
	data, err := v1.Encode(&v1.RunningClientMessage{Lobby: &msg})
	require.NoError(t, err)
	writeFrame(t, conn, websocket.MessageBinary, data)
}

func sendGameAction(t *testing.T, conn *websocket.Conn, gameID, requestID string, action v1.GameAction) {
	t.Helper()
	data, err := v1.Encode(&v1.RunningClientMessage{Game: &v1.ClientGameRequest{
		GameID:    gameID,
		RequestID: requestID,
		Action:    action,
	}})
	require.NoError(t, err)
	writeFrame(t, conn, websocket.MessageBinary, data)
}

func TestHandshakeAndLogin(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	handshake(t, conn)

	resp := login(t, conn, "alice", nil, nil)
	assert.Equal(t, "alice", resp.Name)
	_, err := uuid.Parse(resp.UserUID)
	assert.NoError(t, err)
	_, err = uuid.Parse(resp.SessionUID)
	assert.NoError(t, err)
}

func TestFreshLoginSeesEmptyGameList(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	handshake(t, conn)
	login(t, conn, "alice", nil, nil)

	sendLobby(t, conn, v1.LobbyClientMessage{AskGameList: true})
	msg := readServerMessage(t, conn)
	require.NotNil(t, msg.Lobby)
	require.NotNil(t, msg.Lobby.GameList)
	assert.Empty(t, msg.Lobby.GameList.List)
}

func TestSessionResume(t *testing.T) {
	srv := newTestServer(t)

	conn := dial(t, srv)
	handshake(t, conn)
	first := login(t, conn, "alice", nil, nil)
	conn.Close(websocket.StatusNormalClosure, "")

	conn2 := dial(t, srv)
	handshake(t, conn2)
	resumed := login(t, conn2, "alice", &first.UserUID, &first.SessionUID)
	assert.Equal(t, first.UserUID, resumed.UserUID)
	assert.Equal(t, first.SessionUID, resumed.SessionUID)

	// A made-up identity must not resume.
	conn3 := dial(t, srv)
	handshake(t, conn3)
	bogusUID := uuid.New().String()
	fresh := login(t, conn3, "mallory", &bogusUID, &first.SessionUID)
	assert.NotEqual(t, first.UserUID, fresh.UserUID)
}

func TestHandshakeNoCommonVersion(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	hello, err := json.Marshal(protocol.HelloMessage{KnownProtocols: []uint32{99}})
	require.NoError(t, err)
	writeFrame(t, conn, websocket.MessageText, hello)

	typ, data := readFrame(t, conn)
	require.Equal(t, websocket.MessageText, typ)
	var resp protocol.HelloResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.NotNil(t, resp.Failure)
	assert.True(t, resp.Failure.ShouldReload)

	// The Failure response is the whole answer; the connection stays in
	// the handshake phase and a better offer still succeeds.
	handshake(t, conn)
}

func TestHandshakeEmptyVersionList(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	hello, err := json.Marshal(protocol.HelloMessage{KnownProtocols: []uint32{}})
	require.NoError(t, err)
	writeFrame(t, conn, websocket.MessageText, hello)

	errMsg := readErrorMessage(t, conn)
	require.NotNil(t, errMsg.ErrorCode)
	assert.Equal(t, protocol.CodeNoProtocolVersion, *errMsg.ErrorCode)
	assert.True(t, errMsg.ShouldHandshake)
}

func TestBinaryBeforeHandshake(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	writeFrame(t, conn, websocket.MessageBinary, []byte{0x01, 0x02})
	errMsg := readErrorMessage(t, conn)
	require.NotNil(t, errMsg.ErrorCode)
	assert.Equal(t, protocol.CodeUnexpectedBinary, *errMsg.ErrorCode)
	assert.True(t, errMsg.ShouldHandshake)

	// The connection is back in the handshake phase and still usable.
	handshake(t, conn)
	login(t, conn, "alice", nil, nil)
}

func TestCreateJoinAndPlay(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv)
	handshake(t, alice)
	login(t, alice, "alice", nil, nil)

	bob := dial(t, srv)
	handshake(t, bob)
	login(t, bob, "bob", nil, nil)

	// alice creates a room: she gets the direct reply first, then the
	// broadcast everyone receives.
	sendLobby(t, alice, v1.LobbyClientMessage{CreateGame: &v1.CreateGame{RequestUID: "req-1"}})

	created := readServerMessage(t, alice)
	require.NotNil(t, created.Lobby)
	require.NotNil(t, created.Lobby.GameCreated)
	gc := created.Lobby.GameCreated
	assert.Equal(t, "req-1", gc.RequestUID)
	assert.Equal(t, v1.RoleSeat1, gc.Role)
	require.NotNil(t, gc.Info.Seat1Username)
	assert.Equal(t, "alice", *gc.Info.Seat1Username)
	assert.Nil(t, gc.Info.Seat2Username)
	gameID := gc.Info.ID

	aliceNew := readServerMessage(t, alice)
	require.NotNil(t, aliceNew.Lobby)
	require.NotNil(t, aliceNew.Lobby.NewGame)
	assert.Equal(t, v1.StatusRejoinable, aliceNew.Lobby.NewGame.Status)

	bobNew := readServerMessage(t, bob)
	require.NotNil(t, bobNew.Lobby)
	require.NotNil(t, bobNew.Lobby.NewGame)
	assert.Equal(t, gameID, bobNew.Lobby.NewGame.ID)
	assert.Equal(t, v1.StatusJoinable, bobNew.Lobby.NewGame.Status)

	// The listing agrees with the broadcast.
	sendLobby(t, bob, v1.LobbyClientMessage{AskGameList: true})
	list := readServerMessage(t, bob)
	require.NotNil(t, list.Lobby)
	require.NotNil(t, list.Lobby.GameList)
	require.Len(t, list.Lobby.GameList.List, 1)
	assert.Equal(t, v1.StatusJoinable, list.Lobby.GameList.List[0].Status)

	// bob joins: second seat, both seats fill, Init starts the game.
	sendLobby(t, bob, v1.LobbyClientMessage{JoinGame: &v1.JoinGame{GameUID: gameID}})
	joined := readUntil(t, bob, func(m v1.RunningServerMessage) bool {
		return m.Lobby != nil && m.Lobby.GameJoined != nil
	})
	gj := joined.Lobby.GameJoined
	assert.Equal(t, v1.RoleSeat2, gj.Role)
	require.NotNil(t, gj.Info.Seat2Username)
	assert.Equal(t, "bob", *gj.Info.Seat2Username)
	assert.Empty(t, gj.Moves)

	readUntil(t, bob, func(m v1.RunningServerMessage) bool {
		return m.Game != nil && m.Game.Message.Action != nil &&
			*m.Game.Message.Action == v1.GameActionInit
	})

	readUntil(t, alice, func(m v1.RunningServerMessage) bool {
		return m.Game != nil && m.Game.Message.UserJoin != nil &&
			m.Game.Message.UserJoin.Username == "bob"
	})
	readUntil(t, alice, func(m v1.RunningServerMessage) bool {
		return m.Game != nil && m.Game.Message.Action != nil &&
			*m.Game.Message.Action == v1.GameActionInit
	})

	// bob moves; alice sees it.
	sendGameAction(t, bob, gameID, "req-2", v1.GameActionMove)
	result := readUntil(t, bob, func(m v1.RunningServerMessage) bool {
		return m.Game != nil && m.Game.Message.ActionResponse != nil
	})
	assert.Equal(t, "req-2", result.Game.Message.ActionResponse.RequestID)
	assert.True(t, result.Game.Message.ActionResponse.Response.Ok)

	readUntil(t, alice, func(m v1.RunningServerMessage) bool {
		return m.Game != nil && m.Game.Message.Action != nil &&
			*m.Game.Message.Action == v1.GameActionMove
	})

	// A second Init is illegal and only the sender hears about it.
	sendGameAction(t, bob, gameID, "req-3", v1.GameActionInit)
	verdict := readUntil(t, bob, func(m v1.RunningServerMessage) bool {
		return m.Game != nil && m.Game.Message.ActionResponse != nil
	})
	require.NotNil(t, verdict.Game.Message.ActionResponse.Response.Illegal)
	assert.Equal(t, rules.ReasonIllegalMove, verdict.Game.Message.ActionResponse.Response.Illegal.Reason)
}

func TestJoinGameTwice(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	handshake(t, conn)
	login(t, conn, "alice", nil, nil)

	sendLobby(t, conn, v1.LobbyClientMessage{CreateGame: &v1.CreateGame{RequestUID: "req-1"}})
	created := readServerMessage(t, conn)
	require.NotNil(t, created.Lobby)
	require.NotNil(t, created.Lobby.GameCreated)
	gameID := created.Lobby.GameCreated.Info.ID
	readUntil(t, conn, func(m v1.RunningServerMessage) bool {
		return m.Lobby != nil && m.Lobby.NewGame != nil
	})

	// Creating already subscribed the connection; joining again is refused
	// without tearing down the session.
	sendLobby(t, conn, v1.LobbyClientMessage{JoinGame: &v1.JoinGame{GameUID: gameID}})
	errMsg := readErrorMessage(t, conn)
	require.NotNil(t, errMsg.ErrorCode)
	assert.Equal(t, protocol.CodeGameAlreadyJoined, *errMsg.ErrorCode)
	assert.False(t, errMsg.ShouldHandshake)

	sendLobby(t, conn, v1.LobbyClientMessage{AskGameList: true})
	list := readServerMessage(t, conn)
	require.NotNil(t, list.Lobby)
	require.NotNil(t, list.Lobby.GameList)
	require.Len(t, list.Lobby.GameList.List, 1)
}

func TestJoinUnknownGame(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	handshake(t, conn)
	login(t, conn, "alice", nil, nil)

	sendLobby(t, conn, v1.LobbyClientMessage{JoinGame: &v1.JoinGame{GameUID: uuid.New().String()}})
	errMsg := readErrorMessage(t, conn)
	require.NotNil(t, errMsg.ErrorCode)
	assert.Equal(t, protocol.CodeGameDoesntExist, *errMsg.ErrorCode)
	assert.False(t, errMsg.ShouldHandshake)

	// Lobby errors don't reset the phase; the session keeps working.
	sendLobby(t, conn, v1.LobbyClientMessage{AskGameList: true})
	list := readServerMessage(t, conn)
	require.NotNil(t, list.Lobby)
	require.NotNil(t, list.Lobby.GameList)
	assert.Empty(t, list.Lobby.GameList.List)
}

func TestMalformedGameID(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	handshake(t, conn)
	login(t, conn, "alice", nil, nil)

	sendLobby(t, conn, v1.LobbyClientMessage{JoinGame: &v1.JoinGame{GameUID: "not-a-uuid"}})
	errMsg := readErrorMessage(t, conn)
	require.NotNil(t, errMsg.ErrorCode)
	assert.Equal(t, protocol.CodeInvalidGameID, *errMsg.ErrorCode)
	assert.True(t, errMsg.ShouldHandshake)
}

func TestTextInRunningPhaseResets(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	handshake(t, conn)
	login(t, conn, "alice", nil, nil)

	writeFrame(t, conn, websocket.MessageText, []byte("hello"))
	errMsg := readErrorMessage(t, conn)
	require.NotNil(t, errMsg.ErrorCode)
	assert.Equal(t, protocol.CodeUnexpectedText, *errMsg.ErrorCode)
	assert.True(t, errMsg.ShouldHandshake)

	// The server-side phase is Handshake again: binary now trips 103.
	writeFrame(t, conn, websocket.MessageBinary, []byte{0x01})
	errMsg = readErrorMessage(t, conn)
	require.NotNil(t, errMsg.ErrorCode)
	assert.Equal(t, protocol.CodeUnexpectedBinary, *errMsg.ErrorCode)
}

func TestTextPingPong(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	writeFrame(t, conn, websocket.MessageText, []byte("ping"))
	typ, data := readFrame(t, conn)
	assert.Equal(t, websocket.MessageText, typ)
	assert.Equal(t, "pong", string(data))
}

func TestClientDisconnectMessage(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	handshake(t, conn)

	writeFrame(t, conn, websocket.MessageText, protocol.DisconnectFromClient.Encode())

	// The server closes the session; the next read fails.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err)
}

func TestHeartbeatTimeout(t *testing.T) {
	srv := newTestServer(t, client.WithHeartbeat(30*time.Millisecond, 100*time.Millisecond))
	conn := dial(t, srv)

	// Never reading means never answering pings; the server gives up
	// once the liveness window lapses.
	time.Sleep(400 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return // dropped, as expected
		}
		if typ == websocket.MessageText {
			if dm, ok := protocol.ParseDisconnectMessage(data); ok {
				assert.Equal(t, protocol.DisconnectFromServer, dm)
				return
			}
		}
	}
	t.Fatal("server never dropped the silent connection")
}
