// internal/protocol/v1/types.go
//
// Package v1 defines protocol version 1: the binary MessagePack frames
// spoken after a successful handshake. Tagged unions use external
// tagging — unit variants encode as a bare string, variants with fields
// as a single-key map of variant name to payload — so every frame stays
// self-describing.
//
// A finalized protocol version must never change. New behavior goes in a
// new version package; the handshake picks the highest mutually known one.
package v1

import (
	"fmt"

	"github.com/jason-s-yu/ygame/internal/rules"
)

// Version is the protocol number negotiated during handshake.
const Version uint32 = 1

// GameAction is the wire form of a rules action.
type GameAction string

const (
	GameActionInit     GameAction = "Init"
	GameActionMove     GameAction = "Move"
	GameActionFinished GameAction = "Finished"
)

// FromRulesAction maps an engine action to its wire form.
func FromRulesAction(a rules.Action) GameAction {
	switch a {
	case rules.ActionInit:
		return GameActionInit
	case rules.ActionFinished:
		return GameActionFinished
	default:
		return GameActionMove
	}
}

// Rules maps the wire action back to the engine's type.
func (a GameAction) Rules() (rules.Action, error) {
	switch a {
	case GameActionInit:
		return rules.ActionInit, nil
	case GameActionMove:
		return rules.ActionMove, nil
	case GameActionFinished:
		return rules.ActionFinished, nil
	}
	return 0, fmt.Errorf("unknown game action %q", string(a))
}

// FromRulesActions maps a whole action log.
func FromRulesActions(log []rules.Action) []GameAction {
	out := make([]GameAction, len(log))
	for i, a := range log {
		out[i] = FromRulesAction(a)
	}
	return out
}

// UserRole is the wire form of a seat assignment.
type UserRole string

const (
	RoleSeat1    UserRole = "Seat1"
	RoleSeat2    UserRole = "Seat2"
	RoleObserver UserRole = "Observer"
)

// FromRulesRole maps an engine role to its wire form.
func FromRulesRole(r rules.UserRole) UserRole {
	switch r {
	case rules.RoleSeat1:
		return RoleSeat1
	case rules.RoleSeat2:
		return RoleSeat2
	default:
		return RoleObserver
	}
}

// GameStatus is the per-recipient projection of a game listing.
type GameStatus uint32

const (
	StatusJoinable   GameStatus = 1
	StatusRejoinable GameStatus = 2
	StatusFull       GameStatus = 3
	StatusFinished   GameStatus = 4
)

// ---------------- Client messages ----------------------

// LoginMessage carries the display name plus the optional prior identity
// for session resumption. UID and SessionUID are textual UUIDs.
type LoginMessage struct {
	Name       string  `msgpack:"name"`
	UID        *string `msgpack:"uid"`
	SessionUID *string `msgpack:"session_uid"`
}

// RunningClientMessage is the union of everything a client may send in
// the Running phase: exactly one of Lobby or Game is set.
type RunningClientMessage struct {
	Lobby *LobbyClientMessage
	Game  *ClientGameRequest
}

// ClientGameRequest addresses an action at one joined game. RequestID is
// echoed back in the matching GameActionResponse.
type ClientGameRequest struct {
	GameID    string     `msgpack:"game_id"`
	RequestID string     `msgpack:"request_id"`
	Action    GameAction `msgpack:"action"`
}

// LobbyClientMessage is the union of lobby requests: exactly one of the
// three variants is set (AskGameList carries no payload).
type LobbyClientMessage struct {
	AskGameList bool
	CreateGame  *CreateGame
	JoinGame    *JoinGame
}

type CreateGame struct {
	RequestUID string `msgpack:"request_uid"`
}

type JoinGame struct {
	GameUID string `msgpack:"game_uid"`
}

// ---------------- Server messages ----------------------

// LoginResponse carries the definitive identity after RegisterUser.
type LoginResponse struct {
	Name       string `msgpack:"name"`
	UserUID    string `msgpack:"user_uid"`
	SessionUID string `msgpack:"session_uid"`
}

// RunningServerMessage is the union of everything the server may send in
// the Running phase: exactly one of Lobby or Game is set.
type RunningServerMessage struct {
	Lobby *LobbyServerMessage
	Game  *ServerGameEnvelope
}

// ServerGameEnvelope scopes a game message to one game id.
type ServerGameEnvelope struct {
	GameID  string            `msgpack:"game_id"`
	Message GameServerMessage `msgpack:"message"`
}

// LobbyServerMessage is the union of lobby replies and broadcasts:
// exactly one field is set.
type LobbyServerMessage struct {
	GameList        *GameList
	GameCreated     *GameCreated
	NewGame         *GameOverview
	GameInfoChanged *GameOverview
	GameJoined      *GameJoined
	GameRemoved     *GameRemoved
}

type GameList struct {
	List []GameOverview `msgpack:"list"`
}

type GameCreated struct {
	RequestUID string      `msgpack:"request_uid"`
	Info       GameDetails `msgpack:"info"`
	Role       UserRole    `msgpack:"role"`
}

type GameJoined struct {
	Info  GameDetails  `msgpack:"info"`
	Role  UserRole     `msgpack:"role"`
	Moves []GameAction `msgpack:"moves"`
}

type GameRemoved struct {
	ID string `msgpack:"id"`
}

// GameOverview is the per-recipient lobby listing of one game.
type GameOverview struct {
	ID     string     `msgpack:"id"`
	Name   string     `msgpack:"name"`
	Status GameStatus `msgpack:"status"`
}

// GameDetails is the full description returned when creating or joining.
type GameDetails struct {
	ID            string  `msgpack:"id"`
	Name          string  `msgpack:"name"`
	IsFinished    bool    `msgpack:"is_finished"`
	Seat1Username *string `msgpack:"seat_1_username"`
	Seat2Username *string `msgpack:"seat_2_username"`
}

// GameServerMessage is the union of per-game server events: exactly one
// field is set.
type GameServerMessage struct {
	Action         *GameAction
	ActionResponse *GameActionResult
	UserJoin       *UserJoin
	UserQuit       *UserQuit
}

// GameActionResult echoes a request id with the action's verdict. Its
// wire tag is "GameActionResponse".
type GameActionResult struct {
	RequestID string             `msgpack:"request_id"`
	Response  GameActionResponse `msgpack:"response"`
}

// GameActionResponse is a union: Ok, or Illegal with a reason code.
type GameActionResponse struct {
	Ok      bool
	Illegal *IllegalAction
}

type IllegalAction struct {
	Reason uint32 `msgpack:"reason"`
}

type UserJoin struct {
	UserUID  string   `msgpack:"user_uid"`
	Username string   `msgpack:"username"`
	Role     UserRole `msgpack:"role"`
}

type UserQuit struct {
	UserUID string   `msgpack:"user_uid"`
	Role    UserRole `msgpack:"role"`
}
