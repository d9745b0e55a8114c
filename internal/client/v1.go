// internal/client/v1.go
//
// Protocol version 1 session logic: login, lobby requests, game
// requests, and the translation of lobby and game broadcasts into wire
// frames. Lobby listings are projected per recipient, so two users see
// different statuses for the same room.
package client

import (
	"context"
	"errors"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/jason-s-yu/ygame/internal/game"
	"github.com/jason-s-yu/ygame/internal/lobby"
	"github.com/jason-s-yu/ygame/internal/protocol"
	v1 "github.com/jason-s-yu/ygame/internal/protocol/v1"
)

func (c *Client) handleLoginV1(ctx context.Context, data []byte) error {
	msg, err := v1.DecodeLoginMessage(data)
	if err != nil {
		return protocol.NewProtocolError(protocol.CodeInvalidMessage,
			"malformed login message", err)
	}

	req := lobby.RegisterRequest{ClientID: c.id, Name: msg.Name}
	// An unparseable prior identity is simply not a resume attempt.
	if msg.UID != nil && msg.SessionUID != nil {
		if uid, err := uuid.Parse(*msg.UID); err == nil {
			if sid, err := uuid.Parse(*msg.SessionUID); err == nil {
				req.UserUID = &uid
				req.SessionUID = &sid
			}
		}
	}

	rctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	reply, err := c.lobby.RegisterUser(rctx, req)
	if err != nil {
		return protocol.NewServerError(protocol.CodeMailbox,
			"lobby unavailable", err)
	}
	if err := c.lobby.Connect(rctx, c.id, c.lobbyEvents); err != nil {
		return protocol.NewServerError(protocol.CodeMailbox,
			"lobby unavailable", err)
	}

	c.user = &reply.User
	c.sessionID = reply.SessionID
	c.phase = phaseRunning
	c.logger.Infof("user %s logged in as %s", reply.User.Username, reply.User.ID)

	data, err = v1.Encode(&v1.LoginResponse{
		Name:       reply.User.Username,
		UserUID:    reply.User.ID.String(),
		SessionUID: reply.SessionID.String(),
	})
	if err != nil {
		return protocol.NewServerError(protocol.CodeSerialization,
			"encode login response", err)
	}
	c.enqueue(websocket.MessageBinary, data)
	return nil
}

func (c *Client) handleRunningV1(ctx context.Context, data []byte) error {
	msg, err := v1.DecodeRunningClientMessage(data)
	if err != nil {
		return protocol.NewProtocolError(protocol.CodeInvalidMessage,
			"malformed message", err)
	}
	switch {
	case msg.Lobby != nil:
		return c.handleLobbyRequestV1(ctx, msg.Lobby)
	case msg.Game != nil:
		return c.handleGameRequestV1(ctx, msg.Game)
	}
	return protocol.NewProtocolError(protocol.CodeInvalidMessage,
		"empty message", nil)
}

func (c *Client) handleLobbyRequestV1(ctx context.Context, msg *v1.LobbyClientMessage) error {
	rctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	switch {
	case msg.AskGameList:
		list, err := c.lobby.GameList(rctx)
		if err != nil {
			return protocol.NewServerError(protocol.CodeMailbox,
				"lobby unavailable", err)
		}
		overviews := make([]v1.GameOverview, len(list))
		for i, info := range list {
			overviews[i] = c.projectOverview(info)
		}
		return c.sendBinary(&v1.RunningServerMessage{
			Lobby: &v1.LobbyServerMessage{GameList: &v1.GameList{List: overviews}},
		})

	case msg.CreateGame != nil:
		reply, err := c.lobby.CreateGame(rctx, lobby.CreateGameRequest{
			ClientID: c.id,
			UserID:   c.user.ID,
			Username: c.user.Username,
			GameOut:  c.gameMsgs,
		})
		if err != nil {
			return protocol.NewServerError(protocol.CodeMailbox,
				"lobby unavailable", err)
		}
		c.games[reply.Info.ID] = reply.Handle
		return c.sendBinary(&v1.RunningServerMessage{
			Lobby: &v1.LobbyServerMessage{GameCreated: &v1.GameCreated{
				RequestUID: msg.CreateGame.RequestUID,
				Info:       detailsFromInfo(reply.Info),
				Role:       v1.FromRulesRole(reply.Role),
			}},
		})

	case msg.JoinGame != nil:
		gameID, err := uuid.Parse(msg.JoinGame.GameUID)
		if err != nil {
			return protocol.NewProtocolError(protocol.CodeInvalidGameID,
				"malformed game id", err)
		}
		if _, ok := c.games[gameID]; ok {
			return protocol.NewLobbyError(protocol.CodeGameAlreadyJoined,
				"game already joined", nil)
		}
		handle, err := c.lobby.GetGame(rctx, gameID)
		if err != nil {
			if errors.Is(err, lobby.ErrNoSuchGame) {
				return protocol.NewLobbyError(protocol.CodeGameDoesntExist,
					"no such game", err)
			}
			return protocol.NewServerError(protocol.CodeMailbox,
				"lobby unavailable", err)
		}
		join, err := handle.Join(rctx, game.JoinRequest{
			UserID:   c.user.ID,
			Username: c.user.Username,
			ClientID: c.id,
			Out:      c.gameMsgs,
		})
		if err != nil {
			return protocol.NewServerError(protocol.CodeMailbox,
				"game unavailable", err)
		}
		c.games[gameID] = handle
		return c.sendBinary(&v1.RunningServerMessage{
			Lobby: &v1.LobbyServerMessage{GameJoined: &v1.GameJoined{
				Info: v1.GameDetails{
					ID:            gameID.String(),
					Name:          join.GameName,
					IsFinished:    join.Finished,
					Seat1Username: join.Seat1Username,
					Seat2Username: join.Seat2Username,
				},
				Role:  v1.FromRulesRole(join.Role),
				Moves: v1.FromRulesActions(join.Moves),
			}},
		})
	}
	return protocol.NewProtocolError(protocol.CodeInvalidMessage,
		"empty lobby message", nil)
}

func (c *Client) handleGameRequestV1(ctx context.Context, msg *v1.ClientGameRequest) error {
	gameID, err := uuid.Parse(msg.GameID)
	if err != nil {
		return protocol.NewProtocolError(protocol.CodeInvalidGameID,
			"malformed game id", err)
	}
	handle, ok := c.games[gameID]
	if !ok {
		return protocol.NewLobbyError(protocol.CodeGameNotJoined,
			"game not joined", nil)
	}
	action, err := msg.Action.Rules()
	if err != nil {
		return protocol.NewProtocolError(protocol.CodeInvalidMessage,
			"unknown game action", err)
	}

	rctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	reply, err := handle.Act(rctx, game.ActionRequest{UserID: c.user.ID, Action: action})
	if err != nil {
		return protocol.NewServerError(protocol.CodeMailbox,
			"game unavailable", err)
	}

	response := v1.GameActionResponse{Ok: reply.Ok}
	if !reply.Ok {
		response = v1.GameActionResponse{Illegal: &v1.IllegalAction{Reason: reply.Reason}}
	}
	return c.sendBinary(&v1.RunningServerMessage{
		Game: &v1.ServerGameEnvelope{
			GameID: gameID.String(),
			Message: v1.GameServerMessage{
				ActionResponse: &v1.GameActionResult{
					RequestID: msg.RequestID,
					Response:  response,
				},
			},
		},
	})
}

// handleLobbyEvent translates a lobby broadcast into this client's view.
func (c *Client) handleLobbyEvent(ev lobby.Event) error {
	var msg v1.LobbyServerMessage
	switch ev.Type {
	case lobby.EventNewGame:
		overview := c.projectOverview(ev.Info)
		msg.NewGame = &overview
	case lobby.EventGameChanged:
		overview := c.projectOverview(ev.Info)
		msg.GameInfoChanged = &overview
	case lobby.EventGameRemoved:
		delete(c.games, ev.GameID)
		msg.GameRemoved = &v1.GameRemoved{ID: ev.GameID.String()}
	default:
		return nil
	}
	return c.sendBinary(&v1.RunningServerMessage{Lobby: &msg})
}

// handleGameMessage translates a room broadcast into a wire frame.
func (c *Client) handleGameMessage(msg game.Message) error {
	var out v1.GameServerMessage
	switch msg.Event.Type {
	case game.EventAction:
		action := v1.FromRulesAction(msg.Event.Action)
		out.Action = &action
	case game.EventUserJoin:
		out.UserJoin = &v1.UserJoin{
			UserUID:  msg.Event.UserID.String(),
			Username: msg.Event.Username,
			Role:     v1.FromRulesRole(msg.Event.Role),
		}
	case game.EventUserQuit:
		out.UserQuit = &v1.UserQuit{
			UserUID: msg.Event.UserID.String(),
			Role:    v1.FromRulesRole(msg.Event.Role),
		}
	default:
		return nil
	}
	return c.sendBinary(&v1.RunningServerMessage{
		Game: &v1.ServerGameEnvelope{GameID: msg.GameID.String(), Message: out},
	})
}

// projectOverview renders a room snapshot from this user's point of
// view: a seat of your own beats a full table.
func (c *Client) projectOverview(info game.Info) v1.GameOverview {
	return v1.GameOverview{
		ID:     info.ID.String(),
		Name:   info.Name,
		Status: projectStatus(info, c.user.ID),
	}
}

func projectStatus(info game.Info, userID uuid.UUID) v1.GameStatus {
	if info.Status == game.StatusFinished {
		return v1.StatusFinished
	}
	seated := (info.Seat1 != nil && *info.Seat1 == userID) ||
		(info.Seat2 != nil && *info.Seat2 == userID)
	if seated {
		return v1.StatusRejoinable
	}
	if info.Seat1 != nil && info.Seat2 != nil {
		return v1.StatusFull
	}
	return v1.StatusJoinable
}

func detailsFromInfo(info game.Info) v1.GameDetails {
	return v1.GameDetails{
		ID:            info.ID.String(),
		Name:          info.Name,
		IsFinished:    info.Status == game.StatusFinished,
		Seat1Username: info.Seat1Name,
		Seat2Username: info.Seat2Name,
	}
}

// sendBinary takes a pointer because the union codecs hang off the
// pointer receiver; a by-value union does not reach them.
func (c *Client) sendBinary(msg *v1.RunningServerMessage) error {
	data, err := v1.Encode(msg)
	if err != nil {
		return protocol.NewServerError(protocol.CodeSerialization,
			"encode server message", err)
	}
	c.enqueue(websocket.MessageBinary, data)
	return nil
}
