// internal/protocol/v1/codec.go
package v1

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Encode marshals a v1 message to its binary frame. Union types must
// be passed by pointer: their codecs hang off the pointer receiver, and
// a by-value union is not addressable for the encoder.
func Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode v1 message: %w", err)
	}
	return data, nil
}

// DecodeLoginMessage parses the single frame accepted in the Login phase.
func DecodeLoginMessage(data []byte) (*LoginMessage, error) {
	var msg LoginMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode login message: %w", err)
	}
	return &msg, nil
}

// DecodeRunningClientMessage parses a binary frame from the Running phase.
func DecodeRunningClientMessage(data []byte) (*RunningClientMessage, error) {
	var msg RunningClientMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode running client message: %w", err)
	}
	return &msg, nil
}

// --- external tagging helpers ---

func encodeUnitVariant(enc *msgpack.Encoder, tag string) error {
	return enc.EncodeString(tag)
}

func encodeTaggedVariant(enc *msgpack.Encoder, tag string, payload any) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(tag); err != nil {
		return err
	}
	return enc.Encode(payload)
}

// decodeVariantTag reads the head of a union value. A bare string is a
// unit variant; a single-key map is a variant whose payload is still
// pending on the decoder.
func decodeVariantTag(dec *msgpack.Decoder) (tag string, unit bool, err error) {
	code, err := dec.PeekCode()
	if err != nil {
		return "", false, err
	}
	if msgpcode.IsString(code) {
		tag, err = dec.DecodeString()
		return tag, true, err
	}
	n, err := dec.DecodeMapLen()
	if err != nil {
		return "", false, err
	}
	if n != 1 {
		return "", false, fmt.Errorf("tagged union wants a single-key map, got %d keys", n)
	}
	tag, err = dec.DecodeString()
	return tag, false, err
}

var _ msgpack.CustomEncoder = (*RunningClientMessage)(nil)
var _ msgpack.CustomDecoder = (*RunningClientMessage)(nil)

func (m *RunningClientMessage) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch {
	case m.Lobby != nil:
		return encodeTaggedVariant(enc, "Lobby", m.Lobby)
	case m.Game != nil:
		return encodeTaggedVariant(enc, "Game", m.Game)
	}
	return fmt.Errorf("empty RunningClientMessage")
}

func (m *RunningClientMessage) DecodeMsgpack(dec *msgpack.Decoder) error {
	tag, unit, err := decodeVariantTag(dec)
	if err != nil {
		return err
	}
	if unit {
		return fmt.Errorf("unexpected unit variant %q in RunningClientMessage", tag)
	}
	switch tag {
	case "Lobby":
		m.Lobby = new(LobbyClientMessage)
		return dec.Decode(m.Lobby)
	case "Game":
		m.Game = new(ClientGameRequest)
		return dec.Decode(m.Game)
	}
	return fmt.Errorf("unknown RunningClientMessage variant %q", tag)
}

var _ msgpack.CustomEncoder = (*LobbyClientMessage)(nil)
var _ msgpack.CustomDecoder = (*LobbyClientMessage)(nil)

func (m *LobbyClientMessage) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch {
	case m.AskGameList:
		return encodeUnitVariant(enc, "AskGameList")
	case m.CreateGame != nil:
		return encodeTaggedVariant(enc, "CreateGame", m.CreateGame)
	case m.JoinGame != nil:
		return encodeTaggedVariant(enc, "JoinGame", m.JoinGame)
	}
	return fmt.Errorf("empty LobbyClientMessage")
}

func (m *LobbyClientMessage) DecodeMsgpack(dec *msgpack.Decoder) error {
	tag, unit, err := decodeVariantTag(dec)
	if err != nil {
		return err
	}
	if unit {
		if tag == "AskGameList" {
			m.AskGameList = true
			return nil
		}
		return fmt.Errorf("unknown LobbyClientMessage variant %q", tag)
	}
	switch tag {
	case "CreateGame":
		m.CreateGame = new(CreateGame)
		return dec.Decode(m.CreateGame)
	case "JoinGame":
		m.JoinGame = new(JoinGame)
		return dec.Decode(m.JoinGame)
	}
	return fmt.Errorf("unknown LobbyClientMessage variant %q", tag)
}

var _ msgpack.CustomEncoder = (*RunningServerMessage)(nil)
var _ msgpack.CustomDecoder = (*RunningServerMessage)(nil)

func (m *RunningServerMessage) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch {
	case m.Lobby != nil:
		return encodeTaggedVariant(enc, "Lobby", m.Lobby)
	case m.Game != nil:
		return encodeTaggedVariant(enc, "Game", m.Game)
	}
	return fmt.Errorf("empty RunningServerMessage")
}

func (m *RunningServerMessage) DecodeMsgpack(dec *msgpack.Decoder) error {
	tag, unit, err := decodeVariantTag(dec)
	if err != nil {
		return err
	}
	if unit {
		return fmt.Errorf("unexpected unit variant %q in RunningServerMessage", tag)
	}
	switch tag {
	case "Lobby":
		m.Lobby = new(LobbyServerMessage)
		return dec.Decode(m.Lobby)
	case "Game":
		m.Game = new(ServerGameEnvelope)
		return dec.Decode(m.Game)
	}
	return fmt.Errorf("unknown RunningServerMessage variant %q", tag)
}

var _ msgpack.CustomEncoder = (*LobbyServerMessage)(nil)
var _ msgpack.CustomDecoder = (*LobbyServerMessage)(nil)

func (m *LobbyServerMessage) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch {
	case m.GameList != nil:
		return encodeTaggedVariant(enc, "GameList", m.GameList)
	case m.GameCreated != nil:
		return encodeTaggedVariant(enc, "GameCreated", m.GameCreated)
	case m.NewGame != nil:
		return encodeTaggedVariant(enc, "NewGame", m.NewGame)
	case m.GameInfoChanged != nil:
		return encodeTaggedVariant(enc, "GameInfoChanged", m.GameInfoChanged)
	case m.GameJoined != nil:
		return encodeTaggedVariant(enc, "GameJoined", m.GameJoined)
	case m.GameRemoved != nil:
		return encodeTaggedVariant(enc, "GameRemoved", m.GameRemoved)
	}
	return fmt.Errorf("empty LobbyServerMessage")
}

func (m *LobbyServerMessage) DecodeMsgpack(dec *msgpack.Decoder) error {
	tag, unit, err := decodeVariantTag(dec)
	if err != nil {
		return err
	}
	if unit {
		return fmt.Errorf("unexpected unit variant %q in LobbyServerMessage", tag)
	}
	switch tag {
	case "GameList":
		m.GameList = new(GameList)
		return dec.Decode(m.GameList)
	case "GameCreated":
		m.GameCreated = new(GameCreated)
		return dec.Decode(m.GameCreated)
	case "NewGame":
		m.NewGame = new(GameOverview)
		return dec.Decode(m.NewGame)
	case "GameInfoChanged":
		m.GameInfoChanged = new(GameOverview)
		return dec.Decode(m.GameInfoChanged)
	case "GameJoined":
		m.GameJoined = new(GameJoined)
		return dec.Decode(m.GameJoined)
	case "GameRemoved":
		m.GameRemoved = new(GameRemoved)
		return dec.Decode(m.GameRemoved)
	}
	return fmt.Errorf("unknown LobbyServerMessage variant %q", tag)
}

var _ msgpack.CustomEncoder = (*GameServerMessage)(nil)
var _ msgpack.CustomDecoder = (*GameServerMessage)(nil)

func (m *GameServerMessage) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch {
	case m.Action != nil:
		return encodeTaggedVariant(enc, "Action", *m.Action)
	case m.ActionResponse != nil:
		return encodeTaggedVariant(enc, "GameActionResponse", m.ActionResponse)
	case m.UserJoin != nil:
		return encodeTaggedVariant(enc, "UserJoin", m.UserJoin)
	case m.UserQuit != nil:
		return encodeTaggedVariant(enc, "UserQuit", m.UserQuit)
	}
	return fmt.Errorf("empty GameServerMessage")
}

func (m *GameServerMessage) DecodeMsgpack(dec *msgpack.Decoder) error {
	tag, unit, err := decodeVariantTag(dec)
	if err != nil {
		return err
	}
	if unit {
		return fmt.Errorf("unexpected unit variant %q in GameServerMessage", tag)
	}
	switch tag {
	case "Action":
		m.Action = new(GameAction)
		return dec.Decode(m.Action)
	case "GameActionResponse":
		m.ActionResponse = new(GameActionResult)
		return dec.Decode(m.ActionResponse)
	case "UserJoin":
		m.UserJoin = new(UserJoin)
		return dec.Decode(m.UserJoin)
	case "UserQuit":
		m.UserQuit = new(UserQuit)
		return dec.Decode(m.UserQuit)
	}
	return fmt.Errorf("unknown GameServerMessage variant %q", tag)
}

var _ msgpack.CustomEncoder = (*GameActionResponse)(nil)
var _ msgpack.CustomDecoder = (*GameActionResponse)(nil)

func (m *GameActionResponse) EncodeMsgpack(enc *msgpack.Encoder) error {
	if m.Illegal != nil {
		return encodeTaggedVariant(enc, "Illegal", m.Illegal)
	}
	if m.Ok {
		return encodeUnitVariant(enc, "Ok")
	}
	return fmt.Errorf("empty GameActionResponse")
}

func (m *GameActionResponse) DecodeMsgpack(dec *msgpack.Decoder) error {
	tag, unit, err := decodeVariantTag(dec)
	if err != nil {
		return err
	}
	if unit {
		if tag == "Ok" {
			m.Ok = true
			return nil
		}
		return fmt.Errorf("unknown GameActionResponse variant %q", tag)
	}
	if tag == "Illegal" {
		m.Illegal = new(IllegalAction)
		return dec.Decode(m.Illegal)
	}
	return fmt.Errorf("unknown GameActionResponse variant %q", tag)
}
