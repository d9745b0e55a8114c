// internal/protocol/errors.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// Stable error code registry. Codes are grouped by hundreds per error
// class and must never be renumbered; new codes may be appended.
const (
	CodeProtocolError     uint32 = 100
	CodeNoProtocolVersion uint32 = 101
	CodeUnexpectedText    uint32 = 102
	CodeUnexpectedBinary  uint32 = 103
	CodeUnexpectedOther   uint32 = 104
	CodeBadHandshake      uint32 = 105
	CodeInvalidMessage    uint32 = 106
	CodeNeedLogin         uint32 = 107
	CodeNeedHandshake     uint32 = 108
	CodeInvalidGameID     uint32 = 109

	CodeServerError   uint32 = 200
	CodeUnimplemented uint32 = 201
	CodeSerialization uint32 = 202
	CodeMailbox       uint32 = 203

	CodeLobbyError        uint32 = 300
	CodeGameAlreadyJoined uint32 = 301
	CodeGameDoesntExist   uint32 = 302
	CodeGameNotJoined     uint32 = 303

	CodeGameError   uint32 = 400
	CodeIllegalMove uint32 = 401
	CodeNotYourTurn uint32 = 402
)

// ErrorMessage is the JSON frame surfaced to the peer for any failure.
// The three hints tell the browser client how to recover.
type ErrorMessage struct {
	ErrorCode        *uint32 `json:"error_code"`
	ErrorDescription string  `json:"error_description"`
	ShouldReload     bool    `json:"should_reload"`
	ShouldReconnect  bool    `json:"should_reconnect"`
	ShouldHandshake  bool    `json:"should_handshake"`
}

// Encode renders the message as a JSON text frame.
func (m ErrorMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Kind classifies a failure. Protocol failures additionally reset the
// offending connection back to the handshake phase.
type Kind int

const (
	KindProtocol Kind = iota
	KindLobby
	KindGame
	KindServer
	KindImpl
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol error"
	case KindLobby:
		return "lobby error"
	case KindGame:
		return "game error"
	case KindImpl:
		return "server implementation error"
	default:
		return "server error"
	}
}

// defaultCode is used when an Error was built without an explicit code.
func (k Kind) defaultCode() uint32 {
	switch k {
	case KindProtocol:
		return CodeProtocolError
	case KindLobby:
		return CodeLobbyError
	case KindGame:
		return CodeGameError
	default:
		return CodeServerError
	}
}

// Error is the typed failure that flows through request-handling paths
// until it reaches the client's error sink.
type Error struct {
	Kind        Kind
	Code        uint32
	Description string
	Err         error
}

func (e *Error) Error() string {
	code := e.Code
	if code == 0 {
		code = e.Kind.defaultCode()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %d: %s: %v", e.Kind, code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s %d: %s", e.Kind, code, e.Description)
}

func (e *Error) Unwrap() error { return e.Err }

// Message renders the error as the wire frame sent to the client.
func (e *Error) Message() ErrorMessage {
	code := e.Code
	if code == 0 {
		code = e.Kind.defaultCode()
	}
	return ErrorMessage{
		ErrorCode:        &code,
		ErrorDescription: e.Description,
		ShouldHandshake:  e.Kind == KindProtocol,
	}
}

func NewProtocolError(code uint32, description string, cause error) *Error {
	return &Error{Kind: KindProtocol, Code: code, Description: description, Err: cause}
}

func NewLobbyError(code uint32, description string, cause error) *Error {
	return &Error{Kind: KindLobby, Code: code, Description: description, Err: cause}
}

func NewGameError(code uint32, description string, cause error) *Error {
	return &Error{Kind: KindGame, Code: code, Description: description, Err: cause}
}

func NewServerError(code uint32, description string, cause error) *Error {
	return &Error{Kind: KindServer, Code: code, Description: description, Err: cause}
}

func NewImplError(description string, cause error) *Error {
	return &Error{Kind: KindImpl, Code: CodeUnimplemented, Description: description, Err: cause}
}
