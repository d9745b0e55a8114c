// internal/client/client.go
//
// Package client drives one websocket connection through the protocol
// phases: Handshake (pick a protocol version), Login (mint or resume an
// identity) and Running (lobby and game traffic). A read pump and a
// write pump bracket a single goroutine that owns all per-connection
// state and multiplexes frames, lobby broadcasts, game broadcasts and
// the heartbeat.
package client

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/ygame/internal/game"
	"github.com/jason-s-yu/ygame/internal/lobby"
	"github.com/jason-s-yu/ygame/internal/models"
	"github.com/jason-s-yu/ygame/internal/protocol"
	v1 "github.com/jason-s-yu/ygame/internal/protocol/v1"
)

type phase int

const (
	phaseHandshake phase = iota
	phaseLogin
	phaseRunning
)

func (p phase) String() string {
	switch p {
	case phaseHandshake:
		return "handshake"
	case phaseLogin:
		return "login"
	default:
		return "running"
	}
}

// supportedProtocols are the versions this server can speak.
var supportedProtocols = []uint32{v1.Version}

const (
	// DefaultHeartbeatInterval is how often the server pings.
	DefaultHeartbeatInterval = 5 * time.Second
	// DefaultLivenessWindow is how long a connection may go without any
	// sign of life before it is dropped.
	DefaultLivenessWindow = 10 * time.Second

	defaultRequestTimeout = 5 * time.Second
	writeTimeout          = 10 * time.Second
	sendBuffer            = 32
)

// errPeerClosed stops the serve loop after an orderly client-side
// disconnect.
var errPeerClosed = errors.New("peer closed the connection")

type inFrame struct {
	typ  websocket.MessageType
	data []byte
}

type outFrame struct {
	typ  websocket.MessageType
	data []byte
}

// Client owns one connection. All fields below conn are confined to
// the Serve goroutine.
type Client struct {
	id     uuid.UUID
	conn   *websocket.Conn
	lobby  *lobby.Lobby
	logger *logrus.Entry

	send        chan outFrame
	recv        chan inFrame
	beats       chan struct{}
	lobbyEvents chan lobby.Event
	gameMsgs    chan game.Message

	phase        phase
	protoVersion uint32
	user         *models.User
	sessionID    uuid.UUID
	games        map[uuid.UUID]*game.Handle

	heartbeatEvery time.Duration
	livenessWindow time.Duration
	requestTimeout time.Duration
}

// Option tweaks a client at construction time.
type Option func(*Client)

// WithHeartbeat overrides the ping interval and the liveness window.
func WithHeartbeat(interval, window time.Duration) Option {
	return func(c *Client) {
		c.heartbeatEvery = interval
		c.livenessWindow = window
	}
}

// WithRequestTimeout bounds lobby and game round trips.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// New wraps an accepted connection. Call Serve to run it.
func New(conn *websocket.Conn, lob *lobby.Lobby, logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		id:             uuid.New(),
		conn:           conn,
		lobby:          lob,
		send:           make(chan outFrame, sendBuffer),
		recv:           make(chan inFrame, sendBuffer),
		beats:          make(chan struct{}, 1),
		lobbyEvents:    make(chan lobby.Event, lobby.ClientBuffer()),
		gameMsgs:       make(chan game.Message, sendBuffer),
		phase:          phaseHandshake,
		games:          make(map[uuid.UUID]*game.Handle),
		heartbeatEvery: DefaultHeartbeatInterval,
		livenessWindow: DefaultLivenessWindow,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.WithFields(logrus.Fields{"client": c.id})
	return c
}

// ID returns the connection id.
func (c *Client) ID() uuid.UUID { return c.id }

// Serve runs the connection until the peer leaves, the heartbeat
// fails or ctx is canceled. It always cleans up lobby and game
// registrations before returning.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.teardown()

	go c.readPump(ctx)
	go c.writePump(ctx, cancel)
	go c.heartbeat(ctx)

	c.logger.Info("client connected")

	lastBeat := time.Now()
	liveness := time.NewTicker(c.livenessWindow)
	defer liveness.Stop()

	for {
		select {
		case frame, ok := <-c.recv:
			if !ok {
				c.logger.Debug("read pump closed")
				return
			}
			// Any inbound frame is evidence of life.
			lastBeat = time.Now()
			if err := c.handleFrame(ctx, frame); err != nil {
				if errors.Is(err, errPeerClosed) {
					return
				}
				c.sendError(err)
			}
		case <-c.beats:
			lastBeat = time.Now()
		case ev := <-c.lobbyEvents:
			if c.phase == phaseRunning {
				if err := c.handleLobbyEvent(ev); err != nil {
					c.sendError(err)
				}
			}
		case msg := <-c.gameMsgs:
			if c.phase == phaseRunning {
				if err := c.handleGameMessage(msg); err != nil {
					c.sendError(err)
				}
			}
		case <-liveness.C:
			if time.Since(lastBeat) > c.livenessWindow {
				c.logger.Warn("no heartbeat, dropping connection")
				c.enqueue(websocket.MessageText, protocol.DisconnectFromServer.Encode())
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) teardown() {
	c.lobby.Disconnect(c.id)
	for _, h := range c.games {
		h.Disconnect(c.id)
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
	c.logger.Info("client disconnected")
}

func (c *Client) readPump(ctx context.Context) {
	defer close(c.recv)
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		select {
		case c.recv <- inFrame{typ: typ, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case f := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, f.typ, f.data)
			wcancel()
			if err != nil {
				c.logger.WithError(err).Debug("write failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat pings on a fixed interval; each answered ping counts as a
// beat. Text ping/pong tokens count too, handled in handleText.
func (c *Client) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.livenessWindow)
			err := c.conn.Ping(pctx)
			cancel()
			if err == nil {
				c.beat()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) beat() {
	select {
	case c.beats <- struct{}{}:
	default:
	}
}

// enqueue hands a frame to the write pump without blocking the serve
// loop; a full queue drops the frame.
func (c *Client) enqueue(typ websocket.MessageType, data []byte) {
	select {
	case c.send <- outFrame{typ: typ, data: data}:
	default:
		c.logger.Warn("send queue full, dropping frame")
	}
}

func (c *Client) handleFrame(ctx context.Context, frame inFrame) error {
	switch frame.typ {
	case websocket.MessageText:
		return c.handleText(frame.data)
	case websocket.MessageBinary:
		return c.handleBinary(ctx, frame.data)
	}
	return protocol.NewProtocolError(protocol.CodeUnexpectedOther,
		"unsupported frame type", nil)
}

var (
	pingToken = []byte("ping")
	pongToken = []byte("pong")
)

func (c *Client) handleText(data []byte) error {
	// Liveness tokens work in every phase.
	if bytes.Equal(data, pingToken) {
		c.beat()
		c.enqueue(websocket.MessageText, pongToken)
		return nil
	}
	if bytes.Equal(data, pongToken) {
		c.beat()
		return nil
	}
	if dm, ok := protocol.ParseDisconnectMessage(data); ok {
		c.logger.Infof("peer disconnect: %s", dm)
		return errPeerClosed
	}
	if c.phase == phaseHandshake {
		return c.handleHello(data)
	}
	return protocol.NewProtocolError(protocol.CodeUnexpectedText,
		"unexpected text frame in phase "+c.phase.String(), nil)
}

func (c *Client) handleBinary(ctx context.Context, data []byte) error {
	switch c.phase {
	case phaseHandshake:
		return protocol.NewProtocolError(protocol.CodeUnexpectedBinary,
			"binary frame before handshake", nil)
	case phaseLogin:
		return c.handleLogin(ctx, data)
	default:
		return c.handleRunning(ctx, data)
	}
}

func (c *Client) handleHello(data []byte) error {
	hello, err := protocol.ParseHelloMessage(data)
	if err != nil {
		return protocol.NewProtocolError(protocol.CodeBadHandshake,
			"malformed hello message", err)
	}
	// An empty offer is a protocol violation; a non-empty offer the
	// server cannot serve gets the Failure response and the peer may
	// hello again from the same connection.
	if len(hello.KnownProtocols) == 0 {
		return protocol.NewProtocolError(protocol.CodeNoProtocolVersion,
			"no protocol versions offered", nil)
	}
	version, ok := chooseProtocol(hello.KnownProtocols)
	if !ok {
		c.logger.Warnf("no common protocol version in %v", hello.KnownProtocols)
		out, err := protocol.HelloResponse{
			Failure: &protocol.HelloFailure{ShouldReload: true},
		}.Encode()
		if err != nil {
			return protocol.NewServerError(protocol.CodeSerialization,
				"encode hello response", err)
		}
		c.enqueue(websocket.MessageText, out)
		return nil
	}
	out, err := protocol.HelloResponse{
		Success: &protocol.HelloSuccess{ProtocolVersion: version},
	}.Encode()
	if err != nil {
		return protocol.NewServerError(protocol.CodeSerialization,
			"encode hello response", err)
	}
	c.protoVersion = version
	c.phase = phaseLogin
	c.logger.Debugf("handshake complete, protocol %d", version)
	c.enqueue(websocket.MessageText, out)
	return nil
}

// chooseProtocol picks the highest version both sides know.
func chooseProtocol(known []uint32) (uint32, bool) {
	best := uint32(0)
	found := false
	for _, k := range known {
		for _, s := range supportedProtocols {
			if k == s && k > best {
				best = k
				found = true
			}
		}
	}
	return best, found
}

func (c *Client) handleLogin(ctx context.Context, data []byte) error {
	switch c.protoVersion {
	case v1.Version:
		return c.handleLoginV1(ctx, data)
	}
	return protocol.NewImplError("login for unknown protocol version", nil)
}

func (c *Client) handleRunning(ctx context.Context, data []byte) error {
	switch c.protoVersion {
	case v1.Version:
		return c.handleRunningV1(ctx, data)
	}
	return protocol.NewImplError("running phase for unknown protocol version", nil)
}

// sendError reports a failure to the peer. A protocol-class error also
// resets the connection back to the handshake phase.
func (c *Client) sendError(err error) {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		perr = protocol.NewServerError(protocol.CodeServerError,
			"internal error", err)
	}
	c.logger.WithError(err).Warnf("client error in phase %s", c.phase)
	out, encErr := perr.Message().Encode()
	if encErr != nil {
		c.logger.WithError(encErr).Error("encode error message")
		return
	}
	c.enqueue(websocket.MessageText, out)
	if perr.Kind == protocol.KindProtocol {
		c.reset()
	}
}

// reset drops the connection back to the handshake phase: protocol
// version, identity and game subscriptions are all forgotten.
func (c *Client) reset() {
	for _, h := range c.games {
		h.Disconnect(c.id)
	}
	c.games = make(map[uuid.UUID]*game.Handle)
	c.user = nil
	c.protoVersion = 0
	c.phase = phaseHandshake
}
