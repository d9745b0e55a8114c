// internal/lobby/lobby.go
//
// Package lobby implements the singleton coordinator: the session
// table, the registry of connected clients and the registry of live
// game rooms. Like a game room it is an actor; one goroutine owns all
// state and requests arrive on its inbox.
package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/ygame/internal/game"
	"github.com/jason-s-yu/ygame/internal/models"
	"github.com/jason-s-yu/ygame/internal/rules"
)

const (
	// DefaultSessionExpiry is the sliding lifetime of a login session.
	DefaultSessionExpiry = 30 * 24 * time.Hour

	defaultSweepInterval = 60 * time.Second

	inboxSize = 128

	// clientBuffer sizes each client's broadcast channel.
	clientBuffer = 32
)

// ErrStopped is returned by Lobby calls after Stop.
var ErrStopped = errors.New("lobby is stopped")

// ErrNoSuchGame is returned by GetGame for unknown ids.
var ErrNoSuchGame = errors.New("no such game")

// Event is one lobby broadcast delivered to every connected client.
// Info events carry the room snapshot; each client projects its own
// view of it.
type Event struct {
	Type   string
	Info   game.Info
	GameID uuid.UUID
}

const (
	EventNewGame     = "new_game"
	EventGameChanged = "game_changed"
	EventGameRemoved = "game_removed"
)

// RegisterRequest carries a login. UserUID and SessionUID resume a
// previous session when both are present and still on file.
type RegisterRequest struct {
	ClientID   uuid.UUID
	Name       string
	UserUID    *uuid.UUID
	SessionUID *uuid.UUID
}

// RegisterReply is the definitive identity, echoed back to the client.
type RegisterReply struct {
	User      models.User
	SessionID uuid.UUID
}

// CreateGameRequest opens a room with the requester already seated.
type CreateGameRequest struct {
	ClientID uuid.UUID
	UserID   uuid.UUID
	Username string
	GameOut  chan<- game.Message
}

// CreateGameReply describes the fresh room and the creator's seat.
type CreateGameReply struct {
	Info   game.Info
	Role   rules.UserRole
	Handle *game.Handle
}

type session struct {
	userID  uuid.UUID
	name    string
	expires time.Time
}

type gameEntry struct {
	handle *game.Handle
	info   game.Info
}

type registerCmd struct {
	req   RegisterRequest
	reply chan RegisterReply
}

type connectCmd struct {
	clientID uuid.UUID
	out      chan<- Event
	reply    chan struct{}
}

type disconnectCmd struct {
	clientID uuid.UUID
}

type listCmd struct {
	reply chan []game.Info
}

type createCmd struct {
	req   CreateGameRequest
	reply chan CreateGameReply
}

type getGameCmd struct {
	gameID uuid.UUID
	reply  chan *game.Handle
}

type gameClosedCmd struct {
	gameID uuid.UUID
}

type statusChangedCmd struct {
	info game.Info
}

// Lobby is the coordinator actor. Construct with New, then Start.
type Lobby struct {
	logger *logrus.Logger

	inbox chan any
	quit  chan struct{}

	sessions map[uuid.UUID]session
	clients  map[uuid.UUID]chan<- Event

	// userByClient and clientsByUser mirror each other: which user a
	// connection logged in as, and every live connection of a user.
	userByClient  map[uuid.UUID]uuid.UUID
	clientsByUser map[uuid.UUID]map[uuid.UUID]struct{}

	games map[uuid.UUID]gameEntry

	sessionExpiry time.Duration
	sweepEvery    time.Duration
	gameOpts      []game.Option
}

// Option tweaks the lobby at construction time.
type Option func(*Lobby)

// WithSessionExpiry shortens or lengthens the session window and how
// often expired sessions are swept.
func WithSessionExpiry(expiry, sweepEvery time.Duration) Option {
	return func(l *Lobby) {
		l.sessionExpiry = expiry
		l.sweepEvery = sweepEvery
	}
}

// WithGameOptions forwards options to every room the lobby creates.
func WithGameOptions(opts ...game.Option) Option {
	return func(l *Lobby) { l.gameOpts = opts }
}

// New builds the lobby; call Start to launch its goroutine.
func New(logger *logrus.Logger, opts ...Option) *Lobby {
	l := &Lobby{
		logger:        logger,
		inbox:         make(chan any, inboxSize),
		quit:          make(chan struct{}),
		sessions:      make(map[uuid.UUID]session),
		clients:       make(map[uuid.UUID]chan<- Event),
		userByClient:  make(map[uuid.UUID]uuid.UUID),
		clientsByUser: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		games:         make(map[uuid.UUID]gameEntry),
		sessionExpiry: DefaultSessionExpiry,
		sweepEvery:    defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the actor goroutine. Call at most once.
func (l *Lobby) Start() *Lobby {
	go l.run()
	return l
}

// Stop terminates the actor. Rooms keep running until they expire.
func (l *Lobby) Stop() { close(l.quit) }

// ClientBuffer is the capacity Connect expects of an Event channel.
func ClientBuffer() int { return clientBuffer }

// RegisterUser mints or resumes an identity for a logging-in client
// and records which user the connection belongs to.
func (l *Lobby) RegisterUser(ctx context.Context, req RegisterRequest) (RegisterReply, error) {
	reply := make(chan RegisterReply, 1)
	if err := l.send(ctx, registerCmd{req: req, reply: reply}); err != nil {
		return RegisterReply{}, err
	}
	return recv(ctx, l.quit, reply)
}

// Connect registers a client's broadcast channel.
func (l *Lobby) Connect(ctx context.Context, clientID uuid.UUID, out chan<- Event) error {
	reply := make(chan struct{}, 1)
	if err := l.send(ctx, connectCmd{clientID: clientID, out: out, reply: reply}); err != nil {
		return err
	}
	_, err := recv(ctx, l.quit, reply)
	return err
}

// Disconnect drops a client from the registry. Fire and forget.
func (l *Lobby) Disconnect(clientID uuid.UUID) {
	select {
	case l.inbox <- disconnectCmd{clientID: clientID}:
	case <-l.quit:
	}
}

// GameList snapshots every live room.
func (l *Lobby) GameList(ctx context.Context) ([]game.Info, error) {
	reply := make(chan []game.Info, 1)
	if err := l.send(ctx, listCmd{reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, l.quit, reply)
}

// CreateGame opens a room, seats the requester and announces the room
// to every connected client. The reply is delivered before the
// announcement is enqueued anywhere.
func (l *Lobby) CreateGame(ctx context.Context, req CreateGameRequest) (CreateGameReply, error) {
	reply := make(chan CreateGameReply, 1)
	if err := l.send(ctx, createCmd{req: req, reply: reply}); err != nil {
		return CreateGameReply{}, err
	}
	return recv(ctx, l.quit, reply)
}

// GetGame resolves a room id to its handle.
func (l *Lobby) GetGame(ctx context.Context, gameID uuid.UUID) (*game.Handle, error) {
	reply := make(chan *game.Handle, 1)
	if err := l.send(ctx, getGameCmd{gameID: gameID, reply: reply}); err != nil {
		return nil, err
	}
	h, err := recv(ctx, l.quit, reply)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrNoSuchGame
	}
	return h, nil
}

// GameClosed implements game.Notifier.
func (l *Lobby) GameClosed(gameID uuid.UUID) {
	select {
	case l.inbox <- gameClosedCmd{gameID: gameID}:
	case <-l.quit:
	}
}

// GameStatusChanged implements game.Notifier.
func (l *Lobby) GameStatusChanged(info game.Info) {
	select {
	case l.inbox <- statusChangedCmd{info: info}:
	case <-l.quit:
	}
}

func (l *Lobby) send(ctx context.Context, cmd any) error {
	select {
	case l.inbox <- cmd:
		return nil
	case <-l.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recv[T any](ctx context.Context, quit <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case r := <-reply:
		return r, nil
	case <-quit:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (l *Lobby) run() {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case cmd := <-l.inbox:
			switch c := cmd.(type) {
			case registerCmd:
				c.reply <- l.handleRegister(c.req)
			case connectCmd:
				l.clients[c.clientID] = c.out
				l.logger.Debugf("client %s connected to lobby", c.clientID)
				c.reply <- struct{}{}
			case disconnectCmd:
				l.handleDisconnect(c.clientID)
			case listCmd:
				c.reply <- l.snapshotGames()
			case createCmd:
				reply := l.handleCreate(c.req)
				c.reply <- reply
				// Announce to everyone, the creator included; its
				// direct reply is already delivered.
				l.broadcast(Event{Type: EventNewGame, Info: reply.Info})
			case getGameCmd:
				if entry, ok := l.games[c.gameID]; ok {
					c.reply <- entry.handle
				} else {
					c.reply <- nil
				}
			case gameClosedCmd:
				if _, ok := l.games[c.gameID]; ok {
					delete(l.games, c.gameID)
					l.logger.Infof("game %s removed from lobby", c.gameID)
					l.broadcast(Event{Type: EventGameRemoved, GameID: c.gameID})
				}
			case statusChangedCmd:
				if entry, ok := l.games[c.info.ID]; ok {
					entry.info = c.info
					l.games[c.info.ID] = entry
					l.broadcast(Event{Type: EventGameChanged, Info: c.info})
				}
			}
		case <-ticker.C:
			l.sweepSessions()
		case <-l.quit:
			return
		}
	}
}

// handleDisconnect clears a connection from every index and lets the
// rooms prune it.
func (l *Lobby) handleDisconnect(clientID uuid.UUID) {
	delete(l.clients, clientID)
	if userID, ok := l.userByClient[clientID]; ok {
		delete(l.userByClient, clientID)
		if conns := l.clientsByUser[userID]; conns != nil {
			delete(conns, clientID)
			if len(conns) == 0 {
				delete(l.clientsByUser, userID)
				l.logger.Debugf("user %s has no connections left", userID)
			}
		}
	}
	// Let every room prune the client; rooms it never joined ignore
	// this. Best-effort: the client also tells its own rooms on
	// teardown.
	for _, entry := range l.games {
		entry.handle.TryDisconnect(clientID)
	}
	l.logger.Debugf("client %s left lobby", clientID)
}

// bindClient points a connection at its user, undoing any previous
// binding of the same connection first.
func (l *Lobby) bindClient(clientID, userID uuid.UUID) {
	if prev, ok := l.userByClient[clientID]; ok && prev != userID {
		if conns := l.clientsByUser[prev]; conns != nil {
			delete(conns, clientID)
			if len(conns) == 0 {
				delete(l.clientsByUser, prev)
			}
		}
	}
	l.userByClient[clientID] = userID
	conns := l.clientsByUser[userID]
	if conns == nil {
		conns = make(map[uuid.UUID]struct{})
		l.clientsByUser[userID] = conns
	}
	conns[clientID] = struct{}{}
}

// handleRegister resumes a session when the claimed user and session
// ids both match a row on file, and mints a fresh identity otherwise.
// Either way the session's sliding expiry restarts now.
func (l *Lobby) handleRegister(req RegisterRequest) RegisterReply {
	if req.UserUID != nil && req.SessionUID != nil {
		if row, ok := l.sessions[*req.SessionUID]; ok && row.userID == *req.UserUID {
			l.sessions[*req.SessionUID] = session{
				userID:  row.userID,
				name:    req.Name,
				expires: time.Now().Add(l.sessionExpiry),
			}
			l.bindClient(req.ClientID, row.userID)
			l.logger.Infof("user %s (%s) resumed session", req.Name, row.userID)
			return RegisterReply{
				User:      models.User{ID: row.userID, Username: req.Name},
				SessionID: *req.SessionUID,
			}
		}
	}
	userID := uuid.New()
	sessionID := uuid.New()
	l.sessions[sessionID] = session{
		userID:  userID,
		name:    req.Name,
		expires: time.Now().Add(l.sessionExpiry),
	}
	l.bindClient(req.ClientID, userID)
	l.logger.Infof("user %s (%s) logged in", req.Name, userID)
	return RegisterReply{
		User:      models.User{ID: userID, Username: req.Name},
		SessionID: sessionID,
	}
}

func (l *Lobby) handleCreate(req CreateGameRequest) CreateGameReply {
	g := game.New(l.logger, l, l.gameOpts...)
	join := g.Join(game.JoinRequest{
		UserID:   req.UserID,
		Username: req.Username,
		ClientID: req.ClientID,
		Out:      req.GameOut,
	})
	info := g.Info()
	handle := g.Start()
	l.games[g.ID()] = gameEntry{handle: handle, info: info}
	l.logger.Infof("user %s created game %s (%s)", req.Username, g.ID(), g.Name())
	return CreateGameReply{Info: info, Role: join.Role, Handle: handle}
}

func (l *Lobby) snapshotGames() []game.Info {
	out := make([]game.Info, 0, len(l.games))
	for _, entry := range l.games {
		out = append(out, entry.info)
	}
	return out
}

func (l *Lobby) sweepSessions() {
	now := time.Now()
	for id, row := range l.sessions {
		if now.After(row.expires) {
			l.logger.Debugf("session %s for user %s expired", id, row.userID)
			delete(l.sessions, id)
		}
	}
}

// broadcast delivers an event to every connected client without
// blocking; a full channel drops the event for that client.
func (l *Lobby) broadcast(ev Event) {
	for clientID, out := range l.clients {
		select {
		case out <- ev:
		default:
			l.logger.Warnf("dropping lobby event for client %s: channel full", clientID)
		}
	}
}
