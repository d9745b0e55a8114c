// internal/game/game.go
//
// Package game implements a single game room as an actor: one goroutine
// owns all room state and serializes joins, actions and disconnects
// arriving on its inbox. Fan-out to subscribed connections is
// best-effort; a slow connection drops messages rather than stalling
// the room.
package game

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/ygame/internal/rules"
)

const (
	// DefaultExpiry is how long a room survives without any join or
	// accepted action before it is reaped.
	DefaultExpiry = 30 * 24 * time.Hour

	defaultExpiryCheckInterval = 60 * time.Second

	inboxSize = 64
)

// ErrClosed is returned by Handle calls once the room goroutine exited.
var ErrClosed = errors.New("game is closed")

// Status summarizes the room lifecycle for lobby listings.
type Status int

const (
	// StatusCreated: at least one seat is still empty.
	StatusCreated Status = iota
	// StatusStarted: both seats are taken and play has begun.
	StatusStarted
	// StatusFinished: a Finished action was accepted.
	StatusFinished
)

// Info is the lobby-facing snapshot of a room.
type Info struct {
	ID        uuid.UUID
	Name      string
	Status    Status
	Seat1     *uuid.UUID
	Seat2     *uuid.UUID
	Seat1Name *string
	Seat2Name *string
}

// Notifier receives lifecycle announcements from a room. The lobby
// implements it; calls arrive on the room's goroutine and must not
// block for long.
type Notifier interface {
	GameClosed(gameID uuid.UUID)
	GameStatusChanged(info Info)
}

// Event is one broadcast from a room to its subscribers.
type Event struct {
	Type     string
	Action   rules.Action
	UserID   uuid.UUID
	Username string
	Role     rules.UserRole
}

const (
	EventAction   = "action"
	EventUserJoin = "user_join"
	EventUserQuit = "user_quit"
)

// Message is an Event stamped with its room of origin, so one channel
// can subscribe to several rooms.
type Message struct {
	GameID uuid.UUID
	Event  Event
}

// JoinRequest subscribes one connection of one user to the room.
type JoinRequest struct {
	UserID   uuid.UUID
	Username string
	ClientID uuid.UUID
	Out      chan<- Message
}

// JoinReply carries everything the new subscriber needs to render the
// room: its assigned role and the full action log so far.
type JoinReply struct {
	GameName      string
	Role          rules.UserRole
	Finished      bool
	Seat1Username *string
	Seat2Username *string
	Moves         []rules.Action
}

// ActionRequest submits one action on behalf of a user.
type ActionRequest struct {
	UserID uuid.UUID
	Action rules.Action
}

// ActionReply is the verdict; Reason is set only when Ok is false.
type ActionReply struct {
	Ok     bool
	Reason uint32
}

type joinCmd struct {
	req   JoinRequest
	reply chan JoinReply
}

type actionCmd struct {
	req   ActionRequest
	reply chan ActionReply
}

type disconnectCmd struct {
	clientID uuid.UUID
}

// Game is the room actor. All fields are owned by the run goroutine
// once Start is called.
type Game struct {
	id     uuid.UUID
	name   string
	logger *logrus.Logger
	notify Notifier

	inbox chan any
	done  chan struct{}

	seat1User *uuid.UUID
	seat2User *uuid.UUID
	seat1Name *string
	seat2Name *string

	// subscribers maps connection id to its outbound channel; users
	// tracks which connections belong to which user so UserQuit fires
	// only when the last one goes.
	subscribers map[uuid.UUID]chan<- Message
	users       map[uuid.UUID]map[uuid.UUID]struct{}

	moves    []rules.Action
	inited   bool
	finished bool

	deadline   time.Time
	expiry     time.Duration
	checkEvery time.Duration

	validate rules.Validator
	pickSeat func(empty []rules.UserRole) rules.UserRole
}

// Option tweaks a room at construction time.
type Option func(*Game)

// WithValidator replaces the action validator.
func WithValidator(v rules.Validator) Option {
	return func(g *Game) { g.validate = v }
}

// WithSeatPicker replaces the random choice among empty seats.
func WithSeatPicker(pick func(empty []rules.UserRole) rules.UserRole) Option {
	return func(g *Game) { g.pickSeat = pick }
}

// WithExpiry shortens or lengthens the inactivity window and how often
// it is checked.
func WithExpiry(expiry, checkEvery time.Duration) Option {
	return func(g *Game) {
		g.expiry = expiry
		g.checkEvery = checkEvery
	}
}

// WithName overrides the generated room name.
func WithName(name string) Option {
	return func(g *Game) { g.name = name }
}

// New builds a room. The id and name are assigned here; call Start to
// spin up the actor goroutine.
func New(logger *logrus.Logger, notify Notifier, opts ...Option) *Game {
	g := &Game{
		id:          uuid.New(),
		name:        GenerateName(),
		logger:      logger,
		notify:      notify,
		inbox:       make(chan any, inboxSize),
		done:        make(chan struct{}),
		subscribers: make(map[uuid.UUID]chan<- Message),
		users:       make(map[uuid.UUID]map[uuid.UUID]struct{}),
		expiry:      DefaultExpiry,
		checkEvery:  defaultExpiryCheckInterval,
		validate:    rules.DefaultValidator,
		pickSeat: func(empty []rules.UserRole) rules.UserRole {
			return empty[rand.IntN(len(empty))]
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.deadline = time.Now().Add(g.expiry)
	return g
}

// ID returns the room id.
func (g *Game) ID() uuid.UUID { return g.id }

// Name returns the room's display name.
func (g *Game) Name() string { return g.name }

// Info snapshots the room for lobby listings. Only safe before Start;
// afterwards the lobby relies on GameStatusChanged notifications.
func (g *Game) Info() Info { return g.info() }

// Join seats a user directly, bypassing the inbox. Only safe before
// Start; the lobby uses it to seat the creator of a fresh room.
func (g *Game) Join(req JoinRequest) JoinReply {
	reply := g.handleJoin(req)
	g.maybeInit()
	return reply
}

// Handle is the concurrency-safe face of a started room.
type Handle struct {
	id    uuid.UUID
	inbox chan<- any
	done  <-chan struct{}
}

// Start launches the actor goroutine and returns its handle. Call at
// most once.
func (g *Game) Start() *Handle {
	go g.run()
	return &Handle{id: g.id, inbox: g.inbox, done: g.done}
}

// ID returns the room id.
func (h *Handle) ID() uuid.UUID { return h.id }

// Join subscribes a connection and seats its user.
func (h *Handle) Join(ctx context.Context, req JoinRequest) (JoinReply, error) {
	reply := make(chan JoinReply, 1)
	select {
	case h.inbox <- joinCmd{req: req, reply: reply}:
	case <-h.done:
		return JoinReply{}, ErrClosed
	case <-ctx.Done():
		return JoinReply{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r, nil
	case <-h.done:
		return JoinReply{}, ErrClosed
	case <-ctx.Done():
		return JoinReply{}, ctx.Err()
	}
}

// Act submits an action and waits for the verdict.
func (h *Handle) Act(ctx context.Context, req ActionRequest) (ActionReply, error) {
	reply := make(chan ActionReply, 1)
	select {
	case h.inbox <- actionCmd{req: req, reply: reply}:
	case <-h.done:
		return ActionReply{}, ErrClosed
	case <-ctx.Done():
		return ActionReply{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r, nil
	case <-h.done:
		return ActionReply{}, ErrClosed
	case <-ctx.Done():
		return ActionReply{}, ctx.Err()
	}
}

// Disconnect unsubscribes a connection. Fire and forget; a room that
// already closed doesn't care.
func (h *Handle) Disconnect(clientID uuid.UUID) {
	select {
	case h.inbox <- disconnectCmd{clientID: clientID}:
	case <-h.done:
	}
}

// TryDisconnect is Disconnect without blocking: if the room's inbox is
// full the message is dropped. For callers that must never stall on a
// room and have another path to the same cleanup.
func (h *Handle) TryDisconnect(clientID uuid.UUID) {
	select {
	case h.inbox <- disconnectCmd{clientID: clientID}:
	default:
	}
}

// Done is closed when the room goroutine exits.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (g *Game) run() {
	ticker := time.NewTicker(g.checkEvery)
	defer ticker.Stop()
	for {
		select {
		case cmd := <-g.inbox:
			switch c := cmd.(type) {
			case joinCmd:
				reply := g.handleJoin(c.req)
				c.reply <- reply
				g.broadcastExcept(c.req.ClientID, Event{
					Type:     EventUserJoin,
					UserID:   c.req.UserID,
					Username: c.req.Username,
					Role:     reply.Role,
				})
				g.maybeInit()
			case actionCmd:
				g.handleAction(c)
			case disconnectCmd:
				g.handleDisconnect(c.clientID)
			}
		case <-ticker.C:
			if time.Now().After(g.deadline) {
				g.logger.Infof("game %s (%s) idle past deadline, closing", g.id, g.name)
				close(g.done)
				g.notify.GameClosed(g.id)
				return
			}
		}
	}
}

func (g *Game) handleJoin(req JoinRequest) JoinReply {
	role := g.chooseSeat(req.UserID)
	uid := req.UserID
	name := req.Username
	switch role {
	case rules.RoleSeat1:
		g.seat1User = &uid
		g.seat1Name = &name
	case rules.RoleSeat2:
		g.seat2User = &uid
		g.seat2Name = &name
	}
	set, ok := g.users[req.UserID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		g.users[req.UserID] = set
	}
	set[req.ClientID] = struct{}{}
	if req.Out != nil {
		g.subscribers[req.ClientID] = req.Out
	}
	g.deadline = time.Now().Add(g.expiry)
	g.logger.Debugf("client %s joined game %s as %s", req.ClientID, g.name, role)
	return JoinReply{
		GameName:      g.name,
		Role:          role,
		Finished:      g.finished,
		Seat1Username: g.seat1Name,
		Seat2Username: g.seat2Name,
		Moves:         append([]rules.Action(nil), g.moves...),
	}
}

// chooseSeat is idempotent for already-seated users and picks randomly
// among the empty seats otherwise.
func (g *Game) chooseSeat(userID uuid.UUID) rules.UserRole {
	if g.seat1User != nil && *g.seat1User == userID {
		return rules.RoleSeat1
	}
	if g.seat2User != nil && *g.seat2User == userID {
		return rules.RoleSeat2
	}
	var empty []rules.UserRole
	if g.seat1User == nil {
		empty = append(empty, rules.RoleSeat1)
	}
	if g.seat2User == nil {
		empty = append(empty, rules.RoleSeat2)
	}
	if len(empty) == 0 {
		return rules.RoleObserver
	}
	return g.pickSeat(empty)
}

// maybeInit appends the Init action once both seats fill.
func (g *Game) maybeInit() {
	if g.inited || g.seat1User == nil || g.seat2User == nil {
		return
	}
	g.inited = true
	g.moves = append(g.moves, rules.ActionInit)
	g.logger.Infof("game %s (%s) started", g.id, g.name)
	g.broadcast(Event{Type: EventAction, Action: rules.ActionInit})
	if g.notify != nil {
		g.notify.GameStatusChanged(g.info())
	}
}

func (g *Game) handleAction(c actionCmd) {
	ok, reason := g.validate(g.moves, c.req.Action)
	if !ok {
		c.reply <- ActionReply{Ok: false, Reason: reason}
		return
	}
	g.moves = append(g.moves, c.req.Action)
	g.deadline = time.Now().Add(g.expiry)
	justFinished := false
	if c.req.Action == rules.ActionFinished && !g.finished {
		g.finished = true
		justFinished = true
	}
	c.reply <- ActionReply{Ok: true}
	g.broadcast(Event{Type: EventAction, Action: c.req.Action, UserID: c.req.UserID})
	if justFinished {
		g.logger.Infof("game %s (%s) finished", g.id, g.name)
		if g.notify != nil {
			g.notify.GameStatusChanged(g.info())
		}
	}
}

func (g *Game) handleDisconnect(clientID uuid.UUID) {
	delete(g.subscribers, clientID)
	for userID, set := range g.users {
		if _, ok := set[clientID]; !ok {
			continue
		}
		delete(set, clientID)
		if len(set) == 0 {
			// Seats stay assigned: the user may resume later.
			delete(g.users, userID)
			g.broadcast(Event{
				Type:   EventUserQuit,
				UserID: userID,
				Role:   g.roleOf(userID),
			})
		}
		return
	}
}

func (g *Game) roleOf(userID uuid.UUID) rules.UserRole {
	if g.seat1User != nil && *g.seat1User == userID {
		return rules.RoleSeat1
	}
	if g.seat2User != nil && *g.seat2User == userID {
		return rules.RoleSeat2
	}
	return rules.RoleObserver
}

func (g *Game) info() Info {
	status := StatusCreated
	if g.inited {
		status = StatusStarted
	}
	if g.finished {
		status = StatusFinished
	}
	return Info{
		ID:        g.id,
		Name:      g.name,
		Status:    status,
		Seat1:     g.seat1User,
		Seat2:     g.seat2User,
		Seat1Name: g.seat1Name,
		Seat2Name: g.seat2Name,
	}
}

// broadcast delivers an event to every subscriber without blocking; a
// full channel drops the event for that subscriber.
func (g *Game) broadcast(ev Event) {
	g.broadcastExcept(uuid.Nil, ev)
}

func (g *Game) broadcastExcept(skip uuid.UUID, ev Event) {
	msg := Message{GameID: g.id, Event: ev}
	for clientID, out := range g.subscribers {
		if clientID == skip {
			continue
		}
		select {
		case out <- msg:
		default:
			g.logger.Warnf("dropping game message for client %s: channel full", clientID)
		}
	}
}
