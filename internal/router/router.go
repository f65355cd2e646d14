// Package router dispatches events received from live connections. It keeps room
// membership in a room.Table, checks host-only actions and fans messages out to
// the connections of a room.
package router

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/room"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/telemetry"
)

// Conn is a connection the router delivers messages to.
type Conn interface {
	ID() string
	// Send queues a message without blocking. An error means the connection can
	// no longer keep up and must be dropped.
	Send(m Message) error
	Close()
}

type Sessions interface {
	ResolveJoinable(ctx context.Context, code string) (*domain.Session, error)
	Start(ctx context.Context, id int64) (*domain.Session, error)
	End(ctx context.Context, id int64) (*domain.Session, error)
}

type Config struct {
	Sessions  Sessions
	Rooms     *room.Table
	TimeLimit time.Duration
}

type Router struct {
	sessions  Sessions
	rooms     *room.Table
	validate  *validator.Validate
	timeLimit time.Duration

	handlers map[string]handler

	mu      sync.RWMutex
	clients map[string]*client
}

type handler func(ctx context.Context, c *client, data json.RawMessage) error

func New(c Config) *Router {
	r := &Router{
		sessions:  c.Sessions,
		rooms:     c.Rooms,
		validate:  newValidator(),
		timeLimit: c.TimeLimit,
		clients:   make(map[string]*client),
	}

	if r.rooms == nil {
		r.rooms = room.NewTable()
	}
	if r.timeLimit <= 0 {
		r.timeLimit = score.DefaultTimeLimit
	}

	r.handlers = map[string]handler{
		EventJoinLobby:         bind(r, r.joinLobby),
		EventHostJoin:          bind(r, r.hostJoin),
		EventStartGame:         bind(r, r.startGame),
		EventShowQuestion:      bind(r, r.showQuestion),
		EventSubmitAnswer:      bind(r, r.submitAnswer),
		EventUpdateLeaderboard: bind(r, r.updateLeaderboard),
		EventEndGame:           bind(r, r.endGame),
	}

	return r
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind decodes and validates the payload of an event before calling h.
func bind[T any](r *Router, h func(ctx context.Context, c *client, in T) error) handler {
	return func(ctx context.Context, c *client, data json.RawMessage) error {
		var in T
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &in); err != nil {
				return errors.New(errors.CodeInvalidArgument,
					errors.WithMessagef("malformed payload"),
					errors.WithCause(err),
				)
			}
		}

		if err := r.validate.Struct(in); err != nil {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("invalid payload: %s", validationMessage(err)),
				errors.WithCause(err),
			)
		}

		return h(ctx, c, in)
	}
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !stderrors.As(err, &ve) {
		return err.Error()
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// Register makes a connection known to the router. Every registered connection
// must eventually be passed to Disconnect.
func (r *Router) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[conn.ID()]; ok {
		return
	}

	r.clients[conn.ID()] = newClient(conn)
	telemetry.Connections.Inc()
}

// Handle dispatches one inbound frame of a registered connection. Failures are
// reported privately to the sender as an error event.
func (r *Router) Handle(ctx context.Context, connID string, frame []byte) {
	c := r.client(connID)
	if c == nil {
		return
	}

	var in struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &in); err != nil {
		r.fail(ctx, c, "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed message"),
			errors.WithCause(err),
		))
		return
	}

	h, ok := r.handlers[in.Event]
	if !ok {
		r.fail(ctx, c, in.Event, errors.InvalidArgument("unknown event: %q", in.Event))
		return
	}

	if err := r.dispatch(ctx, c, h, in.Data); err != nil {
		r.fail(ctx, c, in.Event, err)
		return
	}

	telemetry.RouterEvents.WithLabelValues(in.Event, "ok").Inc()
}

func (r *Router) dispatch(ctx context.Context, c *client, h handler, data json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Internal(fmt.Errorf("panic: %v, stack: %s", rec, debug.Stack()))
		}
	}()

	return h(ctx, c, data)
}

func (r *Router) fail(ctx context.Context, c *client, event string, err error) {
	e := errors.Convert(err)

	kind := errorKind(e.Code)
	if kind == KindInternal {
		slog.ErrorContext(ctx, "router: handle event failed",
			"conn", c.id,
			"event", event,
			"error", err,
		)
	} else {
		slog.InfoContext(ctx, "router: event rejected",
			"conn", c.id,
			"event", event,
			"error", err,
		)
	}

	if event == "" {
		event = "unknown"
	}
	telemetry.RouterEvents.WithLabelValues(event, kind).Inc()

	msg := e.Message
	if kind == KindInternal {
		msg = fmt.Sprintf("failed to handle %s", event)
	}
	r.send(ctx, c.id, Message{Event: EventError, Data: Error{Message: msg, Kind: kind}})
}

func errorKind(code errors.Code) string {
	switch code {
	case errors.CodeInvalidArgument:
		return KindValidation
	case errors.CodePermissionDenied, errors.CodeUnauthenticated:
		return KindUnauthorized
	case errors.CodeNotFound:
		return KindNotFound
	case errors.CodeFailedPrecondition, errors.CodeAlreadyExists:
		return KindConflict
	default:
		return KindInternal
	}
}

// Disconnect removes a connection from every room it joined or hosted. The
// remaining players of each room are told who left. Calling it again for the same
// connection does nothing.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	c, ok := r.clients[connID]
	delete(r.clients, connID)
	r.mu.Unlock()

	if !ok {
		return
	}

	telemetry.Connections.Dec()
	joined, hosted := c.close()

	for _, code := range joined {
		r.rooms.Update(code, false, func(rm *room.Room) {
			name, ok := rm.Leave(connID)
			if !ok {
				return
			}

			slog.InfoContext(ctx, "router: player left", "conn", connID, "code", code, "player", name)
			r.broadcast(ctx, rm, Message{Event: EventPlayerLeft, Data: PlayerLeft{
				DisplayName:      name,
				RemainingPlayers: rm.Roster(),
				PlayerCount:      rm.Count(),
			}})
		})
	}

	for _, code := range hosted {
		r.rooms.Update(code, false, func(rm *room.Room) {
			if rm.ClearHost(connID) {
				slog.InfoContext(ctx, "router: host left", "conn", connID, "code", code)
			}
		})
	}
}

func (r *Router) client(id string) *client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.clients[id]
}

// broadcast delivers m to every connection of the room. Callers hold the room.
func (r *Router) broadcast(ctx context.Context, rm *room.Room, m Message) {
	for _, id := range rm.Recipients() {
		r.send(ctx, id, m)
	}
}

// send never blocks. A connection that cannot take the message is dropped and
// cleaned up in the background.
func (r *Router) send(ctx context.Context, id string, m Message) {
	c := r.client(id)
	if c == nil {
		return
	}

	if err := c.conn.Send(m); err != nil {
		telemetry.DroppedSends.Inc()
		slog.WarnContext(ctx, "router: send failed, dropping connection", "conn", id, "event", m.Event, "error", err)
		go r.drop(context.WithoutCancel(ctx), c)
	}
}

func (r *Router) drop(ctx context.Context, c *client) {
	c.conn.Close()
	r.Disconnect(ctx, c.id)
}

// client is the router's view of one connection. joined and hosted record the
// rooms to clean up on disconnect.
type client struct {
	id   string
	conn Conn

	mu     sync.Mutex
	closed bool
	joined map[string]struct{}
	hosted map[string]struct{}
}

func newClient(conn Conn) *client {
	return &client{
		id:     conn.ID(),
		conn:   conn,
		joined: make(map[string]struct{}),
		hosted: make(map[string]struct{}),
	}
}

func (c *client) trackJoined(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.joined[code] = struct{}{}
	return true
}

func (c *client) trackHosted(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.hosted[code] = struct{}{}
	return true
}

func (c *client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *client) close() (joined, hosted []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return lo.Keys(c.joined), lo.Keys(c.hosted)
}
