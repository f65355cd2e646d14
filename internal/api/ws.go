package api

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/victornm/livequiz/internal/router"
)

const (
	defaultSendBuffer     = 64
	defaultWriteTimeout   = 10 * time.Second
	defaultPongTimeout    = 60 * time.Second
	defaultMaxMessageSize = 64 << 10
)

var (
	errConnClosed     = stderrors.New("ws: connection closed")
	errSendBufferFull = stderrors.New("ws: send buffer full")
)

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = defaultPongTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	return c
}

func (a *API) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(a.ws.AllowOrigins) == 0 || lo.Contains(a.ws.AllowOrigins, "*") {
		return true
	}

	if lo.Contains(a.ws.AllowOrigins, origin) {
		return true
	}

	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// ServeWS upgrades the request and feeds the connection's frames to the router
// until either side goes away.
func (a *API) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()

	ws, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.InfoContext(ctx, "ws: upgrade failed", "error", err)
		return
	}

	conn := newConn(uuid.NewString(), ws, a.ws)
	slog.InfoContext(ctx, "ws: connected", "conn", conn.id, "remote", ws.RemoteAddr().String())

	a.rt.Register(conn)
	go conn.writeLoop(context.WithoutCancel(ctx))

	conn.readLoop(ctx, func(frame []byte) {
		a.rt.Handle(ctx, conn.id, frame)
	})

	a.rt.Disconnect(ctx, conn.id)
	conn.Close()
	slog.InfoContext(ctx, "ws: disconnected", "conn", conn.id)
}

// conn adapts a websocket to router.Conn. Messages are queued on a bounded
// buffer and written by a single goroutine.
type conn struct {
	id   string
	ws   *websocket.Conn
	cfg  WebSocketConfig
	send chan router.Message

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn, cfg WebSocketConfig) *conn {
	return &conn{
		id:   id,
		ws:   ws,
		cfg:  cfg,
		send: make(chan router.Message, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *conn) ID() string {
	return c.id
}

func (c *conn) Send(m router.Message) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- m:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the writer, which says goodbye to the peer and closes the socket.
func (c *conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *conn) readLoop(ctx context.Context, handle func(frame []byte)) {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.InfoContext(ctx, "ws: read failed", "conn", c.id, "error", err)
			}
			return
		}

		handle(frame)
	}
}

func (c *conn) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case m := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteJSON(m); err != nil {
				slog.InfoContext(ctx, "ws: write failed", "conn", c.id, "event", m.Event, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		}
	}
}
