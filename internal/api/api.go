package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/router"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/session"
)

type Config struct {
	HTTP        *gin.Engine
	EventBus    *event.Bus
	Session     *session.Service
	Score       *score.Service
	Leaderboard *leaderboard.Service
	Router      *router.Router

	Redis        Redis
	PubsubPrefix string

	Auth      AuthConfig
	WebSocket WebSocketConfig
}

type AuthConfig struct {
	// Secret verifies HS256 host tokens.
	Secret string
	// Issuer, when set, must match the iss claim.
	Issuer string
}

type WebSocketConfig struct {
	AllowOrigins   []string
	SendBuffer     int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qss *session.Service
	ss  *score.Service
	ls  *leaderboard.Service
	rt  *router.Router

	redis  Redis
	prefix string

	auth     AuthConfig
	ws       WebSocketConfig
	upgrader websocket.Upgrader
}

func New(c Config) *API {
	a := &API{
		qss:    c.Session,
		ss:     c.Score,
		ls:     c.Leaderboard,
		rt:     c.Router,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
		auth:   c.Auth,
		ws:     c.WebSocket.withDefaults(),
	}

	a.upgrader = websocket.Upgrader{
		CheckOrigin: a.checkOrigin,
	}

	// HTTP APIs
	g := c.HTTP.Group("/api/games")
	g.POST("", a.requireHost, a.CreateGame)
	g.GET("/:code", a.GetGame)
	g.POST("/:code/start", a.requireHost, a.StartGame)
	g.POST("/:code/next", a.requireHost, a.NextQuestion)
	g.POST("/:code/answers", a.SubmitAnswer)
	g.GET("/:code/leaderboard", a.GetLeaderboard)
	g.GET("/:code/questions/:qid/results", a.requireHost, a.GetQuestionResults)
	g.POST("/:code/end", a.requireHost, a.EndGame)

	c.HTTP.GET("/ws", a.ServeWS)

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
	}

	return a
}

type errorResponse struct {
	Error *errors.Error `json:"error"`
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), errorResponse{Error: e})
}

func invalidRequest(err error) error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("invalid request: %v", err),
		errors.WithCause(err),
	)
}
