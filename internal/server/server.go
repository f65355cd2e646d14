package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/room"
	"github.com/victornm/livequiz/internal/router"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/session"
	"github.com/victornm/livequiz/internal/telemetry"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	HTTP struct {
		Port         int32
		AllowOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Auth struct {
		Secret string
		Issuer string
	}

	Game struct {
		CodeLength      int
		CodeAttempts    int
		TimeLimit       time.Duration
		MaxPoints       int
		PublishInterval time.Duration
	}

	Storage struct {
		// Driver is either postgres or memory.
		Driver string
		// SeedFile holds the question sets served by the memory driver.
		SeedFile string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Redis struct {
		Leaderboard RedisConfig
		Pubsub      RedisConfig
	}

	WebSocket struct {
		SendBuffer     int
		WriteTimeout   time.Duration
		PongTimeout    time.Duration
		MaxMessageSize int64
	}
}

// DefaultConfig returns the configuration used for keys a config file leaves out.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Auth.Issuer = "livequiz"
	c.Game.CodeLength = session.DefaultCodeLength
	c.Game.CodeAttempts = session.DefaultCodeAttempts
	c.Game.TimeLimit = score.DefaultTimeLimit
	c.Game.MaxPoints = score.DefaultMaxPoints
	c.Game.PublishInterval = leaderboard.DefaultPublishInterval
	c.Storage.Driver = StoragePostgres
	c.Redis.Leaderboard.Prefix = "livequiz:leaderboard"
	c.Redis.Pubsub.Prefix = "livequiz:pubsub"
	c.WebSocket.SendBuffer = 64
	c.WebSocket.WriteTimeout = 10 * time.Second
	c.WebSocket.PongTimeout = 60 * time.Second
	c.WebSocket.MaxMessageSize = 64 << 10
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	stores struct {
		session session.Store
		score   score.Store
		catalog quiz.Catalog
	}

	service struct {
		session     *session.Service
		score       *score.Service
		leaderboard *leaderboard.Service
	}

	router *router.Router
	health *health.Server

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initStores(); err != nil {
		return nil, fmt.Errorf("server: init stores: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if s.c.Storage.Driver == StoragePostgres {
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, rc RedisConfig) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    rc.Addrs,
			Password: rc.Pass,
		})

		if err := telemetry.MonitorRedis(name, r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initStores() error {
	switch s.c.Storage.Driver {
	case StoragePostgres:
		s.stores.session = session.NewPostgresStore(s.infra.postgres)
		s.stores.score = score.NewPostgresStore(s.infra.postgres)
		s.stores.catalog = quiz.NewPostgresCatalog(s.infra.postgres)

	case StorageMemory:
		s.stores.session = session.NewMemoryStore()
		s.stores.score = score.NewMemoryStore()

		if s.c.Storage.SeedFile == "" {
			s.stores.catalog = quiz.NewMemoryCatalog()
			break
		}

		catalog, err := quiz.LoadSeed(s.c.Storage.SeedFile)
		if err != nil {
			return err
		}
		s.stores.catalog = catalog

	default:
		return fmt.Errorf("unknown storage driver %q", s.c.Storage.Driver)
	}

	slog.Info(fmt.Sprintf("server: using %s storage", s.c.Storage.Driver))
	return nil
}

func (s *Server) initService() {
	g := s.c.Game

	s.service.session = session.NewService(session.Config{
		Store:        s.stores.session,
		Catalog:      s.stores.catalog,
		EventBus:     s.eb,
		CodeLength:   g.CodeLength,
		CodeAttempts: g.CodeAttempts,
	})

	s.service.score = score.NewService(score.Config{
		EventBus: s.eb,
		Store:    s.stores.score,
		Sessions: s.service.session,
		Catalog:  s.stores.catalog,
		Rules: score.Rules{
			TimeLimit: g.TimeLimit,
			MaxPoints: g.MaxPoints,
		},
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:        s.eb,
		Sessions:        s.service.session,
		Submissions:     s.service.score,
		Catalog:         s.stores.catalog,
		Redis:           s.infra.redis.leaderboard,
		Prefix:          s.c.Redis.Leaderboard.Prefix,
		PublishInterval: g.PublishInterval,
	})

	s.router = router.New(router.Config{
		Sessions:  s.service.session,
		Rooms:     room.NewTable(),
		TimeLimit: g.TimeLimit,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(cors.New(s.corsConfig()))

	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	pprof.Register(e, "/debug/pprof")

	s.health = health.NewServer()
	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	healthpb.RegisterHealthServer(s.grpc, s.health)

	ws := s.c.WebSocket
	api.New(api.Config{
		HTTP:         e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Score:        s.service.score,
		Leaderboard:  s.service.leaderboard,
		Router:       s.router,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		Auth: api.AuthConfig{
			Secret: s.c.Auth.Secret,
			Issuer: s.c.Auth.Issuer,
		},
		WebSocket: api.WebSocketConfig{
			AllowOrigins:   s.c.HTTP.AllowOrigins,
			SendBuffer:     ws.SendBuffer,
			WriteTimeout:   ws.WriteTimeout,
			PongTimeout:    ws.PongTimeout,
			MaxMessageSize: ws.MaxMessageSize,
		},
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) corsConfig() cors.Config {
	cc := cors.DefaultConfig()
	cc.AllowHeaders = append(cc.AllowHeaders, "Authorization")

	if len(s.c.HTTP.AllowOrigins) == 0 {
		cc.AllowAllOrigins = true
		return cc
	}

	cc.AllowOrigins = s.c.HTTP.AllowOrigins
	cc.AllowCredentials = true
	return cc
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()

	// Websocket connections are hijacked, so Shutdown doesn't wait for them.
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}
	s.grpc.GracefulStop()

	// Trailing leaderboard publishes feed the bus, so they go first.
	s.eb.Stop()
	s.service.leaderboard.Stop()
	s.eb.Stop()

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
