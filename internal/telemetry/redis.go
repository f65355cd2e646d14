package telemetry

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments a client with tracing, metrics and slog hooks. name
// tells the leaderboard and pub/sub clients apart in logs.
func MonitorRedis(name string, r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{name: name})
	return nil
}

// redisLog logs commands at debug level and failures at warn level. redis.Nil is
// a normal reply, not a failure.
type redisLog struct {
	name string
}

func (h redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.WarnContext(ctx, "redis: dial failed", "client", h.name, "addr", addr, "error", err)
			RedisErrors.WithLabelValues(h.name, "dial").Inc()
			return nil, err
		}

		slog.InfoContext(ctx, "redis: dialed", "client", h.name, "network", network, "addr", addr)
		return conn, nil
	}
}

func (h redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmd)
		h.log(ctx, cmd.Name(), start, err)
		return err
	}
}

func (h redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmds)
		h.log(ctx, fmt.Sprintf("pipeline(%d)", len(cmds)), start, err)
		return err
	}
}

func (h redisLog) log(ctx context.Context, cmd string, start time.Time, err error) {
	if err != nil && !stderrors.Is(err, redis.Nil) {
		slog.WarnContext(ctx, "redis: command failed", "client", h.name, "cmd", cmd, "error", err)
		RedisErrors.WithLabelValues(h.name, cmd).Inc()
		return
	}

	slog.DebugContext(ctx, "redis: command", "client", h.name, "cmd", cmd, "took", time.Since(start))
}
