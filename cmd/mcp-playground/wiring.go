package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/syarbeats/mcp-playground/bridge"
	"github.com/syarbeats/mcp-playground/client"
	"github.com/syarbeats/mcp-playground/config"
	"github.com/syarbeats/mcp-playground/taskstore"
	"github.com/syarbeats/mcp-playground/taskstore/memory"
	"github.com/syarbeats/mcp-playground/taskstore/redis"
	"github.com/syarbeats/mcp-playground/taskstore/sqlite"
	"github.com/syarbeats/mcp-playground/transport"
	stdiodial "github.com/syarbeats/mcp-playground/transport/stdio"
	"github.com/syarbeats/mcp-playground/transport/websocket"
)

const maxBackoff = 10 * time.Second

// openStore builds the task store selected by TASK_STORE. The memory store
// starts with the sample tasks.
func openStore(ctx context.Context, cfg *config.Config) (taskstore.Store, error) {
	switch cfg.TaskStore {
	case config.StoreRedis:
		cl := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := cl.Ping(ctx).Err(); err != nil {
			cl.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		s, err := redis.New(redis.Config{Client: cl, KeyPrefix: cfg.RedisKeyPrefix})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return memory.NewSeeded(len(taskstore.SampleDrafts())), nil
	}
}

// dialer picks the transport named by MCP_TRANSPORT.
func dialer(cfg *config.Config, log *slog.Logger) (transport.Dialer, error) {
	if err := cfg.RequireProvider(); err != nil {
		return nil, err
	}
	if cfg.Transport == config.TransportWebsocket {
		return websocket.Dial(cfg.ServerURL), nil
	}
	return stdiodial.Command{
		Path:        cfg.ServerCommand,
		Args:        cfg.Args(),
		GracePeriod: cfg.GracePeriod,
		Logger:      log,
	}.Dialer(), nil
}

func newSession(cfg *config.Config, log *slog.Logger) (*client.Session, error) {
	d, err := dialer(cfg, log)
	if err != nil {
		return nil, err
	}
	ch := transport.NewChannel(d, transport.WithLogger(log))
	return client.New(ch,
		client.WithLogger(log),
		client.WithCallTimeout(cfg.CallTimeout),
		client.WithReconnect(cfg.MaxRetries, client.Backoff{Base: cfg.RetryDelay, Max: maxBackoff, Factor: 2}),
	), nil
}

// connectCaller returns the live session, or the mock when MCP_USE_MOCK is
// set or when the provider cannot be reached and MCP_MOCK_FALLBACK allows it.
// The returned func releases the caller.
func connectCaller(ctx context.Context, a *app) (bridge.Caller, func(), error) {
	mock := func() (bridge.Caller, func(), error) {
		m, err := bridge.NewMockCaller(a.log)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	}
	if a.cfg.UseMock {
		a.log.Info("caller.mock", slog.String("reason", "MCP_USE_MOCK"))
		return mock()
	}

	sess, err := newSession(a.cfg, a.log)
	if err == nil {
		err = sess.Connect(ctx)
		if err != nil {
			sess.Close()
		}
	}
	if err != nil {
		if !a.cfg.MockFallback {
			return nil, nil, fmt.Errorf("connect to provider: %w", err)
		}
		a.log.Warn("caller.mock", slog.String("reason", "provider unavailable"), slog.String("err", err.Error()))
		return mock()
	}
	a.log.Info("caller.live", slog.String("transport", a.cfg.Transport))
	return sess, func() { sess.Close() }, nil
}
