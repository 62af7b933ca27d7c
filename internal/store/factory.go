package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/hometab/internal/connect"
	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/MrSnakeDoc/hometab/internal/redis"
	"github.com/MrSnakeDoc/hometab/internal/store/postgres"
	redisstore "github.com/MrSnakeDoc/hometab/internal/store/redis"
)

// Tuning carries the connector settings that a DSN cannot. Retry applies
// to every networked backend; the rest only to Redis.
type Tuning struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	Retry        connect.Retry
}

// Open builds the RemoteStore selected by the DSN scheme:
// redis:// and rediss://, postgres:// and postgresql://, memory://.
func Open(ctx context.Context, dsn string, tuning Tuning, log logger.Logger) (RemoteStore, error) {
	scheme, err := Scheme(dsn)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "memory", "mem", "inmem":
		log.Warn("using in-memory remote store, documents are lost on restart")
		return NewMemoryRemote(), nil

	case "redis", "rediss":
		parsed, err := goredis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid redis DSN: %w", err)
		}
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:         parsed.Addr,
			User:         parsed.Username,
			Password:     parsed.Password,
			RedisDB:      parsed.DB,
			TLSConfig:    parsed.TLSConfig,
			DialTimeout:  tuning.DialTimeout,
			ReadTimeout:  tuning.ReadTimeout,
			WriteTimeout: tuning.WriteTimeout,
			PoolSize:     tuning.PoolSize,
			Retry:        tuning.Retry,
		}, log)
		if err != nil {
			return nil, err
		}
		return redisstore.NewStore(client), nil

	case "postgres", "postgresql":
		s, err := postgres.NewStore(dsn, log)
		if err != nil {
			return nil, err
		}
		if err := connect.WaitReady(ctx, "postgres", hostOf(dsn), s.Ping, tuning.Retry, log); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported remote store scheme: %s", scheme)
	}
}

// hostOf labels logs without leaking DSN credentials.
func hostOf(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}
