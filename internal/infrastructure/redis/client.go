// Package redis opens the Redis connection backing the redis table store.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

const (
	dialTimeout = 5 * time.Second
	pingTimeout = 5 * time.Second
)

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*goredis.Client, error) {
	if log == nil {
		log = logger.Get()
	}
	log = log.WithFields(logger.Component("redis"))

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: dialTimeout,
	})

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		log.Error("Redis ping failed", logger.Error(err), logger.String("addr", cfg.Addr))
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("Redis connection established", logger.String("addr", cfg.Addr), logger.Int("db", cfg.DB))
	return rdb, nil
}
