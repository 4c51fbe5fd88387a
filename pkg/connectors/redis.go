// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"github.com/redis/go-redis/v9"
)

// RedisConnector hands out the shared redis client used for the recent
// coaching-message cache.
type RedisConnector interface {
	Client() *redis.Client
	Close() error
}

type redisConnector struct {
	client *redis.Client
	logger commons.Logger
}

// NewRedisConnector opens and pings the cache connection. As with postgres,
// an unreachable cache is a boot failure rather than a degraded mode.
func NewRedisConnector(cfg *config.AppConfig, logger commons.Logger) RedisConnector {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisConfig.Host, cfg.RedisConfig.Port),
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.Db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatalf("unable to connect to redis: %v", err)
	}

	return &redisConnector{client: client, logger: logger}
}

func (c *redisConnector) Client() *redis.Client {
	return c.client
}

func (c *redisConnector) Close() error {
	return c.client.Close()
}
