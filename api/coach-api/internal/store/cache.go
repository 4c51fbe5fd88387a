// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.

package internal_store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	"github.com/coachlyai/pkg/commons"
	"github.com/redis/go-redis/v9"
)

const (
	// messageCacheDepth bounds the per-user list; the UI panel never shows
	// more than this.
	messageCacheDepth = 100
	messageCacheTTL   = 24 * time.Hour
)

// MessageCache keeps the newest coaching messages per user in redis so the
// control API can answer the UI without a database round-trip.
type MessageCache interface {
	Push(ctx context.Context, message *internal_entity.CoachingMessage) error
	Recent(ctx context.Context, userID string, limit int) ([]*internal_entity.CoachingMessage, error)
}

type redisMessageCache struct {
	client *redis.Client
	logger commons.Logger
}

// NewMessageCache wraps a redis client in the cache contract.
func NewMessageCache(client *redis.Client, logger commons.Logger) MessageCache {
	return &redisMessageCache{client: client, logger: logger}
}

func messageKey(userID string) string {
	return fmt.Sprintf("coaching:messages:%s", userID)
}

// Push prepends the message and trims the list to its bounded depth.
func (c *redisMessageCache) Push(ctx context.Context, message *internal_entity.CoachingMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode coaching message: %w", err)
	}

	key := messageKey(message.UserId)
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, messageCacheDepth-1)
	pipe.Expire(ctx, key, messageCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache coaching message for %s: %w", message.UserId, err)
	}
	return nil
}

// Recent returns up to limit messages, newest first.
func (c *redisMessageCache) Recent(ctx context.Context, userID string, limit int) ([]*internal_entity.CoachingMessage, error) {
	if limit <= 0 || limit > messageCacheDepth {
		limit = messageCacheDepth
	}
	rows, err := c.client.LRange(ctx, messageKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached messages for %s: %w", userID, err)
	}

	messages := make([]*internal_entity.CoachingMessage, 0, len(rows))
	for _, row := range rows {
		var message internal_entity.CoachingMessage
		if err := json.Unmarshal([]byte(row), &message); err != nil {
			c.logger.Warnf("dropping undecodable cached message for %s: %v", userID, err)
			continue
		}
		messages = append(messages, &message)
	}
	return messages, nil
}
