// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.

package internal_store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cachedMessage() *internal_entity.CoachingMessage {
	return &internal_entity.CoachingMessage{
		Identifier:        "m-1",
		UserId:            "u1",
		SessionIdentifier: "session_u1_1",
		Message:           "Mention the case study",
		MessageType:       internal_entity.MessageTypeSuggestion,
		Confidence:        0.9,
		CreatedDate:       time.UnixMilli(1700000000000).UTC(),
	}
}

func TestMessageCachePush(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewMessageCache(client, newTestLogger(t))

	message := cachedMessage()
	payload, err := json.Marshal(message)
	require.NoError(t, err)

	mock.ExpectTxPipeline()
	mock.ExpectLPush("coaching:messages:u1", payload).SetVal(1)
	mock.ExpectLTrim("coaching:messages:u1", 0, 99).SetVal("OK")
	mock.ExpectExpire("coaching:messages:u1", 24*time.Hour).SetVal(true)
	mock.ExpectTxPipelineExec()

	require.NoError(t, cache.Push(context.Background(), message))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageCacheRecent(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewMessageCache(client, newTestLogger(t))

	payload, err := json.Marshal(cachedMessage())
	require.NoError(t, err)

	mock.ExpectLRange("coaching:messages:u1", 0, 49).
		SetVal([]string{string(payload), "{not json"})

	messages, err := cache.Recent(context.Background(), "u1", 50)
	require.NoError(t, err)

	// The broken row is skipped, not fatal.
	require.Len(t, messages, 1)
	assert.Equal(t, "m-1", messages[0].Identifier)
	assert.Equal(t, internal_entity.MessageTypeSuggestion, messages[0].MessageType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageCacheRecentClampsLimit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewMessageCache(client, newTestLogger(t))

	mock.ExpectLRange("coaching:messages:u1", 0, 99).SetVal([]string{})

	messages, err := cache.Recent(context.Background(), "u1", 5000)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}
