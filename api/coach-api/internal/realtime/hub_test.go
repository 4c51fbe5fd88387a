// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_realtime

import (
	"testing"

	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	"github.com/coachlyai/pkg/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(commons.Path(t.TempDir()))
	require.NoError(t, err)
	return logger
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub(newTestLogger(t))

	first, cancelFirst := hub.Subscribe()
	second, cancelSecond := hub.Subscribe()
	defer cancelFirst()
	defer cancelSecond()

	message := &internal_entity.CoachingMessage{MessageType: internal_entity.MessageTypePacing, Message: "Slow down"}
	hub.Broadcast(message)

	assert.Equal(t, message, <-first)
	assert.Equal(t, message, <-second)
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(newTestLogger(t))

	messages, cancel := hub.Subscribe()
	cancel()
	cancel() // safe to call twice

	_, open := <-messages
	assert.False(t, open)

	// Broadcast after cancel must not panic on the removed subscriber.
	hub.Broadcast(&internal_entity.CoachingMessage{MessageType: internal_entity.MessageTypePraise})
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(newTestLogger(t))

	messages, cancel := hub.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; extra broadcasts are dropped, not blocked.
	for i := 0; i < 40; i++ {
		hub.Broadcast(&internal_entity.CoachingMessage{MessageType: internal_entity.MessageTypeWarning})
	}

	received := 0
	for {
		select {
		case <-messages:
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 16, received)
}
