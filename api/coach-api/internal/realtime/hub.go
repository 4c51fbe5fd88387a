// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_realtime

import (
	"sync"

	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	"github.com/coachlyai/pkg/commons"
)

// Hub fans incoming coaching messages out to the local UI's websocket
// subscribers. Slow subscribers drop messages rather than back-pressuring
// the feed.
type Hub struct {
	logger commons.Logger

	mu          sync.Mutex
	subscribers map[chan *internal_entity.CoachingMessage]struct{}
}

// NewHub builds an empty hub.
func NewHub(logger commons.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[chan *internal_entity.CoachingMessage]struct{}),
	}
}

// Subscribe registers a listener. The returned cancel must be called exactly
// once; it closes the channel.
func (h *Hub) Subscribe() (<-chan *internal_entity.CoachingMessage, func()) {
	ch := make(chan *internal_entity.CoachingMessage, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers the message to every subscriber, non-blocking.
func (h *Hub) Broadcast(message *internal_entity.CoachingMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- message:
		default:
			h.logger.Warnw("dropping coaching message for slow subscriber",
				"type", message.MessageType)
		}
	}
}
