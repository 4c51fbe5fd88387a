// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	"github.com/coachlyai/config"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedServer is a scripted coaching-feed endpoint.
type feedServer struct {
	server     *httptest.Server
	subscribed chan envelope
	outbound   chan envelope
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	f := &feedServer{
		subscribed: make(chan envelope, 4),
		outbound:   make(chan envelope, 16),
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var subscribe envelope
		if err := conn.ReadJSON(&subscribe); err != nil {
			return
		}
		f.subscribed <- subscribe

		for frame := range f.outbound {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		close(f.outbound)
		f.server.Close()
	})
	return f
}

func (f *feedServer) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func testRealtimeConfig(url string) config.RealtimeConfig {
	return config.RealtimeConfig{
		Url:                   url,
		MaxReconnectAttempts:  2,
		InitialBackoffSeconds: 1,
		MaxBackoffSeconds:     2,
	}
}

func TestManagerSubscribesToUserChannel(t *testing.T) {
	feed := newFeedServer(t)

	manager := NewManager(testRealtimeConfig(feed.url()), newTestLogger(t), func(*internal_entity.CoachingMessage) {})
	require.NoError(t, manager.Start(context.Background(), "u1"))
	defer manager.Stop()

	select {
	case subscribe := <-feed.subscribed:
		assert.Equal(t, frameSubscribe, subscribe.Type)
		assert.Equal(t, "coaching:u1", subscribe.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe frame never arrived")
	}
}

func TestManagerForwardsRowFrames(t *testing.T) {
	feed := newFeedServer(t)
	received := make(chan *internal_entity.CoachingMessage, 4)

	manager := NewManager(testRealtimeConfig(feed.url()), newTestLogger(t),
		func(m *internal_entity.CoachingMessage) { received <- m })
	require.NoError(t, manager.Start(context.Background(), "u1"))
	defer manager.Stop()

	feed.outbound <- envelope{Type: frameHeartbeat}
	feed.outbound <- envelope{
		Type:    frameRow,
		Channel: "coaching:u1",
		Payload: map[string]interface{}{
			"id":           "m-1",
			"user_id":      "u1",
			"session_id":   "session_u1_1",
			"message":      "Ask about their timeline",
			"message_type": "suggestion",
			"confidence":   0.82,
			"created_at":   float64(1700000000000),
		},
	}

	select {
	case message := <-received:
		assert.Equal(t, "m-1", message.Identifier)
		assert.Equal(t, "u1", message.UserId)
		assert.Equal(t, "session_u1_1", message.SessionIdentifier)
		assert.Equal(t, "Ask about their timeline", message.Message)
		assert.Equal(t, internal_entity.MessageTypeSuggestion, message.MessageType)
		assert.InDelta(t, 0.82, message.Confidence, 0.001)
		assert.Equal(t, time.UnixMilli(1700000000000), message.CreatedDate)
	case <-time.After(2 * time.Second):
		t.Fatal("row frame never reached the callback")
	}
}

func TestManagerDropsUnknownMessageTypes(t *testing.T) {
	feed := newFeedServer(t)
	received := make(chan *internal_entity.CoachingMessage, 4)

	manager := NewManager(testRealtimeConfig(feed.url()), newTestLogger(t),
		func(m *internal_entity.CoachingMessage) { received <- m })
	require.NoError(t, manager.Start(context.Background(), "u1"))
	defer manager.Stop()

	feed.outbound <- envelope{
		Type:    frameRow,
		Payload: map[string]interface{}{"message_type": "celebration", "message": "nope"},
	}
	feed.outbound <- envelope{
		Type:    frameRow,
		Payload: map[string]interface{}{"message_type": "praise", "message": "Good discovery question", "user_id": "u1"},
	}

	select {
	case message := <-received:
		assert.Equal(t, internal_entity.MessageTypePraise, message.MessageType)
	case <-time.After(2 * time.Second):
		t.Fatal("valid row never arrived")
	}
	assert.Empty(t, received, "unknown type must have been dropped")
}

func TestManagerStartTwiceFails(t *testing.T) {
	feed := newFeedServer(t)

	manager := NewManager(testRealtimeConfig(feed.url()), newTestLogger(t), func(*internal_entity.CoachingMessage) {})
	require.NoError(t, manager.Start(context.Background(), "u1"))
	defer manager.Stop()

	assert.Error(t, manager.Start(context.Background(), "u1"))
}

func TestManagerStartFailsWhenFeedUnreachable(t *testing.T) {
	cfg := testRealtimeConfig("ws://127.0.0.1:1/feed")
	manager := NewManager(cfg, newTestLogger(t), func(*internal_entity.CoachingMessage) {})

	err := manager.Start(context.Background(), "u1")
	require.Error(t, err)

	// A failed start leaves the manager restartable.
	feed := newFeedServer(t)
	restarted := NewManager(testRealtimeConfig(feed.url()), newTestLogger(t), func(*internal_entity.CoachingMessage) {})
	require.NoError(t, restarted.Start(context.Background(), "u1"))
	restarted.Stop()
}

func TestManagerStopIsIdempotent(t *testing.T) {
	feed := newFeedServer(t)

	manager := NewManager(testRealtimeConfig(feed.url()), newTestLogger(t), func(*internal_entity.CoachingMessage) {})
	require.NoError(t, manager.Start(context.Background(), "u1"))

	manager.Stop()
	manager.Stop()
}

func TestManagerCustomDialer(t *testing.T) {
	feed := newFeedServer(t)
	dialed := make(chan string, 1)

	manager := NewManager(testRealtimeConfig(feed.url()), newTestLogger(t),
		func(*internal_entity.CoachingMessage) {},
		WithDialer(func(ctx context.Context, url string) (*websocket.Conn, error) {
			dialed <- url
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		}))
	require.NoError(t, manager.Start(context.Background(), "u1"))
	defer manager.Stop()

	assert.Equal(t, feed.url(), <-dialed)
}
