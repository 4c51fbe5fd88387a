// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"github.com/coachlyai/pkg/utils"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
)

// envelope is the wire frame of the coaching feed.
type envelope struct {
	Type    string                 `json:"type"`
	Channel string                 `json:"channel,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

const (
	frameSubscribe = "subscribe"
	frameRow       = "row"
	frameHeartbeat = "heartbeat"
)

// rowPayload is the decoded shape of one coaching row.
type rowPayload struct {
	ID          string  `mapstructure:"id"`
	UserID      string  `mapstructure:"user_id"`
	SessionID   string  `mapstructure:"session_id"`
	Message     string  `mapstructure:"message"`
	MessageType string  `mapstructure:"message_type"`
	Confidence  float64 `mapstructure:"confidence"`
	CreatedAt   int64   `mapstructure:"created_at"`
}

// Manager owns the realtime coaching-message subscription for one user at a
// time: explicit Start/Stop lifecycle, an injected callback for incoming
// rows, and all reconnect bookkeeping held inside — no ambient state.
type Manager interface {
	// Start subscribes to the user's coaching channel. Returns once the
	// first connection attempt resolves; reconnects run in background with
	// exponential backoff and jitter up to the configured attempt cap.
	Start(ctx context.Context, userID string) error

	// Stop tears the subscription down. Idempotent; suppresses reconnects.
	Stop()
}

// Option customises the manager.
type Option func(*manager)

// WithDialer overrides the websocket dialer (tests).
func WithDialer(dial func(ctx context.Context, url string) (*websocket.Conn, error)) Option {
	return func(m *manager) { m.dial = dial }
}

type manager struct {
	logger    commons.Logger
	cfg       config.RealtimeConfig
	onMessage func(*internal_entity.CoachingMessage)
	dial      func(ctx context.Context, url string) (*websocket.Conn, error)

	mu      sync.Mutex
	running bool
	userID  string
	conn    *websocket.Conn
	cancel  context.CancelFunc
}

// NewManager wires the subscription manager. onMessage receives every
// decoded row; rows with an unknown message type are dropped before the
// callback.
func NewManager(
	cfg config.RealtimeConfig,
	logger commons.Logger,
	onMessage func(*internal_entity.CoachingMessage),
	opts ...Option,
) Manager {
	m := &manager{
		logger:    logger,
		cfg:       cfg,
		onMessage: onMessage,
	}
	m.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
		conn, _, err := dialer.DialContext(ctx, url, nil)
		return conn, err
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *manager) Start(ctx context.Context, userID string) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("realtime subscription already running for %s", m.userID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.userID = userID
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.connect(runCtx); err != nil {
		m.Stop()
		return err
	}

	utils.Go(runCtx, func() { m.readLoop(runCtx) })
	m.logger.Infof("realtime subscription started for user %s", userID)
	return nil
}

func (m *manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	conn := m.conn
	m.conn = nil
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Infof("realtime subscription stopped")
}

// connect dials and sends the subscribe frame for the user's channel.
func (m *manager) connect(ctx context.Context) error {
	m.mu.Lock()
	userID := m.userID
	m.mu.Unlock()

	conn, err := m.dial(ctx, m.cfg.Url)
	if err != nil {
		return fmt.Errorf("failed to connect to coaching feed: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	subscribe := envelope{
		Type:    frameSubscribe,
		Channel: fmt.Sprintf("coaching:%s", userID),
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to subscribe to coaching feed: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	return nil
}

// readLoop consumes frames until Stop or an unrecoverable reconnect failure.
func (m *manager) readLoop(ctx context.Context) {
	for {
		m.mu.Lock()
		conn := m.conn
		running := m.running
		m.mu.Unlock()
		if !running || conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if !m.isRunning() || ctx.Err() != nil {
				return
			}
			m.logger.Warnf("coaching feed read failed, reconnecting: %v", err)
			if reconnectErr := m.reconnect(ctx); reconnectErr != nil {
				m.logger.Errorf("coaching feed reconnect gave up: %v", reconnectErr)
				m.Stop()
				return
			}
			continue
		}
		m.handleFrame(data)
	}
}

// reconnect retries the connection with exponential backoff and jitter,
// capped at the configured number of attempts.
func (m *manager) reconnect(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(m.cfg.InitialBackoffSeconds) * time.Second
	policy.MaxInterval = time.Duration(m.cfg.MaxBackoffSeconds) * time.Second
	policy.RandomizationFactor = 0.5

	attempts := uint64(m.cfg.MaxReconnectAttempts)
	return backoff.Retry(func() error {
		if !m.isRunning() {
			return backoff.Permanent(fmt.Errorf("subscription stopped"))
		}
		return m.connect(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, attempts), ctx))
}

func (m *manager) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// handleFrame decodes one wire frame and forwards row payloads.
func (m *manager) handleFrame(data []byte) {
	var frame envelope
	if err := json.Unmarshal(data, &frame); err != nil {
		m.logger.Warnf("dropping undecodable coaching frame: %v", err)
		return
	}

	switch frame.Type {
	case frameHeartbeat:
		return
	case frameRow:
		var row rowPayload
		if err := mapstructure.Decode(frame.Payload, &row); err != nil {
			m.logger.Warnf("dropping malformed coaching row: %v", err)
			return
		}
		if !internal_entity.IsValidMessageType(row.MessageType) {
			m.logger.Warnf("dropping coaching row with unknown type %q", row.MessageType)
			return
		}
		message := &internal_entity.CoachingMessage{
			Identifier:        row.ID,
			UserId:            row.UserID,
			SessionIdentifier: row.SessionID,
			Message:           row.Message,
			MessageType:       row.MessageType,
			Confidence:        row.Confidence,
		}
		if row.CreatedAt > 0 {
			message.CreatedDate = time.UnixMilli(row.CreatedAt)
		}
		if m.onMessage != nil {
			m.onMessage(message)
		}
	default:
		m.logger.Debugf("ignoring coaching frame type %q", frame.Type)
	}
}
