// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.

package internal_store

import (
	"context"
	"fmt"
	"time"

	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	"github.com/coachlyai/pkg/commons"
	"github.com/coachlyai/pkg/connectors"
)

// Store provides the session-scoped backend records. A session row is created
// when capture starts and only ever transitions status afterwards
// (recording → completed/failed); it is never deleted by the agent, so the
// dashboards can read it long after the daemon has moved on.
type Store interface {
	// CreateSession inserts the row for a session that just started recording.
	CreateSession(ctx context.Context, session *internal_entity.CoachingSession) error

	// FinalizeSession marks a recording session completed and records how
	// many segments were uploaded. Fails if the identifier is unknown.
	FinalizeSession(ctx context.Context, identifier string, segmentCount int) error

	// FailSession marks a session failed. Used for fatal capture errors
	// (microphone loss); the row stays readable for the dashboards.
	FailSession(ctx context.Context, identifier string) error

	// GetSession retrieves a session by its client-generated identifier
	// regardless of status.
	GetSession(ctx context.Context, identifier string) (*internal_entity.CoachingSession, error)

	// SaveSummary stores the connectivity aggregate captured at session stop.
	SaveSummary(ctx context.Context, summary *internal_entity.ConnectivitySummary) error

	// SaveMessage persists one coaching row received over the realtime feed.
	SaveMessage(ctx context.Context, message *internal_entity.CoachingMessage) error

	// RecentMessages returns the newest coaching rows for a user, newest
	// first. Fallback read path when the cache is cold.
	RecentMessages(ctx context.Context, userID string, limit int) ([]*internal_entity.CoachingMessage, error)
}

type postgresStore struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

// NewStore creates the postgres-backed session store.
func NewStore(postgres connectors.PostgresConnector, logger commons.Logger) Store {
	return &postgresStore{
		postgres: postgres,
		logger:   logger,
	}
}

func (s *postgresStore) CreateSession(ctx context.Context, session *internal_entity.CoachingSession) error {
	if session.Status == "" {
		session.Status = internal_entity.SessionStatusRecording
	}
	db := s.postgres.DB(ctx)
	if err := db.Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.Identifier, err)
	}
	s.logger.Infof("created coaching session: identifier=%s, user=%s", session.Identifier, session.UserId)
	return nil
}

func (s *postgresStore) FinalizeSession(ctx context.Context, identifier string, segmentCount int) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&internal_entity.CoachingSession{}).
		Where("identifier = ?", identifier).
		Updates(map[string]interface{}{
			"status":        internal_entity.SessionStatusCompleted,
			"segment_count": segmentCount,
			"ended_at":      time.Now(),
			"updated_date":  time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize session %s: %w", identifier, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session %s not found", identifier)
	}
	s.logger.Infof("finalized coaching session: identifier=%s, segments=%d", identifier, segmentCount)
	return nil
}

func (s *postgresStore) FailSession(ctx context.Context, identifier string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&internal_entity.CoachingSession{}).
		Where("identifier = ?", identifier).
		Updates(map[string]interface{}{
			"status":       internal_entity.SessionStatusFailed,
			"ended_at":     time.Now(),
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark session %s failed: %w", identifier, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session %s not found", identifier)
	}
	return nil
}

func (s *postgresStore) GetSession(ctx context.Context, identifier string) (*internal_entity.CoachingSession, error) {
	db := s.postgres.DB(ctx)
	var session internal_entity.CoachingSession
	if err := db.Where("identifier = ?", identifier).First(&session).Error; err != nil {
		return nil, fmt.Errorf("session not found: %s: %w", identifier, err)
	}
	return &session, nil
}

func (s *postgresStore) SaveSummary(ctx context.Context, summary *internal_entity.ConnectivitySummary) error {
	db := s.postgres.DB(ctx)
	if err := db.Create(summary).Error; err != nil {
		return fmt.Errorf("failed to save connectivity summary for %s: %w", summary.SessionIdentifier, err)
	}
	s.logger.Debugf("saved connectivity summary: session=%s, avg=%.2f, samples=%d",
		summary.SessionIdentifier, summary.AverageScore, summary.SampleCount)
	return nil
}

func (s *postgresStore) SaveMessage(ctx context.Context, message *internal_entity.CoachingMessage) error {
	db := s.postgres.DB(ctx)
	if err := db.Create(message).Error; err != nil {
		return fmt.Errorf("failed to save coaching message for %s: %w", message.UserId, err)
	}
	return nil
}

func (s *postgresStore) RecentMessages(ctx context.Context, userID string, limit int) ([]*internal_entity.CoachingMessage, error) {
	db := s.postgres.DB(ctx)
	var messages []*internal_entity.CoachingMessage
	if err := db.Where("user_id = ?", userID).
		Order("created_date DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load coaching messages for %s: %w", userID, err)
	}
	return messages, nil
}
