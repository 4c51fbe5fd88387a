// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_uplink

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	internal_capture "github.com/coachlyai/api/coach-api/internal/capture"
	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"github.com/go-resty/resty/v2"
)

// Uplink pushes segment audio and analysis triggers to the external webhook.
//
// Delivery is fire-and-forget by design: a failed segment POST is logged and
// dropped, never retried or persisted, and the rotation path never blocks on
// an in-flight upload.
type Uplink interface {
	UploadSegment(ctx context.Context, upload internal_capture.SegmentUpload, meta internal_capture.SessionMeta) error
	TriggerAnalysis(ctx context.Context, sessionID, userID string) error
}

type restyUplink struct {
	logger commons.Logger
	cfg    config.UplinkConfig
	client *resty.Client
}

// NewUplink builds the webhook client.
func NewUplink(cfg config.UplinkConfig, logger commons.Logger) Uplink {
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("User-Agent", "coachd")
	return &restyUplink{
		logger: logger,
		cfg:    cfg,
		client: client,
	}
}

// UploadSegment POSTs one joined segment as multipart/form-data. The audio
// part filenames encode the segment number and a millisecond timestamp so
// the analysis side can order and dedupe without parsing the form fields.
func (u *restyUplink) UploadSegment(ctx context.Context, upload internal_capture.SegmentUpload, meta internal_capture.SessionMeta) error {
	start := time.Now()
	stamp := upload.Recorded.UnixMilli()

	request := u.client.R().
		SetContext(ctx).
		SetFileReader("audio",
			fmt.Sprintf("audio_segment_%d_%d.wav", upload.Segment, stamp),
			bytes.NewReader(upload.Microphone)).
		SetFormData(map[string]string{
			"session_id":          meta.SessionID,
			"segment_number":      strconv.Itoa(upload.Segment),
			"user_id":             meta.UserID,
			"user_email":          meta.UserEmail,
			"attendee_count":      strconv.Itoa(meta.AttendeeCount),
			"company_description": meta.CompanyDescription,
			"meeting_objective":   meta.MeetingObjective,
			"has_system_audio":    strconv.FormatBool(upload.HasSystem),
			"timestamp":           strconv.FormatInt(stamp, 10),
		})

	if upload.HasSystem {
		request.SetFileReader("system_audio",
			fmt.Sprintf("system_segment_%d_%d.wav", upload.Segment, stamp),
			bytes.NewReader(upload.System))
	}

	response, err := request.Post(u.cfg.AudioWebhookUrl)
	if err != nil {
		u.logger.Errorf("segment %d upload failed for session %s: %v", upload.Segment, meta.SessionID, err)
		return err
	}
	if response.IsError() {
		err := fmt.Errorf("segment upload rejected with status %d", response.StatusCode())
		u.logger.Errorf("segment %d upload for session %s: %v", upload.Segment, meta.SessionID, err)
		return err
	}

	u.logger.Debugf("uploaded segment %d for session %s (system=%v, took=%s)",
		upload.Segment, meta.SessionID, upload.HasSystem, time.Since(start))
	return nil
}

// TriggerAnalysis asks the analysis system to start producing coaching
// messages for the just-uploaded session. Invoked once at session stop.
func (u *restyUplink) TriggerAnalysis(ctx context.Context, sessionID, userID string) error {
	response, err := u.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"session_id": sessionID,
			"user_id":    userID,
			"timestamp":  time.Now().UnixMilli(),
		}).
		Post(u.cfg.AnalysisWebhookUrl)
	if err != nil {
		u.logger.Errorf("analysis trigger failed for session %s: %v", sessionID, err)
		return err
	}
	if response.IsError() {
		err := fmt.Errorf("analysis trigger rejected with status %d", response.StatusCode())
		u.logger.Errorf("analysis trigger for session %s: %v", sessionID, err)
		return err
	}
	u.logger.Infof("analysis triggered for session %s", sessionID)
	return nil
}
