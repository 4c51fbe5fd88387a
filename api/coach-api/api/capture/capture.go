// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.

package capture_api

import (
	"errors"
	"net/http"
	"time"

	internal_capture "github.com/coachlyai/api/coach-api/internal/capture"
	internal_media "github.com/coachlyai/api/coach-api/internal/media"
	internal_realtime "github.com/coachlyai/api/coach-api/internal/realtime"
	internal_store "github.com/coachlyai/api/coach-api/internal/store"
	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second // must be shorter than streamPongWait
)

// CaptureApi is the local control surface the desktop UI drives.
type CaptureApi struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	pipeline *internal_capture.Pipeline
	broker   *internal_media.Broker
	store    internal_store.Store
	cache    internal_store.MessageCache
	hub      *internal_realtime.Hub
}

// NewCaptureApi wires the handlers.
func NewCaptureApi(
	cfg *config.AppConfig,
	logger commons.Logger,
	pipeline *internal_capture.Pipeline,
	broker *internal_media.Broker,
	store internal_store.Store,
	cache internal_store.MessageCache,
	hub *internal_realtime.Hub,
) *CaptureApi {
	return &CaptureApi{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		broker:   broker,
		store:    store,
		cache:    cache,
		hub:      hub,
	}
}

// RequestMicrophone acquires the microphone grant ahead of recording.
//
// @Router /v1/capture/microphone [post]
func (api *CaptureApi) RequestMicrophone(c *gin.Context) {
	granted := api.broker.RequestMicrophone(c.Request.Context())
	if !granted {
		c.JSON(http.StatusOK, gin.H{
			"granted": false,
			"reason":  "Microphone access is required for coaching. Please allow access and try again.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": true})
}

// RequestSystemAudio acquires the screen-share audio grant. A share without
// audio is reported distinctly so the UI can instruct the user to re-share
// with "share audio" enabled.
//
// @Router /v1/capture/system [post]
func (api *CaptureApi) RequestSystemAudio(c *gin.Context) {
	granted := api.broker.RequestSystemAudio(c.Request.Context())
	if granted {
		c.JSON(http.StatusOK, gin.H{"granted": true})
		return
	}

	reason := "Screen share was declined. System audio lets the AI hear the other participants."
	if errors.Is(api.broker.LastSystemAudioError(), internal_media.ErrNoAudioTrack) {
		reason = "The shared source has no audio. Please re-share and enable \"share audio\"."
	}
	c.JSON(http.StatusOK, gin.H{"granted": false, "reason": reason})
}

type startCaptureRequest struct {
	UserID             string `json:"user_id" binding:"required"`
	UserEmail          string `json:"user_email" binding:"required,email"`
	IntervalSeconds    int    `json:"interval_seconds" binding:"gte=0"`
	AttendeeCount      int    `json:"attendee_count" binding:"gte=0"`
	CompanyDescription string `json:"company_description"`
	MeetingObjective   string `json:"meeting_objective"`
}

// StartCapture begins a recording session.
//
// @Router /v1/capture/start [post]
func (api *CaptureApi) StartCapture(c *gin.Context) {
	var request startCaptureRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID, err := api.pipeline.StartSession(c.Request.Context(), internal_capture.StartRequest{
		UserID:             request.UserID,
		UserEmail:          request.UserEmail,
		IntervalSeconds:    request.IntervalSeconds,
		AttendeeCount:      request.AttendeeCount,
		CompanyDescription: request.CompanyDescription,
		MeetingObjective:   request.MeetingObjective,
	})
	if err != nil {
		switch {
		case errors.Is(err, internal_capture.ErrMicrophoneRequired):
			c.JSON(http.StatusPreconditionFailed, gin.H{
				"error": "Microphone access is required before recording can start.",
			})
		case errors.Is(err, internal_capture.ErrAlreadyRecording):
			c.JSON(http.StatusConflict, gin.H{"error": "A recording session is already active."})
		default:
			api.logger.Errorf("start capture failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to start recording, please try again."})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID})
}

// StopCapture finalizes the active session. Capture itself is torn down even
// when the backend write fails; the error only affects the summary record.
//
// @Router /v1/capture/stop [post]
func (api *CaptureApi) StopCapture(c *gin.Context) {
	if err := api.pipeline.StopSession(c.Request.Context()); err != nil {
		if errors.Is(err, internal_capture.ErrNotRecording) {
			c.JSON(http.StatusConflict, gin.H{"error": "No recording session is active."})
			return
		}
		api.logger.Errorf("stop capture failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Recording stopped, but saving the session summary failed.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

// GetStatus returns the live pipeline snapshot.
//
// @Router /v1/capture/status [get]
func (api *CaptureApi) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, api.pipeline.Status())
}

// GetMessages returns the newest coaching messages for a user, cache first
// with a database fallback.
//
// @Router /v1/coaching/messages [get]
func (api *CaptureApi) GetMessages(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	limit := 50

	messages, err := api.cache.Recent(c.Request.Context(), userID, limit)
	if err != nil || len(messages) == 0 {
		if err != nil {
			api.logger.Warnf("message cache read failed, falling back to store: %v", err)
		}
		messages, err = api.store.RecentMessages(c.Request.Context(), userID, limit)
		if err != nil {
			api.logger.Errorf("coaching message lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load coaching messages."})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// StreamMessages upgrades to websocket and pushes live coaching messages to
// the UI as they arrive.
//
// @Router /v1/coaching/stream [get]
func (api *CaptureApi) StreamMessages(c *gin.Context) {
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Errorf("websocket upgrade failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to upgrade to WebSocket"})
		return
	}
	defer conn.Close()

	messages, cancel := api.hub.Subscribe()
	defer cancel()

	// Half-dead clients are detected by the pong deadline, not just by a
	// failed write.
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// Reader only watches for pongs and the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case message, ok := <-messages:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(message); err != nil {
				api.logger.Debugf("coaching stream write failed: %v", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
