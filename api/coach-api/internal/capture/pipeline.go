// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	internal_media "github.com/coachlyai/api/coach-api/internal/media"
	internal_netprobe "github.com/coachlyai/api/coach-api/internal/netprobe"
	internal_store "github.com/coachlyai/api/coach-api/internal/store"
	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"github.com/coachlyai/pkg/utils"
	"golang.org/x/sync/errgroup"
)

var ErrNotRecording = errors.New("no recording session is active")

// SessionMeta is the contextual metadata attached to every segment upload.
type SessionMeta struct {
	SessionID          string
	UserID             string
	UserEmail          string
	AttendeeCount      int
	CompanyDescription string
	MeetingObjective   string
}

// StartRequest carries everything a new session needs from the UI.
type StartRequest struct {
	UserID             string
	UserEmail          string
	AttendeeCount      int
	CompanyDescription string
	MeetingObjective   string
	// IntervalSeconds overrides the configured rotation period when > 0.
	IntervalSeconds int
}

// Uploader is the outbound webhook contract the pipeline depends on.
type Uploader interface {
	UploadSegment(ctx context.Context, upload SegmentUpload, meta SessionMeta) error
	TriggerAnalysis(ctx context.Context, sessionID, userID string) error
}

// Subscription is the realtime coaching-feed lifecycle the pipeline drives.
type Subscription interface {
	Start(ctx context.Context, userID string) error
	Stop()
}

// ConnectionProbe is the display-only quality sampler lifecycle.
type ConnectionProbe interface {
	Start(ctx context.Context)
	Stop()
	Snapshot() internal_netprobe.Snapshot
	Summarize() internal_netprobe.Summary
}

// Status is the pipeline snapshot served to the UI.
type Status struct {
	State             string                     `json:"state"`
	SessionID         string                     `json:"sessionId,omitempty"`
	UserID            string                     `json:"userId,omitempty"`
	StartedAt         time.Time                  `json:"startedAt,omitempty"`
	CurrentSegment    int                        `json:"currentSegment"`
	UploadedSegments  int                        `json:"uploadedSegments"`
	MicrophoneReady   bool                       `json:"microphoneReady"`
	SystemAudioReady  bool                       `json:"systemAudioReady"`
	SystemAudioActive bool                       `json:"systemAudioActive"`
	Connection        internal_netprobe.Snapshot `json:"connection"`
}

// Pipeline is the session orchestrator: it ties the permission broker, the
// dual recorder, the joiner, the uploader, the quality sampler and the
// realtime subscription to one start/stop lifecycle.
type Pipeline struct {
	logger       commons.Logger
	cfg          config.CaptureConfig
	broker       *internal_media.Broker
	uploader     Uploader
	subscription Subscription
	probe        ConnectionProbe
	store        internal_store.Store

	mu           sync.Mutex
	dual         *DualRecorder
	joiner       *Joiner
	sessionID    string
	meta         SessionMeta
	startedAt    time.Time
	segmentCount int
	recording    bool
}

// NewPipeline wires the orchestrator and hooks the broker's track-ended
// observations into the session state machine.
func NewPipeline(
	cfg config.CaptureConfig,
	logger commons.Logger,
	broker *internal_media.Broker,
	uploader Uploader,
	subscription Subscription,
	probe ConnectionProbe,
	store internal_store.Store,
) *Pipeline {
	p := &Pipeline{
		logger:       logger,
		cfg:          cfg,
		broker:       broker,
		uploader:     uploader,
		subscription: subscription,
		probe:        probe,
		store:        store,
	}

	broker.OnSystemAudioEnded(p.onSystemAudioEnded)
	broker.OnMicrophoneEnded(p.onMicrophoneEnded)
	return p
}

// StartSession begins recording. The microphone grant must already be held;
// system audio is optional and picked up if the broker has it.
func (p *Pipeline) StartSession(ctx context.Context, req StartRequest) (string, error) {
	if !p.broker.HasMicrophone() {
		return "", ErrMicrophoneRequired
	}

	p.mu.Lock()
	if p.recording {
		p.mu.Unlock()
		return "", ErrAlreadyRecording
	}
	p.logger.Debugf("starting capture session: %s", utils.ToJson(req))

	start := time.Now()
	sessionID := fmt.Sprintf("session_%s_%d", req.UserID, start.UnixMilli())
	meta := SessionMeta{
		SessionID:          sessionID,
		UserID:             req.UserID,
		UserEmail:          req.UserEmail,
		AttendeeCount:      req.AttendeeCount,
		CompanyDescription: req.CompanyDescription,
		MeetingObjective:   req.MeetingObjective,
	}

	interval := time.Duration(p.cfg.IntervalSeconds) * time.Second
	if req.IntervalSeconds > 0 {
		interval = time.Duration(req.IntervalSeconds) * time.Second
	}

	joiner := NewJoiner(p.logger, p.emitUpload)
	joiner.SetSystemExpected(p.broker.HasSystemAudio())

	dual := NewDualRecorder(p.logger, p.broker, joiner.OnChunk, p.onFatalError,
		WithRotationInterval(interval),
		WithSettleDelay(time.Duration(p.cfg.SettleDelayMs)*time.Millisecond),
		WithWAVFormat(WAVFormat{SampleRate: p.cfg.SampleRate, Channels: p.cfg.Channels}),
	)

	p.dual = dual
	p.joiner = joiner
	p.sessionID = sessionID
	p.meta = meta
	p.startedAt = start
	p.segmentCount = 0
	p.recording = true
	p.mu.Unlock()

	if err := p.store.CreateSession(ctx, &internal_entity.CoachingSession{
		Identifier:         sessionID,
		UserId:             req.UserID,
		UserEmail:          req.UserEmail,
		AttendeeCount:      req.AttendeeCount,
		CompanyDescription: req.CompanyDescription,
		MeetingObjective:   req.MeetingObjective,
		StartedAt:          start,
	}); err != nil {
		p.reset()
		return "", err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The rotation ticker outlives this start call and is torn down by
		// Stop; errgroup cancels gCtx as soon as Wait returns, which would
		// kill the ticker goroutine before its first tick.
		return dual.Start(context.WithoutCancel(gCtx))
	})
	g.Go(func() error {
		p.probe.Start(context.WithoutCancel(gCtx))
		return nil
	})
	g.Go(func() error {
		if err := p.subscription.Start(context.WithoutCancel(gCtx), req.UserID); err != nil {
			// Coaching messages degrade to polling; recording still works.
			p.logger.Errorf("realtime subscription failed to start: %v", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		p.probe.Stop()
		p.subscription.Stop()
		p.reset()
		// The session row was already written; leave it failed rather than
		// stuck in recording forever.
		failCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if failErr := p.store.FailSession(failCtx, sessionID); failErr != nil {
			p.logger.Errorf("failed to mark aborted session %s failed: %v", sessionID, failErr)
		}
		return "", err
	}

	p.logger.Infof("recording session %s started (interval=%s)", sessionID, interval)
	return sessionID, nil
}

// reset clears session state after a failed start.
func (p *Pipeline) reset() {
	p.mu.Lock()
	p.dual = nil
	p.joiner = nil
	p.sessionID = ""
	p.recording = false
	p.mu.Unlock()
}

// emitUpload is the joiner's sink: bump the counter and hand the segment to
// the uploader on a background goroutine. Fire-and-forget — an in-flight
// upload never delays the next rotation tick, and a failed one is only logged.
func (p *Pipeline) emitUpload(upload SegmentUpload) {
	p.mu.Lock()
	meta := p.meta
	p.segmentCount++
	p.mu.Unlock()

	utils.Go(context.Background(), func() {
		_ = p.uploader.UploadSegment(context.Background(), upload, meta)
	})
}

// StopSession finalizes the session: capture teardown first, then the
// backend writes and the analysis trigger. A backend write failure is
// returned to the caller, but capture is already torn down by then.
func (p *Pipeline) StopSession(ctx context.Context) error {
	p.mu.Lock()
	if !p.recording {
		p.mu.Unlock()
		return ErrNotRecording
	}
	dual := p.dual
	joiner := p.joiner
	sessionID := p.sessionID
	userID := p.meta.UserID
	segments := p.segmentCount
	p.dual = nil
	p.joiner = nil
	p.sessionID = ""
	p.recording = false
	p.mu.Unlock()

	dual.Stop()
	joiner.Reset()

	summary := p.probe.Summarize()
	p.probe.Stop()
	p.subscription.Stop()

	// The trigger is fire-and-forget like the segment uploads; finalization
	// does not depend on it.
	utils.Go(context.Background(), func() {
		_ = p.uploader.TriggerAnalysis(context.Background(), sessionID, userID)
	})

	if err := p.store.SaveSummary(ctx, &internal_entity.ConnectivitySummary{
		SessionIdentifier: sessionID,
		AverageScore:      summary.AverageScore,
		MinScore:          summary.MinScore,
		MaxScore:          summary.MaxScore,
		SampleCount:       summary.SampleCount,
		EffectiveType:     summary.EffectiveType,
	}); err != nil {
		p.logger.Errorf("connectivity summary write failed: %v", err)
	}

	if err := p.store.FinalizeSession(ctx, sessionID, segments); err != nil {
		return err
	}

	p.logger.Infof("recording session %s stopped (%d segments)", sessionID, segments)
	return nil
}

// onSystemAudioEnded degrades a live session to microphone-only.
func (p *Pipeline) onSystemAudioEnded() {
	p.mu.Lock()
	dual := p.dual
	joiner := p.joiner
	p.mu.Unlock()

	if dual != nil && dual.Active() {
		dual.DropSystemAudio()
	}
	if joiner != nil {
		joiner.SetSystemExpected(false)
	}
}

// onMicrophoneEnded is session-fatal: tear everything down and mark the
// session failed.
func (p *Pipeline) onMicrophoneEnded() {
	p.mu.Lock()
	if !p.recording {
		p.mu.Unlock()
		return
	}
	dual := p.dual
	p.mu.Unlock()

	if dual != nil {
		dual.FailMicrophone()
	}
}

// onFatalError finalizes a session killed by capture loss.
func (p *Pipeline) onFatalError(cause error) {
	p.mu.Lock()
	if !p.recording {
		p.mu.Unlock()
		return
	}
	joiner := p.joiner
	sessionID := p.sessionID
	p.dual = nil
	p.joiner = nil
	p.sessionID = ""
	p.recording = false
	p.mu.Unlock()

	p.logger.Errorf("session %s ended fatally: %v", sessionID, cause)
	if joiner != nil {
		joiner.Reset()
	}
	p.probe.Stop()
	p.subscription.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.FailSession(ctx, sessionID); err != nil {
		p.logger.Errorf("failed to mark session %s failed: %v", sessionID, err)
	}
}

// Recording reports whether a session is active.
func (p *Pipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// Status returns the pipeline snapshot for the UI.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	status := Status{
		State:            "idle",
		SessionID:        p.sessionID,
		UserID:           p.meta.UserID,
		UploadedSegments: p.segmentCount,
	}
	if p.recording {
		status.State = "recording"
		status.StartedAt = p.startedAt
	}
	dual := p.dual
	p.mu.Unlock()

	if dual != nil {
		status.CurrentSegment = dual.CurrentSegment()
		status.SystemAudioActive = dual.SystemLegActive()
	}
	status.MicrophoneReady = p.broker.HasMicrophone()
	status.SystemAudioReady = p.broker.HasSystemAudio()
	status.Connection = p.probe.Snapshot()
	return status
}
