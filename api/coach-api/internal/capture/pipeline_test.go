// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	internal_entity "github.com/coachlyai/api/coach-api/internal/entity"
	internal_media "github.com/coachlyai/api/coach-api/internal/media"
	internal_netprobe "github.com/coachlyai/api/coach-api/internal/netprobe"
	"github.com/coachlyai/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu       sync.Mutex
	uploads  []SegmentUpload
	metas    []SessionMeta
	triggers []string
}

func (u *fakeUploader) UploadSegment(ctx context.Context, upload SegmentUpload, meta SessionMeta) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, upload)
	u.metas = append(u.metas, meta)
	return nil
}

func (u *fakeUploader) TriggerAnalysis(ctx context.Context, sessionID, userID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.triggers = append(u.triggers, sessionID)
	return nil
}

func (u *fakeUploader) triggerCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.triggers)
}

type fakeSubscription struct {
	mu       sync.Mutex
	startErr error
	started  int
	stopped  int
	userID   string
}

func (s *fakeSubscription) Start(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started++
	s.userID = userID
	return nil
}

func (s *fakeSubscription) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

type fakeProbe struct {
	mu      sync.Mutex
	started int
	stopped int
	summary internal_netprobe.Summary
}

func (p *fakeProbe) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started++
}

func (p *fakeProbe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}

func (p *fakeProbe) Snapshot() internal_netprobe.Snapshot { return internal_netprobe.Snapshot{} }
func (p *fakeProbe) Summarize() internal_netprobe.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

type memStore struct {
	mu        sync.Mutex
	createErr error
	onCreate  func()
	sessions  map[string]*internal_entity.CoachingSession
	summaries []*internal_entity.ConnectivitySummary
	messages  []*internal_entity.CoachingMessage
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*internal_entity.CoachingSession{}}
}

func (s *memStore) CreateSession(ctx context.Context, session *internal_entity.CoachingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if session.Status == "" {
		session.Status = internal_entity.SessionStatusRecording
	}
	s.sessions[session.Identifier] = session
	if s.onCreate != nil {
		s.onCreate()
	}
	return nil
}

func (s *memStore) FinalizeSession(ctx context.Context, identifier string, segmentCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[identifier]
	if !ok {
		return errors.New("session not found")
	}
	session.Status = internal_entity.SessionStatusCompleted
	session.SegmentCount = segmentCount
	return nil
}

func (s *memStore) FailSession(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[identifier]
	if !ok {
		return errors.New("session not found")
	}
	session.Status = internal_entity.SessionStatusFailed
	return nil
}

func (s *memStore) GetSession(ctx context.Context, identifier string) (*internal_entity.CoachingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[identifier]
	if !ok {
		return nil, errors.New("session not found")
	}
	return session, nil
}

func (s *memStore) SaveSummary(ctx context.Context, summary *internal_entity.ConnectivitySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *memStore) SaveMessage(ctx context.Context, message *internal_entity.CoachingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *memStore) RecentMessages(ctx context.Context, userID string, limit int) ([]*internal_entity.CoachingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages, nil
}

func (s *memStore) firstSessionIdentifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for identifier := range s.sessions {
		return identifier
	}
	return ""
}

func (s *memStore) sessionStatus(identifier string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[identifier]; ok {
		return session.Status
	}
	return ""
}

type pipelineFixture struct {
	pipeline     *Pipeline
	micTrack     *internal_media.PCMTrack
	uploader     *fakeUploader
	subscription *fakeSubscription
	probe        *fakeProbe
	store        *memStore
}

func newPipelineFixture(t *testing.T, withMicrophone bool) *pipelineFixture {
	t.Helper()
	var broker *internal_media.Broker
	var micTrack *internal_media.PCMTrack
	if withMicrophone {
		broker, micTrack = newTestBroker(t, false)
	} else {
		broker = internal_media.NewBroker(&fakeSource{}, newTestLogger(t))
	}

	f := &pipelineFixture{
		micTrack:     micTrack,
		uploader:     &fakeUploader{},
		subscription: &fakeSubscription{},
		probe:        &fakeProbe{summary: internal_netprobe.Summary{AverageScore: 8.5, MinScore: 7, MaxScore: 10, SampleCount: 4, EffectiveType: "4g"}},
		store:        newMemStore(),
	}
	cfg := config.CaptureConfig{
		IntervalSeconds: 3600,
		SampleRate:      16000,
		Channels:        1,
		SettleDelayMs:   1,
	}
	f.pipeline = NewPipeline(cfg, newTestLogger(t), broker,
		f.uploader, f.subscription, f.probe, f.store)
	return f
}

func TestPipelineStartRequiresMicrophone(t *testing.T) {
	f := newPipelineFixture(t, false)

	_, err := f.pipeline.StartSession(context.Background(), StartRequest{UserID: "u1", UserEmail: "u1@acme.dev"})
	assert.ErrorIs(t, err, ErrMicrophoneRequired)
	assert.False(t, f.pipeline.Recording())
}

func TestPipelineStartSession(t *testing.T) {
	f := newPipelineFixture(t, true)
	defer f.pipeline.StopSession(context.Background())

	sessionID, err := f.pipeline.StartSession(context.Background(), StartRequest{
		UserID:        "u1",
		UserEmail:     "u1@acme.dev",
		AttendeeCount: 3,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sessionID, "session_u1_"))
	assert.True(t, f.pipeline.Recording())
	assert.Equal(t, internal_entity.SessionStatusRecording, f.store.sessionStatus(sessionID))
	assert.Equal(t, "u1", f.subscription.userID)
	assert.Equal(t, 1, f.probe.started)

	_, err = f.pipeline.StartSession(context.Background(), StartRequest{UserID: "u2", UserEmail: "u2@acme.dev"})
	assert.ErrorIs(t, err, ErrAlreadyRecording)
}

func TestPipelineStartSurvivesSubscriptionFailure(t *testing.T) {
	f := newPipelineFixture(t, true)
	f.subscription.startErr = errors.New("feed unreachable")
	defer f.pipeline.StopSession(context.Background())

	_, err := f.pipeline.StartSession(context.Background(), StartRequest{UserID: "u1", UserEmail: "u1@acme.dev"})
	require.NoError(t, err, "coaching feed loss must not block recording")
	assert.True(t, f.pipeline.Recording())
}

func TestPipelineRotationAdvancesSegments(t *testing.T) {
	f := newPipelineFixture(t, true)

	_, err := f.pipeline.StartSession(context.Background(), StartRequest{
		UserID:          "u1",
		UserEmail:       "u1@acme.dev",
		IntervalSeconds: 1,
	})
	require.NoError(t, err)
	defer f.pipeline.StopSession(context.Background())

	// The rotation ticker must survive the start fan-out and keep bumping
	// the segment counter.
	require.Eventually(t, func() bool {
		return f.pipeline.Status().CurrentSegment >= 2
	}, 5*time.Second, 20*time.Millisecond, "segment counter never advanced past 1")

	require.Eventually(t, func() bool {
		f.uploader.mu.Lock()
		defer f.uploader.mu.Unlock()
		return len(f.uploader.uploads) >= 1
	}, 5*time.Second, 20*time.Millisecond, "rotation never produced an upload")
}

func TestPipelineAbortedStartMarksSessionFailed(t *testing.T) {
	f := newPipelineFixture(t, true)
	// The microphone dies between the session row insert and recorder start.
	f.store.onCreate = func() { f.micTrack.End() }

	_, err := f.pipeline.StartSession(context.Background(), StartRequest{UserID: "u1", UserEmail: "u1@acme.dev"})
	require.ErrorIs(t, err, ErrMicrophoneRequired)
	assert.False(t, f.pipeline.Recording())

	identifier := f.store.firstSessionIdentifier()
	require.NotEmpty(t, identifier)
	assert.Equal(t, internal_entity.SessionStatusFailed, f.store.sessionStatus(identifier),
		"aborted start must not leave the row stuck in recording")
}

func TestPipelineStartFailsWhenSessionRowCannotBeWritten(t *testing.T) {
	f := newPipelineFixture(t, true)
	f.store.createErr = errors.New("database down")

	_, err := f.pipeline.StartSession(context.Background(), StartRequest{UserID: "u1", UserEmail: "u1@acme.dev"})
	require.Error(t, err)
	assert.False(t, f.pipeline.Recording())
}

func TestPipelineStopFinalizesSession(t *testing.T) {
	f := newPipelineFixture(t, true)

	sessionID, err := f.pipeline.StartSession(context.Background(), StartRequest{UserID: "u1", UserEmail: "u1@acme.dev"})
	require.NoError(t, err)

	f.pipeline.emitUpload(SegmentUpload{Segment: 1, Microphone: []byte{1}, Recorded: time.Now()})
	f.pipeline.emitUpload(SegmentUpload{Segment: 2, Microphone: []byte{2}, Recorded: time.Now()})

	require.NoError(t, f.pipeline.StopSession(context.Background()))

	assert.False(t, f.pipeline.Recording())
	assert.Equal(t, internal_entity.SessionStatusCompleted, f.store.sessionStatus(sessionID))
	assert.Equal(t, 2, f.store.sessions[sessionID].SegmentCount)
	assert.Equal(t, 1, f.subscription.stopped)
	assert.Equal(t, 1, f.probe.stopped)

	require.Len(t, f.store.summaries, 1)
	assert.Equal(t, sessionID, f.store.summaries[0].SessionIdentifier)
	assert.Equal(t, 8.5, f.store.summaries[0].AverageScore)

	// The analysis trigger is fired asynchronously after teardown.
	require.Eventually(t, func() bool {
		return f.uploader.triggerCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, f.pipeline.StopSession(context.Background()), ErrNotRecording)
}

func TestPipelineUploadsAreCountedAndForwarded(t *testing.T) {
	f := newPipelineFixture(t, true)
	defer f.pipeline.StopSession(context.Background())

	sessionID, err := f.pipeline.StartSession(context.Background(), StartRequest{UserID: "u1", UserEmail: "u1@acme.dev"})
	require.NoError(t, err)

	f.pipeline.emitUpload(SegmentUpload{Segment: 1, Microphone: []byte{1}, HasSystem: false, Recorded: time.Now()})

	require.Eventually(t, func() bool {
		f.uploader.mu.Lock()
		defer f.uploader.mu.Unlock()
		return len(f.uploader.uploads) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.uploader.mu.Lock()
	defer f.uploader.mu.Unlock()
	assert.Equal(t, sessionID, f.uploader.metas[0].SessionID)
	assert.Equal(t, 1, f.uploader.uploads[0].Segment)
	assert.Equal(t, 1, f.pipeline.Status().UploadedSegments)
}

func TestPipelineFatalErrorFailsSession(t *testing.T) {
	f := newPipelineFixture(t, true)

	sessionID, err := f.pipeline.StartSession(context.Background(), StartRequest{UserID: "u1", UserEmail: "u1@acme.dev"})
	require.NoError(t, err)

	f.pipeline.onFatalError(errors.New("microphone track lost during recording"))

	assert.False(t, f.pipeline.Recording())
	assert.Equal(t, internal_entity.SessionStatusFailed, f.store.sessionStatus(sessionID))
	assert.Equal(t, 1, f.subscription.stopped)
	assert.Equal(t, 1, f.probe.stopped)
}

func TestPipelineStatusWhenIdle(t *testing.T) {
	f := newPipelineFixture(t, true)

	status := f.pipeline.Status()
	assert.Equal(t, "idle", status.State)
	assert.Empty(t, status.SessionID)
	assert.Zero(t, status.CurrentSegment)
	assert.True(t, status.MicrophoneReady)
	assert.False(t, status.SystemAudioReady)
}
