// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_capture

import (
	"context"
	"errors"
	"sync"
	"time"

	internal_media "github.com/coachlyai/api/coach-api/internal/media"
	"github.com/coachlyai/pkg/commons"
	"github.com/coachlyai/pkg/utils"
)

var (
	ErrAlreadyRecording   = errors.New("a recording session is already active")
	ErrMicrophoneRequired = errors.New("microphone stream is required to record")
)

const (
	// DefaultRotationInterval balances coaching-feedback latency against
	// webhook request volume.
	DefaultRotationInterval = 20 * time.Second
	// DefaultSettleDelay lets a stopped recorder pair wind down before the
	// replacement pair starts on the same streams.
	DefaultSettleDelay = 100 * time.Millisecond
)

// DualOption customises the dual recorder.
type DualOption func(*DualRecorder)

// WithRotationInterval overrides the segment rotation period.
func WithRotationInterval(interval time.Duration) DualOption {
	return func(d *DualRecorder) { d.interval = interval }
}

// WithSettleDelay overrides the stop-to-restart settle pause.
func WithSettleDelay(delay time.Duration) DualOption {
	return func(d *DualRecorder) { d.settle = delay }
}

// WithWAVFormat overrides the rendered PCM layout.
func WithWAVFormat(format WAVFormat) DualOption {
	return func(d *DualRecorder) { d.format = format }
}

// DualRecorder runs the two capture legs in lockstep, rotating both on a
// fixed period so the session emits bounded segments instead of one unbounded
// recording.
//
// Per session the machine is idle → recording → idle. Within recording, every
// tick: the live recorder pair is asked to stop (flushes arrive async on the
// chunk callback, each tagged with the segment number its instance was built
// for), and after a short settle delay a brand-new pair is constructed on the
// same underlying streams so coverage gaps stay minimal.
type DualRecorder struct {
	logger  commons.Logger
	broker  *internal_media.Broker
	onChunk func(Chunk)
	onFatal func(error)

	interval time.Duration
	settle   time.Duration
	format   WAVFormat

	mu      sync.Mutex
	active  bool
	segment int
	micRec  *SegmentRecorder
	sysRec  *SegmentRecorder
	stopCh  chan struct{}
}

// NewDualRecorder wires the rotation engine. onChunk receives every flush
// (both audio types); onFatal fires when the microphone leg is lost
// mid-session, which kills the product's value and must end the session.
func NewDualRecorder(
	logger commons.Logger,
	broker *internal_media.Broker,
	onChunk func(Chunk),
	onFatal func(error),
	opts ...DualOption,
) *DualRecorder {
	d := &DualRecorder{
		logger:   logger,
		broker:   broker,
		onChunk:  onChunk,
		onFatal:  onFatal,
		interval: DefaultRotationInterval,
		settle:   DefaultSettleDelay,
		format:   WAVFormat{SampleRate: 16000, Channels: 1},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins a recording session at segment 1. The microphone stream must
// already be held by the broker; system audio is picked up if present.
func (d *DualRecorder) Start(ctx context.Context) error {
	micTrack := d.broker.MicrophoneTrack()
	if micTrack == nil || micTrack.Ended() {
		return ErrMicrophoneRequired
	}

	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return ErrAlreadyRecording
	}
	d.active = true
	d.segment = 1
	d.stopCh = make(chan struct{})
	stopCh := d.stopCh
	d.startRecordersLocked()
	d.mu.Unlock()

	utils.Go(ctx, func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.rotate()
			case <-stopCh:
				return
			}
		}
	})

	d.logger.Infof("dual recorder started (interval=%s, system=%v)",
		d.interval, d.broker.HasSystemAudio())
	return nil
}

// startRecordersLocked constructs and starts a fresh recorder pair for the
// current segment number. Caller holds d.mu.
func (d *DualRecorder) startRecordersLocked() {
	micTrack := d.broker.MicrophoneTrack()
	if micTrack == nil {
		return
	}
	d.micRec = NewSegmentRecorder(d.logger, micTrack, AudioMicrophone, d.segment, d.format, d.deliver)
	d.micRec.Start()

	if sysTrack := d.broker.SystemAudioTrack(); sysTrack != nil && !sysTrack.Ended() {
		d.sysRec = NewSegmentRecorder(d.logger, sysTrack, AudioSystem, d.segment, d.format, d.deliver)
		d.sysRec.Start()
	} else {
		d.sysRec = nil
	}
}

// deliver is the single chunk sink. Late flushes after Stop are suppressed
// here — the active flag is flipped synchronously before recorders are asked
// to stop, so a straggling dataavailable can never open a new segment.
func (d *DualRecorder) deliver(chunk Chunk) {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()
	if !active {
		d.logger.Debugf("suppressing late %s flush for segment %d", chunk.Type, chunk.Segment)
		return
	}
	d.onChunk(chunk)
}

// rotate is one tick of the sub-cycle: stop the live pair, bump the shared
// counter, settle, start the replacement pair on the same streams.
func (d *DualRecorder) rotate() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	mic, sys := d.micRec, d.sysRec
	d.segment++
	d.mu.Unlock()

	if mic != nil {
		mic.Stop()
	}
	if sys != nil {
		sys.Stop()
	}

	// The stop is asynchronous; give the flush a moment before rebinding the
	// streams to new instances.
	time.Sleep(d.settle)

	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.startRecordersLocked()
	d.mu.Unlock()
}

// DropSystemAudio discards the system recorder without a flush and keeps the
// session alive microphone-only. Called when the user revokes the share.
func (d *DualRecorder) DropSystemAudio() {
	d.mu.Lock()
	sys := d.sysRec
	d.sysRec = nil
	d.mu.Unlock()

	if sys != nil {
		sys.Abort()
		d.logger.Warnf("system recorder discarded at segment %d, recording continues microphone-only", sys.Segment())
	}
}

// FailMicrophone ends the session fatally: without the vendor's voice there
// is nothing to coach on.
func (d *DualRecorder) FailMicrophone() {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()
	if !active {
		return
	}
	d.Stop()
	if d.onFatal != nil {
		d.onFatal(errors.New("microphone track lost during recording"))
	}
}

// Stop ends the session. The active flag flips first so in-flight flushes
// are suppressed, the rotation timer is cleared, recorder instances are
// discarded, and the segment counter resets. The underlying streams are
// deliberately left open so the capture grant survives for the next session.
func (d *DualRecorder) Stop() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	mic, sys := d.micRec, d.sysRec
	d.micRec, d.sysRec = nil, nil
	d.segment = 0
	close(d.stopCh)
	d.mu.Unlock()

	if mic != nil {
		mic.Stop()
	}
	if sys != nil {
		sys.Stop()
	}
	d.logger.Infof("dual recorder stopped")
}

// Active reports whether a session is recording.
func (d *DualRecorder) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// CurrentSegment returns the segment number the live pair is recording, or 0
// when idle.
func (d *DualRecorder) CurrentSegment() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.segment
}

// SystemLegActive reports whether a system recorder is currently bound.
func (d *DualRecorder) SystemLegActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sysRec != nil
}
