// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_capture

import (
	"bytes"
	"sync"
	"time"

	internal_media "github.com/coachlyai/api/coach-api/internal/media"
	"github.com/coachlyai/pkg/commons"
)

// AudioType tags which leg of the dual capture a chunk belongs to.
type AudioType string

const (
	AudioMicrophone AudioType = "microphone"
	AudioSystem     AudioType = "system"
)

// Chunk is one recorder instance's entire output: the audio recorded between
// its Start and its flush, rendered as WAV and tagged with the segment number
// the instance was created for.
type Chunk struct {
	Type     AudioType
	Segment  int
	WAV      []byte
	Recorded time.Time
}

type recorderState int

const (
	recorderInactive recorderState = iota
	recorderRecording
	recorderFlushed
)

// SegmentRecorder binds exactly one track for exactly one segment number.
// Lifetime is inactive → recording → flushed; rotation constructs a fresh
// instance on the same track rather than restarting this one, so the flush
// boundary between segments stays crisp.
type SegmentRecorder struct {
	logger    commons.Logger
	track     internal_media.Track
	audioType AudioType
	segment   int
	format    WAVFormat
	onChunk   func(Chunk)

	mu     sync.Mutex
	state  recorderState
	buf    bytes.Buffer
	stopCh chan struct{}
	once   sync.Once
}

// NewSegmentRecorder builds a recorder for one (track, segment) pair. The
// chunk callback is the only place the segment's payload surfaces; it is
// invoked from the recorder's drain goroutine.
func NewSegmentRecorder(
	logger commons.Logger,
	track internal_media.Track,
	audioType AudioType,
	segment int,
	format WAVFormat,
	onChunk func(Chunk),
) *SegmentRecorder {
	return &SegmentRecorder{
		logger:    logger,
		track:     track,
		audioType: audioType,
		segment:   segment,
		format:    format,
		onChunk:   onChunk,
		stopCh:    make(chan struct{}),
	}
}

// Segment returns the segment number this instance records.
func (r *SegmentRecorder) Segment() int { return r.segment }

// Start begins draining the track into the segment buffer. Returns
// immediately; draining runs on its own goroutine until Stop, Abort, or the
// track ending.
func (r *SegmentRecorder) Start() {
	r.mu.Lock()
	if r.state != recorderInactive {
		r.mu.Unlock()
		return
	}
	r.state = recorderRecording
	r.mu.Unlock()

	go r.drain()
}

func (r *SegmentRecorder) drain() {
	for {
		select {
		case frame, ok := <-r.track.Frames():
			if !ok {
				// Track ended underneath us; flush what we have. The dual
				// recorder decides whether that chunk is still wanted.
				r.flush()
				return
			}
			r.mu.Lock()
			if r.state == recorderRecording {
				r.buf.Write(frame)
			}
			r.mu.Unlock()
		case <-r.stopCh:
			r.flush()
			return
		}
	}
}

// flush renders the buffered PCM to WAV and delivers the chunk exactly once.
func (r *SegmentRecorder) flush() {
	r.mu.Lock()
	if r.state != recorderRecording {
		r.mu.Unlock()
		return
	}
	r.state = recorderFlushed
	pcm := make([]byte, r.buf.Len())
	r.buf.Read(pcm)
	r.mu.Unlock()

	chunk := Chunk{
		Type:     r.audioType,
		Segment:  r.segment,
		WAV:      createWAVFile(r.format, pcm),
		Recorded: time.Now(),
	}
	r.logger.Debugf("flushed %s segment %d (%d PCM bytes)", r.audioType, r.segment, len(pcm))
	if r.onChunk != nil {
		r.onChunk(chunk)
	}
}

// Stop requests the flush. Asynchronous: the chunk arrives on the callback
// once the drain goroutine winds down.
func (r *SegmentRecorder) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

// Abort discards the recorder without delivering a chunk. Used when the
// stream it was bound to is gone and its partial output is unwanted.
func (r *SegmentRecorder) Abort() {
	r.mu.Lock()
	if r.state == recorderRecording {
		r.state = recorderFlushed
		r.buf.Reset()
	}
	r.mu.Unlock()
	r.once.Do(func() { close(r.stopCh) })
}
