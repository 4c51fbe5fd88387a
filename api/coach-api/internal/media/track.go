// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_media

import (
	"sync"
)

// DefaultFrameBuffer is the channel capacity of a PCM track. At 20ms frames
// this is roughly one second of slack before the producer starts dropping.
const DefaultFrameBuffer = 50

// PCMTrack is the channel-backed Track used by every source binding and by
// the pipeline tests. The producer pushes frames; End is idempotent and
// closes the frame channel so readers observe termination.
type PCMTrack struct {
	kind  TrackKind
	label string

	frames chan []byte

	mu       sync.Mutex
	ended    bool
	endedFns []func()
	stopFn   func()
}

// NewPCMTrack creates a live track. buffer <= 0 falls back to
// DefaultFrameBuffer.
func NewPCMTrack(kind TrackKind, label string, buffer int) *PCMTrack {
	if buffer <= 0 {
		buffer = DefaultFrameBuffer
	}
	return &PCMTrack{
		kind:   kind,
		label:  label,
		frames: make(chan []byte, buffer),
	}
}

// SetStopFunc registers the producer teardown invoked by Stop (killing the
// capture process, closing the device).
func (t *PCMTrack) SetStopFunc(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopFn = fn
}

func (t *PCMTrack) Kind() TrackKind       { return t.kind }
func (t *PCMTrack) Label() string         { return t.label }
func (t *PCMTrack) Frames() <-chan []byte { return t.frames }

func (t *PCMTrack) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

// OnEnded registers a callback fired once when the track ends. Registering
// on an already-ended track fires immediately.
func (t *PCMTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.endedFns = append(t.endedFns, fn)
	t.mu.Unlock()
}

// Push delivers one PCM frame to readers. Returns false once the track has
// ended. A full channel drops the frame rather than blocking the producer —
// a stalled reader must not back-pressure the capture device.
func (t *PCMTrack) Push(frame []byte) bool {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()

	select {
	case t.frames <- frame:
	default:
	}
	return true
}

// End marks the track ended, closes the frame channel and fires the ended
// callbacks. Safe to call from any goroutine, any number of times.
func (t *PCMTrack) End() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fns := t.endedFns
	t.endedFns = nil
	close(t.frames)
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Stop tears the producer down and ends the track.
func (t *PCMTrack) Stop() {
	t.mu.Lock()
	stop := t.stopFn
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
	t.End()
}

// pcmStream groups tracks returned by a single capture request.
type pcmStream struct {
	tracks []Track
}

// NewStream wraps tracks in a Stream.
func NewStream(tracks ...Track) Stream {
	return &pcmStream{tracks: tracks}
}

func (s *pcmStream) AudioTracks() []Track {
	return s.byKind(TrackKindAudio)
}

func (s *pcmStream) VideoTracks() []Track {
	return s.byKind(TrackKindVideo)
}

func (s *pcmStream) byKind(kind TrackKind) []Track {
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

func (s *pcmStream) Close() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
