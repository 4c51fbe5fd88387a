// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_capture

import (
	"sync"
	"time"

	"github.com/coachlyai/pkg/commons"
)

// SegmentUpload is one fully-joined segment ready for the analysis webhook.
type SegmentUpload struct {
	Segment    int
	Microphone []byte
	System     []byte
	HasSystem  bool
	Recorded   time.Time
}

// Joiner correlates the two independently-timed flushes that share a segment
// number and releases exactly one combined upload per number.
//
// Each audio type has a single pending slot holding at most one undelivered
// chunk; a later chunk for the same type overwrites rather than queues
// (last-writer-wins). Matching is exact on segment number — a straggler chunk
// for an old segment that never finds its pair is silently dropped when the
// next segment's chunk lands on the same slot.
type Joiner struct {
	logger commons.Logger
	emit   func(SegmentUpload)

	mu             sync.Mutex
	systemExpected bool
	micPending     *Chunk
	sysPending     *Chunk
}

// NewJoiner wires a joiner to its upload sink.
func NewJoiner(logger commons.Logger, emit func(SegmentUpload)) *Joiner {
	return &Joiner{
		logger: logger,
		emit:   emit,
	}
}

// SetSystemExpected flips whether release waits for a system chunk. Turning
// it off mid-session (share revoked) re-evaluates immediately so a microphone
// chunk stalled on its missing pair is released instead of waiting forever.
func (j *Joiner) SetSystemExpected(expected bool) {
	j.mu.Lock()
	j.systemExpected = expected
	upload := j.evaluateLocked()
	j.mu.Unlock()

	if upload != nil {
		j.emit(*upload)
	}
}

// OnChunk stores the incoming chunk in its slot and releases the combined
// upload if the required chunks for that segment number are now present.
func (j *Joiner) OnChunk(chunk Chunk) {
	j.mu.Lock()
	switch chunk.Type {
	case AudioMicrophone:
		if j.micPending != nil {
			j.logger.Warnf("overwriting unpaired microphone chunk for segment %d with segment %d",
				j.micPending.Segment, chunk.Segment)
		}
		c := chunk
		j.micPending = &c
	case AudioSystem:
		if j.sysPending != nil {
			j.logger.Warnf("overwriting unpaired system chunk for segment %d with segment %d",
				j.sysPending.Segment, chunk.Segment)
		}
		c := chunk
		j.sysPending = &c
	default:
		j.mu.Unlock()
		return
	}
	upload := j.evaluateLocked()
	j.mu.Unlock()

	if upload != nil {
		j.emit(*upload)
	}
}

// evaluateLocked applies the release condition: a microphone chunk is present
// AND (system audio is not expected OR the system chunk for the same segment
// number is present). Both slots are cleared on release.
func (j *Joiner) evaluateLocked() *SegmentUpload {
	if j.micPending == nil {
		return nil
	}
	withSystem := false
	if j.systemExpected {
		if j.sysPending == nil || j.sysPending.Segment != j.micPending.Segment {
			return nil
		}
		withSystem = true
	} else if j.sysPending != nil && j.sysPending.Segment == j.micPending.Segment {
		// System chunk arrived before the share-revoked signal; still pair it.
		withSystem = true
	}

	upload := &SegmentUpload{
		Segment:    j.micPending.Segment,
		Microphone: j.micPending.WAV,
		HasSystem:  withSystem,
		Recorded:   j.micPending.Recorded,
	}
	if withSystem {
		upload.System = j.sysPending.WAV
		j.sysPending = nil
	}
	j.micPending = nil
	return upload
}

// Reset clears both pending slots. Called on session stop so no leftover
// chunk leaks into the next session.
func (j *Joiner) Reset() {
	j.mu.Lock()
	j.micPending = nil
	j.sysPending = nil
	j.systemExpected = false
	j.mu.Unlock()
}
