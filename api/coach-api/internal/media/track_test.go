// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMTrackDeliversFrames(t *testing.T) {
	track := NewPCMTrack(TrackKindAudio, "mic", 4)

	assert.True(t, track.Push([]byte{1, 2}))
	assert.True(t, track.Push([]byte{3, 4}))

	frame := <-track.Frames()
	assert.Equal(t, []byte{1, 2}, frame)
	frame = <-track.Frames()
	assert.Equal(t, []byte{3, 4}, frame)
}

func TestPCMTrackDropsFramesWhenFull(t *testing.T) {
	track := NewPCMTrack(TrackKindAudio, "mic", 1)

	assert.True(t, track.Push([]byte{1}))
	// Buffer is full; the frame is dropped but the track stays live.
	assert.True(t, track.Push([]byte{2}))

	assert.Equal(t, []byte{1}, <-track.Frames())
	select {
	case frame := <-track.Frames():
		t.Fatalf("expected dropped frame, got %v", frame)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPCMTrackEndClosesFrames(t *testing.T) {
	track := NewPCMTrack(TrackKindAudio, "mic", 4)

	fired := 0
	track.OnEnded(func() { fired++ })

	track.End()
	track.End() // idempotent

	assert.True(t, track.Ended())
	assert.Equal(t, 1, fired)
	assert.False(t, track.Push([]byte{1}))

	_, open := <-track.Frames()
	assert.False(t, open)
}

func TestPCMTrackOnEndedAfterEndFiresImmediately(t *testing.T) {
	track := NewPCMTrack(TrackKindAudio, "mic", 4)
	track.End()

	fired := false
	track.OnEnded(func() { fired = true })
	assert.True(t, fired)
}

func TestPCMTrackStopRunsProducerTeardown(t *testing.T) {
	track := NewPCMTrack(TrackKindAudio, "mic", 4)

	stopped := false
	track.SetStopFunc(func() { stopped = true })

	track.Stop()
	assert.True(t, stopped)
	assert.True(t, track.Ended())
}

func TestStreamGroupsTracksByKind(t *testing.T) {
	audio := NewPCMTrack(TrackKindAudio, "mic", 1)
	video := NewPCMTrack(TrackKindVideo, "screen", 1)
	stream := NewStream(audio, video)

	require.Len(t, stream.AudioTracks(), 1)
	require.Len(t, stream.VideoTracks(), 1)
	assert.Equal(t, "mic", stream.AudioTracks()[0].Label())

	stream.Close()
	assert.True(t, audio.Ended())
	assert.True(t, video.Ended())
}
