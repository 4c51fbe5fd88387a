// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_media

import (
	"context"
	"sync"

	"github.com/coachlyai/pkg/commons"
)

// Broker acquires and caches the two capture streams the pipeline needs,
// decoupled from recording start so the user can grant access ahead of time.
//
// Acquisition failures are terminal for that attempt: the broker never
// re-prompts on its own, the caller re-requests on user action. Streams are
// cached across recorder restarts and across sessions — session stop does NOT
// release them, only Release() at daemon shutdown does, so the grant survives
// for the next session.
type Broker struct {
	logger commons.Logger
	source Source

	mu              sync.Mutex
	mic             Stream
	system          Stream
	systemAvailable bool
	lastSystemErr   error

	micEndedFns    []func()
	systemEndedFns []func()
}

// NewBroker wires a broker over the given source binding.
func NewBroker(source Source, logger commons.Logger) *Broker {
	return &Broker{
		logger: logger,
		source: source,
	}
}

// RequestMicrophone opens the microphone with echo cancellation, noise
// suppression and auto gain. Returns false on denial or platform error,
// never an error value.
func (b *Broker) RequestMicrophone(ctx context.Context) bool {
	b.mu.Lock()
	if b.mic != nil && len(b.mic.AudioTracks()) > 0 && !b.mic.AudioTracks()[0].Ended() {
		b.mu.Unlock()
		return true
	}
	b.mu.Unlock()

	stream, err := b.source.OpenMicrophone(ctx, Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	})
	if err != nil {
		b.logger.Errorf("microphone acquisition failed: %v", err)
		return false
	}

	b.mu.Lock()
	b.mic = stream
	b.mu.Unlock()

	for _, track := range stream.AudioTracks() {
		track.OnEnded(b.fireMicEnded)
	}
	b.logger.Infof("microphone stream acquired (%d audio tracks)", len(stream.AudioTracks()))
	return true
}

// RequestSystemAudio opens the display share with both video and audio, then
// immediately stops and discards the video tracks. A share that came back
// with zero audio tracks is stopped in full and reported as ErrNoAudioTrack
// so the UI can tell the user to re-share with audio enabled — distinctly
// from an outright denial.
func (b *Broker) RequestSystemAudio(ctx context.Context) bool {
	stream, err := b.source.OpenDisplay(ctx, DisplayConstraints{
		WithVideo: true,
		WithAudio: true,
	})
	if err != nil {
		b.logger.Errorf("system audio acquisition failed: %v", err)
		b.setSystemError(err)
		return false
	}

	// Video was only requested to unlock audio sharing; release it now.
	for _, track := range stream.VideoTracks() {
		track.Stop()
	}

	audioTracks := stream.AudioTracks()
	if len(audioTracks) == 0 {
		// No dangling capture: every track of the rejected stream is stopped.
		stream.Close()
		b.logger.Warnf("display share carried no audio track")
		b.setSystemError(ErrNoAudioTrack)
		return false
	}

	b.mu.Lock()
	b.system = stream
	b.systemAvailable = true
	b.lastSystemErr = nil
	b.mu.Unlock()

	for _, track := range audioTracks {
		track.OnEnded(b.onSystemTrackEnded)
	}
	b.logger.Infof("system audio stream acquired (%d audio tracks)", len(audioTracks))
	return true
}

func (b *Broker) setSystemError(err error) {
	b.mu.Lock()
	b.lastSystemErr = err
	b.systemAvailable = false
	b.mu.Unlock()
}

// onSystemTrackEnded handles the user revoking the share out-of-band. This is
// a state transition, not an error: recording continues microphone-only.
func (b *Broker) onSystemTrackEnded() {
	b.mu.Lock()
	if !b.systemAvailable {
		b.mu.Unlock()
		return
	}
	b.systemAvailable = false
	b.system = nil
	fns := b.systemEndedFns
	b.mu.Unlock()

	b.logger.Warnf("system audio track ended, continuing microphone-only")
	for _, fn := range fns {
		fn()
	}
}

func (b *Broker) fireMicEnded() {
	b.mu.Lock()
	fns := b.micEndedFns
	b.mu.Unlock()
	b.logger.Errorf("microphone track ended unexpectedly")
	for _, fn := range fns {
		fn()
	}
}

// OnMicrophoneEnded registers a callback for unexpected microphone loss.
func (b *Broker) OnMicrophoneEnded(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.micEndedFns = append(b.micEndedFns, fn)
}

// OnSystemAudioEnded registers a callback for out-of-band share revocation.
func (b *Broker) OnSystemAudioEnded(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.systemEndedFns = append(b.systemEndedFns, fn)
}

// HasMicrophone reports whether a live microphone stream is cached.
func (b *Broker) HasMicrophone() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mic == nil {
		return false
	}
	tracks := b.mic.AudioTracks()
	return len(tracks) > 0 && !tracks[0].Ended()
}

// HasSystemAudio reports whether a live system-audio stream is cached.
func (b *Broker) HasSystemAudio() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.systemAvailable && b.system != nil
}

// MicrophoneTrack returns the primary microphone track, or nil.
func (b *Broker) MicrophoneTrack() Track {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mic == nil {
		return nil
	}
	tracks := b.mic.AudioTracks()
	if len(tracks) == 0 {
		return nil
	}
	return tracks[0]
}

// SystemAudioTrack returns the primary system-audio track, or nil.
func (b *Broker) SystemAudioTrack() Track {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.system == nil || !b.systemAvailable {
		return nil
	}
	tracks := b.system.AudioTracks()
	if len(tracks) == 0 {
		return nil
	}
	return tracks[0]
}

// LastSystemAudioError reports why the last system-audio request failed.
// ErrNoAudioTrack means "shared without audio"; anything else is denial or a
// platform error.
func (b *Broker) LastSystemAudioError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSystemErr
}

// Release stops every cached track. Daemon shutdown only.
func (b *Broker) Release() {
	b.mu.Lock()
	mic, system := b.mic, b.system
	b.mic = nil
	b.system = nil
	b.systemAvailable = false
	b.mu.Unlock()

	if mic != nil {
		mic.Close()
	}
	if system != nil {
		system.Close()
	}
}
