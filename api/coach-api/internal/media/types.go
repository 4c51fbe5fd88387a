// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_media

import (
	"context"
	"errors"
)

// TrackKind distinguishes the media type a track carries.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Sentinel errors the broker needs to tell apart: a user declining the
// capture entirely versus sharing a source that carries no audio. The UI
// reacts differently to each ("allow access" vs "re-share with audio").
var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrNoAudioTrack     = errors.New("shared source has no audio track")
)

// Track is one live capture track delivering LINEAR16 PCM frames.
//
// Frames() is closed when the track ends, whether by Stop() or because the
// platform tore the capture down underneath us (device unplugged, user
// stopped sharing). OnEnded callbacks fire exactly once in either case.
type Track interface {
	Kind() TrackKind
	Label() string
	Frames() <-chan []byte
	OnEnded(fn func())
	Stop()
	Ended() bool
}

// Stream is a set of tracks acquired by a single capture request.
type Stream interface {
	AudioTracks() []Track
	VideoTracks() []Track
	Close()
}

// Constraints for microphone capture.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DisplayConstraints for screen/system-audio capture. WithVideo stays true
// even though the video is unused: some platforms refuse to expose shared
// audio unless video is requested alongside it.
type DisplayConstraints struct {
	WithVideo bool
	WithAudio bool
}

// Source is the platform media binding. The rotation/joiner logic above it
// never touches a concrete capture API, so bindings can be swapped without
// touching the pipeline.
type Source interface {
	OpenMicrophone(ctx context.Context, constraints Constraints) (Stream, error)
	OpenDisplay(ctx context.Context, constraints DisplayConstraints) (Stream, error)
}
