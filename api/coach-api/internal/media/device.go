// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_media

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"github.com/coachlyai/pkg/utils"
)

// ffmpegSource is the default Source binding: it shells out to ffmpeg for
// both the microphone and the system-audio loopback device, decoding to
// LINEAR16 PCM on stdout. One process per track; the process exiting for any
// reason ends the track, which is how out-of-band teardown (device unplugged,
// loopback revoked) surfaces to the broker.
type ffmpegSource struct {
	logger commons.Logger
	cfg    config.CaptureConfig
}

// NewFFmpegSource builds the ffmpeg-backed media source.
func NewFFmpegSource(cfg config.CaptureConfig, logger commons.Logger) Source {
	return &ffmpegSource{logger: logger, cfg: cfg}
}

// inputFormat returns the ffmpeg capture muxer for the host platform.
func inputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

// frameBytes is one 20ms LINEAR16 frame at the configured rate.
func frameBytes(cfg config.CaptureConfig) int {
	return int(cfg.SampleRate) * int(cfg.Channels) * 2 / 50
}

func (s *ffmpegSource) OpenMicrophone(ctx context.Context, constraints Constraints) (Stream, error) {
	var filters []string
	if constraints.NoiseSuppression {
		filters = append(filters, "afftdn")
	}
	if constraints.AutoGainControl {
		filters = append(filters, "dynaudnorm")
	}
	if constraints.EchoCancellation {
		// No portable ffmpeg AEC filter; the loopback device is already
		// excluded from the mic input so echo is tolerable without it.
		s.logger.Debugf("echo cancellation requested but not supported by ffmpeg binding")
	}

	track, err := s.openDevice(ctx, s.cfg.MicrophoneDevice, "microphone", filters)
	if err != nil {
		return nil, err
	}
	return NewStream(track), nil
}

func (s *ffmpegSource) OpenDisplay(ctx context.Context, constraints DisplayConstraints) (Stream, error) {
	if !constraints.WithAudio {
		return NewStream(), nil
	}
	// The ffmpeg binding has no video leg: the loopback device carries audio
	// only, so a requested video track simply comes back absent and the
	// broker's discard step is a no-op here.
	if s.cfg.SystemDevice == "" {
		// Selected share has no audio source. Returned stream carries zero
		// audio tracks; the broker converts that into ErrNoAudioTrack.
		return NewStream(), nil
	}

	track, err := s.openDevice(ctx, s.cfg.SystemDevice, "system", nil)
	if err != nil {
		return nil, err
	}
	return NewStream(track), nil
}

// openDevice spawns one ffmpeg capture process and pumps fixed-size PCM
// frames into a track until the process exits.
func (s *ffmpegSource) openDevice(ctx context.Context, device, label string, filters []string) (*PCMTrack, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", inputFormat(),
		"-i", device,
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}
	args = append(args,
		"-ac", fmt.Sprintf("%d", s.cfg.Channels),
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRate),
		"-f", "s16le",
		"pipe:1",
	)

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe for %s: %w", label, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg capture for %s (%s): %w", label, device, err)
	}

	track := NewPCMTrack(TrackKindAudio, label, 0)
	track.SetStopFunc(func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})

	frameSize := frameBytes(s.cfg)
	utils.Go(ctx, func() {
		defer func() {
			_ = cmd.Wait()
			track.End()
		}()
		frame := make([]byte, frameSize)
		for {
			if _, err := io.ReadFull(stdout, frame); err != nil {
				if err != io.EOF && err != io.ErrUnexpectedEOF {
					s.logger.Warnf("%s capture read ended: %v", label, err)
				}
				return
			}
			buf := make([]byte, frameSize)
			copy(buf, frame)
			if !track.Push(buf) {
				return
			}
		}
	})

	s.logger.Infof("opened %s capture device %s (%dHz, %dch)",
		label, device, s.cfg.SampleRate, s.cfg.Channels)
	return track, nil
}
