// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package internal_netprobe

import (
	"context"
	"sync"
	"time"

	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"github.com/coachlyai/pkg/utils"
	"github.com/go-resty/resty/v2"
)

// Snapshot is the sampler's current view, rendered by the status endpoint.
type Snapshot struct {
	Elapsed       time.Duration `json:"elapsed"`
	LatestScore   int           `json:"latestScore"`
	AverageScore  float64       `json:"averageScore"`
	SampleCount   int           `json:"sampleCount"`
	EffectiveType string        `json:"effectiveType"`
}

// Summary is the end-of-session aggregate persisted with the session record.
type Summary struct {
	AverageScore  float64
	MinScore      int
	MaxScore      int
	SampleCount   int
	EffectiveType string
}

// Sampler periodically measures a small HTTP round-trip and folds latency and
// throughput into a coarse 1-10 connection score. Display-only: it never
// gates or influences the recording pipeline, it just shares its lifecycle.
type Sampler struct {
	logger commons.Logger
	cfg    config.ProbeConfig
	client *resty.Client

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	startedAt time.Time
	latest    int
	total     int
	min       int
	max       int
	samples   int
	effective string
}

// NewSampler builds the probe against the configured ping resource.
func NewSampler(cfg config.ProbeConfig, logger commons.Logger) *Sampler {
	return &Sampler{
		logger: logger,
		cfg:    cfg,
		client: resty.New().SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second),
	}
}

// Start begins sampling. One immediate probe, then one per interval.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.startedAt = time.Now()
	s.latest = 0
	s.total = 0
	s.min = 0
	s.max = 0
	s.samples = 0
	s.effective = ""
	s.mu.Unlock()

	utils.Go(runCtx, func() {
		s.sample(runCtx)
		ticker := time.NewTicker(time.Duration(s.cfg.IntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sample(runCtx)
			case <-runCtx.Done():
				return
			}
		}
	})
}

// Stop halts sampling. The aggregate stays readable until the next Start.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// sample performs one round-trip and records its score. Probe failures score
// the floor value; they never interrupt anything.
func (s *Sampler) sample(ctx context.Context) {
	start := time.Now()
	response, err := s.client.R().SetContext(ctx).Get(s.cfg.Url)
	rtt := time.Since(start)

	score := 1
	effective := "offline"
	if err == nil && !response.IsError() {
		bodyBytes := len(response.Body())
		throughput := 0.0
		if rtt > 0 {
			throughput = float64(bodyBytes) / rtt.Seconds() // bytes/sec
		}
		score, effective = scoreConnection(rtt, throughput)
	} else if err != nil {
		s.logger.Debugf("connection probe failed: %v", err)
	}

	s.mu.Lock()
	s.latest = score
	s.total += score
	s.samples++
	if s.min == 0 || score < s.min {
		s.min = score
	}
	if score > s.max {
		s.max = score
	}
	s.effective = effective
	s.mu.Unlock()
}

// scoreConnection folds round-trip time and measured throughput into the
// 1-10 scale and a coarse connection label.
func scoreConnection(rtt time.Duration, throughput float64) (int, string) {
	score := 10
	switch {
	case rtt > 2*time.Second:
		score = 2
	case rtt > time.Second:
		score = 4
	case rtt > 500*time.Millisecond:
		score = 6
	case rtt > 200*time.Millisecond:
		score = 8
	}

	effective := "4g"
	switch {
	case rtt > time.Second || throughput < 4_000:
		effective = "2g"
		if score > 4 {
			score = 4
		}
	case rtt > 400*time.Millisecond || throughput < 60_000:
		effective = "3g"
		if score > 7 {
			score = 7
		}
	}

	if score < 1 {
		score = 1
	}
	return score, effective
}

// Snapshot returns the current view for the status endpoint.
func (s *Sampler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := Snapshot{
		LatestScore:   s.latest,
		SampleCount:   s.samples,
		EffectiveType: s.effective,
	}
	if !s.startedAt.IsZero() {
		snapshot.Elapsed = time.Since(s.startedAt)
	}
	if s.samples > 0 {
		snapshot.AverageScore = float64(s.total) / float64(s.samples)
	}
	return snapshot
}

// Summarize returns the aggregate for the session's connectivity record.
func (s *Sampler) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := Summary{
		MinScore:      s.min,
		MaxScore:      s.max,
		SampleCount:   s.samples,
		EffectiveType: s.effective,
	}
	if s.samples > 0 {
		summary.AverageScore = float64(s.total) / float64(s.samples)
	}
	return summary
}
