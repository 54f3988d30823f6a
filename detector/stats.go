package detector

import (
	"sync"
	"time"
)

// Pipeline stage names reported by Stats.
const (
	StageConvert   = "convert"
	StageInference = "inference"
	StageDecode    = "decode"
)

// StageReport is an aggregate of one pipeline stage's timings.
type StageReport struct {
	Count int64
	Mean  time.Duration
	Max   time.Duration
}

// Stats aggregates per-stage pipeline timings across frames. Safe for
// concurrent use, so several Detectors can share one instance.
type Stats struct {
	mu     sync.Mutex
	stages map[string]*stageStats
}

type stageStats struct {
	count int64
	total time.Duration
	max   time.Duration
}

// NewStats creates an empty timing aggregate.
func NewStats() *Stats {
	return &Stats{stages: make(map[string]*stageStats)}
}

// Observe records one duration for a stage.
func (s *Stats) Observe(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stages[stage]
	if st == nil {
		st = &stageStats{}
		s.stages[stage] = st
	}
	st.count++
	st.total += d
	if d > st.max {
		st.max = d
	}
}

// Snapshot returns the aggregate per stage at this moment.
func (s *Stats) Snapshot() map[string]StageReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]StageReport, len(s.stages))
	for name, st := range s.stages {
		report := StageReport{Count: st.count, Max: st.max}
		if st.count > 0 {
			report.Mean = st.total / time.Duration(st.count)
		}
		out[name] = report
	}
	return out
}

// observe is the nil-safe recording hook used inside the pipeline.
func (s *Stats) observe(stage string, start time.Time) {
	if s == nil {
		return
	}
	s.Observe(stage, time.Since(start))
}
