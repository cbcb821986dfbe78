package models

import (
	"fmt"
	"sync"
)

// Phase is a step of the decision pipeline. Phases only move forward.
type Phase string

const (
	PhaseCollecting Phase = "Collecting"
	PhaseAnalyzing  Phase = "Analyzing"
	PhaseRiskGating Phase = "RiskGating"
	PhaseAssembling Phase = "Assembling"
	PhaseDone       Phase = "Done"
)

var phaseRank = map[Phase]int{
	PhaseCollecting: 0,
	PhaseAnalyzing:  1,
	PhaseRiskGating: 2,
	PhaseAssembling: 3,
	PhaseDone:       4,
}

// PipelineState is the per-run state shared by the graph nodes.
type PipelineState struct {
	mu sync.Mutex

	RunID   string
	Ticker  string
	phase   Phase
	history []Phase
	fatal   error
}

func NewPipelineState(runID, ticker string) *PipelineState {
	return &PipelineState{
		RunID:   runID,
		Ticker:  ticker,
		phase:   PhaseCollecting,
		history: []Phase{PhaseCollecting},
	}
}

func (s *PipelineState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *PipelineState) History() []Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Phase, len(s.history))
	copy(out, s.history)
	return out
}

// Advance moves the run to next. Re-entering the current phase or going back is an error.
func (s *PipelineState) Advance(next Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	to, ok := phaseRank[next]
	if !ok {
		return fmt.Errorf("unknown phase %q", next)
	}
	if s.fatal != nil {
		return fmt.Errorf("run aborted in phase %s: %w", s.phase, s.fatal)
	}
	if to <= phaseRank[s.phase] {
		return fmt.Errorf("illegal phase transition %s -> %s", s.phase, next)
	}
	s.phase = next
	s.history = append(s.history, next)
	return nil
}

// Fail records the first fatal error of the run.
func (s *PipelineState) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

func (s *PipelineState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}
