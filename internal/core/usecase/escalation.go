package usecase

import (
	"fmt"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

// EscalationPolicy decides whether a speculative result is good enough or
// the query should be promoted to the deep retrieval path.
type EscalationPolicy struct {
	target domain.Mode
}

// NewEscalationPolicy configures where FAST and BALANCED queries escalate
// to. DEEP is always terminal.
func NewEscalationPolicy(target domain.Mode) *EscalationPolicy {
	if target != domain.ModeBalanced && target != domain.ModeDeep {
		target = domain.ModeDeep
	}
	return &EscalationPolicy{target: target}
}

// Decide compares confidence against the live thresholds. The medium band
// accepts to bound latency but marks the outcome ambiguous so the tuner
// weighs its feedback more heavily.
func (p *EscalationPolicy) Decide(mode domain.Mode, result domain.SpeculativeResult, thresholds domain.ThresholdSet) (domain.Decision, bool) {
	if result.Confidence >= thresholds.ConfidenceHigh {
		return domain.DecisionAccept, false
	}
	if result.Confidence < thresholds.ConfidenceLow {
		if mode == domain.ModeDeep {
			// Terminal state: deep results are accepted as-is.
			return domain.DecisionAccept, true
		}
		return domain.DecisionEscalate, false
	}
	return domain.DecisionAccept, true
}

// Target returns the mode an escalated query is promoted to.
func (p *EscalationPolicy) Target(from domain.Mode) domain.Mode {
	if from == domain.ModeBalanced {
		return domain.ModeDeep
	}
	return p.target
}

// pipeline enforces the routing state machine: SPECULATED→ACCEPTED or
// SPECULATED→ESCALATED, ESCALATED→FUSED, FUSED→DONE, ACCEPTED→DONE.
// No state is ever revisited.
type pipeline struct {
	state domain.PipelineState
}

func newPipeline() *pipeline {
	return &pipeline{state: domain.StateSpeculated}
}

var pipelineTransitions = map[domain.PipelineState][]domain.PipelineState{
	domain.StateSpeculated: {domain.StateAccepted, domain.StateEscalated},
	domain.StateAccepted:   {domain.StateDone},
	domain.StateEscalated:  {domain.StateFused},
	domain.StateFused:      {domain.StateDone},
	domain.StateDone:       {},
}

func (p *pipeline) advance(next domain.PipelineState) error {
	for _, allowed := range pipelineTransitions[p.state] {
		if allowed == next {
			p.state = next
			return nil
		}
	}
	return fmt.Errorf("pipeline: illegal transition %s -> %s", p.state, next)
}
