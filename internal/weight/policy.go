package weight

import (
	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/model"
)

// Policy computes a bet's draw weight from an agent's state and the bet's
// confidence. It is pure: no state, no side effects. Confidence downgrade
// for locked capabilities is the caller's decision, not the policy's.
type Policy struct {
	levels  []config.LevelRow
	weights config.WeightsConfig
}

// NewPolicy builds a policy from the configured tables.
func NewPolicy(engine config.EngineConfig) *Policy {
	return &Policy{
		levels:  engine.Levels,
		weights: engine.Weights,
	}
}

// Compute returns the weight for a bet by the given agent at the given
// confidence. Weights are strictly positive as long as the config
// validated (all multipliers > 0).
func (p *Policy) Compute(agent model.Agent, confidence model.Confidence) float64 {
	w := p.levelMultiplier(agent.Level)
	w *= p.weights.Confidence(confidence)
	if agent.Verified {
		w *= p.weights.Verified
	}
	return w
}

// CorrectAnswerBoost returns the one-time draw adjustment applied to bets
// whose declared answer matched a resolved topic. It never mutates the
// frozen submission-time weight.
func (p *Policy) CorrectAnswerBoost() float64 {
	return p.weights.CorrectAnswer
}

// levelMultiplier returns the multiplier of the highest table row at or
// below level.
func (p *Policy) levelMultiplier(level int) float64 {
	m := 1.0
	for _, row := range p.levels {
		if row.Level > level {
			break
		}
		m = row.WeightMultiplier
	}
	return m
}
