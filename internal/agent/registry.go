package agent

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/model"
)

// Registry errors. NotFound and the policy violations map onto the
// engine's error taxonomy; callers match with errors.Is.
var (
	ErrAgentNotFound     = errors.New("agent not found")
	ErrFeatureLocked     = errors.New("feature not unlocked")
	ErrInsufficientStake = errors.New("stake below validator minimum")
	ErrSelfDelegation    = errors.New("cannot delegate to self")
	ErrDelegationCycle   = errors.New("delegation would form a cycle")
)

// Registry owns all Agent records for the process lifetime. Agents are
// created on first reference and never deleted.
//
// Every mutation, including the streak read-modify-writes issued by
// settlement, runs under the registry mutex, so concurrent settlements
// cannot lose streak updates for an agent who bet in both epochs.
type Registry struct {
	mu         sync.RWMutex
	agents     map[string]*model.Agent
	delegators map[string]map[string]struct{} // toID -> set of delegating fromIDs

	levels   []config.LevelRow
	rowCaps  []model.CapabilitySet // resolved capabilities per level row
	xp       config.XPConfig
	minStake int64
	referral float64

	logger *slog.Logger
}

// NewRegistry creates a registry from a validated engine configuration.
func NewRegistry(engine config.EngineConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	rowCaps := make([]model.CapabilitySet, len(engine.Levels))
	for i, row := range engine.Levels {
		caps, _ := row.Capabilities() // validated at config load
		rowCaps[i] = caps
	}

	return &Registry{
		agents:     make(map[string]*model.Agent),
		delegators: make(map[string]map[string]struct{}),
		levels:     engine.Levels,
		rowCaps:    rowCaps,
		xp:         engine.XP,
		minStake:   engine.Validator.MinStake,
		referral:   engine.ReferralBonus,
		logger:     logger,
	}
}

// GetOrCreate returns the agent with the given id, creating it on first
// reference. A resolvable referrer is credited one-way; an unknown
// referrer is ignored. Idempotent: an existing agent is returned as-is.
func (r *Registry) GetOrCreate(id, name, handle, referrerID string) model.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.agents[id]; ok {
		return *a
	}

	if referrerID != "" {
		if ref, ok := r.agents[referrerID]; ok {
			ref.Stats.ReferralCount++
			ref.Stats.ReferralBonus += r.referral
		}
	}

	a := &model.Agent{
		ID:           id,
		Name:         name,
		Handle:       handle,
		ReferrerID:   referrerID,
		RegisteredAt: time.Now(),
		Level:        r.levels[0].Level,
		Unlocked:     r.capsForLevel(r.levels[0].Level),
	}
	r.agents[id] = a

	r.logger.Debug("agent registered", "agent_id", id, "name", name, "referrer", referrerID)
	return *a
}

// View returns a copy of the agent, if known.
func (r *Registry) View(id string) (model.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return model.Agent{}, false
	}
	return *a, true
}

// Verify marks an agent verified. Verification is one-way: re-verifying is
// a no-op returning true, an unknown agent returns false.
func (r *Registry) Verify(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return false
	}
	a.Verified = true
	return true
}

// AddExperience credits experience and recomputes level and unlocked
// capabilities. Unknown agents are a silent no-op so caller retries stay
// idempotent. Level never decreases; capabilities never shrink.
func (r *Registry) AddExperience(id string, amount int64, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return
	}
	r.addExperienceLocked(a, amount, reason)
}

// StakeAsValidator marks the agent as a validator and accumulates its
// collateral.
func (r *Registry) StakeAsValidator(id string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if amount < r.minStake {
		return ErrInsufficientStake
	}
	if !a.Unlocked.Has(model.CapValidator) {
		return ErrFeatureLocked
	}

	a.IsValidator = true
	a.StakeAmount += amount
	a.Stats.TotalStaked += amount

	r.logger.Info("validator staked", "agent_id", id, "amount", amount, "total", a.StakeAmount)
	return nil
}

// Delegate points from's single outgoing delegation edge at to, replacing
// any prior edge, and credits experience to both parties. The target must
// have unlocked delegation. Two-cycles are rejected: if the target already
// delegates back to from, the edge would loop.
func (r *Registry) Delegate(fromID, toID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fromID == toID {
		return ErrSelfDelegation
	}

	from, ok := r.agents[fromID]
	if !ok {
		return ErrAgentNotFound
	}
	to, ok := r.agents[toID]
	if !ok {
		return ErrAgentNotFound
	}
	if !to.Unlocked.Has(model.CapDelegate) {
		return ErrFeatureLocked
	}
	if to.DelegatingTo == fromID {
		return ErrDelegationCycle
	}

	// Drop the previous edge, if any.
	if prev := from.DelegatingTo; prev != "" {
		if set, ok := r.delegators[prev]; ok {
			delete(set, fromID)
		}
	}

	from.DelegatingTo = toID
	if r.delegators[toID] == nil {
		r.delegators[toID] = make(map[string]struct{})
	}
	r.delegators[toID][fromID] = struct{}{}

	r.addExperienceLocked(from, r.xp.Delegated, "delegated")
	r.addExperienceLocked(to, r.xp.Delegated, "received delegation")

	return nil
}

// RecordBet bumps the agent's bet counter.
func (r *Registry) RecordBet(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.agents[id]; ok {
		a.Stats.TotalBets++
	}
}

// RecordWin applies all winner-side bookkeeping as one atomic transition:
// win counters, earnings, streak increment (and max), and the win/streak
// experience awards. Returns the agent's new streak.
func (r *Registry) RecordWin(id string, prize int64, highConfidence, correct bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return 0
	}

	a.Stats.TotalWins++
	a.Stats.TotalEarnings += prize
	if correct {
		a.Stats.CorrectPredictions++
	}

	a.Streak++
	if a.Streak > a.MaxStreak {
		a.MaxStreak = a.Streak
	}

	r.addExperienceLocked(a, r.xp.Win, "won epoch")
	if highConfidence {
		r.addExperienceLocked(a, r.xp.HighConfidenceWin, "high confidence win")
	}
	r.addExperienceLocked(a, int64(a.Streak)*r.xp.StreakStep, "streak bonus")

	return a.Streak
}

// RecordCorrect bumps the correct-prediction counter for an agent whose
// declared answer matched a resolved topic without winning the draw.
func (r *Registry) RecordCorrect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.agents[id]; ok {
		a.Stats.CorrectPredictions++
	}
}

// ResetStreak zeroes the agent's consecutive-win streak. MaxStreak keeps
// its historical value.
func (r *Registry) ResetStreak(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.agents[id]; ok {
		a.Streak = 0
	}
}

// DelegatorCount returns how many agents delegate to id.
func (r *Registry) DelegatorCount(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.delegators[id])
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Status returns the read-only snapshot served to callers.
func (r *Registry) Status(id string) (model.AgentStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return model.AgentStatus{}, false
	}

	return model.AgentStatus{
		ID:           a.ID,
		Name:         a.Name,
		Level:        a.Level,
		Experience:   a.Experience,
		NextLevelXP:  r.nextLevelXP(a.Experience),
		Streak:       a.Streak,
		MaxStreak:    a.MaxStreak,
		Verified:     a.Verified,
		IsValidator:  a.IsValidator,
		StakeAmount:  a.StakeAmount,
		Capabilities: a.Unlocked.Names(),
		Delegators:   len(r.delegators[a.ID]),
		Stats:        a.Stats,
	}, true
}

// addExperienceLocked credits experience and applies level/capability
// consequences. Caller must hold the write lock.
func (r *Registry) addExperienceLocked(a *model.Agent, amount int64, reason string) {
	if amount <= 0 {
		return
	}
	a.Experience += amount

	if lvl := r.levelFor(a.Experience); lvl > a.Level {
		a.Level = lvl
	}
	// Union, never replace: capabilities are monotone even if the level
	// table changes underneath a running process.
	a.Unlocked = a.Unlocked.Union(r.capsForLevel(a.Level))

	r.logger.Debug("experience added",
		"agent_id", a.ID,
		"amount", amount,
		"reason", reason,
		"total", a.Experience,
		"level", a.Level,
	)
}

// levelFor returns the highest configured level whose threshold is at or
// below xp.
func (r *Registry) levelFor(xp int64) int {
	level := r.levels[0].Level
	for _, row := range r.levels {
		if xp >= row.XP {
			level = row.Level
		}
	}
	return level
}

// capsForLevel unions the capabilities of every row at or below level, so
// a jump across several thresholds still unlocks the intermediate rows.
func (r *Registry) capsForLevel(level int) model.CapabilitySet {
	var set model.CapabilitySet
	for i, row := range r.levels {
		if row.Level > level {
			break
		}
		set = set.Union(r.rowCaps[i])
	}
	return set
}

// nextLevelXP returns the threshold of the next level row above xp, or -1
// at the top of the table.
func (r *Registry) nextLevelXP(xp int64) int64 {
	for _, row := range r.levels {
		if xp < row.XP {
			return row.XP
		}
	}
	return -1
}
