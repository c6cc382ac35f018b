package epoch

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	mathrand "math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/model"
	"github.com/ahl-labs/lotteryd/internal/weight"
)

// Store errors.
var (
	ErrEpochNotFound     = errors.New("epoch not found")
	ErrEpochClosed       = errors.New("epoch already closed")
	ErrStakeTooSmall     = errors.New("stake below minimum")
	ErrInvalidConfidence = errors.New("invalid confidence level")
	ErrAgentUnknown      = errors.New("agent unknown to registry")
)

// AgentView is the read-only registry view the store needs to weigh bets.
type AgentView interface {
	View(id string) (model.Agent, bool)
}

// Store owns all Epoch and Bet records for the process lifetime.
//
// The top-level mutex guards only the epoch map; each epoch carries its
// own mutex, so bets on different epochs never contend while a single
// epoch's bet list and status transitions stay serialized.
type Store struct {
	mu     sync.RWMutex
	epochs map[string]*epochState

	agents   AgentView
	policy   *weight.Policy
	minStake int64
	topics   []model.Topic

	logger *slog.Logger
}

type epochState struct {
	mu sync.Mutex
	e  model.Epoch
}

// NewStore creates an epoch store from a validated engine configuration.
func NewStore(engine config.EngineConfig, agents AgentView, policy *weight.Policy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	topics := make([]model.Topic, len(engine.Topics))
	for i, t := range engine.Topics {
		topics[i] = model.Topic{Question: t.Question, Category: t.Category}
	}

	return &Store{
		epochs:   make(map[string]*epochState),
		agents:   agents,
		policy:   policy,
		minStake: engine.Epoch.MinStake,
		topics:   topics,
		logger:   logger,
	}
}

// Open creates a new epoch with the given external seed, a fresh local
// salt, and a topic drawn uniformly from the configured pool.
func (s *Store) Open(externalSeed string) model.Epoch {
	salt := make([]byte, 16)
	rand.Read(salt)

	e := model.Epoch{
		ID:           uuid.NewString(),
		ExternalSeed: externalSeed,
		LocalSalt:    hex.EncodeToString(salt),
		Topic:        s.topics[mathrand.IntN(len(s.topics))],
		Status:       model.EpochOpen,
		OpenedAt:     time.Now(),
	}

	s.mu.Lock()
	s.epochs[e.ID] = &epochState{e: e}
	s.mu.Unlock()

	s.logger.Info("epoch opened",
		"epoch_id", e.ID,
		"topic", e.Topic.Question,
		"seed", truncate(externalSeed, 20),
	)
	return e
}

// Get returns a copy of the epoch, if known.
func (s *Store) Get(id string) (model.Epoch, bool) {
	st, ok := s.lookup(id)
	if !ok {
		return model.Epoch{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return copyEpoch(&st.e), true
}

// PlaceBet validates and appends a bet to an open epoch. The bet's weight
// is computed once here and frozen. All checks run before any mutation,
// so a rejected bet leaves the epoch untouched.
func (s *Store) PlaceBet(epochID, agentID, prediction, declaredAnswer string, confidence model.Confidence, stake int64) (model.Bet, error) {
	if !confidence.Valid() {
		return model.Bet{}, ErrInvalidConfidence
	}
	if stake < s.minStake {
		return model.Bet{}, ErrStakeTooSmall
	}

	st, ok := s.lookup(epochID)
	if !ok {
		return model.Bet{}, ErrEpochNotFound
	}

	agent, ok := s.agents.View(agentID)
	if !ok {
		return model.Bet{}, ErrAgentUnknown
	}

	// High confidence is gated by level; downgrade rather than reject.
	if confidence == model.ConfidenceHigh && !agent.Unlocked.Has(model.CapHighConfidence) {
		confidence = model.ConfidenceMedium
	}

	bet := model.Bet{
		ID:             uuid.NewString(),
		AgentID:        agentID,
		Prediction:     prediction,
		DeclaredAnswer: declaredAnswer,
		Confidence:     confidence,
		Stake:          stake,
		Weight:         s.policy.Compute(agent, confidence),
		SubmittedAt:    time.Now(),
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.e.Status != model.EpochOpen {
		return model.Bet{}, ErrEpochClosed
	}

	st.e.Bets = append(st.e.Bets, bet)
	st.e.TotalStake += stake

	s.logger.Debug("bet placed",
		"epoch_id", epochID,
		"bet_id", bet.ID,
		"agent_id", agentID,
		"stake", stake,
		"weight", bet.Weight,
	)
	return bet, nil
}

// ResolveTopic supplies the ground-truth answer for an epoch's topic.
// Settlement uses it for the correct-answer draw boost. Only open epochs
// can still be resolved.
func (s *Store) ResolveTopic(id, answer string) error {
	st, ok := s.lookup(id)
	if !ok {
		return ErrEpochNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.e.Status != model.EpochOpen {
		return ErrEpochClosed
	}
	st.e.Topic.Answer = answer
	return nil
}

// BeginSettlement atomically transitions the epoch Open -> Closed and
// returns a snapshot for the settlement computation. Exactly one caller
// can ever succeed per epoch; later calls get ErrEpochClosed. A failed
// precondition leaves the epoch unchanged.
func (s *Store) BeginSettlement(id string) (model.Epoch, error) {
	st, ok := s.lookup(id)
	if !ok {
		return model.Epoch{}, ErrEpochNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.e.Status != model.EpochOpen {
		return model.Epoch{}, ErrEpochClosed
	}
	st.e.Status = model.EpochClosed

	return copyEpoch(&st.e), nil
}

// CompleteSettlement writes the settlement fields exactly once and flags
// the bets whose declared answer matched. Callable only by the single
// BeginSettlement winner; a second write is refused.
func (s *Store) CompleteSettlement(id string, res model.SettlementResult, correctBetIDs map[string]bool) error {
	st, ok := s.lookup(id)
	if !ok {
		return ErrEpochNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.e.Digest != "" {
		return ErrEpochClosed
	}

	st.e.WinningTier = res.Tier
	st.e.WinnerBetID = res.WinnerBetID
	st.e.Prize = res.Prize
	st.e.Digest = res.Digest
	st.e.SettledAt = res.SettledAt

	for i := range st.e.Bets {
		if correctBetIDs[st.e.Bets[i].ID] {
			st.e.Bets[i].IsCorrect = true
		}
	}
	return nil
}

// OpenCount returns the number of epochs still accepting bets.
func (s *Store) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, st := range s.epochs {
		st.mu.Lock()
		if st.e.Status == model.EpochOpen {
			n++
		}
		st.mu.Unlock()
	}
	return n
}

func (s *Store) lookup(id string) (*epochState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.epochs[id]
	return st, ok
}

func copyEpoch(e *model.Epoch) model.Epoch {
	out := *e
	out.Bets = make([]model.Bet, len(e.Bets))
	copy(out.Bets, e.Bets)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
