package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/ahl-labs/lotteryd/internal/agent"
	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/epoch"
	"github.com/ahl-labs/lotteryd/internal/model"
	"github.com/ahl-labs/lotteryd/internal/season"
	"github.com/ahl-labs/lotteryd/internal/weight"
)

type captureSink struct {
	mu      sync.Mutex
	opened  []model.Epoch
	results []model.SettlementResult
}

func (c *captureSink) EmitEpochOpened(e model.Epoch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, e)
}

func (c *captureSink) EmitSettlement(res model.SettlementResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
}

func (c *captureSink) openedEpochs() []model.Epoch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Epoch(nil), c.opened...)
}

func (c *captureSink) all() []model.SettlementResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.SettlementResult(nil), c.results...)
}

type harness struct {
	service *Service
	agents  *agent.Registry
	epochs  *epoch.Store
	board   *season.Board
	sink    *captureSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	agents := agent.NewRegistry(cfg.Engine, nil)
	policy := weight.NewPolicy(cfg.Engine)
	epochs := epoch.NewStore(cfg.Engine, agents, policy, nil)
	board := season.NewBoard(cfg.Engine.Season.Duration)
	sink := &captureSink{}
	seeds := SeedFunc(func(context.Context) string { return "0000000000000000000000000000feed" })

	return &harness{
		service: NewService(cfg.Engine, agents, epochs, board, seeds, []Sink{sink}, nil),
		agents:  agents,
		epochs:  epochs,
		board:   board,
		sink:    sink,
	}
}

func (h *harness) placeBet(t *testing.T, epochID, agentID string, stake int64) model.Bet {
	t.Helper()

	bet, err := h.service.PlaceBet(BetRequest{
		EpochID:    epochID,
		AgentID:    agentID,
		AgentName:  "agent " + agentID,
		Prediction: "Yes",
		Confidence: model.ConfidenceMedium,
		Stake:      stake,
	})
	if err != nil {
		t.Fatalf("PlaceBet(%s) error = %v", agentID, err)
	}
	return bet
}

func TestService_OpenEpochAnnouncedToSinks(t *testing.T) {
	h := newHarness(t)

	e := h.service.OpenEpoch(context.Background())

	opened := h.sink.openedEpochs()
	if len(opened) != 1 {
		t.Fatalf("sink saw %d epoch-open events, want 1", len(opened))
	}
	if opened[0].ID != e.ID {
		t.Errorf("announced epoch = %s, want %s", opened[0].ID, e.ID)
	}
	if opened[0].Topic.Question == "" {
		t.Error("announced epoch carries no topic")
	}
	if len(h.sink.all()) != 0 {
		t.Error("opening an epoch emitted a settlement")
	}
}

func TestService_PlaceBetRegistersAgent(t *testing.T) {
	h := newHarness(t)
	e := h.service.OpenEpoch(context.Background())

	h.placeBet(t, e.ID, "a1", 500)

	status, ok := h.service.AgentStatus("a1")
	if !ok {
		t.Fatal("agent not registered by PlaceBet")
	}
	if status.Experience != 5 {
		t.Errorf("Experience = %d, want 5 (participation)", status.Experience)
	}
	if status.Stats.TotalBets != 1 {
		t.Errorf("TotalBets = %d, want 1", status.Stats.TotalBets)
	}
	if h.board.Size() != 1 {
		t.Errorf("season board size = %d, want 1", h.board.Size())
	}
}

func TestService_PlaceBetRejectionChangesNothing(t *testing.T) {
	h := newHarness(t)
	e := h.service.OpenEpoch(context.Background())

	_, err := h.service.PlaceBet(BetRequest{
		EpochID:    e.ID,
		AgentID:    "a1",
		AgentName:  "alpha",
		Prediction: "Yes",
		Confidence: model.ConfidenceMedium,
		Stake:      99, // below minimum
	})
	if !errors.Is(err, epoch.ErrStakeTooSmall) {
		t.Fatalf("error = %v, want ErrStakeTooSmall", err)
	}

	if status, ok := h.service.AgentStatus("a1"); ok {
		// Registration happens first and is fine, but no bet bookkeeping.
		if status.Stats.TotalBets != 0 || status.Experience != 0 {
			t.Errorf("rejected bet left bookkeeping: bets=%d xp=%d", status.Stats.TotalBets, status.Experience)
		}
	}
	got, _ := h.service.Epoch(e.ID)
	if got.TotalStake != 0 || len(got.Bets) != 0 {
		t.Errorf("rejected bet mutated epoch: stake=%d bets=%d", got.TotalStake, len(got.Bets))
	}
}

func TestService_SettleAtMostOnce(t *testing.T) {
	h := newHarness(t)
	e := h.service.OpenEpoch(context.Background())
	h.placeBet(t, e.ID, "a1", 1000)

	if _, err := h.service.Settle(e.ID); err != nil {
		t.Fatalf("first Settle error = %v", err)
	}
	if _, err := h.service.Settle(e.ID); !errors.Is(err, epoch.ErrEpochClosed) {
		t.Errorf("second Settle error = %v, want ErrEpochClosed", err)
	}
	if got := len(h.sink.all()); got != 1 {
		t.Errorf("sink received %d results, want 1", got)
	}
}

func TestService_SettleOutcome(t *testing.T) {
	h := newHarness(t)
	e := h.service.OpenEpoch(context.Background())
	h.placeBet(t, e.ID, "a1", 1000)
	h.placeBet(t, e.ID, "a2", 500)
	h.placeBet(t, e.ID, "a3", 1500)

	res, err := h.service.Settle(e.ID)
	if err != nil {
		t.Fatalf("Settle error = %v", err)
	}

	if res.TotalPool != 3000 {
		t.Errorf("TotalPool = %d, want 3000", res.TotalPool)
	}
	if res.Participants != 3 {
		t.Errorf("Participants = %d, want 3", res.Participants)
	}
	if len(res.Digest) != 64 {
		t.Errorf("Digest length = %d, want 64 hex chars", len(res.Digest))
	}

	cfg := config.Default().Engine
	if res.Tier > 0 {
		if res.WinnerBetID == "" || res.WinnerAgentID == "" {
			t.Error("winning tier without a winner")
		}
		share := cfg.Tiers[res.Tier-1].Share
		want := int64(math.Floor(3000 * (1 - cfg.Fees.Total()) * share))
		if res.Prize != want {
			t.Errorf("Prize = %d, want %d", res.Prize, want)
		}

		status, _ := h.service.AgentStatus(res.WinnerAgentID)
		if status.Stats.TotalWins != 1 {
			t.Errorf("winner TotalWins = %d, want 1", status.Stats.TotalWins)
		}
		if status.Streak != 1 {
			t.Errorf("winner Streak = %d, want 1", status.Streak)
		}
		if status.Stats.TotalEarnings != res.Prize {
			t.Errorf("winner TotalEarnings = %d, want %d", status.Stats.TotalEarnings, res.Prize)
		}
	} else {
		if res.WinnerBetID != "" || res.Prize != 0 {
			t.Errorf("tier 0 with winner=%q prize=%d", res.WinnerBetID, res.Prize)
		}
	}

	// Epoch record carries the settlement fields.
	got, _ := h.service.Epoch(e.ID)
	if got.Status != model.EpochClosed {
		t.Errorf("Status = %s, want closed", got.Status)
	}
	if got.Digest != res.Digest || got.WinningTier != res.Tier || got.Prize != res.Prize {
		t.Error("epoch settlement fields do not match result")
	}

	// Every participant lands on the season board.
	top := h.service.Leaderboard(0)
	if len(top) != 3 {
		t.Fatalf("leaderboard size = %d, want 3", len(top))
	}
	for _, st := range top {
		if st.Experience < cfg.XP.SeasonParticipate {
			t.Errorf("standing %s xp = %d, want >= %d", st.AgentID, st.Experience, cfg.XP.SeasonParticipate)
		}
	}
}

func TestService_NoWinnerResetsStreaks(t *testing.T) {
	h := newHarness(t)
	cfg := config.Default().Engine

	// Build up a streak for a1 by recording wins directly.
	h.agents.GetOrCreate("a1", "alpha", "", "")
	for i := 0; i < 5; i++ {
		h.agents.RecordWin("a1", 100, false, false)
	}
	if a, _ := h.agents.View("a1"); a.Streak != 5 {
		t.Fatalf("setup streak = %d, want 5", a.Streak)
	}

	e := h.service.OpenEpoch(context.Background())
	h.placeBet(t, e.ID, "a1", 1000)
	snap, err := h.epochs.BeginSettlement(e.ID)
	if err != nil {
		t.Fatalf("BeginSettlement error = %v", err)
	}

	// Tier 0: no winner, streaks break for every participant.
	res := model.SettlementResult{EpochID: e.ID, Tier: 0}
	h.service.applyOutcome(snap, res, nil, nil)

	a, _ := h.agents.View("a1")
	if a.Streak != 0 {
		t.Errorf("Streak = %d, want 0 after winless epoch", a.Streak)
	}
	if a.MaxStreak != 5 {
		t.Errorf("MaxStreak = %d, want 5 preserved", a.MaxStreak)
	}

	// Season standing still credits participation, no win.
	top := h.service.Leaderboard(0)
	if len(top) != 1 {
		t.Fatalf("leaderboard size = %d, want 1", len(top))
	}
	if top[0].Wins != 0 {
		t.Errorf("Wins = %d, want 0", top[0].Wins)
	}
	if top[0].Experience != cfg.XP.SeasonParticipate {
		t.Errorf("season xp = %d, want %d", top[0].Experience, cfg.XP.SeasonParticipate)
	}
}

func TestService_SettleEmptyEpoch(t *testing.T) {
	h := newHarness(t)
	e := h.service.OpenEpoch(context.Background())

	res, err := h.service.Settle(e.ID)
	if err != nil {
		t.Fatalf("Settle error = %v", err)
	}
	if res.WinnerBetID != "" {
		t.Errorf("WinnerBetID = %q, want empty", res.WinnerBetID)
	}
	if res.Prize != 0 {
		t.Errorf("Prize = %d, want 0", res.Prize)
	}
	if res.TotalPool != 0 {
		t.Errorf("TotalPool = %d, want 0", res.TotalPool)
	}
}

func TestService_ResolveTopicFlagsCorrectBets(t *testing.T) {
	h := newHarness(t)
	e := h.service.OpenEpoch(context.Background())

	_, err := h.service.PlaceBet(BetRequest{
		EpochID:        e.ID,
		AgentID:        "a1",
		AgentName:      "alpha",
		Prediction:     "Yes",
		DeclaredAnswer: "Yes",
		Confidence:     model.ConfidenceMedium,
		Stake:          1000,
	})
	if err != nil {
		t.Fatalf("PlaceBet error = %v", err)
	}
	_, err = h.service.PlaceBet(BetRequest{
		EpochID:        e.ID,
		AgentID:        "a2",
		AgentName:      "beta",
		Prediction:     "No",
		DeclaredAnswer: "No",
		Confidence:     model.ConfidenceMedium,
		Stake:          1000,
	})
	if err != nil {
		t.Fatalf("PlaceBet error = %v", err)
	}

	if err := h.service.ResolveTopic(e.ID, "Yes"); err != nil {
		t.Fatalf("ResolveTopic error = %v", err)
	}
	if _, err := h.service.Settle(e.ID); err != nil {
		t.Fatalf("Settle error = %v", err)
	}

	got, _ := h.service.Epoch(e.ID)
	for _, b := range got.Bets {
		want := b.AgentID == "a1"
		if b.IsCorrect != want {
			t.Errorf("bet %s IsCorrect = %v, want %v", b.AgentID, b.IsCorrect, want)
		}
	}
}

func TestService_BecomeValidator(t *testing.T) {
	h := newHarness(t)
	cfg := config.Default().Engine

	h.agents.GetOrCreate("a1", "alpha", "", "")
	h.agents.AddExperience("a1", 10000, "test")

	if err := h.service.BecomeValidator("a1", cfg.Validator.MinStake); err != nil {
		t.Fatalf("BecomeValidator error = %v", err)
	}

	status, _ := h.service.AgentStatus("a1")
	if !status.IsValidator {
		t.Error("IsValidator = false, want true")
	}
	if status.Experience != 10000+cfg.XP.Validated {
		t.Errorf("Experience = %d, want %d", status.Experience, 10000+cfg.XP.Validated)
	}
}

func TestService_DelegateCycleRejected(t *testing.T) {
	h := newHarness(t)

	h.agents.GetOrCreate("a1", "alpha", "", "")
	h.agents.GetOrCreate("a2", "beta", "", "")
	h.agents.AddExperience("a1", 500, "test")
	h.agents.AddExperience("a2", 500, "test")

	if err := h.service.Delegate("a1", "a2"); err != nil {
		t.Fatalf("Delegate(a1, a2) error = %v", err)
	}
	if err := h.service.Delegate("a2", "a1"); !errors.Is(err, agent.ErrDelegationCycle) {
		t.Errorf("Delegate(a2, a1) error = %v, want ErrDelegationCycle", err)
	}
}
