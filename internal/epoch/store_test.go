package epoch

import (
	"errors"
	"sync"
	"testing"

	"github.com/ahl-labs/lotteryd/internal/agent"
	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/model"
	"github.com/ahl-labs/lotteryd/internal/weight"
)

func testStore(t *testing.T) (*Store, *agent.Registry) {
	t.Helper()
	cfg := config.Default()
	reg := agent.NewRegistry(cfg.Engine, nil)
	policy := weight.NewPolicy(cfg.Engine)
	return NewStore(cfg.Engine, reg, policy, nil), reg
}

func TestOpen(t *testing.T) {
	s, _ := testStore(t)

	e := s.Open("seed-abc")
	if e.ID == "" {
		t.Error("epoch should have an id")
	}
	if e.Status != model.EpochOpen {
		t.Errorf("Status = %q, want open", e.Status)
	}
	if e.ExternalSeed != "seed-abc" {
		t.Errorf("ExternalSeed = %q, want seed-abc", e.ExternalSeed)
	}
	if len(e.LocalSalt) != 32 {
		t.Errorf("LocalSalt length = %d, want 32 hex chars", len(e.LocalSalt))
	}
	if e.Topic.Question == "" {
		t.Error("epoch should have a topic")
	}

	got, ok := s.Get(e.ID)
	if !ok {
		t.Fatal("epoch not found after Open")
	}
	if got.ID != e.ID {
		t.Errorf("Get id = %q, want %q", got.ID, e.ID)
	}
}

func TestPlaceBet(t *testing.T) {
	s, reg := testStore(t)
	reg.GetOrCreate("a1", "Alice", "", "")
	e := s.Open("seed")

	bet, err := s.PlaceBet(e.ID, "a1", "Yes", "", model.ConfidenceMedium, 1000)
	if err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if bet.Weight != 1.5 {
		t.Errorf("Weight = %v, want 1.5 (level 1, medium)", bet.Weight)
	}

	got, _ := s.Get(e.ID)
	if len(got.Bets) != 1 {
		t.Fatalf("len(Bets) = %d, want 1", len(got.Bets))
	}
	if got.TotalStake != 1000 {
		t.Errorf("TotalStake = %d, want 1000", got.TotalStake)
	}
}

func TestPlaceBet_TotalStakeInvariant(t *testing.T) {
	s, reg := testStore(t)
	reg.GetOrCreate("a1", "Alice", "", "")
	e := s.Open("seed")

	stakes := []int64{100, 250, 1000, 9999}
	var want int64
	for _, stake := range stakes {
		if _, err := s.PlaceBet(e.ID, "a1", "Yes", "", model.ConfidenceLow, stake); err != nil {
			t.Fatalf("PlaceBet(%d) failed: %v", stake, err)
		}
		want += stake

		got, _ := s.Get(e.ID)
		var sum int64
		for _, b := range got.Bets {
			sum += b.Stake
		}
		if got.TotalStake != sum || got.TotalStake != want {
			t.Fatalf("TotalStake = %d, bet sum = %d, want %d", got.TotalStake, sum, want)
		}
	}
}

func TestPlaceBet_Validation(t *testing.T) {
	s, reg := testStore(t)
	reg.GetOrCreate("a1", "Alice", "", "")
	e := s.Open("seed")

	tests := []struct {
		name       string
		epochID    string
		agentID    string
		confidence model.Confidence
		stake      int64
		wantErr    error
	}{
		{"unknown epoch", "nope", "a1", model.ConfidenceLow, 1000, ErrEpochNotFound},
		{"stake below minimum", e.ID, "a1", model.ConfidenceLow, 99, ErrStakeTooSmall},
		{"zero stake", e.ID, "a1", model.ConfidenceLow, 0, ErrStakeTooSmall},
		{"negative stake", e.ID, "a1", model.ConfidenceLow, -5, ErrStakeTooSmall},
		{"bad confidence", e.ID, "a1", model.Confidence("huge"), 1000, ErrInvalidConfidence},
		{"unknown agent", e.ID, "ghost", model.ConfidenceLow, 1000, ErrAgentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.PlaceBet(tt.epochID, tt.agentID, "Yes", "", tt.confidence, tt.stake)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// None of the rejected bets may have touched the epoch.
	got, _ := s.Get(e.ID)
	if len(got.Bets) != 0 || got.TotalStake != 0 {
		t.Errorf("rejected bets mutated epoch: bets=%d total=%d", len(got.Bets), got.TotalStake)
	}
}

func TestPlaceBet_ClosedEpoch(t *testing.T) {
	s, reg := testStore(t)
	reg.GetOrCreate("a1", "Alice", "", "")
	e := s.Open("seed")

	if _, err := s.PlaceBet(e.ID, "a1", "Yes", "", model.ConfidenceLow, 500); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if _, err := s.BeginSettlement(e.ID); err != nil {
		t.Fatalf("BeginSettlement failed: %v", err)
	}

	_, err := s.PlaceBet(e.ID, "a1", "No", "", model.ConfidenceLow, 500)
	if !errors.Is(err, ErrEpochClosed) {
		t.Errorf("err = %v, want ErrEpochClosed", err)
	}

	got, _ := s.Get(e.ID)
	if len(got.Bets) != 1 || got.TotalStake != 500 {
		t.Errorf("closed epoch mutated: bets=%d total=%d", len(got.Bets), got.TotalStake)
	}
}

func TestPlaceBet_HighConfidenceDowngrade(t *testing.T) {
	s, reg := testStore(t)
	reg.GetOrCreate("novice", "Novice", "", "")
	reg.GetOrCreate("pro", "Pro", "", "")
	reg.AddExperience("pro", 2000, "test") // level 10 unlocks high_confidence
	e := s.Open("seed")

	noviceBet, err := s.PlaceBet(e.ID, "novice", "Yes", "", model.ConfidenceHigh, 1000)
	if err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if noviceBet.Confidence != model.ConfidenceMedium {
		t.Errorf("novice confidence = %q, want medium downgrade", noviceBet.Confidence)
	}

	proBet, err := s.PlaceBet(e.ID, "pro", "Yes", "", model.ConfidenceHigh, 1000)
	if err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if proBet.Confidence != model.ConfidenceHigh {
		t.Errorf("pro confidence = %q, want high", proBet.Confidence)
	}
	// Level 10 multiplier 1.5 × high 2.0.
	if proBet.Weight != 3.0 {
		t.Errorf("pro weight = %v, want 3.0", proBet.Weight)
	}
}

func TestBeginSettlement_AtMostOnce(t *testing.T) {
	s, _ := testStore(t)
	e := s.Open("seed")

	if _, err := s.BeginSettlement(e.ID); err != nil {
		t.Fatalf("first BeginSettlement failed: %v", err)
	}
	if _, err := s.BeginSettlement(e.ID); !errors.Is(err, ErrEpochClosed) {
		t.Errorf("second BeginSettlement err = %v, want ErrEpochClosed", err)
	}
	if _, err := s.BeginSettlement("missing"); !errors.Is(err, ErrEpochNotFound) {
		t.Errorf("err = %v, want ErrEpochNotFound", err)
	}
}

func TestBeginSettlement_Concurrent(t *testing.T) {
	s, _ := testStore(t)
	e := s.Open("seed")

	const n = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.BeginSettlement(e.ID); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	if got := len(successes); got != 1 {
		t.Errorf("concurrent BeginSettlement succeeded %d times, want 1", got)
	}
}

func TestCompleteSettlement(t *testing.T) {
	s, reg := testStore(t)
	reg.GetOrCreate("a1", "Alice", "", "")
	e := s.Open("seed")

	bet, _ := s.PlaceBet(e.ID, "a1", "Yes", "Yes", model.ConfidenceLow, 500)
	snap, _ := s.BeginSettlement(e.ID)

	res := model.SettlementResult{
		EpochID:     e.ID,
		Tier:        2,
		WinnerBetID: bet.ID,
		Prize:       400,
		Digest:      "deadbeef",
		SettledAt:   snap.OpenedAt,
	}
	if err := s.CompleteSettlement(e.ID, res, map[string]bool{bet.ID: true}); err != nil {
		t.Fatalf("CompleteSettlement failed: %v", err)
	}

	got, _ := s.Get(e.ID)
	if got.WinningTier != 2 || got.Prize != 400 || got.Digest != "deadbeef" {
		t.Errorf("settlement fields = tier %d prize %d digest %q", got.WinningTier, got.Prize, got.Digest)
	}
	if !got.Bets[0].IsCorrect {
		t.Error("matching bet should be flagged correct")
	}

	// Settlement fields are write-once.
	if err := s.CompleteSettlement(e.ID, res, nil); !errors.Is(err, ErrEpochClosed) {
		t.Errorf("second CompleteSettlement err = %v, want ErrEpochClosed", err)
	}
}

func TestResolveTopic(t *testing.T) {
	s, _ := testStore(t)
	e := s.Open("seed")

	if err := s.ResolveTopic(e.ID, "Yes"); err != nil {
		t.Fatalf("ResolveTopic failed: %v", err)
	}
	got, _ := s.Get(e.ID)
	if got.Topic.Answer != "Yes" {
		t.Errorf("Answer = %q, want Yes", got.Topic.Answer)
	}

	if _, err := s.BeginSettlement(e.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.ResolveTopic(e.ID, "No"); !errors.Is(err, ErrEpochClosed) {
		t.Errorf("resolve after close err = %v, want ErrEpochClosed", err)
	}
	if err := s.ResolveTopic("missing", "Yes"); !errors.Is(err, ErrEpochNotFound) {
		t.Errorf("err = %v, want ErrEpochNotFound", err)
	}
}

func TestPlaceBet_IndependentEpochs(t *testing.T) {
	s, reg := testStore(t)
	reg.GetOrCreate("a1", "Alice", "", "")

	e1 := s.Open("seed-1")
	e2 := s.Open("seed-2")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.PlaceBet(e1.ID, "a1", "Yes", "", model.ConfidenceLow, 100)
		}()
		go func() {
			defer wg.Done()
			s.PlaceBet(e2.ID, "a1", "No", "", model.ConfidenceLow, 200)
		}()
	}
	wg.Wait()

	g1, _ := s.Get(e1.ID)
	g2, _ := s.Get(e2.ID)
	if g1.TotalStake != 50*100 {
		t.Errorf("epoch 1 TotalStake = %d, want 5000", g1.TotalStake)
	}
	if g2.TotalStake != 50*200 {
		t.Errorf("epoch 2 TotalStake = %d, want 10000", g2.TotalStake)
	}
}
