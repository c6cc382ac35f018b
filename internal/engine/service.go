package engine

import (
	"context"
	"encoding/hex"
	"log/slog"
	"math"
	"time"

	"github.com/ahl-labs/lotteryd/internal/agent"
	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/epoch"
	"github.com/ahl-labs/lotteryd/internal/model"
	"github.com/ahl-labs/lotteryd/internal/season"
)

// SeedSource supplies the external entropy seed sealed into a new epoch.
type SeedSource interface {
	Seed(ctx context.Context) string
}

// SeedFunc is a function adapter for SeedSource.
type SeedFunc func(ctx context.Context) string

func (f SeedFunc) Seed(ctx context.Context) string { return f(ctx) }

// Sink receives epoch lifecycle events for broadcast or archival. Emits
// must not block the open or settlement paths.
type Sink interface {
	EmitEpochOpened(e model.Epoch)
	EmitSettlement(res model.SettlementResult)
}

// BetRequest carries one bet submission. The agent fields register the
// agent on first sight, so betting needs no separate signup step.
type BetRequest struct {
	EpochID        string
	AgentID        string
	AgentName      string
	AgentHandle    string
	ReferrerID     string
	Prediction     string
	DeclaredAnswer string
	Confidence     model.Confidence
	Stake          int64
}

// Service orchestrates the full epoch lifecycle: opening rounds against
// an external seed, accepting bets, and running the settlement draw with
// all of its agent and season bookkeeping.
type Service struct {
	cfg    config.EngineConfig
	agents *agent.Registry
	epochs *epoch.Store
	board  *season.Board

	tiers   tierTable
	feeRate float64
	boost   float64

	seeds  SeedSource
	sinks  []Sink
	logger *slog.Logger
}

// NewService wires the engine from a validated configuration and its
// collaborators. seeds must not be nil; sinks may be empty.
func NewService(cfg config.EngineConfig, agents *agent.Registry, epochs *epoch.Store, board *season.Board, seeds SeedSource, sinks []Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		agents:  agents,
		epochs:  epochs,
		board:   board,
		tiers:   tierTable{rows: cfg.Tiers},
		feeRate: cfg.Fees.Total(),
		boost:   cfg.Weights.CorrectAnswer,
		seeds:   seeds,
		sinks:   sinks,
		logger:  logger,
	}
}

// OpenEpoch starts a new round sealed with a fresh external seed and
// announces it to the sinks.
func (s *Service) OpenEpoch(ctx context.Context) model.Epoch {
	e := s.epochs.Open(s.seeds.Seed(ctx))
	for _, sink := range s.sinks {
		sink.EmitEpochOpened(e)
	}
	return e
}

// Epoch returns a copy of the epoch, if known.
func (s *Service) Epoch(id string) (model.Epoch, bool) {
	return s.epochs.Get(id)
}

// PlaceBet registers the agent if needed, submits the bet, and applies
// the participation bookkeeping. A rejected bet changes nothing.
func (s *Service) PlaceBet(req BetRequest) (model.Bet, error) {
	s.agents.GetOrCreate(req.AgentID, req.AgentName, req.AgentHandle, req.ReferrerID)

	bet, err := s.epochs.PlaceBet(req.EpochID, req.AgentID, req.Prediction, req.DeclaredAnswer, req.Confidence, req.Stake)
	if err != nil {
		return model.Bet{}, err
	}

	s.agents.RecordBet(req.AgentID)
	s.agents.AddExperience(req.AgentID, s.cfg.XP.Participate, "participated")
	s.board.Join(req.AgentID, req.AgentName)

	return bet, nil
}

// ResolveTopic records the ground-truth answer for an open epoch's
// question, enabling the correct-answer draw boost at settlement.
func (s *Service) ResolveTopic(epochID, answer string) error {
	return s.epochs.ResolveTopic(epochID, answer)
}

// Settle closes the epoch and runs the draw. Exactly one call per epoch
// ever succeeds; concurrent or repeated calls get ErrEpochClosed.
//
// The draw is fully determined by the settlement digest: the leading 16
// bits pick the payout tier and the following 8 bytes pick the winner
// among the weighted stakes, so a recorded epoch can be re-verified end
// to end.
func (s *Service) Settle(epochID string) (model.SettlementResult, error) {
	snap, err := s.epochs.BeginSettlement(epochID)
	if err != nil {
		return model.SettlementResult{}, err
	}

	settledAt := time.Now()
	digest := digestOf(snap, settledAt)
	hv := hashValueOf(digest)
	tier, share := s.tiers.classify(hv)
	correct := correctBets(snap)

	var winner *model.Bet
	var prize int64
	if tier > 0 && len(snap.Bets) > 0 {
		weights := drawWeights(snap.Bets, correct, s.boost)
		var total float64
		for _, w := range weights {
			total += w
		}
		idx := pickIndex(weights, drawFraction(digest)*total)
		winner = &snap.Bets[idx]

		net := float64(snap.TotalStake) * (1 - s.feeRate)
		prize = int64(math.Floor(net * share))
	}

	res := model.SettlementResult{
		EpochID:      snap.ID,
		Topic:        snap.Topic,
		Tier:         tier,
		HashValue:    hv,
		Prize:        prize,
		TotalPool:    snap.TotalStake,
		Participants: len(snap.Bets),
		Digest:       hex.EncodeToString(digest[:]),
		SettledAt:    settledAt,
	}
	if winner != nil {
		res.WinnerBetID = winner.ID
		res.WinnerAgentID = winner.AgentID
		if a, ok := s.agents.View(winner.AgentID); ok {
			res.WinnerName = a.Name
		}
	}

	if err := s.epochs.CompleteSettlement(epochID, res, correct); err != nil {
		return model.SettlementResult{}, err
	}

	s.applyOutcome(snap, res, winner, correct)

	for _, sink := range s.sinks {
		sink.EmitSettlement(res)
	}

	s.logger.Info("epoch settled",
		"epoch_id", res.EpochID,
		"tier", res.Tier,
		"hash_value", hv,
		"winner", res.WinnerAgentID,
		"prize", res.Prize,
		"pool", res.TotalPool,
		"participants", res.Participants,
	)
	return res, nil
}

// applyOutcome runs the post-draw bookkeeping: winner rewards, streak
// resets when nobody won, correct-prediction counters, and season
// standings for every participant.
func (s *Service) applyOutcome(snap model.Epoch, res model.SettlementResult, winner *model.Bet, correct map[string]bool) {
	if winner != nil {
		high := winner.Confidence == model.ConfidenceHigh
		streak := s.agents.RecordWin(winner.AgentID, res.Prize, high, correct[winner.ID])
		s.logger.Debug("winner recorded",
			"agent_id", winner.AgentID,
			"streak", streak,
		)
	} else {
		// Nobody won, everybody's streak breaks.
		for _, b := range snap.Bets {
			s.agents.ResetStreak(b.AgentID)
		}
	}

	for _, b := range snap.Bets {
		won := winner != nil && winner.ID == b.ID
		if correct[b.ID] && !won {
			s.agents.RecordCorrect(b.AgentID)
		}

		name := ""
		if a, ok := s.agents.View(b.AgentID); ok {
			name = a.Name
		}
		xp := s.cfg.XP.SeasonParticipate
		if won {
			xp += s.cfg.XP.SeasonWin
		}
		s.board.Record(b.AgentID, name, xp, won)
	}
}

// AgentStatus returns the agent's public snapshot.
func (s *Service) AgentStatus(id string) (model.AgentStatus, bool) {
	return s.agents.Status(id)
}

// VerifyAgent marks the agent identity-verified, raising future bet
// weights. Returns false for unknown agents.
func (s *Service) VerifyAgent(id string) bool {
	return s.agents.Verify(id)
}

// BecomeValidator stakes collateral to grant validator standing, and
// credits the validation experience award on success.
func (s *Service) BecomeValidator(id string, amount int64) error {
	if err := s.agents.StakeAsValidator(id, amount); err != nil {
		return err
	}
	s.agents.AddExperience(id, s.cfg.XP.Validated, "validator stake")
	return nil
}

// Delegate points from's weight delegation at to.
func (s *Service) Delegate(fromID, toID string) error {
	return s.agents.Delegate(fromID, toID)
}

// Leaderboard returns the season's top standings.
func (s *Service) Leaderboard(limit int) []model.SeasonStanding {
	return s.board.Top(limit)
}

// SeasonInfo returns the current season window.
func (s *Service) SeasonInfo() model.Season {
	return s.board.Info()
}
