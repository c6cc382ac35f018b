package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahl-labs/lotteryd/internal/agent"
	"github.com/ahl-labs/lotteryd/internal/engine"
	"github.com/ahl-labs/lotteryd/internal/epoch"
	"github.com/ahl-labs/lotteryd/internal/model"
	"github.com/ahl-labs/lotteryd/internal/version"
)

// apiServer is the thin JSON adapter over the engine. Every mutating
// route maps 1:1 onto an engine operation; all policy lives below.
type apiServer struct {
	service *engine.Service
	sched   *engine.Scheduler // nil when the scheduler is disabled
	db      *pgxpool.Pool     // nil when the archive is disabled
	logger  *slog.Logger

	mu     sync.Mutex
	manual string // current epoch id when rounds are opened by hand
}

func newAPIServer(service *engine.Service, sched *engine.Scheduler, db *pgxpool.Pool, logger *slog.Logger) *apiServer {
	return &apiServer{
		service: service,
		sched:   sched,
		db:      db,
		logger:  logger,
	}
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/epoch/open", s.handleOpenEpoch)
	mux.HandleFunc("GET /api/epoch/current", s.handleCurrentEpoch)
	mux.HandleFunc("GET /api/epoch/{id}", s.handleGetEpoch)
	mux.HandleFunc("POST /api/epoch/settle", s.handleSettle)
	mux.HandleFunc("POST /api/bet", s.handleBet)
	mux.HandleFunc("GET /api/agent/{id}", s.handleAgentStatus)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("POST /api/validator/become", s.handleBecomeValidator)
	mux.HandleFunc("POST /api/delegate", s.handleDelegate)

	return mux
}

// currentEpochID resolves the epoch accepting bets right now.
func (s *apiServer) currentEpochID() string {
	if s.sched != nil {
		return s.sched.CurrentEpochID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.String(),
		Components: make(map[string]any),
	}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["archive"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["archive"] = "connected"
		}
	}

	health.Components["current_epoch"] = s.currentEpochID()
	health.Components["season"] = s.service.SeasonInfo().ID

	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

func (s *apiServer) handleOpenEpoch(w http.ResponseWriter, r *http.Request) {
	if s.sched != nil {
		writeError(w, http.StatusConflict, "rounds are scheduler-driven on this instance")
		return
	}

	e := s.service.OpenEpoch(r.Context())

	s.mu.Lock()
	s.manual = e.ID
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"epoch":   formatEpoch(e),
	})
}

func (s *apiServer) handleCurrentEpoch(w http.ResponseWriter, r *http.Request) {
	id := s.currentEpochID()
	if id == "" {
		writeError(w, http.StatusNotFound, "no active epoch")
		return
	}

	e, ok := s.service.Epoch(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no active epoch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"epoch":   formatEpoch(e),
	})
}

func (s *apiServer) handleGetEpoch(w http.ResponseWriter, r *http.Request) {
	e, ok := s.service.Epoch(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "epoch not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"epoch":   formatEpoch(e),
	})
}

func (s *apiServer) handleBet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EpochID        string `json:"epoch_id"`
		AgentID        string `json:"agent_id"`
		AgentName      string `json:"agent_name"`
		AgentHandle    string `json:"agent_handle"`
		ReferrerID     string `json:"referrer_id"`
		Prediction     string `json:"prediction"`
		DeclaredAnswer string `json:"declared_answer"`
		Confidence     string `json:"confidence"`
		AmountSats     int64  `json:"amount_sats"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if req.EpochID == "" {
		req.EpochID = s.currentEpochID()
	}
	// Anonymous bettors get a generated identity.
	if req.AgentID == "" {
		req.AgentID = uuid.NewString()
	}
	if req.Confidence == "" {
		req.Confidence = string(model.ConfidenceMedium)
	}
	if req.AgentName == "" {
		req.AgentName = "Anonymous"
	}

	bet, err := s.service.PlaceBet(engine.BetRequest{
		EpochID:        req.EpochID,
		AgentID:        req.AgentID,
		AgentName:      req.AgentName,
		AgentHandle:    req.AgentHandle,
		ReferrerID:     req.ReferrerID,
		Prediction:     req.Prediction,
		DeclaredAnswer: req.DeclaredAnswer,
		Confidence:     model.Confidence(req.Confidence),
		Stake:          req.AmountSats,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"bet":     formatBet(bet),
	})
}

func (s *apiServer) handleSettle(w http.ResponseWriter, r *http.Request) {
	if s.sched != nil {
		writeError(w, http.StatusConflict, "rounds are scheduler-driven on this instance")
		return
	}

	var req struct {
		EpochID string `json:"epoch_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EpochID == "" {
		req.EpochID = s.currentEpochID()
	}

	res, err := s.service.Settle(req.EpochID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.mu.Lock()
	if s.manual == req.EpochID {
		s.manual = ""
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  formatResult(res),
	})
}

func (s *apiServer) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.service.AgentStatus(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agent":   formatAgent(status),
	})
}

func (s *apiServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	standings := s.service.Leaderboard(limit)
	rows := make([]map[string]any, len(standings))
	for i, st := range standings {
		rows[i] = map[string]any{
			"agent_id": st.AgentID,
			"name":     st.Name,
			"xp":       st.Experience,
			"wins":     st.Wins,
		}
	}

	info := s.service.SeasonInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"season": map[string]any{
			"id":         info.ID,
			"started_at": info.StartedAt,
			"ends_at":    info.EndsAt,
		},
		"leaderboard": rows,
	})
}

func (s *apiServer) handleBecomeValidator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID   string `json:"agent_id"`
		StakeSats int64  `json:"stake_sats"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.service.BecomeValidator(req.AgentID, req.StakeSats); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *apiServer) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromID string `json:"from_id"`
		ToID   string `json:"to_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.service.Delegate(req.FromID, req.ToID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// formatEpoch is the public JSON shape of an epoch.
func formatEpoch(e model.Epoch) map[string]any {
	out := map[string]any{
		"id":            e.ID,
		"topic":         map[string]string{"question": e.Topic.Question, "category": e.Topic.Category},
		"external_seed": e.ExternalSeed,
		"status":        e.Status,
		"opened_at":     e.OpenedAt,
		"total_sats":    e.TotalStake,
		"participants":  len(e.Bets),
	}
	if e.Digest != "" {
		out["winning_tier"] = e.WinningTier
		out["winner_bet_id"] = e.WinnerBetID
		out["prize_sats"] = e.Prize
		out["digest"] = e.Digest
		out["settled_at"] = e.SettledAt
	}
	return out
}

// formatResult is the public JSON shape of a settlement result.
func formatResult(res model.SettlementResult) map[string]any {
	return map[string]any{
		"epoch_id":      res.EpochID,
		"question":      res.Topic.Question,
		"tier":          res.Tier,
		"hash_value":    res.HashValue,
		"winner_bet_id": res.WinnerBetID,
		"winner_id":     res.WinnerAgentID,
		"winner_name":   res.WinnerName,
		"prize_sats":    res.Prize,
		"pool_sats":     res.TotalPool,
		"participants":  res.Participants,
		"digest":        res.Digest,
		"settled_at":    res.SettledAt,
	}
}

// formatAgent is the public JSON shape of an agent status snapshot.
func formatAgent(a model.AgentStatus) map[string]any {
	return map[string]any{
		"id":            a.ID,
		"name":          a.Name,
		"level":         a.Level,
		"xp":            a.Experience,
		"next_level_xp": a.NextLevelXP,
		"streak":        a.Streak,
		"max_streak":    a.MaxStreak,
		"verified":      a.Verified,
		"is_validator":  a.IsValidator,
		"stake_sats":    a.StakeAmount,
		"capabilities":  a.Capabilities,
		"delegators":    a.Delegators,
		"stats": map[string]any{
			"total_bets":          a.Stats.TotalBets,
			"correct_predictions": a.Stats.CorrectPredictions,
			"total_wins":          a.Stats.TotalWins,
			"total_earnings":      a.Stats.TotalEarnings,
			"total_staked":        a.Stats.TotalStaked,
			"referral_count":      a.Stats.ReferralCount,
			"referral_bonus":      a.Stats.ReferralBonus,
		},
	}
}

// formatBet is the public JSON shape of a bet.
func formatBet(b model.Bet) map[string]any {
	return map[string]any{
		"id":           b.ID,
		"agent_id":     b.AgentID,
		"prediction":   b.Prediction,
		"confidence":   b.Confidence,
		"amount_sats":  b.Stake,
		"weight":       b.Weight,
		"submitted_at": b.SubmittedAt,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeEngineError maps the engine error taxonomy onto status codes:
// missing references are 404, closed-epoch state conflicts are 409, and
// policy violations are 400.
func writeEngineError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, epoch.ErrEpochNotFound), errors.Is(err, agent.ErrAgentNotFound),
		errors.Is(err, epoch.ErrAgentUnknown):
		code = http.StatusNotFound
	case errors.Is(err, epoch.ErrEpochClosed):
		code = http.StatusConflict
	}
	writeError(w, code, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
