package season

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahl-labs/lotteryd/internal/model"
)

// Board accumulates per-agent season standings across epochs. It is a
// relation keyed by agent id, not an owner of agent records: the registry
// remains the single source of truth for agent state.
//
// Season rollover scheduling is a caller concern; the board just tracks
// one window.
type Board struct {
	mu        sync.Mutex
	season    model.Season
	standings map[string]*model.SeasonStanding
}

// NewBoard starts a season window of the given duration.
func NewBoard(duration time.Duration) *Board {
	now := time.Now()
	return &Board{
		season: model.Season{
			ID:        uuid.NewString(),
			StartedAt: now,
			EndsAt:    now.Add(duration),
		},
		standings: make(map[string]*model.SeasonStanding),
	}
}

// Join ensures the agent has a standing entry, creating one on first
// sight. Idempotent.
func (b *Board) Join(agentID, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joinLocked(agentID, name)
}

// Record credits experience (and optionally a win) to the agent's
// standing, creating the entry if the agent was never seen.
func (b *Board) Record(agentID, name string, xp int64, win bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.joinLocked(agentID, name)
	st.Experience += xp
	if win {
		st.Wins++
	}
}

// Top returns up to limit standings ordered by experience descending,
// ties broken by agent id for stable output.
func (b *Board) Top(limit int) []model.SeasonStanding {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.SeasonStanding, 0, len(b.standings))
	for _, st := range b.standings {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Experience != out[j].Experience {
			return out[i].Experience > out[j].Experience
		}
		return out[i].AgentID < out[j].AgentID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Info returns the season window.
func (b *Board) Info() model.Season {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.season
}

// Size returns the number of agents on the board.
func (b *Board) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.standings)
}

func (b *Board) joinLocked(agentID, name string) *model.SeasonStanding {
	st, ok := b.standings[agentID]
	if !ok {
		st = &model.SeasonStanding{AgentID: agentID, Name: name}
		b.standings[agentID] = st
	}
	return st
}
