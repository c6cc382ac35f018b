package season

import (
	"testing"
	"time"
)

func TestBoard_JoinIdempotent(t *testing.T) {
	b := NewBoard(time.Hour)

	b.Join("a1", "alpha")
	b.Join("a1", "alpha")

	if got := b.Size(); got != 1 {
		t.Errorf("Size() = %d, want 1", got)
	}
}

func TestBoard_RecordAccumulates(t *testing.T) {
	b := NewBoard(time.Hour)

	b.Record("a1", "alpha", 50, false)
	b.Record("a1", "alpha", 200, true)
	b.Record("a1", "alpha", 50, false)

	top := b.Top(0)
	if len(top) != 1 {
		t.Fatalf("len(Top) = %d, want 1", len(top))
	}
	if top[0].Experience != 300 {
		t.Errorf("Experience = %d, want 300", top[0].Experience)
	}
	if top[0].Wins != 1 {
		t.Errorf("Wins = %d, want 1", top[0].Wins)
	}
}

func TestBoard_TopOrderingAndLimit(t *testing.T) {
	b := NewBoard(time.Hour)

	b.Record("a1", "alpha", 100, false)
	b.Record("a2", "beta", 300, true)
	b.Record("a3", "gamma", 200, false)
	b.Record("a4", "delta", 200, false)

	top := b.Top(3)
	if len(top) != 3 {
		t.Fatalf("len(Top(3)) = %d, want 3", len(top))
	}
	if top[0].AgentID != "a2" {
		t.Errorf("top[0] = %s, want a2", top[0].AgentID)
	}
	// Ties on experience resolve by agent id.
	if top[1].AgentID != "a3" || top[2].AgentID != "a4" {
		t.Errorf("tie order = %s, %s, want a3, a4", top[1].AgentID, top[2].AgentID)
	}
}

func TestBoard_Info(t *testing.T) {
	b := NewBoard(2 * time.Hour)

	s := b.Info()
	if s.ID == "" {
		t.Error("season ID is empty")
	}
	if got := s.EndsAt.Sub(s.StartedAt); got != 2*time.Hour {
		t.Errorf("window = %v, want 2h", got)
	}
}
