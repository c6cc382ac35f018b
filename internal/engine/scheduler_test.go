package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ahl-labs/lotteryd/internal/config"
)

func TestScheduler_RunsRounds(t *testing.T) {
	h := newHarness(t)

	cfg := config.SchedulerConfig{Enabled: true, Interval: time.Millisecond}
	sched := NewScheduler(cfg, h.service, 10*time.Millisecond, nil)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(h.sink.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		t.Fatalf("Stop error = %v", err)
	}

	if got := len(h.sink.all()); got < 2 {
		t.Errorf("settled rounds = %d, want >= 2", got)
	}
}

func TestScheduler_CurrentEpochAcceptsBets(t *testing.T) {
	h := newHarness(t)

	cfg := config.SchedulerConfig{Enabled: true, Interval: 0}
	sched := NewScheduler(cfg, h.service, time.Hour, nil)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	var id string
	deadline := time.Now().Add(time.Second)
	for id == "" && time.Now().Before(deadline) {
		id = sched.CurrentEpochID()
		time.Sleep(time.Millisecond)
	}
	if id == "" {
		t.Fatal("no current epoch after start")
	}

	h.placeBet(t, id, "a1", 500)
}
