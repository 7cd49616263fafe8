package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/util"
)

func TestTrackerDrain(t *testing.T) {
	tr := NewTracker()
	tr.SetMembers("g1", 40)
	tr.RecordMessage("g1", "100")
	tr.RecordMessage("g1", "100")
	tr.RecordMessage("g1", "200")
	tr.RecordMessage("g2", "300")

	got := tr.Drain()
	if want := (market.Activity{Members: 40, Messages: 3, Authors: 2}); got["g1"] != want {
		t.Errorf("g1 = %+v, want %+v", got["g1"], want)
	}
	if want := (market.Activity{Messages: 1, Authors: 1}); got["g2"] != want {
		t.Errorf("g2 = %+v, want %+v", got["g2"], want)
	}

	again := tr.Drain()
	if want := (market.Activity{Members: 40}); again["g1"] != want {
		t.Errorf("second drain g1 = %+v, want members only", again["g1"])
	}
}

type applier struct {
	calls chan map[orderbook.SecurityID]market.Activity
	err   error
}

func (a *applier) ApplyActivity(acts map[orderbook.SecurityID]market.Activity) error {
	a.calls <- acts
	return a.err
}

func TestRunOnceReportsErrors(t *testing.T) {
	a := &applier{calls: make(chan map[orderbook.SecurityID]market.Activity, 1), err: errors.New("boom")}
	j := &Job{Tracker: NewTracker(), Engine: a, Logger: zaptest.NewLogger(t).Sugar()}
	if err := j.RunOnce(); err == nil {
		t.Errorf("expected error")
	}
}

func TestJobRunsOnEveryInterval(t *testing.T) {
	clock := util.NewManualClock(time.Unix(1700000000, 0))
	a := &applier{calls: make(chan map[orderbook.SecurityID]market.Activity, 4)}
	tr := NewTracker()
	j := &Job{
		Tracker:  tr,
		Engine:   a,
		Interval: time.Minute,
		Clock:    clock,
		Logger:   zaptest.NewLogger(t).Sugar(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := j.Start(ctx)
	defer stop()

	for round := 1; round <= 2; round++ {
		tr.RecordMessage("g1", "100")
		waitForTimer(t, clock)
		clock.Advance(time.Minute)

		select {
		case acts := <-a.calls:
			if acts["g1"].Messages != 1 {
				t.Errorf("round %d: activity = %+v", round, acts)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: job did not run", round)
		}
	}
}

func waitForTimer(t *testing.T, clock *util.ManualClock) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for clock.Waiters() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("job never armed its timer")
		}
		time.Sleep(time.Millisecond)
	}
}
