package activity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/util"
)

// Applier consumes one round of activity. *exchange.Engine implements it.
type Applier interface {
	ApplyActivity(map[orderbook.SecurityID]market.Activity) error
}

// Job drains the tracker on a fixed interval and hands the counts to the engine.
type Job struct {
	Tracker  *Tracker
	Engine   Applier
	Interval time.Duration
	Clock    util.Clock
	Logger   *zap.SugaredLogger
}

// RunOnce performs a single drain-and-apply round.
func (j *Job) RunOnce() error {
	acts := j.Tracker.Drain()
	if err := j.Engine.ApplyActivity(acts); err != nil {
		if j.Logger != nil {
			j.Logger.Errorw("activity_apply_failed", "err", err)
		}
		return err
	}
	if j.Logger != nil {
		j.Logger.Infow("activity_applied", "guilds", len(acts))
	}
	return nil
}

// Start runs the job in a background goroutine until ctx is done or the returned
// cancel function is called.
func (j *Job) Start(ctx context.Context) context.CancelFunc {
	clock := j.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	jobCtx, cancel := context.WithCancel(ctx)

	go func() {
		if j.Logger != nil {
			j.Logger.Infow("activity_job_started", "interval", j.Interval.String())
		}
		rounds := 0
		for {
			select {
			case <-jobCtx.Done():
				if j.Logger != nil {
					j.Logger.Infow("activity_job_stopped", "rounds", rounds)
				}
				return
			case <-clock.After(j.Interval):
				_ = j.RunOnce()
				rounds++
			}
		}
	}()
	return cancel
}
