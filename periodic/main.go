// Copyright 2020 RetailNext, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package periodic

import (
	"context"
	"errors"
	"time"

	"github.com/retailnext/binlogbackup/backup"
	"github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/flock"
	"github.com/retailnext/binlogbackup/metrics"
	"go.uber.org/zap"
)

type runFunc func(ctx context.Context, cfg config.Config) error

type schedule struct {
	runType string
	every   time.Duration
	run     runFunc

	lastAt      time.Time
	attemptedAt time.Time
}

// due reports whether the schedule should run at now. A failed run waits a
// full interval like a successful one; a run skipped on the lock does not.
func (s *schedule) due(now time.Time) bool {
	return s.attemptedAt.IsZero() || !s.attemptedAt.After(now.Add(-s.every))
}

func (s *schedule) execute(ctx context.Context, cfg config.Config, now func() time.Time) {
	lgr := zap.S()
	metrics.Periodic.RunInProgressGauges.WithLabelValues(s.runType).Set(1)
	lgr.Infow("starting_run", "type", s.runType)
	err := s.run(ctx, cfg)
	metrics.Periodic.RunInProgressGauges.WithLabelValues(s.runType).Set(0)
	at := now()
	switch {
	case err == nil:
		s.lastAt = at
		s.attemptedAt = at
		metrics.Periodic.LastRunAtGauges.WithLabelValues(s.runType).Set(float64(at.Unix()))
		metrics.Periodic.LastRunOkGauges.WithLabelValues(s.runType).Set(1)
		metrics.Periodic.RunCompletedCounters.WithLabelValues(s.runType).Inc()
		lgr.Infow("run_complete", "type", s.runType)
	case errors.Is(err, flock.ErrLocked):
		// Another invocation is doing the work; try again next tick.
		metrics.Periodic.RunSkippedCounters.WithLabelValues(s.runType).Inc()
	default:
		s.attemptedAt = at
		metrics.Periodic.LastRunOkGauges.WithLabelValues(s.runType).Set(0)
		metrics.Periodic.RunErrorCounters.WithLabelValues(s.runType).Inc()
		lgr.Errorw("run_error", "type", s.runType, "err", err)
	}
}

// Main syncs every cfg.SyncEvery and compacts every cfg.CompactEvery until ctx
// is cancelled. At most one run happens per tick, sync first.
func Main(ctx context.Context, cfg config.Config) error {
	return loop(ctx, cfg, time.Minute, time.Now, backup.DoSync, backup.DoCompact)
}

func loop(ctx context.Context, cfg config.Config, tick time.Duration, now func() time.Time, doSync, doCompact runFunc) error {
	metrics.Periodic.RegisterMetrics()

	schedules := []*schedule{
		{runType: "sync", every: cfg.SyncEvery, run: doSync},
		{runType: "compact", every: cfg.CompactEvery, run: doCompact},
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	doneCh := ctx.Done()

	for {
		select {
		case <-doneCh:
			return ctx.Err()
		case <-ticker.C:
		}

		at := now()
		for _, s := range schedules {
			if s.due(at) {
				s.execute(ctx, cfg, now)
				break
			}
		}
	}
}
