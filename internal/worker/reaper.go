package worker

import (
	"context"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/ledger"
)

// Reaper force-fails jobs whose owning worker died mid-stage. Every
// non-terminal processing state has its own timeout; the fail path is
// the same transactional fail-and-refund the workers use, so a reaped
// post-charge job gets its refund too.
type Reaper struct {
	SQL      infra.TxRunner
	Jobs     *jobs.Store
	Ledger   *ledger.Ledger
	Logger   infra.Logger
	Timeouts map[domain.JobState]time.Duration
}

// Sweep fails every stale job once and returns how many were reaped.
// Jobs that reach a terminal state between the select and the fail are
// skipped by the compare-and-set, so a racing worker always wins.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	reaped := 0
	for state, timeout := range r.Timeouts {
		if timeout <= 0 {
			continue
		}
		stale, err := r.Jobs.SelectStale(ctx, state, timeout)
		if err != nil {
			return reaped, err
		}
		for _, sj := range stale {
			if err := ctx.Err(); err != nil {
				return reaped, err
			}
			if err := failAndRefund(ctx, r.SQL, r.Ledger, r.Logger, sj.ID, state, domain.ErrCodeTimedOut); err != nil {
				r.Logger.Error().Err(err).Str("job_id", sj.ID).Msg("reaper: fail stale job")
				continue
			}
			reaped++
		}
	}
	if reaped > 0 {
		r.Logger.Info().Int("reaped", reaped).Msg("reaper: sweep done")
	}
	return reaped, nil
}
