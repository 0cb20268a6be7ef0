package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"server/internal/infra"
)

// Pool runs a fixed number of claim loops against the shared queue.
// Concurrency safety comes from the database claim, not from the pool:
// each loop only ever sees jobs it locked itself.
type Pool struct {
	Orchestrator *Orchestrator
	Concurrency  int
	PollInterval time.Duration
	Logger       infra.Logger
}

// Run blocks until ctx is canceled, then waits for in-flight jobs to
// reach a terminal state.
func (p *Pool) Run(ctx context.Context) error {
	concurrency := p.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	poll := p.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	p.Logger.Info().Int("concurrency", concurrency).Dur("poll_interval", poll).Msg("worker: pool starting")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		worker := i
		g.Go(func() error {
			return p.loop(gctx, worker, poll)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) loop(ctx context.Context, worker int, poll time.Duration) error {
	logger := p.Logger.With().Int("worker", worker).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := p.Orchestrator.Claim(ctx)
		switch {
		case errors.Is(err, ErrNoJobAvailable):
			select {
			case <-time.After(poll):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		case errors.Is(err, ErrAdmissionDenied):
			// denied job is already failed; look for the next one
			continue
		case err != nil:
			logger.Error().Err(err).Msg("worker: claim failed")
			select {
			case <-time.After(poll):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		logger.Info().Str("job_id", job.ID).Str("owner_id", job.OwnerID).Msg("worker: job claimed")
		if err := p.Orchestrator.Drive(ctx, job); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: drive failed")
		}
	}
}
