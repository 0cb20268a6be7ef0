// Package worker drives claimed jobs through the pipeline and owns the
// two background sweeps: the reaper for stuck jobs and the retention
// cleaner for expired failed jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/ledger"
	"server/internal/pipeline"
	"server/internal/sqlinline"
	"server/internal/stats"
)

// ErrNoJobAvailable signals an empty queue; the poll loop backs off.
var ErrNoJobAvailable = errors.New("worker: no job available")

// ErrAdmissionDenied signals the claimed job was failed at admission
// because the owner's balance no longer covers the price.
var ErrAdmissionDenied = errors.New("worker: job denied at admission")

// Orchestrator claims pending jobs and runs them to a terminal state.
// All multi-table writes (admission, completion with charge, failure
// with refund) happen in single transactions so a crash at any point
// leaves the job either fully transitioned or untouched.
type Orchestrator struct {
	SQL    infra.TxRunner
	Jobs   *jobs.Store
	Ledger *ledger.Ledger
	Logger infra.Logger

	Speech  pipeline.Stage
	Animate pipeline.Stage
	LipSync pipeline.Stage
	Upscale pipeline.Stage
	Upload  pipeline.Stage

	AudioTimeout  time.Duration
	VideoTimeout  time.Duration
	UploadTimeout time.Duration
}

// Claim locks the oldest pending job, checks the owner's balance and
// either admits the job into processing_audio or fails it with
// insufficient_credit, all in one transaction. The balance is only
// checked here; the actual debit is deferred to completion.
func (o *Orchestrator) Claim(ctx context.Context) (*domain.Job, error) {
	var job domain.Job
	var balance int64
	denied := false

	err := o.SQL.WithTx(ctx, func(q infra.SQLExecutor) error {
		row := q.QueryRow(ctx, sqlinline.QLockNextPendingJob)
		err := row.Scan(&job.ID, &job.OwnerID, &job.Price,
			&job.Inputs.ImageRef, &job.Inputs.AudioRef, &job.Inputs.Text, &balance)
		if err != nil {
			if infra.IsNoRows(err) {
				return ErrNoJobAvailable
			}
			return fmt.Errorf("worker: lock next job: %w", err)
		}

		if balance < job.Price {
			denied = true
			if err := jobs.FailIn(ctx, q, job.ID, domain.StatePending, domain.ErrCodeInsufficientCredit); err != nil {
				return err
			}
			return stats.RecordIn(ctx, q, 0, 1, 0, 0)
		}
		return jobs.AdmitIn(ctx, q, job.ID)
	})
	if err != nil {
		return nil, err
	}
	if denied {
		o.Logger.Warn().Str("job_id", job.ID).Str("owner_id", job.OwnerID).
			Int64("price", job.Price).Int64("balance", balance).Msg("worker: admission denied")
		return &job, ErrAdmissionDenied
	}

	job.State = domain.StateProcessingAudio
	job.Progress = domain.ProgressAdmitted
	return &job, nil
}

// Drive runs the admitted job through every stage. A stage error fails
// the job with a stage-tagged message; a lost compare-and-set means the
// reaper took the job and Drive abandons it without further writes.
func (o *Orchestrator) Drive(ctx context.Context, job *domain.Job) error {
	sc := &pipeline.StageContext{
		JobID:    job.ID,
		OwnerID:  job.OwnerID,
		ImageRef: job.Inputs.ImageRef,
		AudioRef: job.Inputs.AudioRef,
		Text:     job.Inputs.Text,
	}

	// processing_audio
	if res, err := o.runStage(ctx, o.Speech, sc, o.AudioTimeout); err != nil {
		return o.failJob(ctx, job.ID, domain.StateProcessingAudio, domain.StageFailedMessage(o.Speech.Name(), err))
	} else if err := o.Jobs.SetSpeechRef(ctx, job.ID, domain.StateProcessingAudio, res.OutputRef); err != nil {
		return o.abandonOrFail(ctx, job.ID, domain.StateProcessingAudio, err)
	}
	if err := o.Jobs.Advance(ctx, job.ID, domain.StateProcessingAudio, domain.StateProcessingVideo, domain.ProgressAudioDone); err != nil {
		return o.abandonOrFail(ctx, job.ID, domain.StateProcessingAudio, err)
	}

	// processing_video
	videoSteps := []struct {
		stage    pipeline.Stage
		progress int
	}{
		{o.Animate, domain.ProgressAnimated},
		{o.LipSync, domain.ProgressLipSynced},
	}
	for _, step := range videoSteps {
		res, err := o.runStage(ctx, step.stage, sc, o.VideoTimeout)
		if err != nil {
			return o.failJob(ctx, job.ID, domain.StateProcessingVideo, domain.StageFailedMessage(step.stage.Name(), err))
		}
		if err := o.Jobs.SetVideoRef(ctx, job.ID, domain.StateProcessingVideo, res.OutputRef); err != nil {
			return o.abandonOrFail(ctx, job.ID, domain.StateProcessingVideo, err)
		}
		if err := o.Jobs.SetProgress(ctx, job.ID, domain.StateProcessingVideo, step.progress); err != nil {
			return o.abandonOrFail(ctx, job.ID, domain.StateProcessingVideo, err)
		}
	}
	if res, err := o.runStage(ctx, o.Upscale, sc, o.VideoTimeout); err != nil {
		return o.failJob(ctx, job.ID, domain.StateProcessingVideo, domain.StageFailedMessage(o.Upscale.Name(), err))
	} else if err := o.Jobs.SetVideoRef(ctx, job.ID, domain.StateProcessingVideo, res.OutputRef); err != nil {
		return o.abandonOrFail(ctx, job.ID, domain.StateProcessingVideo, err)
	}
	if err := o.Jobs.Advance(ctx, job.ID, domain.StateProcessingVideo, domain.StateUploading, domain.ProgressVideoDone); err != nil {
		return o.abandonOrFail(ctx, job.ID, domain.StateProcessingVideo, err)
	}

	// uploading
	res, err := o.runStage(ctx, o.Upload, sc, o.UploadTimeout)
	if err != nil {
		return o.failJob(ctx, job.ID, domain.StateUploading, domain.StageFailedMessage(o.Upload.Name(), err))
	}
	return o.complete(ctx, job, res.OutputRef)
}

func (o *Orchestrator) runStage(ctx context.Context, stage pipeline.Stage, sc *pipeline.StageContext, timeout time.Duration) (*pipeline.StageResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	started := time.Now()
	res, err := stage.Execute(ctx, sc)
	if err != nil {
		o.Logger.Error().Err(err).Str("job_id", sc.JobID).Str("stage", stage.Name()).Msg("worker: stage failed")
		return nil, err
	}
	o.Logger.Info().Str("job_id", sc.JobID).Str("stage", stage.Name()).
		Dur("took", time.Since(started)).Str("output_ref", res.OutputRef).Msg("worker: stage done")
	return res, nil
}

// complete charges the owner and lands the terminal transition in one
// transaction. If the compare-and-set loses, the rollback also undoes
// the charge, so the ledger can never record a charge for a job that
// did not complete.
func (o *Orchestrator) complete(ctx context.Context, job *domain.Job, artifactRef string) error {
	insufficient := false
	err := o.SQL.WithTx(ctx, func(q infra.SQLExecutor) error {
		chargeID, err := o.Ledger.ChargeIn(ctx, q, job.OwnerID, job.ID, job.Price)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyCharged) {
				o.Logger.Warn().Str("job_id", job.ID).Str("charge_id", chargeID).Msg("worker: job already charged")
			} else if errors.Is(err, domain.ErrInsufficientCredit) {
				insufficient = true
				return err
			} else {
				return err
			}
		}
		if err := jobs.CompleteIn(ctx, q, job.ID, artifactRef, chargeID); err != nil {
			return err
		}
		if err := stats.RecordIn(ctx, q, 1, 0, job.Price, 0); err != nil {
			return err
		}
		_, err = q.Exec(ctx, sqlinline.QInsertUsageEvent, job.OwnerID, job.ID, "video_generated", true, nil)
		return err
	})
	if err == nil {
		o.Logger.Info().Str("job_id", job.ID).Str("artifact_ref", artifactRef).Msg("worker: job completed")
		return nil
	}
	if insufficient {
		return o.failJob(ctx, job.ID, domain.StateUploading, domain.ErrCodeInsufficientCredit)
	}
	// a concurrent completer can beat the not-exists guard onto the
	// charge unique index; the aborted transaction changed nothing
	if errors.Is(err, domain.ErrStaleTransition) || infra.IsUniqueViolation(err) {
		o.Logger.Warn().Str("job_id", job.ID).Msg("worker: completion lost race, abandoning")
		return nil
	}
	return err
}

// abandonOrFail distinguishes a lost compare-and-set (another writer
// owns the job now, stop quietly) from a real storage error.
func (o *Orchestrator) abandonOrFail(ctx context.Context, jobID string, from domain.JobState, err error) error {
	if errors.Is(err, domain.ErrStaleTransition) {
		o.Logger.Warn().Str("job_id", jobID).Str("state", string(from)).Msg("worker: transition lost race, abandoning")
		return nil
	}
	return o.failJob(ctx, jobID, from, domain.StageFailedMessage("persist", err))
}

func (o *Orchestrator) failJob(ctx context.Context, jobID string, from domain.JobState, message string) error {
	return failAndRefund(ctx, o.SQL, o.Ledger, o.Logger, jobID, from, message)
}

// failAndRefund is the single failure path shared by the orchestrator
// and the reaper: terminal transition, refund of any existing charge
// and the stats row commit together.
func failAndRefund(ctx context.Context, sql infra.TxRunner, lgr *ledger.Ledger, logger infra.Logger, jobID string, from domain.JobState, message string) error {
	var refunded int64
	err := sql.WithTx(ctx, func(q infra.SQLExecutor) error {
		if err := jobs.FailIn(ctx, q, jobID, from, message); err != nil {
			return err
		}
		_, amount, err := lgr.RefundIn(ctx, q, jobID)
		if err != nil && !errors.Is(err, domain.ErrNoCharge) && !errors.Is(err, domain.ErrAlreadyRefunded) {
			return err
		}
		refunded = amount
		return stats.RecordIn(ctx, q, 0, 1, 0, refunded)
	})
	if errors.Is(err, domain.ErrStaleTransition) || infra.IsUniqueViolation(err) {
		logger.Warn().Str("job_id", jobID).Str("state", string(from)).Msg("worker: failure lost race, abandoning")
		return nil
	}
	if err != nil {
		return fmt.Errorf("worker: fail job %s: %w", jobID, err)
	}
	logger.Info().Str("job_id", jobID).Str("from", string(from)).
		Str("reason", message).Int64("refunded", refunded).Msg("worker: job failed")
	return nil
}
