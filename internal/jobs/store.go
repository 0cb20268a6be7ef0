// Package jobs is the durable store for generation jobs. Every write
// after submission is a compare-and-set on the current state, which is
// what lets a small worker pool, retried completions, and the reaper
// race each other safely: exactly one writer wins any transition.
package jobs

import (
	"context"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// Status is the read model served to polling clients.
type Status struct {
	ID           string
	State        domain.JobState
	Progress     int
	ErrorMessage string
	ArtifactRef  string
}

// StaleJob identifies a job the reaper should force-fail.
type StaleJob struct {
	ID      string
	OwnerID string
}

// ExpiredJob identifies a failed job past the retention window.
type ExpiredJob struct {
	ID        string
	OwnerID   string
	SpeechRef string
	VideoRef  string
}

type Store struct {
	SQL    infra.TxRunner
	Logger infra.Logger
}

func NewStore(sql infra.TxRunner, logger infra.Logger) *Store {
	return &Store{SQL: sql, Logger: logger}
}

// Submit creates the pending row on behalf of the submission path.
// Inputs are opaque here; the submission path validated them.
func (s *Store) Submit(ctx context.Context, ownerID string, inputs domain.InputRefs, price int64) (string, time.Time, error) {
	if price <= 0 {
		return "", time.Time{}, fmt.Errorf("jobs: price must be positive, got %d", price)
	}
	var (
		id        string
		createdAt time.Time
	)
	row := s.SQL.QueryRow(ctx, sqlinline.QInsertJob, ownerID, price, inputs.ImageRef, inputs.AudioRef, inputs.Text)
	if err := row.Scan(&id, &createdAt); err != nil {
		return "", time.Time{}, fmt.Errorf("jobs: insert job: %w", err)
	}
	return id, createdAt, nil
}

// Status reads the polling view. Unknown ids are domain.ErrNotFound,
// never a default state.
func (s *Store) Status(ctx context.Context, jobID string) (*Status, error) {
	var st Status
	var state string
	row := s.SQL.QueryRow(ctx, sqlinline.QSelectJobStatus, jobID)
	if err := row.Scan(&st.ID, &state, &st.Progress, &st.ErrorMessage, &st.ArtifactRef); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("jobs: read status: %w", err)
	}
	st.State = domain.JobState(state)
	return &st, nil
}

// Advance applies the compare-and-set transition from -> to. A zero
// row count means another writer (worker retry or reaper) got there
// first and the caller must abandon the job.
func (s *Store) Advance(ctx context.Context, jobID string, from, to domain.JobState, progress int) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("jobs: illegal transition %s -> %s", from, to)
	}
	tag, err := s.SQL.Exec(ctx, sqlinline.QAdvanceJobState, jobID, string(from), string(to), progress)
	if err != nil {
		return fmt.Errorf("jobs: advance %s -> %s: %w", from, to, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// SetProgress bumps progress within a state, also guarded by the state
// so a reaped job cannot be touched afterwards.
func (s *Store) SetProgress(ctx context.Context, jobID string, state domain.JobState, progress int) error {
	tag, err := s.SQL.Exec(ctx, sqlinline.QUpdateJobProgress, jobID, string(state), progress)
	if err != nil {
		return fmt.Errorf("jobs: set progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// SetSpeechRef records the speech stage output for debuggability.
func (s *Store) SetSpeechRef(ctx context.Context, jobID string, state domain.JobState, ref string) error {
	tag, err := s.SQL.Exec(ctx, sqlinline.QSetJobSpeechRef, jobID, string(state), ref)
	if err != nil {
		return fmt.Errorf("jobs: set speech ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// SetVideoRef records the latest video stage output for debuggability.
func (s *Store) SetVideoRef(ctx context.Context, jobID string, state domain.JobState, ref string) error {
	tag, err := s.SQL.Exec(ctx, sqlinline.QSetJobVideoRef, jobID, string(state), ref)
	if err != nil {
		return fmt.Errorf("jobs: set video ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// SelectStale lists jobs sitting in state longer than timeout.
func (s *Store) SelectStale(ctx context.Context, state domain.JobState, timeout time.Duration) ([]StaleJob, error) {
	rows, err := s.SQL.Query(ctx, sqlinline.QSelectStaleJobs, string(state), int64(timeout.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("jobs: select stale: %w", err)
	}
	defer rows.Close()

	var stale []StaleJob
	for rows.Next() {
		var sj StaleJob
		if err := rows.Scan(&sj.ID, &sj.OwnerID); err != nil {
			return nil, fmt.Errorf("jobs: scan stale job: %w", err)
		}
		stale = append(stale, sj)
	}
	return stale, rows.Err()
}

// SelectExpiredFailed lists failed jobs past the retention window whose
// payloads have not been purged yet.
func (s *Store) SelectExpiredFailed(ctx context.Context, retentionDays int) ([]ExpiredJob, error) {
	rows, err := s.SQL.Query(ctx, sqlinline.QSelectExpiredFailedJobs, int64(retentionDays))
	if err != nil {
		return nil, fmt.Errorf("jobs: select expired: %w", err)
	}
	defer rows.Close()

	var expired []ExpiredJob
	for rows.Next() {
		var ej ExpiredJob
		if err := rows.Scan(&ej.ID, &ej.OwnerID, &ej.SpeechRef, &ej.VideoRef); err != nil {
			return nil, fmt.Errorf("jobs: scan expired job: %w", err)
		}
		expired = append(expired, ej)
	}
	return expired, rows.Err()
}

// MarkPurged nulls the payload refs and stamps purged_at. The audit row
// itself stays; only payloads are removed by retention.
func (s *Store) MarkPurged(ctx context.Context, jobID string) error {
	tag, err := s.SQL.Exec(ctx, sqlinline.QMarkJobPurged, jobID)
	if err != nil {
		return fmt.Errorf("jobs: mark purged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// AdmitIn moves a locked pending job into processing_audio within the
// caller's claim transaction.
func AdmitIn(ctx context.Context, q infra.SQLExecutor, jobID string) error {
	tag, err := q.Exec(ctx, sqlinline.QAdmitJob, jobID, domain.ProgressAdmitted)
	if err != nil {
		return fmt.Errorf("jobs: admit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// CompleteIn applies the terminal uploading -> completed transition in
// the caller's transaction, stamping the artifact and the charge entry.
func CompleteIn(ctx context.Context, q infra.SQLExecutor, jobID, artifactRef, chargeID string) error {
	tag, err := q.Exec(ctx, sqlinline.QCompleteJob, jobID, artifactRef, chargeID)
	if err != nil {
		return fmt.Errorf("jobs: complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// FailIn applies the terminal transition to failed in the caller's
// transaction, guarded by the state the caller last observed.
func FailIn(ctx context.Context, q infra.SQLExecutor, jobID string, from domain.JobState, message string) error {
	tag, err := q.Exec(ctx, sqlinline.QFailJob, jobID, string(from), message)
	if err != nil {
		return fmt.Errorf("jobs: fail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}
