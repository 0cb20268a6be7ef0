// Package stats maintains the daily aggregate counters. Outcome rows
// are written in the same transaction as the terminal job transition,
// so the aggregates can never drift from the jobs table.
package stats

import (
	"context"
	"fmt"

	"server/internal/infra"
	"server/internal/sqlinline"
)

// Summary is the all-time rollup served by the stats endpoint.
type Summary struct {
	VideosCompleted int64
	VideosFailed    int64
	CreditsCharged  int64
	CreditsRefunded int64
	ActiveJobs      int64
}

// RecordIn bumps today's counters inside the caller's transaction.
func RecordIn(ctx context.Context, q infra.SQLExecutor, completed, failed int, charged, refunded int64) error {
	if _, err := q.Exec(ctx, sqlinline.QStatsRecordOutcome, int64(completed), int64(failed), charged, refunded); err != nil {
		return fmt.Errorf("stats: record outcome: %w", err)
	}
	return nil
}

// LoadSummary sums all daily rows plus the live active-job count.
func LoadSummary(ctx context.Context, q infra.SQLExecutor) (*Summary, error) {
	var s Summary
	row := q.QueryRow(ctx, sqlinline.QStatsSummary)
	if err := row.Scan(&s.VideosCompleted, &s.VideosFailed, &s.CreditsCharged, &s.CreditsRefunded, &s.ActiveJobs); err != nil {
		return nil, fmt.Errorf("stats: load summary: %w", err)
	}
	return &s, nil
}
