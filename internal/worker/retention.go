package worker

import (
	"context"
	"fmt"

	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/storage"
)

// Cleaner removes the stored payloads of failed jobs once they age out
// of the retention window. The job row itself stays as an audit record;
// only the intermediate assets and their refs are purged.
type Cleaner struct {
	Jobs          *jobs.Store
	Store         *storage.FileStore
	Logger        infra.Logger
	RetentionDays int
}

// Clean purges every expired failed job and returns how many it purged.
// Files are removed before the row is marked so a crash in between
// re-purges on the next run instead of leaking payloads.
func (c *Cleaner) Clean(ctx context.Context) (int, error) {
	expired, err := c.Jobs.SelectExpiredFailed(ctx, c.RetentionDays)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, ej := range expired {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if err := c.Store.RemoveTree(ctx, fmt.Sprintf("jobs/%s", ej.ID)); err != nil {
			c.Logger.Error().Err(err).Str("job_id", ej.ID).Msg("retention: remove payloads")
			continue
		}
		if err := c.Jobs.MarkPurged(ctx, ej.ID); err != nil {
			c.Logger.Error().Err(err).Str("job_id", ej.ID).Msg("retention: mark purged")
			continue
		}
		purged++
	}
	if purged > 0 {
		c.Logger.Info().Int("purged", purged).Int("retention_days", c.RetentionDays).Msg("retention: clean done")
	}
	return purged, nil
}
