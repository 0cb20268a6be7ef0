package handlers

import (
	"net/http"

	"server/internal/stats"
)

func (a *App) Stats(w http.ResponseWriter, r *http.Request) {
	summary, err := stats.LoadSummary(r.Context(), a.SQL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("load stats summary")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"videos_completed": summary.VideosCompleted,
		"videos_failed":    summary.VideosFailed,
		"credits_charged":  summary.CreditsCharged,
		"credits_refunded": summary.CreditsRefunded,
		"active_jobs":      summary.ActiveJobs,
	})
}
