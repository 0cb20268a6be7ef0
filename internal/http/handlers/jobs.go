package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/sqlinline"
)

type submitJobRequest struct {
	OwnerID  string `json:"owner_id"`
	ImageRef string `json:"image_ref"`
	AudioRef string `json:"audio_ref"`
	Text     string `json:"text"`
	Price    int64  `json:"price"`
}

type submitJobResponse struct {
	JobID     string    `json:"job_id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

type jobStatusResponse struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
}

// SubmitJob queues a new generation job. The job is accepted regardless
// of the owner's balance; the credit check happens at admission so a
// top-up racing the submission still wins.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if _, err := uuid.Parse(req.OwnerID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "owner_id must be a uuid")
		return
	}
	if req.ImageRef == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "image_ref required")
		return
	}
	if req.AudioRef == "" && req.Text == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "audio_ref or text required")
		return
	}
	if req.Price <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "price must be positive")
		return
	}

	inputs := domain.InputRefs{ImageRef: req.ImageRef, AudioRef: req.AudioRef, Text: req.Text}
	jobID, createdAt, err := a.Jobs.Submit(r.Context(), req.OwnerID, inputs, req.Price)
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", req.OwnerID).Msg("submit job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}

	a.trackEvent(r, req.OwnerID, jobID, "video_requested")
	a.json(w, http.StatusAccepted, submitJobResponse{
		JobID:     jobID,
		State:     string(domain.StatePending),
		CreatedAt: createdAt,
	})
}

// JobStatus serves the polling view. Repeating the call never changes
// anything server-side, terminal states included.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id must be a uuid")
		return
	}

	st, err := a.Jobs.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("job status")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	a.json(w, http.StatusOK, jobStatusResponse{
		ID:          st.ID,
		State:       string(st.State),
		Progress:    st.Progress,
		Error:       st.ErrorMessage,
		ArtifactRef: st.ArtifactRef,
	})
}

// trackEvent appends a usage event with the request's locale/country
// context. Analytics failures are logged, never surfaced.
func (a *App) trackEvent(r *http.Request, ownerID, jobID, eventType string) {
	props := map[string]string{}
	if locale := middleware.LocaleFromContext(r.Context()); locale != "" {
		props["locale"] = locale
	}
	if country := middleware.CountryFromContext(r.Context()); country != "" {
		props["country"] = country
	}
	payload, err := json.Marshal(props)
	if err != nil {
		payload = []byte("{}")
	}
	if _, err := a.SQL.Exec(r.Context(), sqlinline.QInsertUsageEvent, ownerID, jobID, eventType, true, string(payload)); err != nil {
		a.Logger.Error().Err(err).Str("event_type", eventType).Msg("track usage event")
	}
}
