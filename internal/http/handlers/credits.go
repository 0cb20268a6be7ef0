package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type grantRequest struct {
	Amount int64 `json:"amount"`
}

type balanceResponse struct {
	OwnerID string `json:"owner_id"`
	Balance int64  `json:"balance"`
}

type ledgerEntryResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Amount    int64     `json:"amount"`
	JobID     string    `json:"job_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *App) CreditBalance(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")
	if _, err := uuid.Parse(ownerID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "owner_id must be a uuid")
		return
	}

	balance, err := a.Ledger.Balance(r.Context(), ownerID)
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", ownerID).Msg("credit balance")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, balanceResponse{OwnerID: ownerID, Balance: balance})
}

func (a *App) CreditGrant(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")
	if _, err := uuid.Parse(ownerID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "owner_id must be a uuid")
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Amount <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "amount must be positive")
		return
	}

	entryID, err := a.Ledger.Grant(r.Context(), ownerID, req.Amount)
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", ownerID).Msg("credit grant")
		a.error(w, http.StatusInternalServerError, "internal", "failed to grant credits")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), ownerID)
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", ownerID).Msg("credit balance after grant")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"entry_id": entryID,
		"owner_id": ownerID,
		"balance":  balance,
	})
}

func (a *App) CreditLedger(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")
	if _, err := uuid.Parse(ownerID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "owner_id must be a uuid")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := a.Ledger.History(r.Context(), ownerID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", ownerID).Msg("credit ledger")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load ledger")
		return
	}
	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResponse{
			ID:        e.ID,
			Kind:      string(e.Kind),
			Amount:    e.Amount,
			JobID:     e.JobID,
			CreatedAt: e.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"owner_id": ownerID, "entries": out})
}
