package handlers

import (
	"encoding/json"
	"net/http"

	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/ledger"
)

type App struct {
	Config *infra.Config
	Logger infra.Logger
	SQL    infra.TxRunner
	Jobs   *jobs.Store
	Ledger *ledger.Ledger
}

func NewApp(cfg *infra.Config, logger infra.Logger, sql infra.TxRunner) *App {
	return &App{
		Config: cfg,
		Logger: logger,
		SQL:    sql,
		Jobs:   jobs.NewStore(sql, logger),
		Ledger: ledger.New(sql, logger),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"kind": kind, "message": message},
	})
}
