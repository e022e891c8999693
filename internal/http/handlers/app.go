package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"pictoria-server/internal/auth"
	"pictoria-server/internal/billing"
	"pictoria-server/internal/infra"
	"pictoria-server/internal/mail"
	"pictoria-server/internal/middleware"
	"pictoria-server/internal/providers/replicate"
	"pictoria-server/internal/sqlinline"
	"pictoria-server/internal/storage"
)

// App carries the dependencies every handler needs. All external surfaces are
// interfaces so handler tests can stub them.
type App struct {
	SQL        infra.SQLExecutor
	Logger     zerolog.Logger
	Config     *infra.Config
	Auth       auth.Gateway
	Store      storage.ObjectStore
	Replicate  replicate.API
	Mailer     mail.Notifier
	Billing    billing.Gateway
	Reconciler *billing.Reconciler
	HTTPClient *http.Client
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respond wraps data in the {success, data, error} envelope form actions use.
func (a *App) respond(w http.ResponseWriter, code int, data any) {
	a.json(w, code, envelope{Success: true, Data: data})
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, envelope{Success: false, Code: code, Error: msg})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) currentUserEmail(r *http.Request) string {
	return middleware.UserEmailFromContext(r.Context())
}

func (a *App) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

// logUsage records a usage event row; failures are logged, never surfaced.
func (a *App) logUsage(ctx context.Context, userID, eventType string, success bool, started time.Time) {
	props := map[string]any{}
	if country := middleware.CountryFromContext(ctx); country != "" {
		props["country"] = country
	}
	raw, _ := json.Marshal(props)
	_, err := a.SQL.Exec(ctx, sqlinline.QInsertUsageEvent, userID, eventType, success, int(time.Since(started).Milliseconds()), raw)
	if err != nil && ctx.Err() == nil {
		a.Logger.Error().Err(err).Str("event", eventType).Msg("log usage failed")
	}
}
