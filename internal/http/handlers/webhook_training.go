package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"pictoria-server/internal/domain"
	"pictoria-server/internal/middleware"
	"pictoria-server/internal/providers/replicate"
	"pictoria-server/internal/sqlinline"
	"pictoria-server/internal/storage"
)

type trainingWebhookPayload struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Metrics *struct {
		PredictTime float64 `json:"predict_time"`
	} `json:"metrics"`
}

// TrainingWebhook reconciles an asynchronous provider callback: authenticate,
// write the durable fact, notify, release the temporary upload. Errors answer
// plain text; the provider's redelivery schedule is the only retry mechanism,
// and because the store write is a guarded overwrite a replay is harmless.
func (a *App) TrainingWebhook(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	headers := replicate.WebhookHeaders{
		ID:        r.Header.Get("webhook-id"),
		Timestamp: r.Header.Get("webhook-timestamp"),
		Signature: r.Header.Get("webhook-signature"),
	}
	secret, err := a.Replicate.WebhookSecret(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("webhook secret fetch failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := replicate.VerifyWebhook(secret, headers, body); err != nil {
		a.Logger.Warn().Str("delivery_id", headers.ID).Msg("webhook signature rejected")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	userID := q.Get("userId")
	modelID := q.Get("modelId")
	fileName := q.Get("fileName")

	// The user probe doubles as the authorization check; an unknown user gets
	// the same 401 as a bad signature so nothing about job ids leaks.
	var probe domain.Credit
	var updatedAt time.Time
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCredits, userID)
	if err := row.Scan(&probe.UserID, &probe.ImageGenerationCount, &probe.ModelTrainingCount, &updatedAt); err != nil {
		a.Logger.Warn().Str("delivery_id", headers.ID).Str("user_id", userID).Msg("webhook for unknown user")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload trainingWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	status := domain.TrainingStatus(payload.Status)

	// Durable fact first. Zero rows means either an unknown model id or a
	// stale delivery losing to the monotonic guard; both are logged, not
	// fatal, and the cleanup below still runs exactly once.
	if status == domain.StatusSucceeded {
		predictTime := 0.0
		if payload.Metrics != nil {
			predictTime = payload.Metrics.PredictTime
		}
		tag, err := a.SQL.Exec(r.Context(), sqlinline.QUpdateModelSucceeded,
			userID, modelID, string(status), predictTime, payload.Version)
		if err != nil {
			a.Logger.Error().Err(err).Str("delivery_id", headers.ID).Msg("job status update failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if tag.RowsAffected() == 0 {
			a.Logger.Warn().Str("delivery_id", headers.ID).Str("model_id", modelID).Msg("status update matched no row")
		}
	} else {
		tag, err := a.SQL.Exec(r.Context(), sqlinline.QUpdateModelStatus, userID, modelID, string(status))
		if err != nil {
			a.Logger.Error().Err(err).Str("delivery_id", headers.ID).Msg("job status update failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if tag.RowsAffected() == 0 {
			a.Logger.Warn().Str("delivery_id", headers.ID).Str("model_id", modelID).Msg("status update matched no row")
		}
	}

	if err := a.notifyTrainingStatus(r, userID, modelID, status); err != nil {
		a.Logger.Error().Err(err).Str("delivery_id", headers.ID).Msg("training notification failed")
		a.logUsage(r.Context(), userID, "TRAINING_WEBHOOK", false, started)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Cleanup runs regardless of which status branch was taken; its failure
	// still fails the delivery so the provider retries the whole pipeline
	// (the earlier steps are idempotent).
	if fileName != "" {
		key := storage.ObjectKey(userID, fileName)
		if err := a.Store.Remove(r.Context(), storage.TrainingDataBucket, key); err != nil {
			a.Logger.Error().Err(err).Str("key", key).Msg("temporary upload removal failed")
			a.logUsage(r.Context(), userID, "TRAINING_WEBHOOK", false, started)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	a.logUsage(r.Context(), userID, "TRAINING_WEBHOOK", true, started)
	a.json(w, http.StatusCreated, map[string]any{"success": true})
}

func (a *App) notifyTrainingStatus(r *http.Request, userID, modelID string, status domain.TrainingStatus) error {
	email := a.lookupUserEmail(r, userID)
	if email == "" {
		// No address on record; the store update already happened, so treat
		// this as delivered rather than forcing endless provider retries.
		a.Logger.Warn().Str("user_id", userID).Msg("no email for training notification")
		return nil
	}
	locale := middleware.LocaleFromContext(r.Context())
	err := a.Mailer.SendTrainingStatus(r.Context(), email, a.lookupModelName(r, userID, modelID), status, locale)
	if err == domain.ErrMailerNotEnabled {
		a.Logger.Warn().Msg("mailer disabled, skipping training notification")
		return nil
	}
	return err
}

func (a *App) lookupUserEmail(r *http.Request, userID string) string {
	var email string
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectUserEmail, userID)
	if err := row.Scan(&email); err != nil {
		return ""
	}
	return email
}

// lookupModelName resolves the display name the user gave the model; the
// machine slug is the fallback when the row is gone.
func (a *App) lookupModelName(r *http.Request, userID, modelID string) string {
	var name string
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectModelName, userID, modelID)
	if err := row.Scan(&name); err != nil || name == "" {
		return modelID
	}
	return name
}
