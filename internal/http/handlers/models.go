package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pictoria-server/internal/domain"
	"pictoria-server/internal/providers/replicate"
	"pictoria-server/internal/sqlinline"
	"pictoria-server/internal/storage"
)

const maxTrainFormMemory = 1 << 20

// TrainModel accepts a multipart submission (fileKey, gender, model), gates it
// on the training counter and dispatches a LoRA training to the provider. The
// debit is optimistic: it happens before the provider call and is refunded if
// the submission fails.
func (a *App) TrainModel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	started := time.Now()
	if err := r.ParseMultipartForm(maxTrainFormMemory); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	fileKey := strings.TrimSpace(r.FormValue("fileKey"))
	gender := strings.TrimSpace(r.FormValue("gender"))
	modelName := strings.TrimSpace(r.FormValue("model"))
	if fileKey == "" || modelName == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Missing required fields!")
		return
	}

	if _, err := a.consumeCredit(r.Context(), sqlinline.QConsumeTrainingCredit, userID); err != nil {
		if errors.Is(err, domain.ErrNoCredits) {
			a.error(w, http.StatusForbidden, "no_credits", domain.ErrNoCredits.Error())
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to check credits")
		return
	}

	fileName := strings.TrimPrefix(fileKey, storage.TrainingDataBucket+"/")
	signedURL, err := a.Store.CreateSignedURL(r.Context(), storage.TrainingDataBucket, fileName, storage.SignedURLTTL)
	if err != nil {
		a.refundTrainingCredit(r.Context(), userID)
		a.Logger.Error().Err(err).Str("file", fileName).Msg("training data signed url failed")
		a.error(w, http.StatusInternalServerError, "internal", "Failed to get the URL!")
		return
	}

	modelID := fmt.Sprintf("model_%d_%s", time.Now().UnixMilli(), replicate.SanitizeModelName(modelName))
	if err := a.Replicate.CreateModel(r.Context(), modelID); err != nil {
		a.refundTrainingCredit(r.Context(), userID)
		a.Logger.Error().Err(err).Str("model_id", modelID).Msg("provider model create failed")
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	training, err := a.Replicate.CreateTraining(r.Context(), replicate.TrainingRequest{
		Destination:    a.Replicate.Owner() + "/" + modelID,
		InputImagesURL: signedURL,
		WebhookURL:     a.trainingWebhookURL(userID, modelID, fileName),
		Steps:          replicate.DefaultTrainingSteps,
	})
	if err != nil {
		a.refundTrainingCredit(r.Context(), userID)
		a.logUsage(r.Context(), userID, "MODEL_TRAIN", false, started)
		a.Logger.Error().Err(err).Str("model_id", modelID).Msg("training submission failed")
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	status := training.Status
	if status == "" {
		status = string(domain.StatusStarting)
	}
	var rowID int64
	row := a.SQL.QueryRow(r.Context(), sqlinline.QInsertModel,
		userID, modelID, modelName, gender, status, replicate.TriggerWord,
		replicate.DefaultTrainingSteps, training.ID)
	if err := row.Scan(&rowID); err != nil {
		a.Logger.Error().Err(err).Str("model_id", modelID).Msg("model row insert failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record training job")
		return
	}

	a.logUsage(r.Context(), userID, "MODEL_TRAIN", true, started)
	a.json(w, http.StatusCreated, map[string]any{"success": true})
}

func (a *App) trainingWebhookURL(userID, modelID, fileName string) string {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("modelId", modelID)
	q.Set("fileName", fileName)
	return a.Config.SiteURL + "/api/webhooks/training?" + q.Encode()
}

// ListModels returns the caller's training jobs newest-first.
func (a *App) ListModels(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	rows, err := a.SQL.Query(r.Context(), sqlinline.QSelectModelsByUser, userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch models")
		return
	}
	defer rows.Close()

	items := []domain.TrainingJob{}
	total := 0
	for rows.Next() {
		var job domain.TrainingJob
		if err := rows.Scan(&job.ID, &job.UserID, &job.ModelID, &job.ModelName, &job.Gender,
			&job.TrainingStatus, &job.TriggerWord, &job.TrainingSteps, &job.TrainingID,
			&job.TrainingTime, &job.Version, &job.CreatedAt, &job.UpdatedAt, &total); err != nil {
			continue
		}
		items = append(items, job)
	}
	a.respond(w, http.StatusOK, map[string]any{"models": items, "count": total})
}

// DeleteModel removes the provider-side model (version first when one was
// trained) and then the row. Deleting the row cascades nothing else: generated
// images stay.
func (a *App) DeleteModel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	rowID := chi.URLParam(r, "id")
	if rowID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "model id required")
		return
	}
	var id int64
	var modelID string
	var version *string
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectModelForUser, rowID, userID)
	if err := row.Scan(&id, &modelID, &version); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "model not found")
		return
	}

	if version != nil && *version != "" {
		if err := a.Replicate.DeleteModelVersion(r.Context(), modelID, *version); err != nil {
			a.Logger.Error().Err(err).Str("model_id", modelID).Msg("provider version delete failed")
			a.error(w, http.StatusInternalServerError, "internal", "Failed to delete model version from provider")
			return
		}
	}
	if err := a.Replicate.DeleteModel(r.Context(), modelID); err != nil {
		// The provider may already have pruned a failed training's model;
		// log and keep going so the row does not become undeletable.
		a.Logger.Warn().Err(err).Str("model_id", modelID).Msg("provider model delete failed")
	}

	if _, err := a.SQL.Exec(r.Context(), sqlinline.QDeleteModel, id, userID); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete model")
		return
	}
	a.respond(w, http.StatusOK, map[string]any{"id": id})
}
