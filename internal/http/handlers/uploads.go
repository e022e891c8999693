package handlers

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"pictoria-server/internal/storage"
)

type signedUploadRequest struct {
	FileName string `json:"fileName"`
}

type signedUploadResponse struct {
	SignedURL string `json:"signUrl"`
	FileKey   string `json:"fileKey"`
}

// SignedUploadURL hands the client a time-limited URL to push a training zip
// into the training-data bucket under its own user prefix.
func (a *App) SignedUploadURL(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req signedUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	fileName := path.Base(strings.TrimSpace(req.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		a.error(w, http.StatusBadRequest, "bad_request", "fileName is required")
		return
	}
	key := storage.TrainingUploadKey(userID, fileName)
	url, err := a.Store.CreateSignedUploadURL(r.Context(), storage.TrainingDataBucket, key)
	if err != nil {
		a.Logger.Error().Err(err).Msg("signed upload url failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create signed upload url")
		return
	}
	a.respond(w, http.StatusOK, signedUploadResponse{
		SignedURL: url,
		FileKey:   storage.TrainingDataBucket + "/" + key,
	})
}
