package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pictoria-server/internal/domain"
	"pictoria-server/internal/sqlinline"
	"pictoria-server/internal/storage"
)

const defaultFluxModel = "black-forest-labs/flux-schnell"

type generateImageRequest struct {
	Model             string  `json:"model"`
	Prompt            string  `json:"prompt"`
	Guidance          float64 `json:"guidance"`
	NumOutputs        int     `json:"num_outputs"`
	AspectRatio       string  `json:"aspect_ratio"`
	OutputFormat      string  `json:"output_format"`
	OutputQuality     int     `json:"output_quality"`
	NumInferenceSteps int     `json:"num_inference_steps"`
}

func (req *generateImageRequest) normalize() {
	if req.Model == "" {
		req.Model = defaultFluxModel
	}
	if req.NumOutputs <= 0 {
		req.NumOutputs = 1
	}
	if req.NumOutputs > 4 {
		req.NumOutputs = 4
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "1:1"
	}
	if req.OutputFormat == "" {
		req.OutputFormat = "webp"
	}
	if req.OutputQuality <= 0 {
		req.OutputQuality = 80
	}
	if req.NumInferenceSteps <= 0 {
		req.NumInferenceSteps = 4
	}
	if req.Guidance <= 0 {
		req.Guidance = 3.5
	}
}

// providerInput builds the inference payload. Fine-tuned models (those under
// our provider namespace) run through the dev LoRA path; everything else gets
// the plain flux input.
func (req *generateImageRequest) providerInput(owner string) map[string]any {
	base := map[string]any{
		"prompt":              req.Prompt,
		"guidance":            req.Guidance,
		"num_outputs":         req.NumOutputs,
		"aspect_ratio":        req.AspectRatio,
		"output_format":       req.OutputFormat,
		"output_quality":      req.OutputQuality,
		"prompt_strength":     0.8,
		"num_inference_steps": req.NumInferenceSteps,
	}
	if strings.HasPrefix(req.Model, owner+"/") {
		base["model"] = "dev"
		base["lora_scale"] = 1
		base["extra_lora_scale"] = 0
	} else {
		base["go_fast"] = true
		base["megapixels"] = "1"
	}
	return base
}

// GenerateImages is the fire-and-forget image path: one synchronous provider
// call, no job row. The caller decides what to persist via StoreImages.
func (a *App) GenerateImages(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	started := time.Now()
	var req generateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	req.normalize()

	if _, err := a.consumeCredit(r.Context(), sqlinline.QConsumeImageCredit, userID); err != nil {
		if errors.Is(err, domain.ErrNoCredits) {
			a.error(w, http.StatusForbidden, "no_credits", domain.ErrNoCredits.Error())
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to check credits")
		return
	}

	urls, err := a.Replicate.Run(r.Context(), req.Model, req.providerInput(a.Replicate.Owner()))
	if err != nil {
		a.refundImageCredit(r.Context(), userID)
		a.Logger.Error().Err(err).Str("model", req.Model).Msg("image generation failed")
		a.logUsage(r.Context(), userID, "IMAGE_GENERATE", false, started)
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	a.logUsage(r.Context(), userID, "IMAGE_GENERATE", true, started)
	a.respond(w, http.StatusOK, map[string]any{"images": urls})
}

type storeImageInput struct {
	URL               string  `json:"url"`
	Model             string  `json:"model"`
	Prompt            string  `json:"prompt"`
	AspectRatio       string  `json:"aspect_ratio"`
	Guidance          float64 `json:"guidance"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	OutputFormat      string  `json:"output_format"`
}

type storeImagesRequest struct {
	Images []storeImageInput `json:"images"`
}

type storeImageResult struct {
	FileName string `json:"file_name,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// StoreImages downloads generated outputs, copies them into the
// generated-images bucket and records a row per image. Items fail
// independently; the response reports one result per input.
func (a *App) StoreImages(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req storeImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Images) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "images are required")
		return
	}

	results := make([]storeImageResult, 0, len(req.Images))
	for _, img := range req.Images {
		res := a.storeOne(r, userID, img)
		results = append(results, res)
	}
	a.respond(w, http.StatusCreated, map[string]any{"results": results})
}

func (a *App) storeOne(r *http.Request, userID string, img storeImageInput) storeImageResult {
	data, err := a.fetchImage(r, img.URL)
	if err != nil {
		return storeImageResult{Success: false, Error: err.Error()}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return storeImageResult{Success: false, Error: "unrecognized image data"}
	}
	fileName := fmt.Sprintf("image_%s.%s", uuid.NewString(), format)
	key := storage.ObjectKey(userID, fileName)

	if err := a.Store.Upload(r.Context(), storage.GeneratedImagesBucket, key, data, "image/"+format); err != nil {
		a.Logger.Error().Err(err).Str("key", key).Msg("image upload failed")
		return storeImageResult{FileName: fileName, Success: false, Error: "failed to upload image"}
	}

	var id string
	row := a.SQL.QueryRow(r.Context(), sqlinline.QInsertGeneratedImage,
		userID, img.Model, img.Prompt, img.AspectRatio, img.Guidance,
		img.NumInferenceSteps, img.OutputFormat, fileName, cfg.Width, cfg.Height)
	if err := row.Scan(&id); err != nil {
		a.Logger.Error().Err(err).Str("key", key).Msg("image row insert failed")
		return storeImageResult{FileName: fileName, Success: false, Error: "failed to record image"}
	}
	return storeImageResult{FileName: fileName, Success: true}
}

func (a *App) fetchImage(r *http.Request, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, errors.New("invalid image url")
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: http %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

// ListImages returns the caller's gallery newest-first, each with a signed URL.
func (a *App) ListImages(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit <= 0 || limit > 500 {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
	}
	rows, err := a.SQL.Query(r.Context(), sqlinline.QSelectImagesByUser, userID, limit)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch images")
		return
	}
	defer rows.Close()

	items := []domain.GeneratedImage{}
	for rows.Next() {
		var img domain.GeneratedImage
		if err := rows.Scan(&img.ID, &img.UserID, &img.Model, &img.Prompt, &img.AspectRatio,
			&img.Guidance, &img.NumInferenceSteps, &img.OutputFormat, &img.ImageName,
			&img.Width, &img.Height, &img.CreatedAt); err != nil {
			continue
		}
		if url, err := a.Store.CreateSignedURL(r.Context(), storage.GeneratedImagesBucket,
			storage.ObjectKey(userID, img.ImageName), storage.SignedURLTTL); err == nil {
			img.URL = url
		}
		items = append(items, img)
	}
	a.respond(w, http.StatusOK, map[string]any{"images": items, "count": len(items)})
}

// DeleteImage removes the row first (the durable fact), then the blob.
func (a *App) DeleteImage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	imageID := chi.URLParam(r, "id")
	if imageID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "image id required")
		return
	}
	var id, imageName string
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectImageForUser, imageID, userID)
	if err := row.Scan(&id, &imageName); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	if _, err := a.SQL.Exec(r.Context(), sqlinline.QDeleteGeneratedImage, imageID, userID); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete image")
		return
	}
	if err := a.Store.Remove(r.Context(), storage.GeneratedImagesBucket, storage.ObjectKey(userID, imageName)); err != nil {
		a.Logger.Warn().Err(err).Str("image", imageName).Msg("blob removal failed after row delete")
	}
	a.respond(w, http.StatusOK, map[string]string{"id": id})
}
