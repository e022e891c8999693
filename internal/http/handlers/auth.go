package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pictoria-server/internal/domain"
	"pictoria-server/internal/middleware"
	"pictoria-server/internal/sqlinline"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

func (a *App) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}
	user, err := a.Auth.SignUp(r.Context(), req.Email, req.Password, strings.TrimSpace(req.FullName))
	if err != nil {
		a.Logger.Error().Err(err).Msg("signup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create account")
		return
	}
	a.respond(w, http.StatusCreated, map[string]string{"id": user.ID, "email": user.Email})
}

func (a *App) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Email == "" || req.Password == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}
	session, err := a.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		a.Logger.Error().Err(err).Msg("signin failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign in")
		return
	}
	a.respond(w, http.StatusOK, session)
}

func (a *App) SignOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerTokenFromContext(r.Context())
	if token == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := a.Auth.SignOut(r.Context(), token); err != nil {
		a.Logger.Error().Err(err).Msg("signout failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword always answers 202: whether the address has an account is not
// leaked to the caller.
func (a *App) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "email is required")
		return
	}
	if err := a.Auth.ResetPassword(r.Context(), strings.TrimSpace(req.Email)); err != nil {
		a.Logger.Warn().Err(err).Msg("password recovery failed")
	}
	a.respond(w, http.StatusAccepted, map[string]string{"message": "If the address exists, a recovery email is on its way."})
}

type profileDTO struct {
	ID                   string `json:"id"`
	Email                string `json:"email"`
	ImageGenerationCount int    `json:"image_generation_count"`
	ModelTrainingCount   int    `json:"model_training_count"`
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	profile := profileDTO{ID: userID, Email: a.currentUserEmail(r)}

	var uid string
	var updatedAt time.Time
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCredits, userID)
	if err := row.Scan(&uid, &profile.ImageGenerationCount, &profile.ModelTrainingCount, &updatedAt); err != nil {
		// No ledger row yet reads as zero allowance.
		profile.ImageGenerationCount = 0
		profile.ModelTrainingCount = 0
	}
	a.respond(w, http.StatusOK, profile)
}
