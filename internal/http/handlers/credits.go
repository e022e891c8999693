package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"pictoria-server/internal/domain"
	"pictoria-server/internal/sqlinline"
)

func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	credit := domain.Credit{UserID: userID}
	var updatedAt time.Time
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCredits, userID)
	err := row.Scan(&credit.UserID, &credit.ImageGenerationCount, &credit.ModelTrainingCount, &updatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credits")
		return
	}
	credit.UpdatedAt = updatedAt
	a.respond(w, http.StatusOK, credit)
}

// consumeCredit runs the atomic conditional decrement for one counter. It
// returns the remaining balance, or ErrNoCredits when the counter was already
// exhausted (the statement matches no row in that case, so two concurrent
// submissions cannot both spend the last credit).
func (a *App) consumeCredit(ctx context.Context, query, userID string) (int, error) {
	var remaining int
	row := a.SQL.QueryRow(ctx, query, userID)
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNoCredits
		}
		return 0, err
	}
	return remaining, nil
}

// refundTrainingCredit compensates an optimistic debit after a failed provider
// submission. Best effort: a failure here is logged and swallowed.
func (a *App) refundTrainingCredit(ctx context.Context, userID string) {
	var remaining int
	row := a.SQL.QueryRow(ctx, sqlinline.QRefundTrainingCredit, userID)
	if err := row.Scan(&remaining); err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("training credit refund failed")
	}
}

// refundImageCredit is the image-counter counterpart: a generation that never
// produced output must not cost a credit.
func (a *App) refundImageCredit(ctx context.Context, userID string) {
	var remaining int
	row := a.SQL.QueryRow(ctx, sqlinline.QRefundImageCredit, userID)
	if err := row.Scan(&remaining); err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("image credit refund failed")
	}
}
