package cashback

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/api/responses"
	internalcashback "github.com/angelmondragon/orderledger/internal/cashback"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// Service is the cashback read surface.
type Service interface {
	GetPending(ctx context.Context, userID uuid.UUID) ([]models.Cashback, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*internalcashback.Stats, error)
}

// Pending lists cashback the caller earned but has not yet received.
func Pending(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.GetPending(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []models.Cashback{}
		}
		responses.WriteSuccess(w, rows)
	}
}

// Stats summarises the caller's cashback by status.
func Stats(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stats, err := svc.GetStats(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
