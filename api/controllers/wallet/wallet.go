package wallet

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/api/responses"
	"github.com/angelmondragon/orderledger/api/validators"
	internalwallet "github.com/angelmondragon/orderledger/internal/wallet"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/money"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

// Service is the wallet surface the routes need.
type Service interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Result[models.WalletTransaction], error)
	UseBalance(ctx context.Context, input internalwallet.UseBalanceInput) (*models.WalletTransaction, error)
}

type balanceResponse struct {
	BalanceCents       int64  `json:"balance_cents"`
	Balance            string `json:"balance"`
	TotalCashbackCents int64  `json:"total_cashback_cents"`
	TotalSpentCents    int64  `json:"total_spent_cents"`
}

// Balance returns the caller's wallet. A user without a wallet sees zeros.
func Balance(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := svc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{
			BalanceCents:       wallet.BalanceCents,
			Balance:            money.Format(wallet.BalanceCents),
			TotalCashbackCents: wallet.TotalCashbackCents,
			TotalSpentCents:    wallet.TotalSpentCents,
		})
	}
}

// Transactions pages the caller's wallet log, newest first.
func Transactions(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListTransactions(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Use applies wallet funds toward one of the caller's orders.
func Use(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req internalwallet.UseBalanceInput
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.UserID = userID

		txn, err := svc.UseBalance(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}
