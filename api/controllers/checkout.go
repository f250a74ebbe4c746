package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/api/responses"
	"github.com/angelmondragon/orderledger/api/validators"
	"github.com/angelmondragon/orderledger/internal/pricing"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

type quoter interface {
	Quote(ctx context.Context, lines []pricing.CartLine, couponCode string) (*pricing.Quote, error)
}

type quoteRequest struct {
	Lines      []pricing.CartLine `json:"lines" validate:"required,min=1,dive"`
	CouponCode string             `json:"coupon_code" validate:"max=64"`
}

// CheckoutQuote prices cart lines and an optional coupon without reserving
// anything.
func CheckoutQuote(svc quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := middleware.RequireActor(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req quoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), req.Lines, validators.NormalizeCode(req.CouponCode))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
