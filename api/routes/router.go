package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/orderledger/api/controllers"
	cashbackcontrollers "github.com/angelmondragon/orderledger/api/controllers/cashback"
	ordercontrollers "github.com/angelmondragon/orderledger/api/controllers/orders"
	vendorcontrollers "github.com/angelmondragon/orderledger/api/controllers/vendor"
	walletcontrollers "github.com/angelmondragon/orderledger/api/controllers/wallet"
	webhookcontrollers "github.com/angelmondragon/orderledger/api/controllers/webhooks"
	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/internal/pricing"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// OrdersService is the lifecycle manager as the HTTP layer sees it.
type OrdersService interface {
	ordercontrollers.Service
	webhookcontrollers.PaymentConfirmer
}

// Deps carries everything the router mounts.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Idempotency middleware.IdempotencyStore
	Readiness   []controllers.Dependency

	Pricing     *pricing.Resolver
	Orders      OrdersService
	Wallet      walletcontrollers.Service
	Cashback    cashbackcontrollers.Service
	Settlements vendorcontrollers.SettlementService
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)
	if len(cfg.App.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Readiness...))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(d.Idempotency, logg))

		r.Route("/webhooks/payments", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleSystem))
			r.Post("/confirm", webhookcontrollers.ConfirmPayment(d.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer))
			r.Post("/checkout/quote", controllers.CheckoutQuote(d.Pricing, logg))
			r.Post("/orders", ordercontrollers.Create(d.Orders, logg))
			r.Get("/orders", ordercontrollers.List(d.Orders, logg))

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", walletcontrollers.Balance(d.Wallet, logg))
				r.Get("/transactions", walletcontrollers.Transactions(d.Wallet, logg))
				r.Post("/use", walletcontrollers.Use(d.Wallet, logg))
			})
			r.Route("/cashback", func(r chi.Router) {
				r.Get("/pending", cashbackcontrollers.Pending(d.Cashback, logg))
				r.Get("/stats", cashbackcontrollers.Stats(d.Cashback, logg))
			})
		})

		// order reads and transitions are authorized per order by the service
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleVendor, enums.ActorRoleAdmin))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(d.Orders, logg))
			r.Get("/orders/{orderId}/history", ordercontrollers.History(d.Orders, logg))
			r.Post("/orders/{orderId}/status", ordercontrollers.UpdateStatus(d.Orders, logg))
			r.Post("/orders/{orderId}/cancel", ordercontrollers.Cancel(d.Orders, logg))
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleVendor))
			r.Get("/settlements", vendorcontrollers.ListSettlements(d.Settlements, logg))
			r.Get("/earnings", vendorcontrollers.Earnings(d.Settlements, logg))
			r.Post("/settlements/{settlementId}/payout", vendorcontrollers.RequestPayout(d.Settlements, logg))
		})
	})

	return r
}
