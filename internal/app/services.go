// Package app assembles the domain services shared by the api, the outbox
// dispatcher and the cron worker.
package app

import (
	"fmt"

	"github.com/angelmondragon/orderledger/internal/address"
	"github.com/angelmondragon/orderledger/internal/cart"
	"github.com/angelmondragon/orderledger/internal/cashback"
	"github.com/angelmondragon/orderledger/internal/coupons"
	"github.com/angelmondragon/orderledger/internal/dispatch"
	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/internal/pricing"
	"github.com/angelmondragon/orderledger/internal/products"
	"github.com/angelmondragon/orderledger/internal/settlements"
	"github.com/angelmondragon/orderledger/internal/stores"
	"github.com/angelmondragon/orderledger/internal/wallet"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/outbox"
)

// Services is the wired domain graph.
type Services struct {
	OutboxRepo  *outbox.Repository
	Outbox      *outbox.Service
	Pricing     *pricing.Resolver
	Orders      *orders.Service
	Wallet      *wallet.Service
	Cashback    *cashback.Service
	Settlements *settlements.Service
	Delivery    *dispatch.DeliveryEffects
}

// NewServices builds every domain service on one database client. When
// inline delivery is enabled the DELIVERED transition applies cashback and
// settlements right after commit; otherwise only the dispatcher does.
func NewServices(cfg *config.Config, logg *logger.Logger, client *db.Client) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if client == nil {
		return nil, fmt.Errorf("database client required")
	}
	conn := client.DB()

	productRepo := products.NewRepository(conn)
	couponRepo := coupons.NewRepository(conn)
	storeRepo := stores.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	cashbackRepo := cashback.NewRepository(conn)

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	resolver, err := pricing.NewResolver(productRepo, couponRepo)
	if err != nil {
		return nil, fmt.Errorf("pricing resolver: %w", err)
	}

	walletSvc, err := wallet.NewService(wallet.ServiceParams{
		Tx:     client,
		Repo:   wallet.NewRepository(conn),
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}

	cashbackSvc, err := cashback.NewService(cashback.ServiceParams{
		Tx:     client,
		Repo:   cashbackRepo,
		Orders: orderRepo,
		Wallet: walletSvc,
		Outbox: outboxSvc,
		Logger: logg,
		Policy: cashback.Policy{
			Percent:         cfg.Policy.CashbackRate(),
			Expiry:          cfg.Policy.CashbackExpiry,
			ConflictRetries: cfg.Policy.ConflictRetries,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cashback service: %w", err)
	}

	settlementSvc, err := settlements.NewService(settlements.ServiceParams{
		Tx:       client,
		Repo:     settlements.NewRepository(conn),
		Orders:   orderRepo,
		Stores:   storeRepo,
		Cashback: cashbackRepo,
		Outbox:   outboxSvc,
		Logger:   logg,
		Policy: settlements.Policy{
			CommissionPercent: cfg.Policy.CommissionRate(),
			ConflictRetries:   cfg.Policy.ConflictRetries,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("settlement service: %w", err)
	}

	delivery, err := dispatch.NewDeliveryEffects(cashbackSvc, settlementSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("delivery effects: %w", err)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Tx:          client,
		Orders:      orderRepo,
		Products:    productRepo,
		Coupons:     couponRepo,
		Addresses:   address.NewRepository(conn),
		Cart:        cart.NewRepository(conn),
		Stores:      storeRepo,
		Resolver:    resolver,
		Outbox:      outboxSvc,
		Settlements: settlementSvc,
		Wallet:      walletSvc,
		Logger:      logg,
		Policy: orders.Policy{
			ReturnWindow:       cfg.Policy.ReturnWindow,
			ConflictRetries:    cfg.Policy.ConflictRetries,
			OrderNumberRetries: cfg.Policy.OrderNumberRetries,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	if cfg.FeatureFlags.InlineDelivery {
		orderSvc.SetDeliveredHook(delivery)
	}

	return &Services{
		OutboxRepo:  outboxRepo,
		Outbox:      outboxSvc,
		Pricing:     resolver,
		Orders:      orderSvc,
		Wallet:      walletSvc,
		Cashback:    cashbackSvc,
		Settlements: settlementSvc,
		Delivery:    delivery,
	}, nil
}
