package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/cashback"
	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/internal/settlements"
	"github.com/angelmondragon/orderledger/internal/stores"
	"github.com/angelmondragon/orderledger/internal/wallet"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
	"github.com/angelmondragon/orderledger/pkg/types"
)

type stubDelivered struct {
	calls []uuid.UUID
	err   error
}

func (s *stubDelivered) OnDelivered(_ context.Context, orderID uuid.UUID) error {
	s.calls = append(s.calls, orderID)
	return s.err
}

type stubForwarder struct {
	calls int
	errs  []error
}

func (f *stubForwarder) Forward(context.Context, models.OutboxEvent, outbox.PayloadEnvelope) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

type memoryClaimer struct {
	claimed map[uuid.UUID]bool
}

func (m *memoryClaimer) Claim(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if m.claimed[id] {
		return true, nil
	}
	m.claimed[id] = true
	return false, nil
}

func (m *memoryClaimer) Release(_ context.Context, _ string, id uuid.UUID) error {
	delete(m.claimed, id)
	return nil
}

type harness struct {
	client *db.Client
	conn   *gorm.DB
	repo   *outbox.Repository
	events *outbox.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, conn := dbtest.Client(t)
	repo := outbox.NewRepository(conn)
	return &harness{client: client, conn: conn, repo: repo, events: outbox.NewService(repo, nil)}
}

func (h *harness) service(t *testing.T, params ServiceParams) *Service {
	t.Helper()
	params.Config = config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 2}
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	params.DB = h.client
	params.Repository = h.repo
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func (h *harness) emitDelivered(t *testing.T, orderID uuid.UUID) {
	t.Helper()
	require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
		return h.events.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderDeliveredEvent{OrderID: orderID, DeliveredAt: time.Now().UTC()},
		})
	}))
}

func (h *harness) row(t *testing.T, aggregateID uuid.UUID, eventType enums.OutboxEventType) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_id = ? AND event_type = ?", aggregateID, eventType).First(&row).Error)
	return row
}

func TestProcessBatchRunsDeliveredEffects(t *testing.T) {
	h := newHarness(t)
	delivered := &stubDelivered{}
	svc := h.service(t, ServiceParams{Delivered: delivered})
	ctx := context.Background()

	orderID := uuid.New()
	h.emitDelivered(t, orderID)
	require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
		return h.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCreatedEvent{OrderID: orderID},
		})
	}))

	processed, err := svc.processBatch(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{orderID}, delivered.calls)
	assert.NotNil(t, h.row(t, orderID, enums.EventOrderDelivered).PublishedAt)
	assert.NotNil(t, h.row(t, orderID, enums.EventOrderCreated).PublishedAt)

	processed, err = svc.processBatch(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Len(t, delivered.calls, 1)
}

func TestRetryableFailureStopsAtMaxAttempts(t *testing.T) {
	h := newHarness(t)
	delivered := &stubDelivered{err: pkgerrors.New(pkgerrors.CodeDependency, "wallet store down")}
	svc := h.service(t, ServiceParams{Delivered: delivered})
	ctx := context.Background()
	orderID := uuid.New()
	h.emitDelivered(t, orderID)

	_, err := svc.processBatch(ctx)
	require.NoError(t, err)
	row := h.row(t, orderID, enums.EventOrderDelivered)
	assert.Nil(t, row.PublishedAt)
	assert.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "wallet store down")

	_, err = svc.processBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.row(t, orderID, enums.EventOrderDelivered).AttemptCount)

	processed, err := svc.processBatch(ctx)
	require.NoError(t, err)
	assert.False(t, processed, "exhausted rows are not refetched")
	assert.Len(t, delivered.calls, 2)

	stuck, err := h.repo.CountStuck(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stuck)
}

func TestBusinessFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	delivered := &stubDelivered{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order is returned")}
	svc := h.service(t, ServiceParams{Delivered: delivered})
	orderID := uuid.New()
	h.emitDelivered(t, orderID)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)

	row := h.row(t, orderID, enums.EventOrderDelivered)
	assert.Nil(t, row.PublishedAt)
	assert.Equal(t, 2, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.True(t, strings.HasPrefix(*row.LastError, "terminal: "))
}

func TestUndecodablePayloadIsTerminal(t *testing.T) {
	h := newHarness(t)
	delivered := &stubDelivered{}
	svc := h.service(t, ServiceParams{Delivered: delivered})
	orderID := uuid.New()
	require.NoError(t, h.conn.Create(&models.OutboxEvent{
		EventType:     enums.EventOrderDelivered,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":"not an object"}`),
	}).Error)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, delivered.calls)
	assert.Equal(t, 2, h.row(t, orderID, enums.EventOrderDelivered).AttemptCount)
}

func TestForwardingRetriesAndClaimsOnce(t *testing.T) {
	h := newHarness(t)
	forwarder := &stubForwarder{errs: []error{errors.New("pubsub unavailable")}}
	claimer := &memoryClaimer{claimed: map[uuid.UUID]bool{}}
	svc := h.service(t, ServiceParams{Delivered: &stubDelivered{}, Forwarder: forwarder, Claimer: claimer})
	ctx := context.Background()
	orderID := uuid.New()
	h.emitDelivered(t, orderID)

	_, err := svc.processBatch(ctx)
	require.NoError(t, err)
	row := h.row(t, orderID, enums.EventOrderDelivered)
	assert.Nil(t, row.PublishedAt)
	assert.False(t, claimer.claimed[row.ID], "failed forward releases its claim")

	_, err = svc.processBatch(ctx)
	require.NoError(t, err)
	row = h.row(t, orderID, enums.EventOrderDelivered)
	assert.NotNil(t, row.PublishedAt)
	assert.True(t, claimer.claimed[row.ID])
	assert.Equal(t, 2, forwarder.calls)

	other := uuid.New()
	h.emitDelivered(t, other)
	claimer.claimed[h.row(t, other, enums.EventOrderDelivered).ID] = true
	_, err = svc.processBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, forwarder.calls, "already claimed events are not forwarded again")
	assert.NotNil(t, h.row(t, other, enums.EventOrderDelivered).PublishedAt)
}

func TestNewServiceRequiresClaimerWhenForwarding(t *testing.T) {
	h := newHarness(t)
	_, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         h.client,
		Repository: h.repo,
		Delivered:  &stubDelivered{},
		Forwarder:  &stubForwarder{},
	})
	require.Error(t, err)
}

func TestDeliveryEffectsEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wallets, err := wallet.NewService(wallet.ServiceParams{Tx: h.client, Repo: wallet.NewRepository(h.conn), Outbox: h.events})
	require.NoError(t, err)
	cashbacks, err := cashback.NewService(cashback.ServiceParams{
		Tx:     h.client,
		Repo:   cashback.NewRepository(h.conn),
		Orders: orders.NewRepository(h.conn),
		Wallet: wallets,
		Outbox: h.events,
		Policy: cashback.Policy{Percent: decimal.NewFromInt(5), Expiry: 24 * time.Hour, ConflictRetries: 2},
	})
	require.NoError(t, err)
	payouts, err := settlements.NewService(settlements.ServiceParams{
		Tx:       h.client,
		Repo:     settlements.NewRepository(h.conn),
		Orders:   orders.NewRepository(h.conn),
		Stores:   stores.NewRepository(h.conn),
		Cashback: cashback.NewRepository(h.conn),
		Outbox:   h.events,
		Policy:   settlements.Policy{CommissionPercent: decimal.NewFromInt(10), ConflictRetries: 2},
	})
	require.NoError(t, err)
	effects, err := NewDeliveryEffects(cashbacks, payouts, nil)
	require.NoError(t, err)

	vendor := uuid.New()
	store := dbtest.SeedStore(t, h.conn, vendor)
	order := models.Order{
		OrderNumber:      "ORD-" + uuid.NewString()[:10],
		BuyerID:          uuid.New(),
		SubtotalCents:    20000,
		DiscountCents:    2000,
		TotalAmountCents: 18000,
		ShippingAddress:  types.AddressSnapshot{},
		BillingAddress:   types.AddressSnapshot{},
		PaymentMethod:    enums.PaymentMethodCard,
		PaymentStatus:    enums.PaymentStatusPaid,
		OrderStatus:      enums.OrderStatusDelivered,
		Version:          1,
	}
	require.NoError(t, h.conn.Create(&order).Error)
	require.NoError(t, h.conn.Create(&models.OrderItem{
		OrderID: order.ID, ProductID: uuid.New(), StoreID: store.ID, ProductTitle: "item",
		UnitPriceCents: 10000, Quantity: 2, LineTotalCents: 20000,
	}).Error)
	h.emitDelivered(t, order.ID)

	svc := h.service(t, ServiceParams{Delivered: effects})
	_, err = svc.processBatch(ctx)
	require.NoError(t, err)
	// a replay of the same event changes nothing
	require.NoError(t, effects.OnDelivered(ctx, order.ID))

	balance, err := wallets.GetBalance(ctx, order.BuyerID)
	require.NoError(t, err)
	assert.EqualValues(t, 900, balance.BalanceCents)

	var rows []models.VendorSettlement
	require.NoError(t, h.conn.Where("order_id = ?", order.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 20000, rows[0].GrossCents)
	assert.EqualValues(t, 2000, rows[0].PlatformCommissionCents)
	assert.EqualValues(t, 900, rows[0].CashbackCents)
	assert.EqualValues(t, 17100, rows[0].NetPayoutCents)
	assert.Equal(t, vendor, rows[0].VendorID)
	assert.NotNil(t, h.row(t, order.ID, enums.EventOrderDelivered).PublishedAt)
}
