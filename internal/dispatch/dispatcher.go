// Package dispatch drains the transactional outbox. order_delivered events
// run the cashback and settlement side effects; every dispatched event can
// also be forwarded to Pub/Sub.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goretry "github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/metrics"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond

	forwardConsumer = "pubsub-forwarder"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublished(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminal(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error, maxAttempts int) error
	CountStuck(ctx context.Context, maxAttempts int) (int64, error)
}

// DeliveredHandler applies the side effects of a delivered order.
type DeliveredHandler interface {
	OnDelivered(ctx context.Context, orderID uuid.UUID) error
}

// Forwarder publishes a dispatched event downstream.
type Forwarder interface {
	Forward(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error
}

// Claimer remembers which events were already forwarded.
type Claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type ServiceParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	Repository outboxRepository
	Delivered  DeliveredHandler
	Forwarder  Forwarder
	Claimer    Claimer
	Metrics    *metrics.DispatchMetrics
}

// Service is the at-least-once outbox dispatcher.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	delivered    DeliveredHandler
	forwarder    Forwarder
	claimer      Claimer
	metrics      *metrics.DispatchMetrics
	decoders     *outbox.DecoderRegistry
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Delivered == nil {
		return nil, errors.New("delivered handler is required")
	}
	if params.Forwarder != nil && params.Claimer == nil {
		return nil, errors.New("forwarding requires an idempotency claimer")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	decoders := outbox.NewDecoderRegistry()
	decoders.Register(enums.EventOrderDelivered, 1, outbox.JSONDecoder[payloads.OrderDeliveredEvent]())

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		delivered:    params.Delivered,
		forwarder:    params.Forwarder,
		claimer:      params.Claimer,
		metrics:      params.Metrics,
		decoders:     decoders,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
		now:          time.Now,
	}, nil
}

// Run polls until ctx is cancelled. Failed batches back off exponentially
// up to maxBackoff; idle polls wait one interval. Both carry jitter.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}

	idle := goretry.WithJitter(jitterWindow, goretry.NewConstant(s.pollInterval))
	failing := s.failureBackoff()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox dispatcher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox dispatcher batch error", err)
			wait, _ := failing.Next()
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		failing = s.failureBackoff()

		if processed {
			continue
		}
		wait, _ := idle.Next()
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) failureBackoff() goretry.Backoff {
	return goretry.WithCappedDuration(maxBackoff,
		goretry.WithJitter(jitterWindow, goretry.NewExponential(s.pollInterval)))
}

// processBatch claims a batch and dispatches each row. A failing row never
// blocks the rest of the batch; bookkeeping errors are aggregated.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var events []models.OutboxEvent
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		events, err = s.repo.FetchUnpublished(ctx, tx, s.batchSize, s.maxAttempts)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("fetch outbox batch: %w", err)
	}
	if len(events) == 0 {
		return false, nil
	}

	var errs error
	for _, event := range events {
		errs = multierr.Append(errs, s.dispatch(ctx, event))
	}

	if stuck, err := s.repo.CountStuck(ctx, s.maxAttempts); err == nil {
		s.metrics.SetStuck(stuck)
	} else {
		errs = multierr.Append(errs, fmt.Errorf("count stuck events: %w", err))
	}
	return true, errs
}

// dispatch handles one row and records the outcome on it. Only failures to
// record the outcome are returned.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) error {
	fields := eventFields(event)
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return s.terminal(ctx, event, fields, err)
	}
	fields["event_id"] = envelope.EventID

	if err := s.handle(ctx, event, envelope); err != nil {
		if !pkgerrors.IsRetryable(err) {
			return s.terminal(ctx, event, fields, err)
		}
		return s.fail(ctx, event, fields, err)
	}

	if err := s.forward(ctx, event, envelope); err != nil {
		return s.fail(ctx, event, fields, fmt.Errorf("forward: %w", err))
	}

	if err := s.repo.MarkPublished(ctx, nil, event.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	s.metrics.Inc(string(event.EventType), metrics.OutcomeHandled)
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event dispatched")
	return nil
}

// handle runs the local side effects of an event. Events without a local
// handler succeed immediately.
func (s *Service) handle(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error {
	if !s.decoders.Handles(event.EventType) {
		return nil
	}
	decoded, err := s.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode order delivered payload")
	}
	payload, ok := decoded.(payloads.OrderDeliveredEvent)
	if !ok || payload.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order delivered payload missing order id")
	}
	return s.delivered.OnDelivered(ctx, payload.OrderID)
}

func (s *Service) forward(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error {
	if s.forwarder == nil {
		return nil
	}
	already, err := s.claimer.Claim(ctx, forwardConsumer, event.ID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	if err := s.forwarder.Forward(ctx, event, envelope); err != nil {
		if releaseErr := s.claimer.Release(ctx, forwardConsumer, event.ID); releaseErr != nil {
			return multierr.Append(err, releaseErr)
		}
		return err
	}
	s.metrics.Inc(string(event.EventType), metrics.OutcomeForwarded)
	return nil
}

func (s *Service) fail(ctx context.Context, event models.OutboxEvent, fields map[string]any, cause error) error {
	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if err := s.repo.MarkFailed(ctx, nil, event.ID, cause); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error())
	if nextAttempt >= s.maxAttempts {
		s.metrics.Inc(string(event.EventType), metrics.OutcomeTerminal)
		s.logg.Warn(s.logg.WithField(logCtx, "terminal_reason", "max_attempts"), "outbox event will not be retried")
		return nil
	}
	s.metrics.Inc(string(event.EventType), metrics.OutcomeFailed)
	s.logg.Warn(logCtx, "outbox dispatch failed")
	return nil
}

func (s *Service) terminal(ctx context.Context, event models.OutboxEvent, fields map[string]any, cause error) error {
	if err := s.repo.MarkTerminal(ctx, nil, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.Inc(string(event.EventType), metrics.OutcomeTerminal)
	logCtx := s.logg.WithFields(ctx, fields)
	logCtx = s.logg.WithField(logCtx, "error", cause.Error())
	s.logg.Warn(s.logg.WithField(logCtx, "terminal_reason", "non_retryable"), "outbox event will not be retried")
	return nil
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
