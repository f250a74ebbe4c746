package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// DomainEvent is what services hand to Emit. DedupeKey distinguishes
// repeated events of one type on the same aggregate (for example each status
// an order reaches); leave it empty for events that happen once.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	DedupeKey     string
	Actor         *ActorRef
	Data          interface{}
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit writes the event inside tx so it commits or rolls back with the state
// change it describes. Emitting the same (type, aggregate, dedupe key) twice
// is a no-op.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !event.EventType.IsValid() {
		return errors.New("invalid outbox event type " + string(event.EventType))
	}
	if !event.AggregateType.IsValid() {
		return errors.New("invalid outbox aggregate type " + string(event.AggregateType))
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		DedupeKey:     event.DedupeKey,
		Payload:       json.RawMessage(payloadJSON),
	}
	inserted, err := s.repo.Insert(ctx, tx, &row)
	if err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		})
		if inserted {
			s.logg.Info(logCtx, "outbox event queued")
		} else {
			s.logg.Debug(logCtx, "outbox event already queued")
		}
	}
	return nil
}
