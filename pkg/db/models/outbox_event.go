package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// OutboxEvent represents an append-only event emitted via the outbox pattern.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null;uniqueIndex:ux_outbox_events_dedupe"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null;uniqueIndex:ux_outbox_events_dedupe"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null;uniqueIndex:ux_outbox_events_dedupe"`
	DedupeKey     string                    `gorm:"column:dedupe_key;not null;default:'';uniqueIndex:ux_outbox_events_dedupe"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime;index"`
	PublishedAt   *time.Time                `gorm:"column:published_at;index"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
