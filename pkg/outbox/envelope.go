package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload column.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode outbox envelope: %w", err)
	}
	if env.Version == 0 {
		env.Version = 1
	}
	return env, nil
}
