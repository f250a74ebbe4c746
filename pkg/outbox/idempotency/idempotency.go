// Package idempotency records which outbox events a consumer has already
// forwarded so a redelivered row is not fanned out twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/pkg/redis"
)

// Manager claims event ids per consumer using SETNX with a TTL. Keys follow
// `ol:idempotency:evt:<consumer>:<event_id>`.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim returns true when the event was already claimed by this consumer;
// otherwise it claims it.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Release drops a claim so a failed forward can be retried.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("evt:%s", consumer), eventID.String()), nil
}
