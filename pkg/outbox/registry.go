package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// ErrNoDecoder means no decoder exists for an event type and payload version.
var ErrNoDecoder = errors.New("outbox decoder not registered")

type decoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps (event type, payload version) to a typed decoder so a
// payload change ships as a new version instead of breaking queued rows.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Handles reports whether eventType has a decoder for any version.
func (r *DecoderRegistry) Handles(eventType enums.OutboxEventType) bool {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	for key := range r.registry {
		if key.eventType == eventType {
			return true
		}
	}
	return false
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrNoDecoder, eventType, version)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("decode %s@v%d: empty payload", eventType, version)
	}
	return decoder(payload)
}

// JSONDecoder builds a decoder for payloads of type T.
func JSONDecoder[T any]() decoderFunc {
	return func(payload json.RawMessage) (any, error) {
		var out T
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
