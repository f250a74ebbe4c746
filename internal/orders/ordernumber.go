package orders

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	orderNumberPrefix = "ORD-"
	orderNumberLength = 10
	crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

// NewOrderNumber returns a short human-readable token. Collisions are
// possible and are handled by the unique index plus a retry in the caller.
func NewOrderNumber() (string, error) {
	buf := make([]byte, orderNumberLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	var sb strings.Builder
	sb.Grow(len(orderNumberPrefix) + orderNumberLength)
	sb.WriteString(orderNumberPrefix)
	for _, b := range buf {
		sb.WriteByte(crockfordAlphabet[b&0x1f])
	}
	return sb.String(), nil
}
