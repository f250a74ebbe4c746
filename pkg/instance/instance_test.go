package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv(EnvInstanceID, "dispatcher-2")
	t.Setenv("DYNO", "web.1")
	assert.Equal(t, "dispatcher-2", GetID())
}

func TestGetIDFallsBackToDyno(t *testing.T) {
	t.Setenv(EnvInstanceID, "")
	t.Setenv("DYNO", "worker.3")
	assert.Equal(t, "worker.3", GetID())
}

func TestGetIDNeverEmpty(t *testing.T) {
	t.Setenv(EnvInstanceID, "")
	t.Setenv("DYNO", "")
	assert.NotEmpty(t, GetID())
}
