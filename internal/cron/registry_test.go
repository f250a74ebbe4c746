package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry := NewRegistry(nil)
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	require.NoError(t, registry.Register(jobA))
	require.NoError(t, registry.Register(jobB))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, jobA, jobs[0])
	assert.Same(t, jobB, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "cashback-expiry"})
	assert.Error(t, registry.Register(&stubJob{name: "cashback-expiry"}))
	assert.Panics(t, func() { NewRegistry(&stubJob{name: "x"}, &stubJob{name: "x"}) })
}
