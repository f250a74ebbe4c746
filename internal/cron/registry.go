package cron

import (
	"context"
	"fmt"
)

// Job is one sweep run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order. Names are unique because they
// label metrics and logs.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry registers jobs, skipping nils. It panics on a duplicate name.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			panic(err)
		}
	}
	return registry
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if _, ok := r.names[job.Name()]; ok {
		return fmt.Errorf("cron job %q registered twice", job.Name())
	}
	r.names[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
