package cron

import (
	"context"
	"fmt"
	"strings"

	robfig "github.com/robfig/cron/v3"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its parsed schedule.
type Entry struct {
	Spec     string
	Schedule robfig.Schedule
	Job      Job
}

// Registry tracks registered cron jobs and their schedules.
type Registry struct {
	entries []Entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job under a standard five-field cron spec. Job names must
// be unique since they key the distributed lock.
func (r *Registry) Register(spec string, job Job) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	spec = strings.TrimSpace(spec)
	schedule, err := robfig.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q for %s: %w", spec, job.Name(), err)
	}
	if _, ok := r.Lookup(job.Name()); ok {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	r.entries = append(r.entries, Entry{Spec: spec, Schedule: schedule, Job: job})
	return nil
}

// Lookup returns the job registered under name.
func (r *Registry) Lookup(name string) (Job, bool) {
	for _, entry := range r.entries {
		if entry.Job.Name() == name {
			return entry.Job, true
		}
	}
	return nil, false
}

// Entries returns the registered entries in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, entry := range r.entries {
		jobs = append(jobs, entry.Job)
	}
	return jobs
}
