// Package jobs runs the periodic housekeeping tasks of the service: reaping
// sessions nobody acknowledged after they expired and purging old audit rows.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one named housekeeping task.
type Job struct {
	Name     string
	Schedule string
	Run      func(context.Context) error
}

// Runner schedules jobs with cron.
type Runner struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner creates a runner. Schedules use the standard five-field cron
// syntax plus descriptors such as "@every 1m" and "@daily".
func NewRunner() *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job.
func (r *Runner) Add(job Job) error {
	if _, err := r.cron.AddFunc(job.Schedule, func() { r.runOnce(job) }); err != nil {
		return fmt.Errorf("schedule job %s: %w", job.Name, err)
	}
	return nil
}

// Start begins running scheduled jobs in the background.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (r *Runner) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
}

// Entries returns how many jobs are scheduled.
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) runOnce(job Job) {
	start := time.Now()
	err := job.Run(r.ctx)
	durMs := time.Since(start).Milliseconds()
	if err != nil {
		log.Printf("metric=job_run name=%s status=error duration_ms=%d err=%q", job.Name, durMs, err.Error())
		return
	}
	log.Printf("metric=job_run name=%s status=ok duration_ms=%d", job.Name, durMs)
}
