package dispatcher

import (
	"context"
	"errors"
	"sync"

	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/handlers"
	"github.com/aspiranek/sim/internal/notify"
	"github.com/aspiranek/sim/internal/queue"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dispatcher runs a fixed pool of workers that claim pending jobs and execute
// them. Workers sleep when the queue is empty and wake on the notify channel
// or the watcher's poll tick, so new work is picked up promptly even when the
// filesystem notification is lost.
type Dispatcher struct {
	db       *gorm.DB
	env      *handlers.Env
	watcher  *notify.Watcher
	notifier *notify.Notifier
	workers  int
}

func New(db *gorm.DB, env *handlers.Env, watcher *notify.Watcher, notifier *notify.Notifier, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		db:       db,
		env:      env,
		watcher:  watcher,
		notifier: notifier,
		workers:  workers,
	}
}

// Run blocks until ctx is canceled and every worker has drained its current
// job. Jobs already claimed keep running to completion; only the claim loop
// stops.
func (d *Dispatcher) Run(ctx context.Context) {
	zap.S().Infof("starting %d job workers", d.workers)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	zap.S().Info("all job workers stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	for {
		job, err := queue.ClaimNext(d.db)
		if err != nil {
			zap.S().Errorf("worker %d: claiming next job: %v", id, err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-d.watcher.C:
			}
			continue
		}

		d.process(ctx, id, job)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// process runs one claimed job to a committed outcome. A panic or transient
// error releases the claim so the job can be retried; a mid-flight
// cancellation is abandoned without noise.
func (d *Dispatcher) process(ctx context.Context, id int, job *models.Job) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("worker %d: panic while running job %d (%s): %v", id, job.ID, job.Type, r)
			if err := queue.Release(d.db, job.ID); err != nil {
				zap.S().Errorf("worker %d: releasing job %d after panic: %v", id, job.ID, err)
			}
		}
	}()

	zap.S().Infof("worker %d: running job %d (%s)", id, job.ID, job.Type)

	err := handlers.Run(ctx, d.env, d.db, job)
	switch {
	case err == nil:
		zap.S().Infof("worker %d: job %d finished", id, job.ID)
		// Follow-up jobs may have been enqueued by the handler; wake
		// other server processes.
		d.notifier.Notify()
	case errors.Is(err, handlers.ErrCanceled):
		zap.S().Infof("worker %d: job %d was canceled mid-flight, abandoning", id, job.ID)
	default:
		zap.S().Errorf("worker %d: job %d hit a transient error: %v", id, job.ID, err)
		if relErr := queue.Release(d.db, job.ID); relErr != nil {
			zap.S().Errorf("worker %d: releasing job %d: %v", id, job.ID, relErr)
		}
	}
}
