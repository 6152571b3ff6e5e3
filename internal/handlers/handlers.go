package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aspiranek/sim/internal/config"
	"github.com/aspiranek/sim/internal/conver"
	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/filestore"
	"github.com/aspiranek/sim/internal/jobs"
	"github.com/aspiranek/sim/internal/judger"
	"github.com/aspiranek/sim/internal/pubsub"

	"gorm.io/gorm"
)

// ErrCanceled is returned when a job's final conditional status write affects
// zero rows, meaning the job was canceled out-of-band. The caller rolls the
// stage back and moves on without treating it as a failure.
var ErrCanceled = errors.New("handlers: job canceled mid-flight")

// Env holds the collaborators job handlers may touch.
type Env struct {
	Files  *filestore.Store
	Judge  judger.Judge
	Conver conver.Conver
	Limits config.Limits
}

type handler interface {
	run(ctx context.Context, tx *gorm.DB) error
	base() *jobHandler
}

// Run executes one claimed job inside a single database transaction covering
// all of the handler's row side effects. File bytes are written before the
// commit and removed again if the transaction does not go through, so a
// committed row never references missing bytes.
//
// A nil return means the job reached a committed terminal status or was
// re-armed as the next pipeline stage. ErrCanceled means the stage was rolled
// back because the job was canceled. Any other error is a transient failure:
// the transaction is rolled back and the caller releases the claim for retry.
func Run(ctx context.Context, env *Env, db *gorm.DB, job *models.Job) error {
	h, err := newHandler(env, job)
	if err != nil {
		return err
	}
	b := h.base()

	txErr := db.Transaction(func(tx *gorm.DB) error {
		return h.run(ctx, tx)
	})

	if txErr != nil {
		for _, undo := range b.onRollback {
			undo()
		}
		return txErr
	}
	for _, apply := range b.onCommit {
		apply()
	}
	if !b.rearmed {
		pubsub.GetBroker().CloseJob(job.ID)
	}
	return nil
}

// newHandler constructs the handler for a job's type. The dispatch is
// exhaustive over the closed job type set; an unknown type is an internal
// invariant violation, not a user failure.
func newHandler(env *Env, job *models.Job) (handler, error) {
	b := newJobHandler(env, job)
	switch job.Type {
	case models.JobJudgeSubmission, models.JobRejudgeSubmission:
		return &judgeSubmission{jobHandler: b}, nil
	case models.JobAddProblem, models.JobReuploadProblem,
		models.JobAddJudgeModelSolution, models.JobReuploadJudgeModelSolution:
		return &addOrReuploadProblem{jobHandler: b}, nil
	case models.JobDeleteProblem:
		return &deleteProblem{jobHandler: b}, nil
	case models.JobDeleteContestProblem:
		return &deleteContestProblem{jobHandler: b}, nil
	case models.JobReselectFinalSubmissions:
		return &reselectFinalSubmissions{jobHandler: b}, nil
	case models.JobMergeUsers:
		return &mergeUsers{jobHandler: b}, nil
	case models.JobDeleteFile:
		return &deleteFile{jobHandler: b}, nil
	}
	return nil, fmt.Errorf("handlers: no handler for job type %d", job.Type)
}

// jobHandler carries the state common to all handlers: the claimed job row,
// the log being appended during this stage, and the failure flag.
type jobHandler struct {
	env *Env
	job *models.Job

	log     strings.Builder
	failed  bool
	rearmed bool

	onCommit   []func()
	onRollback []func()
}

func newJobHandler(env *Env, job *models.Job) *jobHandler {
	return &jobHandler{env: env, job: job}
}

func (b *jobHandler) base() *jobHandler { return b }

// logf appends a line to the job's log and publishes it for live streaming.
// The log is append-only across pipeline stages: finalize and rearm always
// write the row's previous Data plus this stage's lines.
func (b *jobHandler) logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	b.log.WriteString(line)
	b.log.WriteByte('\n')
	pubsub.GetBroker().Publish(b.job.ID, line)
}

// fail marks the job as failed with a user-facing reason. The failure notice
// itself commits; fail is for user-correctable conditions, never for
// transient errors.
func (b *jobHandler) fail(format string, args ...interface{}) {
	b.failed = true
	b.logf(format, args...)
}

func (b *jobHandler) data() string {
	return b.job.Data + b.log.String()
}

// finalize commits the job's terminal status with a conditional write keyed
// on the claim still being held. Zero rows affected means the job was
// canceled: the stage is abandoned via ErrCanceled.
func (b *jobHandler) finalize(tx *gorm.DB) error {
	return b.finalizeWith(tx, nil)
}

func (b *jobHandler) finalizeWith(tx *gorm.DB, extra map[string]interface{}) error {
	status := models.JobDone
	if b.failed {
		status = models.JobFailed
	}

	updates := map[string]interface{}{
		"status": status,
		"data":   b.data(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.Model(&models.Job{}).
		Where("id = ? AND status = ?", b.job.ID, models.JobInProgress).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCanceled
	}
	return nil
}

// rearm atomically rewrites the job row as the next stage of its pipeline:
// new type, Pending status, fresh priority and insertion point. The write is
// conditional on the claim still being held, making the transition
// cancel-safe.
func (b *jobHandler) rearm(tx *gorm.DB, next models.JobType, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"type":     next,
		"status":   models.JobPending,
		"priority": jobs.DefaultPriority(next),
		"added":    time.Now(),
		"data":     b.data(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.Model(&models.Job{}).
		Where("id = ? AND status = ?", b.job.ID, models.JobInProgress).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCanceled
	}
	b.rearmed = true
	return nil
}

// afterCommit registers a side effect to run only once the transaction has
// committed, e.g. removing file bytes whose row deletion just became durable.
func (b *jobHandler) afterCommit(f func()) {
	b.onCommit = append(b.onCommit, f)
}

// afterRollback registers cleanup for bytes written ahead of a commit that
// did not happen.
func (b *jobHandler) afterRollback(f func()) {
	b.onRollback = append(b.onRollback, f)
}
