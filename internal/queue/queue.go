package queue

import (
	"errors"
	"time"

	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/jobs"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Enqueue inserts a job row in Pending status. Priority and Added get
// defaults when the caller leaves them zero.
func Enqueue(db *gorm.DB, job *models.Job) error {
	job.Status = models.JobPending
	if job.Priority == 0 {
		job.Priority = jobs.DefaultPriority(job.Type)
	}
	if job.Added.IsZero() {
		job.Added = time.Now()
	}
	return db.Create(job).Error
}

// EnqueueDeleteFile schedules asynchronous removal of an internal file.
// File bytes are never removed synchronously with the referencing row.
func EnqueueDeleteFile(db *gorm.DB, fileID uint64) error {
	return Enqueue(db, &models.Job{
		Type:   models.JobDeleteFile,
		FileID: &fileID,
	})
}

// EnqueueJudgeSubmission schedules judging of a submission. Priority 0 means
// the default for JudgeSubmission.
func EnqueueJudgeSubmission(db *gorm.DB, submissionID, problemID uint64, creator *uint64, priority int) error {
	return Enqueue(db, &models.Job{
		CreatorID: creator,
		Type:      models.JobJudgeSubmission,
		Priority:  priority,
		AuxID:     &submissionID,
		Info:      jobs.JudgeSubmissionInfo{ProblemID: problemID}.Encode(),
	})
}

// EnqueueRejudgeProblem schedules a rejudge of every non-solution submission
// of a problem, oldest first.
func EnqueueRejudgeProblem(db *gorm.DB, problemID uint64, creator *uint64) (int, error) {
	return enqueueRejudgeWhere(db, creator, "problem_id = ? AND type != ?",
		problemID, models.SubmissionProblemSolution)
}

// EnqueueRejudgeRound schedules a rejudge of every submission in a contest
// round, oldest first.
func EnqueueRejudgeRound(db *gorm.DB, roundID uint64, creator *uint64) (int, error) {
	return enqueueRejudgeWhere(db, creator, "contest_round_id = ?", roundID)
}

func enqueueRejudgeWhere(db *gorm.DB, creator *uint64, query string, args ...interface{}) (int, error) {
	var subs []models.Submission
	if err := db.Where(query, args...).Order("id asc").Find(&subs).Error; err != nil {
		return 0, err
	}
	for i := range subs {
		sub := subs[i]
		err := Enqueue(db, &models.Job{
			CreatorID: creator,
			Type:      models.JobRejudgeSubmission,
			AuxID:     &sub.ID,
			Info:      jobs.JudgeSubmissionInfo{ProblemID: sub.ProblemID}.Encode(),
		})
		if err != nil {
			return i, err
		}
	}
	return len(subs), nil
}

// ClaimNext atomically claims the next Pending job, ordered by priority
// descending then id ascending. The claim is a conditional update guarded by
// the row still being Pending, so no two workers can claim the same row; a
// lost race simply retries on the next candidate. Returns nil when the queue
// is empty.
func ClaimNext(db *gorm.DB) (*models.Job, error) {
	for {
		var job models.Job
		err := db.Where("status = ?", models.JobPending).
			Order("priority desc, id asc").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		result := db.Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, models.JobPending).
			Update("status", models.JobInProgress)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			// Another worker won the row or it was canceled; look again.
			continue
		}

		job.Status = models.JobInProgress
		return &job, nil
	}
}

// Release puts a claimed job back to Pending, e.g. after a rolled-back
// handler run.
func Release(db *gorm.DB, jobID uint64) error {
	result := db.Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, models.JobInProgress).
		Update("status", models.JobPending)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		zap.S().Warnf("job %d was not in progress while releasing its claim", jobID)
	}
	return nil
}

// Cancel marks a Pending or claimed job as Canceled. A job already being
// worked keeps running, but its final conditional status write will affect
// zero rows and the worker abandons the stage.
func Cancel(db *gorm.DB, jobID uint64) (bool, error) {
	result := db.Model(&models.Job{}).
		Where("id = ? AND status IN ?", jobID,
			[]models.JobStatus{models.JobPending, models.JobInProgress}).
		Update("status", models.JobCanceled)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
