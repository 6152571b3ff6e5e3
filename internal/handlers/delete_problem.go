package handlers

import (
	"context"
	"errors"

	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/queue"

	"gorm.io/gorm"
)

// deleteProblem removes a problem together with its submissions. The package
// file and every submission's source file are handed to DeleteFile jobs
// rather than removed here.
type deleteProblem struct {
	*jobHandler
}

func (h *deleteProblem) run(ctx context.Context, tx *gorm.DB) error {
	if h.job.AuxID == nil {
		h.fail("Job has no problem attached")
		return h.finalize(tx)
	}
	problemID := *h.job.AuxID

	// A problem attached to a contest must be detached everywhere first.
	var attached int64
	err := tx.Model(&models.ContestProblem{}).
		Where("problem_id = ?", problemID).
		Count(&attached).Error
	if err != nil {
		return err
	}
	if attached > 0 {
		h.fail("There exists a contest problem that uses (attaches) this problem. " +
			"You have to delete all of them to be able to delete this problem.")
		return h.finalize(tx)
	}

	var prob models.Problem
	err = tx.Where("id = ?", problemID).First(&prob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.fail("Problem does not exist")
		return h.finalize(tx)
	}
	if err != nil {
		return err
	}

	h.logf("Deleted problem Simfile:\n%s", prob.Simfile)

	if err := queue.EnqueueDeleteFile(tx, prob.FileID); err != nil {
		return err
	}

	var submissionFiles []uint64
	err = tx.Model(&models.Submission{}).
		Where("problem_id = ?", problemID).
		Pluck("file_id", &submissionFiles).Error
	if err != nil {
		return err
	}
	for _, fileID := range submissionFiles {
		if err := queue.EnqueueDeleteFile(tx, fileID); err != nil {
			return err
		}
	}

	if err := tx.Delete(&models.Submission{}, "problem_id = ?", problemID).Error; err != nil {
		return err
	}
	if err := tx.Delete(&models.Problem{}, "id = ?", problemID).Error; err != nil {
		return err
	}

	return h.finalize(tx)
}
