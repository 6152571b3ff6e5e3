package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/submission"

	"gorm.io/gorm"
)

// judgeSubmission handles JudgeSubmission and RejudgeSubmission jobs. A
// judging-domain outcome - including a judge infrastructure fault - is a
// valid terminal submission status, so the job itself completes Done in
// every such case.
type judgeSubmission struct {
	*jobHandler
}

func (h *judgeSubmission) run(ctx context.Context, tx *gorm.DB) error {
	if h.job.AuxID == nil {
		h.fail("Job has no submission attached")
		return h.finalize(tx)
	}

	var sub models.Submission
	err := tx.Where("id = ?", *h.job.AuxID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.fail("Submission %d does not exist", *h.job.AuxID)
		return h.finalize(tx)
	}
	if err != nil {
		return err
	}

	var prob models.Problem
	err = tx.Where("id = ?", sub.ProblemID).First(&prob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.fail("Problem %d of submission %d does not exist", sub.ProblemID, sub.ID)
		return h.finalize(tx)
	}
	if err != nil {
		return err
	}

	h.logf("Judging submission %d (problem %d: %s)", sub.ID, prob.ID, prob.Name)
	result := h.env.Judge.Judge(ctx, h.env.Files.Path(sub.FileID), h.env.Files.Path(prob.FileID))
	h.logf("Initial: %s, full: %s", result.InitialStatus, result.FullStatus)
	if result.Score != nil {
		h.logf("Score: %d", *result.Score)
	}

	sub.InitialStatus = result.InitialStatus
	sub.FullStatus = result.FullStatus
	sub.Score = result.Score
	sub.InitialReport = result.InitialReport
	sub.FinalReport = result.FinalReport
	sub.LastJudgment = time.Now()
	// Only normal submissions that have left Pending rank in final selection.
	sub.FinalCandidate = sub.Type == models.SubmissionNormal &&
		sub.FullStatus != models.StatusPending
	if err := tx.Save(&sub).Error; err != nil {
		return err
	}

	if err := submission.UpdateFinal(tx, sub.OwnerID, sub.ProblemID, sub.ContestProblemID); err != nil {
		return err
	}

	return h.finalize(tx)
}
