package handlers

import (
	"context"
	"errors"

	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/submission"

	"gorm.io/gorm"
)

// deleteContestProblem removes a contest-problem attachment. Its submissions
// survive but lose their contest scope, so final selection re-runs for every
// affected (owner, problem) pair at problem level only.
type deleteContestProblem struct {
	*jobHandler
}

func (h *deleteContestProblem) run(ctx context.Context, tx *gorm.DB) error {
	if h.job.AuxID == nil {
		h.fail("Job has no contest problem attached")
		return h.finalize(tx)
	}
	contestProblemID := *h.job.AuxID

	var cp models.ContestProblem
	err := tx.Where("id = ?", contestProblemID).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.fail("Contest problem does not exist")
		return h.finalize(tx)
	}
	if err != nil {
		return err
	}

	var scopes []ownerProblem
	err = tx.Model(&models.Submission{}).
		Select("owner_id, problem_id, MIN(id) AS first_id").
		Where("contest_problem_id = ?", contestProblemID).
		Group("owner_id, problem_id").
		Order("first_id asc").
		Scan(&scopes).Error
	if err != nil {
		return err
	}

	// Detach the submissions before dropping the attachment row.
	err = tx.Model(&models.Submission{}).
		Where("contest_problem_id = ?", contestProblemID).
		Updates(map[string]interface{}{
			"contest_problem_id":    nil,
			"contest_round_id":      nil,
			"contest_id":            nil,
			"contest_final":         false,
			"contest_initial_final": false,
		}).Error
	if err != nil {
		return err
	}

	if err := tx.Delete(&models.ContestProblem{}, "id = ?", contestProblemID).Error; err != nil {
		return err
	}

	for _, scope := range scopes {
		if err := submission.UpdateFinal(tx, scope.OwnerID, scope.ProblemID, nil); err != nil {
			return err
		}
	}
	h.logf("Deleted contest problem %d (%s), rescoped %d submission group(s)",
		cp.ID, cp.Name, len(scopes))

	return h.finalize(tx)
}
