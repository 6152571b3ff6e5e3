package handlers

import (
	"context"

	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/submission"

	"gorm.io/gorm"
)

// reselectFinalSubmissions recomputes final submissions for every
// (owner, problem) pair with a final candidate under one contest problem.
// Scopes are visited in ascending first-submission order inside a single
// transaction, so two overlapping reselection jobs serialize on the row locks
// instead of racing.
type reselectFinalSubmissions struct {
	*jobHandler
}

type ownerProblem struct {
	OwnerID   *uint64
	ProblemID uint64
}

func (h *reselectFinalSubmissions) run(ctx context.Context, tx *gorm.DB) error {
	if h.job.AuxID == nil {
		h.fail("Job has no contest problem attached")
		return h.finalize(tx)
	}
	contestProblemID := *h.job.AuxID

	var scopes []ownerProblem
	err := tx.Model(&models.Submission{}).
		Select("owner_id, problem_id, MIN(id) AS first_id").
		Where("contest_problem_id = ? AND final_candidate = ?", contestProblemID, true).
		Group("owner_id, problem_id").
		Order("first_id asc").
		Scan(&scopes).Error
	if err != nil {
		return err
	}

	for _, scope := range scopes {
		err := submission.UpdateFinal(tx, scope.OwnerID, scope.ProblemID, &contestProblemID)
		if err != nil {
			return err
		}
	}
	h.logf("Reselected final submissions in %d scope(s)", len(scopes))

	return h.finalize(tx)
}
