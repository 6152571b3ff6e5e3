package handlers

import (
	"context"
	"errors"

	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/jobs"
	"github.com/aspiranek/sim/internal/submission"

	"gorm.io/gorm"
)

// mergeUsers reassigns everything a donor user owns to a target user and
// deletes the donor. The donor's and target's candidate sets overlap
// afterwards, so final selection re-runs for every scope the donor touched.
type mergeUsers struct {
	*jobHandler
}

func (h *mergeUsers) run(ctx context.Context, tx *gorm.DB) error {
	if h.job.AuxID == nil {
		h.fail("Job has no donor user attached")
		return h.finalize(tx)
	}
	donorID := *h.job.AuxID

	info, err := jobs.DecodeMergeUsersInfo(h.job.Info)
	if err != nil {
		h.fail("Invalid job payload: %v", err)
		return h.finalize(tx)
	}
	targetID := info.TargetUserID

	if donorID == targetID {
		h.fail("Cannot merge a user into themselves")
		return h.finalize(tx)
	}

	for _, id := range []uint64{donorID, targetID} {
		var user models.User
		err := tx.Where("id = ?", id).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.fail("User %d does not exist", id)
			return h.finalize(tx)
		}
		if err != nil {
			return err
		}
	}

	// Remember which scopes the donor participated in before the ownership
	// change merges the candidate sets.
	type scope struct {
		ProblemID        uint64
		ContestProblemID *uint64
	}
	var scopes []scope
	err = tx.Model(&models.Submission{}).
		Select("problem_id, contest_problem_id, MIN(id) AS first_id").
		Where("owner_id = ?", donorID).
		Group("problem_id, contest_problem_id").
		Order("first_id asc").
		Scan(&scopes).Error
	if err != nil {
		return err
	}

	reassign := []struct {
		model  interface{}
		column string
	}{
		{&models.Submission{}, "owner_id"},
		{&models.Problem{}, "owner_id"},
		{&models.Contest{}, "owner_id"},
		{&models.Job{}, "creator_id"},
	}
	for _, r := range reassign {
		err := tx.Model(r.model).
			Where(r.column+" = ?", donorID).
			Update(r.column, targetID).Error
		if err != nil {
			return err
		}
	}

	if err := tx.Delete(&models.User{}, "id = ?", donorID).Error; err != nil {
		return err
	}

	for _, s := range scopes {
		if err := submission.UpdateFinal(tx, &targetID, s.ProblemID, s.ContestProblemID); err != nil {
			return err
		}
	}
	h.logf("Merged user %d into %d, recomputed %d final-selection scope(s)",
		donorID, targetID, len(scopes))

	return h.finalize(tx)
}
