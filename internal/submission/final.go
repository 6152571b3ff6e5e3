package submission

import (
	"github.com/aspiranek/sim/internal/database/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpdateFinal recomputes which single submission is final for the
// (owner, problem) scope and, when contestProblemID is set, for the
// (owner, contest problem) scope. It must run inside the caller's
// transaction; it takes row locks over the scope first so concurrent judging
// completions for the same scope serialize instead of racing.
//
// Selection policy: among final candidates that have left Pending, the best
// non-fatal full status wins (ties go to the newest submission); when only
// fatal outcomes exist, the newest fatal one wins; an empty eligible set
// leaves no submission final. ContestInitialFinal follows the same policy
// computed from the initial status, so contest ranking can be shown before
// full judging completes.
func UpdateFinal(tx *gorm.DB, ownerID *uint64, problemID uint64, contestProblemID *uint64) error {
	if err := lockScope(tx, ownerID, problemID); err != nil {
		return err
	}

	var candidates []models.Submission
	err := scopeQuery(tx, ownerID, problemID).
		Where("final_candidate = ?", true).
		Order("id asc").
		Find(&candidates).Error
	if err != nil {
		return err
	}

	problemScope := func() *gorm.DB {
		return scopeQuery(tx, ownerID, problemID)
	}

	winner := pick(candidates, func(s *models.Submission) models.SubmissionStatus {
		return s.FullStatus
	})
	if err := setFlag(problemScope, "problem_final", winner); err != nil {
		return err
	}

	if contestProblemID == nil {
		return nil
	}

	var contestCandidates []models.Submission
	for i := range candidates {
		c := candidates[i]
		if c.ContestProblemID != nil && *c.ContestProblemID == *contestProblemID {
			contestCandidates = append(contestCandidates, c)
		}
	}

	contestScope := func() *gorm.DB {
		return scopeQuery(tx, ownerID, problemID).
			Where("contest_problem_id = ?", *contestProblemID)
	}

	fullWinner := pick(contestCandidates, func(s *models.Submission) models.SubmissionStatus {
		return s.FullStatus
	})
	if err := setFlag(contestScope, "contest_final", fullWinner); err != nil {
		return err
	}

	initialWinner := pick(contestCandidates, func(s *models.Submission) models.SubmissionStatus {
		return s.InitialStatus
	})
	return setFlag(contestScope, "contest_initial_final", initialWinner)
}

// lockScope takes row locks over the scope's candidate set, serializing
// concurrent UpdateFinal callers for the same (owner, problem).
func lockScope(tx *gorm.DB, ownerID *uint64, problemID uint64) error {
	var ids []uint64
	return scopeQuery(tx, ownerID, problemID).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Model(&models.Submission{}).
		Order("id asc").
		Pluck("id", &ids).Error
}

func scopeQuery(tx *gorm.DB, ownerID *uint64, problemID uint64) *gorm.DB {
	q := tx.Model(&models.Submission{}).Where("problem_id = ?", problemID)
	if ownerID == nil {
		return q.Where("owner_id IS NULL")
	}
	return q.Where("owner_id = ?", *ownerID)
}

// pick chooses the final submission among candidates per the selection
// policy, or nil when no candidate is eligible.
func pick(candidates []models.Submission, status func(*models.Submission) models.SubmissionStatus) *models.Submission {
	var bestGraded, newestFatal *models.Submission
	for i := range candidates {
		c := &candidates[i]
		st := status(c)
		switch {
		case st == models.StatusPending:
			// Never participates in ranking.
		case st.IsFatal():
			if newestFatal == nil || c.ID > newestFatal.ID {
				newestFatal = c
			}
		default:
			if bestGraded == nil || st < status(bestGraded) ||
				(st == status(bestGraded) && c.ID > bestGraded.ID) {
				bestGraded = c
			}
		}
	}
	if bestGraded != nil {
		return bestGraded
	}
	return newestFatal
}

// setFlag makes exactly the winner's flag true and every sibling's false
// within the scope. With winner nil all flags are cleared. scope must build a
// fresh query per call.
func setFlag(scope func() *gorm.DB, column string, winner *models.Submission) error {
	clear := scope()
	if winner != nil {
		clear = clear.Where("id != ?", winner.ID)
	}
	if err := clear.Where(column+" = ?", true).
		Update(column, false).Error; err != nil {
		return err
	}
	if winner == nil {
		return nil
	}
	return scope().
		Where("id = ?", winner.ID).
		Update(column, true).Error
}
