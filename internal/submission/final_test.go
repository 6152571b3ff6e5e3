package submission

import (
	"fmt"
	"testing"

	"github.com/aspiranek/sim/internal/database/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Submission{}))
	return db
}

var owner = uint64(1)

func addSubmission(t *testing.T, db *gorm.DB, full models.SubmissionStatus, opts ...func(*models.Submission)) *models.Submission {
	t.Helper()
	sub := &models.Submission{
		FileID:         1,
		OwnerID:        &owner,
		ProblemID:      10,
		Type:           models.SubmissionNormal,
		FinalCandidate: full != models.StatusPending,
		InitialStatus:  full,
		FullStatus:     full,
	}
	for _, opt := range opts {
		opt(sub)
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func finalID(t *testing.T, db *gorm.DB, column string) *uint64 {
	t.Helper()
	var finals []models.Submission
	require.NoError(t, db.Where(column+" = ?", true).Find(&finals).Error)
	if len(finals) == 0 {
		return nil
	}
	require.Len(t, finals, 1, "at most one submission may be %s", column)
	return &finals[0].ID
}

func TestUpdateFinalBestStatusBeatsNewer(t *testing.T) {
	db := testDB(t)

	ok := addSubmission(t, db, models.StatusOK)
	addSubmission(t, db, models.StatusWA)

	require.NoError(t, UpdateFinal(db, &owner, 10, nil))

	got := finalID(t, db, "problem_final")
	require.NotNil(t, got)
	assert.Equal(t, ok.ID, *got)
}

func TestUpdateFinalTieGoesToNewest(t *testing.T) {
	db := testDB(t)

	addSubmission(t, db, models.StatusWA)
	newer := addSubmission(t, db, models.StatusWA)

	require.NoError(t, UpdateFinal(db, &owner, 10, nil))

	got := finalID(t, db, "problem_final")
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, *got)
}

func TestUpdateFinalOnlyFatalPicksNewestFatal(t *testing.T) {
	db := testDB(t)

	addSubmission(t, db, models.StatusCompilationError)
	newest := addSubmission(t, db, models.StatusJudgeError)

	require.NoError(t, UpdateFinal(db, &owner, 10, nil))

	got := finalID(t, db, "problem_final")
	require.NotNil(t, got)
	assert.Equal(t, newest.ID, *got)
}

func TestUpdateFinalGradedBeatsNewerFatal(t *testing.T) {
	db := testDB(t)

	wa := addSubmission(t, db, models.StatusWA)
	addSubmission(t, db, models.StatusCompilationError)

	require.NoError(t, UpdateFinal(db, &owner, 10, nil))

	got := finalID(t, db, "problem_final")
	require.NotNil(t, got)
	assert.Equal(t, wa.ID, *got)
}

func TestUpdateFinalEmptyCandidateSetClearsFinal(t *testing.T) {
	db := testDB(t)

	// A stale flag from before the submission lost candidacy.
	stale := addSubmission(t, db, models.StatusOK, func(s *models.Submission) {
		s.FinalCandidate = false
		s.ProblemFinal = true
	})

	require.NoError(t, UpdateFinal(db, &owner, 10, nil))

	assert.Nil(t, finalID(t, db, "problem_final"))
	var got models.Submission
	require.NoError(t, db.First(&got, "id = ?", stale.ID).Error)
	assert.False(t, got.ProblemFinal)
}

func TestUpdateFinalPendingNeverFinal(t *testing.T) {
	db := testDB(t)

	addSubmission(t, db, models.StatusPending, func(s *models.Submission) {
		s.FinalCandidate = true
	})

	require.NoError(t, UpdateFinal(db, &owner, 10, nil))
	assert.Nil(t, finalID(t, db, "problem_final"))
}

func TestUpdateFinalIsIdempotent(t *testing.T) {
	db := testDB(t)

	ok := addSubmission(t, db, models.StatusOK)
	addSubmission(t, db, models.StatusWA)

	for i := 0; i < 3; i++ {
		require.NoError(t, UpdateFinal(db, &owner, 10, nil))
		got := finalID(t, db, "problem_final")
		require.NotNil(t, got)
		assert.Equal(t, ok.ID, *got)
	}
}

func TestUpdateFinalScopesAreIndependent(t *testing.T) {
	db := testDB(t)

	mine := addSubmission(t, db, models.StatusWA)
	otherOwner := uint64(2)
	theirs := addSubmission(t, db, models.StatusOK, func(s *models.Submission) {
		s.OwnerID = &otherOwner
	})

	require.NoError(t, UpdateFinal(db, &owner, 10, nil))

	got := finalID(t, db, "problem_final")
	require.NotNil(t, got)
	assert.Equal(t, mine.ID, *got, "another owner's submission must not win my scope")

	var untouched models.Submission
	require.NoError(t, db.First(&untouched, "id = ?", theirs.ID).Error)
	assert.False(t, untouched.ProblemFinal)
}

func TestUpdateFinalContestScope(t *testing.T) {
	db := testDB(t)
	cpID := uint64(77)

	inContest := func(s *models.Submission) { s.ContestProblemID = &cpID }

	// Slower full verdict but the best initial one: the initial final and the
	// full final may be different submissions.
	first := addSubmission(t, db, models.StatusWA, inContest, func(s *models.Submission) {
		s.InitialStatus = models.StatusOK
	})
	second := addSubmission(t, db, models.StatusOK, inContest, func(s *models.Submission) {
		s.InitialStatus = models.StatusWA
	})
	outside := addSubmission(t, db, models.StatusOK)

	require.NoError(t, UpdateFinal(db, &owner, 10, &cpID))

	gotFull := finalID(t, db, "contest_final")
	require.NotNil(t, gotFull)
	assert.Equal(t, second.ID, *gotFull)

	gotInitial := finalID(t, db, "contest_initial_final")
	require.NotNil(t, gotInitial)
	assert.Equal(t, first.ID, *gotInitial)

	// The problem-level final considers all three.
	gotProblem := finalID(t, db, "problem_final")
	require.NotNil(t, gotProblem)
	assert.Equal(t, outside.ID, *gotProblem)
}
