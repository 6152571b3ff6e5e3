package handlers

import (
	"testing"

	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/judger"
	"github.com/aspiranek/sim/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSubmission(t *testing.T, f *fixture, owner *uint64) (*models.Problem, *models.Submission) {
	t.Helper()
	packageID := f.addFile(t, []byte("package"))
	prob := &models.Problem{FileID: packageID, Name: "Knapsack"}
	require.NoError(t, f.db.Create(prob).Error)

	sourceID := f.addFile(t, []byte("source"))
	sub := &models.Submission{
		FileID:        sourceID,
		OwnerID:       owner,
		ProblemID:     prob.ID,
		Type:          models.SubmissionNormal,
		InitialStatus: models.StatusPending,
		FullStatus:    models.StatusPending,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return prob, sub
}

func TestJudgeSubmissionUpdatesStatusAndFinal(t *testing.T) {
	f := newFixture(t)
	owner := uint64(1)
	prob, sub := setupSubmission(t, f, &owner)

	score := int64(100)
	f.judge.result = judger.Result{
		InitialStatus: models.StatusOK,
		FullStatus:    models.StatusOK,
		Score:         &score,
		InitialReport: "initial tests passed",
		FinalReport:   "all tests passed",
	}
	require.NoError(t, queue.EnqueueJudgeSubmission(f.db, sub.ID, prob.ID, nil, 0))

	job, err := f.claimAndRun(t)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, job.Status)

	var judged models.Submission
	require.NoError(t, f.db.First(&judged, "id = ?", sub.ID).Error)
	assert.Equal(t, models.StatusOK, judged.FullStatus)
	assert.Equal(t, models.StatusOK, judged.InitialStatus)
	require.NotNil(t, judged.Score)
	assert.EqualValues(t, 100, *judged.Score)
	assert.Equal(t, "all tests passed", judged.FinalReport)
	assert.True(t, judged.FinalCandidate)
	assert.True(t, judged.ProblemFinal, "the only graded submission must become final")
	assert.False(t, judged.LastJudgment.IsZero())
}

func TestJudgeInfrastructureFaultCompletesJob(t *testing.T) {
	f := newFixture(t)
	owner := uint64(1)
	prob, sub := setupSubmission(t, f, &owner)

	f.judge.result = judger.Result{
		InitialStatus: models.StatusJudgeError,
		FullStatus:    models.StatusJudgeError,
		InitialReport: "sandbox unavailable",
		FinalReport:   "sandbox unavailable",
	}
	require.NoError(t, queue.EnqueueJudgeSubmission(f.db, sub.ID, prob.ID, nil, 0))

	// "Could not be judged" is a judging outcome, not a queue failure.
	job, err := f.claimAndRun(t)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, job.Status)

	var judged models.Submission
	require.NoError(t, f.db.First(&judged, "id = ?", sub.ID).Error)
	assert.Equal(t, models.StatusJudgeError, judged.FullStatus)
	assert.True(t, judged.ProblemFinal, "a lone fatal outcome still ranks as final")
}

func TestJudgeSubmissionBetterOldResultKeepsFinal(t *testing.T) {
	f := newFixture(t)
	owner := uint64(1)
	prob, older := setupSubmission(t, f, &owner)
	older.InitialStatus = models.StatusOK
	older.FullStatus = models.StatusOK
	older.FinalCandidate = true
	require.NoError(t, f.db.Save(older).Error)

	sourceID := f.addFile(t, []byte("second try"))
	newer := &models.Submission{
		FileID:        sourceID,
		OwnerID:       &owner,
		ProblemID:     prob.ID,
		Type:          models.SubmissionNormal,
		InitialStatus: models.StatusPending,
		FullStatus:    models.StatusPending,
	}
	require.NoError(t, f.db.Create(newer).Error)

	f.judge.result = judger.Result{
		InitialStatus: models.StatusWA,
		FullStatus:    models.StatusWA,
	}
	require.NoError(t, queue.EnqueueJudgeSubmission(f.db, newer.ID, prob.ID, nil, 0))

	_, err := f.claimAndRun(t)
	require.NoError(t, err)

	var oldRow, newRow models.Submission
	require.NoError(t, f.db.First(&oldRow, "id = ?", older.ID).Error)
	require.NoError(t, f.db.First(&newRow, "id = ?", newer.ID).Error)
	assert.True(t, oldRow.ProblemFinal, "the older OK must beat the newer WA")
	assert.False(t, newRow.ProblemFinal)
}

func TestJudgeMissingSubmissionFailsJob(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, queue.EnqueueJudgeSubmission(f.db, 999, 1, nil, 0))

	job, err := f.claimAndRun(t)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Data, "does not exist")
}
