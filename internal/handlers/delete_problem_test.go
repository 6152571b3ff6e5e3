package handlers

import (
	"testing"

	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteProblemAttachedToContestFails(t *testing.T) {
	f := newFixture(t)

	packageID := f.addFile(t, []byte("package"))
	prob := &models.Problem{FileID: packageID, Name: "Attached"}
	require.NoError(t, f.db.Create(prob).Error)
	cp := &models.ContestProblem{ContestID: 1, ContestRoundID: 1, ProblemID: prob.ID}
	require.NoError(t, f.db.Create(cp).Error)

	sourceID := f.addFile(t, []byte("source"))
	sub := &models.Submission{FileID: sourceID, ProblemID: prob.ID}
	require.NoError(t, f.db.Create(sub).Error)

	require.NoError(t, queue.Enqueue(f.db, &models.Job{
		Type:  models.JobDeleteProblem,
		AuxID: &prob.ID,
	}))

	job, err := f.claimAndRun(t)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Data, "contest problem that uses (attaches) this problem")

	// Nothing was deleted.
	var probCount, subCount int64
	require.NoError(t, f.db.Model(&models.Problem{}).Where("id = ?", prob.ID).Count(&probCount).Error)
	require.NoError(t, f.db.Model(&models.Submission{}).Where("id = ?", sub.ID).Count(&subCount).Error)
	assert.EqualValues(t, 1, probCount)
	assert.EqualValues(t, 1, subCount)
}

func TestDeleteProblemCascades(t *testing.T) {
	f := newFixture(t)

	packageID := f.addFile(t, []byte("package"))
	prob := &models.Problem{FileID: packageID, Name: "Doomed", Simfile: "name: Doomed"}
	require.NoError(t, f.db.Create(prob).Error)

	sourceID := f.addFile(t, []byte("source"))
	sub := &models.Submission{FileID: sourceID, ProblemID: prob.ID}
	require.NoError(t, f.db.Create(sub).Error)

	require.NoError(t, queue.Enqueue(f.db, &models.Job{
		Type:  models.JobDeleteProblem,
		AuxID: &prob.ID,
	}))

	job, err := f.claimAndRun(t)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, job.Status)
	// The deleted Simfile is preserved in the job log.
	assert.Contains(t, job.Data, "name: Doomed")

	var probCount, subCount int64
	require.NoError(t, f.db.Model(&models.Problem{}).Where("id = ?", prob.ID).Count(&probCount).Error)
	require.NoError(t, f.db.Model(&models.Submission{}).Where("problem_id = ?", prob.ID).Count(&subCount).Error)
	assert.Zero(t, probCount)
	assert.Zero(t, subCount)

	// Package and submission files are queued for deletion, not removed here.
	var cleanup []models.Job
	require.NoError(t, f.db.
		Where("type = ? AND status = ?", models.JobDeleteFile, models.JobPending).
		Find(&cleanup).Error)
	fileIDs := make(map[uint64]bool)
	for _, j := range cleanup {
		fileIDs[*j.FileID] = true
	}
	assert.True(t, fileIDs[packageID])
	assert.True(t, fileIDs[sourceID])
}

func TestDeleteMissingProblemFails(t *testing.T) {
	f := newFixture(t)

	missing := uint64(404)
	require.NoError(t, queue.Enqueue(f.db, &models.Job{
		Type:  models.JobDeleteProblem,
		AuxID: &missing,
	}))

	job, err := f.claimAndRun(t)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Data, "Problem does not exist")
}
