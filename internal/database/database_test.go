package database

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
	require.NoError(t, db.AutoMigrate(&models.Job{}))
	return db
}

func TestRecoverInterrupted(t *testing.T) {
	db := testDB(t)

	claimed := &models.Job{Type: models.JobDeleteFile, Status: models.JobInProgress}
	done := &models.Job{Type: models.JobDeleteFile, Status: models.JobDone}
	pending := &models.Job{Type: models.JobDeleteFile, Status: models.JobPending}
	for _, j := range []*models.Job{claimed, done, pending} {
		require.NoError(t, db.Create(j).Error)
	}

	require.NoError(t, RecoverInterrupted(db))

	var statuses []models.JobStatus
	require.NoError(t, db.Model(&models.Job{}).
		Order("id asc").Pluck("status", &statuses).Error)
	assert.Equal(t, []models.JobStatus{
		models.JobPending, // the orphaned claim went back to the queue
		models.JobDone,
		models.JobPending,
	}, statuses)
}
