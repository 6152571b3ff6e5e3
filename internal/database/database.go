package database

import (
	"os"
	"path/filepath"

	"github.com/aspiranek/sim/internal/database/models"
	"go.uber.org/zap"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Init(dsn string) (*gorm.DB, error) {
	if _, err := os.Stat(dsn); os.IsNotExist(err) {
		zap.S().Infof("database file not found at '%s', creating directory for it.", dsn)
		dbDir := filepath.Dir(dsn)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto migrate schema
	err = db.AutoMigrate(
		&models.User{},
		&models.InternalFile{},
		&models.Problem{},
		&models.Contest{},
		&models.ContestRound{},
		&models.ContestProblem{},
		&models.Submission{},
		&models.Job{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// RecoverInterrupted releases claims left behind by a crashed worker process.
// A job claimed but never finalized is safe to re-run, so it simply goes back
// to Pending.
func RecoverInterrupted(db *gorm.DB) error {
	result := db.Model(&models.Job{}).
		Where("status = ?", models.JobInProgress).
		Update("status", models.JobPending)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		zap.S().Infof("released %d interrupted job claims back to pending", result.RowsAffected)
	}
	return nil
}
