package database

import (
	"github.com/aspiranek/sim/internal/database/models"
	"gorm.io/gorm"
)

// User CRUD
func CreateUser(db *gorm.DB, user *models.User) error {
	return db.Create(user).Error
}

func GetUserByID(db *gorm.DB, id uint64) (*models.User, error) {
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func DeleteUser(db *gorm.DB, userID uint64) error {
	return db.Delete(&models.User{}, "id = ?", userID).Error
}

// Problem CRUD
func CreateProblem(db *gorm.DB, prob *models.Problem) error {
	return db.Create(prob).Error
}

func GetProblem(db *gorm.DB, id uint64) (*models.Problem, error) {
	var prob models.Problem
	if err := db.Where("id = ?", id).First(&prob).Error; err != nil {
		return nil, err
	}
	return &prob, nil
}

func UpdateProblem(db *gorm.DB, prob *models.Problem) error {
	return db.Save(prob).Error
}

// Submission CRUD
func CreateSubmission(db *gorm.DB, sub *models.Submission) error {
	return db.Create(sub).Error
}

func GetSubmission(db *gorm.DB, id uint64) (*models.Submission, error) {
	var sub models.Submission
	if err := db.Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func UpdateSubmission(db *gorm.DB, sub *models.Submission) error {
	return db.Save(sub).Error
}

// ContestProblem CRUD
func GetContestProblem(db *gorm.DB, id uint64) (*models.ContestProblem, error) {
	var cp models.ContestProblem
	if err := db.Where("id = ?", id).First(&cp).Error; err != nil {
		return nil, err
	}
	return &cp, nil
}

// Job CRUD
func GetJob(db *gorm.DB, id uint64) (*models.Job, error) {
	var job models.Job
	if err := db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}
