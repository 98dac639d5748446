package services

import (
	"errors"
	"log"

	"github.com/mailkeep/core/internal/database/models"
	"gorm.io/gorm"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// RunService persists the sync run history
type RunService struct {
	db *gorm.DB
}

// NewRunService creates a new RunService instance
func NewRunService(db *gorm.DB) *RunService {
	return &RunService{db: db}
}

// Record stores one completed sync run. History is advisory; a failed insert
// is logged and does not fail the sync that produced it.
func (s *RunService) Record(run *models.SyncRun) {
	if err := s.db.Create(run).Error; err != nil {
		log.Printf("[RunService] Failed to record sync run for '%s': %v", run.Account, err)
	}
}

// RecentRuns returns the most recent sync runs, newest first, optionally
// filtered by account name
func (s *RunService) RecentRuns(account string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}

	query := s.db.Order("started_at DESC").Limit(limit)
	if account != "" {
		query = query.Where("account = ?", account)
	}

	var runs []models.SyncRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// LastRun returns the most recent run for an account, or nil when the
// account has never completed a run
func (s *RunService) LastRun(account string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.Where("account = ?", account).Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
