package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gym-status-backend/internal/model"
)

// Store defines the transactional operations the coordinator runs
// against the relational database. The relational store is the single
// source of truth for occupancy and queue state.
type Store interface {
	TagOn(ctx context.Context, userID, machineID, gymID string) (*TagOnResult, error)
	TagOff(ctx context.Context, userID, machineID, gymID string) (*TagOffResult, error)
	Enqueue(ctx context.Context, userID, machineID, gymID string) (*EnqueueResult, error)
	Dequeue(ctx context.Context, gymID, userID string) (*DequeueResult, error)
	GetQueue(ctx context.Context, gymID, machineID string) ([]QueueEntry, error)

	GetMachine(ctx context.Context, gymID, machineID string) (*model.Machine, error)
	ListMachines(ctx context.Context, gymID string) ([]model.Machine, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetWorkoutLog(ctx context.Context, logID string) (*model.WorkoutLog, error)
	SetCheckedInGym(ctx context.Context, userID string, gymID *string) error

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for collaborators that run
// their own queries (push subscription handlers, notification workers).
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// GetMachine fetches a machine scoped to a gym.
func (s *gormStore) GetMachine(ctx context.Context, gymID, machineID string) (*model.Machine, error) {
	var machine model.Machine
	err := s.db.WithContext(ctx).Where("id = ? AND gym_id = ?", machineID, gymID).First(&machine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMachineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch machine %s: %w", machineID, err)
	}
	return &machine, nil
}

// ListMachines fetches all machines in a gym.
func (s *gormStore) ListMachines(ctx context.Context, gymID string) ([]model.Machine, error) {
	var gym model.Gym
	err := s.db.WithContext(ctx).Select("id").First(&gym, "id = ?", gymID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGymNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gym %s: %w", gymID, err)
	}

	var machines []model.Machine
	err = s.db.WithContext(ctx).
		Where("gym_id = ?", gymID).
		Order("name ASC").
		Find(&machines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list machines for gym %s: %w", gymID, err)
	}
	return machines, nil
}

// GetUser fetches a user by id.
func (s *gormStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}
	return &user, nil
}

// GetWorkoutLog fetches a workout log by id.
func (s *gormStore) GetWorkoutLog(ctx context.Context, logID string) (*model.WorkoutLog, error) {
	var log model.WorkoutLog
	err := s.db.WithContext(ctx).First(&log, "id = ?", logID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workout log %s: %w", logID, err)
	}
	return &log, nil
}

// SetCheckedInGym records or clears the user's gym session marker.
func (s *gormStore) SetCheckedInGym(ctx context.Context, userID string, gymID *string) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("checked_in_gym_id", gymID)
	if res.Error != nil {
		return fmt.Errorf("failed to update gym session for user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// lockUserAndMachine loads the two entities every occupancy operation
// touches, scoped to the gym.
func lockUserAndMachine(tx *gorm.DB, userID, machineID, gymID string) (*model.User, *model.Machine, error) {
	var user model.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}

	var machine model.Machine
	err := tx.Where("id = ? AND gym_id = ?", machineID, gymID).First(&machine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrMachineNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch machine %s: %w", machineID, err)
	}
	return &user, &machine, nil
}
