package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gym-status-backend/internal/model"
)

// Enqueue appends a user to a machine's waiting list. Queueing is
// only allowed while the machine is busy or already has waiters.
func (s *gormStore) Enqueue(ctx context.Context, userID, machineID, gymID string) (*EnqueueResult, error) {
	var result EnqueueResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, machine, err := lockUserAndMachine(tx, userID, machineID, gymID)
		if err != nil {
			return err
		}

		// Single queue membership across all machines.
		var existing model.QueueItem
		err = tx.First(&existing, "user_id = ?", user.ID).Error
		if err == nil {
			return ErrAlreadyQueued
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check queue membership for user %s: %w", userID, err)
		}

		if machine.CurrentWorkoutLogID == nil && machine.QueueLength == 0 {
			return ErrMachineIdle
		}
		if machine.QueueLength >= machine.MaxQueueLength {
			return ErrQueueFull
		}

		// Guarded increment doubles as the capacity conflict check.
		res := tx.Model(&model.Machine{}).
			Where("id = ? AND queue_length < max_queue_length", machineID).
			UpdateColumn("queue_length", gorm.Expr("queue_length + 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to increment queue length for machine %s: %w", machineID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrQueueFull
		}

		item := model.QueueItem{
			ID:          uuid.NewString(),
			UserID:      userID,
			MachineID:   machineID,
			EnqueueTime: time.Now().UTC(),
		}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("failed to create queue entry: %w", err)
		}

		if err := tx.First(&result.Machine, "id = ?", machineID).Error; err != nil {
			return fmt.Errorf("failed to reload machine %s: %w", machineID, err)
		}
		result.Item = item
		result.Position = result.Machine.QueueLength
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Dequeue removes a user's queue entry wherever it is.
func (s *gormStore) Dequeue(ctx context.Context, gymID, userID string) (*DequeueResult, error) {
	var result DequeueResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.QueueItem
		err := tx.First(&item, "user_id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotQueued
		}
		if err != nil {
			return fmt.Errorf("failed to fetch queue entry for user %s: %w", userID, err)
		}

		if err := tx.Delete(&model.QueueItem{}, "id = ?", item.ID).Error; err != nil {
			return fmt.Errorf("failed to delete queue entry %s: %w", item.ID, err)
		}
		if err := tx.Model(&model.Machine{}).
			Where("id = ? AND queue_length > 0", item.MachineID).
			UpdateColumn("queue_length", gorm.Expr("queue_length - 1")).Error; err != nil {
			return fmt.Errorf("failed to decrement queue length for machine %s: %w", item.MachineID, err)
		}

		if err := tx.First(&result.Machine, "id = ?", item.MachineID).Error; err != nil {
			return fmt.Errorf("failed to reload machine %s: %w", item.MachineID, err)
		}
		result.Item = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetQueue returns the machine's waiting list in admission order with
// contiguous 1-based positions.
func (s *gormStore) GetQueue(ctx context.Context, gymID, machineID string) ([]QueueEntry, error) {
	if _, err := s.GetMachine(ctx, gymID, machineID); err != nil {
		return nil, err
	}

	var items []model.QueueItem
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("enqueue_time ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch queue for machine %s: %w", machineID, err)
	}

	entries := make([]QueueEntry, len(items))
	for i, item := range items {
		entries[i] = QueueEntry{Item: item, Position: i + 1}
	}
	return entries, nil
}
