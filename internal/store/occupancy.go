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

// minFoldDuration is the shortest session that counts toward a
// machine's rolling usage statistics. Shorter sessions are treated as
// accidental tag-ons and discarded.
const minFoldDuration = 60 * time.Second

// TagOn opens a new workout session on a machine. The occupant
// pointer is claimed with a guarded update so two concurrent tag-ons
// on the same vacant machine cannot both win.
func (s *gormStore) TagOn(ctx context.Context, userID, machineID, gymID string) (*TagOnResult, error) {
	var result TagOnResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, machine, err := lockUserAndMachine(tx, userID, machineID, gymID)
		if err != nil {
			return err
		}

		if machine.CurrentWorkoutLogID != nil {
			return ErrMachineOccupied
		}

		// A non-empty queue admits only its head; tagging on as the
		// head consumes the entry in the same transaction.
		if machine.QueueLength > 0 {
			var head model.QueueItem
			err := tx.Where("machine_id = ?", machineID).
				Order("enqueue_time ASC, id ASC").
				First(&head).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to fetch queue head for machine %s: %w", machineID, err)
			}
			if err == nil {
				if head.UserID != userID {
					return ErrNotFirstInQueue
				}
				if err := tx.Delete(&model.QueueItem{}, "id = ?", head.ID).Error; err != nil {
					return fmt.Errorf("failed to consume queue entry %s: %w", head.ID, err)
				}
				if err := tx.Model(&model.Machine{}).
					Where("id = ? AND queue_length > 0", machineID).
					UpdateColumn("queue_length", gorm.Expr("queue_length - 1")).Error; err != nil {
					return fmt.Errorf("failed to decrement queue length for machine %s: %w", machineID, err)
				}
				result.ConsumedQueueItem = &head
			}
		}

		now := time.Now().UTC()

		// A user still holding a session on another machine is tagged
		// off there first, inside the same transaction.
		if user.CurrentWorkoutLogID != nil {
			released, err := closeSession(tx, userID, *user.CurrentWorkoutLogID, now)
			if err != nil {
				return err
			}
			result.Released = released
		}

		log := model.WorkoutLog{
			ID:          uuid.NewString(),
			UserID:      userID,
			MachineID:   machineID,
			TimeOfTagOn: now,
		}
		if err := tx.Create(&log).Error; err != nil {
			return fmt.Errorf("failed to create workout log: %w", err)
		}

		// Conflict check: only the transaction that observes the
		// machine vacant at write time claims it.
		res := tx.Model(&model.Machine{}).
			Where("id = ? AND current_workout_log_id IS NULL", machineID).
			Update("current_workout_log_id", log.ID)
		if res.Error != nil {
			return fmt.Errorf("failed to claim machine %s: %w", machineID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrMachineOccupied
		}

		res = tx.Model(&model.User{}).
			Where("id = ? AND current_workout_log_id IS NULL", userID).
			Update("current_workout_log_id", log.ID)
		if res.Error != nil {
			return fmt.Errorf("failed to update user %s session pointer: %w", userID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrUserBusy
		}

		result.Log = log
		if err := tx.First(&result.Machine, "id = ?", machineID).Error; err != nil {
			return fmt.Errorf("failed to reload machine %s: %w", machineID, err)
		}
		if err := tx.First(&result.User, "id = ?", userID).Error; err != nil {
			return fmt.Errorf("failed to reload user %s: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// TagOff closes the user's active session on a machine.
func (s *gormStore) TagOff(ctx context.Context, userID, machineID, gymID string) (*TagOffResult, error) {
	var result TagOffResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, machine, err := lockUserAndMachine(tx, userID, machineID, gymID)
		if err != nil {
			return err
		}

		if user.CurrentWorkoutLogID == nil || machine.CurrentWorkoutLogID == nil ||
			*user.CurrentWorkoutLogID != *machine.CurrentWorkoutLogID {
			return ErrNoActiveSession
		}

		now := time.Now().UTC()
		released, err := closeSession(tx, userID, *machine.CurrentWorkoutLogID, now)
		if err != nil {
			return err
		}
		if released == nil {
			// Already closed by a concurrent tag-off.
			return ErrNoActiveSession
		}

		result.Log = released.Log
		result.Machine = released.Machine
		result.Duration = released.Duration
		result.Folded = released.Folded
		if err := tx.First(&result.User, "id = ?", userID).Error; err != nil {
			return fmt.Errorf("failed to reload user %s: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// closeSession stamps the tag-off time on a workout log, folds the
// duration into the machine's rolling statistics when it is within
// the accepted band, and clears both occupant pointers. Returns nil
// when the session was already closed.
func closeSession(tx *gorm.DB, userID, logID string, now time.Time) (*ReleasedSession, error) {
	var log model.WorkoutLog
	err := tx.First(&log, "id = ?", logID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Dangling pointer; clear it and move on.
		if err := clearUserPointer(tx, userID, logID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workout log %s: %w", logID, err)
	}
	if log.TimeOfTagOff != nil {
		if err := clearUserPointer(tx, userID, logID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := tx.Model(&model.WorkoutLog{}).
		Where("id = ? AND time_of_tag_off IS NULL", logID).
		Update("time_of_tag_off", now).Error; err != nil {
		return nil, fmt.Errorf("failed to close workout log %s: %w", logID, err)
	}
	log.TimeOfTagOff = &now

	var machine model.Machine
	if err := tx.First(&machine, "id = ?", log.MachineID).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch machine %s: %w", log.MachineID, err)
	}

	duration := now.Sub(log.TimeOfTagOn)
	maxDuration := time.Duration(machine.MaxSessionDuration) * time.Second
	folded := duration >= minFoldDuration && duration <= maxDuration

	fields := []string{"current_workout_log_id"}
	update := model.Machine{CurrentWorkoutLogID: nil}
	if folded {
		window := foldDuration(machine.LastTenSessions, duration.Seconds())
		update.LastTenSessions = window
		update.AverageUsageTime = mean(window)
		fields = append(fields, "last_ten_sessions", "average_usage_time")
	}

	res := tx.Model(&model.Machine{}).
		Where("id = ? AND current_workout_log_id = ?", machine.ID, logID).
		Select(fields).
		Updates(update)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to release machine %s: %w", machine.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// The machine no longer holds this session; nothing to release.
		folded = false
	}

	if err := clearUserPointer(tx, userID, logID); err != nil {
		return nil, err
	}

	if err := tx.First(&machine, "id = ?", machine.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload machine %s: %w", machine.ID, err)
	}

	return &ReleasedSession{
		Log:      log,
		Machine:  machine,
		Duration: duration,
		Folded:   folded,
	}, nil
}

func clearUserPointer(tx *gorm.DB, userID, logID string) error {
	err := tx.Model(&model.User{}).
		Where("id = ? AND current_workout_log_id = ?", userID, logID).
		Update("current_workout_log_id", nil).Error
	if err != nil {
		return fmt.Errorf("failed to clear session pointer for user %s: %w", userID, err)
	}
	return nil
}

// foldDuration drops the oldest value and appends the newest, keeping
// the window at exactly its fixed size.
func foldDuration(window []float64, seconds float64) []float64 {
	if len(window) == 0 {
		window = model.SeedSessions()
	}
	next := make([]float64, 0, len(window))
	next = append(next, window[1:]...)
	next = append(next, seconds)
	return next
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
