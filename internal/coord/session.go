package coord

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gym-status-backend/internal/store"
	"gym-status-backend/internal/timer"
)

// GymSessionState reports the outcome of a gym session toggle.
type GymSessionState string

const (
	GymSessionStarted GymSessionState = "started"
	GymSessionEnded   GymSessionState = "ended"
)

// ToggleGymSession checks a user into a gym, or checks them out if
// they already have a session there. Checking out forces tag-off and
// dequeue first, then clears every timer the user holds.
func (c *Coordinator) ToggleGymSession(ctx context.Context, userID, gymID string) (GymSessionState, error) {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}

	if user.CheckedInGymID != nil && *user.CheckedInGymID == gymID {
		if err := c.EndGymSession(ctx, userID, gymID); err != nil {
			return "", err
		}
		return GymSessionEnded, nil
	}

	if err := c.store.SetCheckedInGym(ctx, userID, &gymID); err != nil {
		return "", err
	}
	if err := c.timers.Arm(ctx, userID, timer.KindGymSessionExpiry, timer.Payload{GymID: gymID}, c.durations.GymSession); err != nil {
		log.Printf("failed to arm gym session timer for user %s: %v", userID, err)
	}
	c.hub.SendUserUpdate(userID, map[string]any{"checkedInGymId": gymID})
	return GymSessionStarted, nil
}

// EndGymSession terminates a user's gym session: any active machine
// session is tagged off, any queue membership is dropped, and all of
// the user's timers are cleared.
func (c *Coordinator) EndGymSession(ctx context.Context, userID, gymID string) error {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if user.CurrentWorkoutLogID != nil {
		sessionLog, err := c.store.GetWorkoutLog(ctx, *user.CurrentWorkoutLogID)
		if err != nil && !errors.Is(err, store.ErrNoActiveSession) {
			return fmt.Errorf("failed to locate active session for user %s: %w", userID, err)
		}
		if sessionLog != nil {
			if err := c.ForceTagOff(ctx, userID, sessionLog.MachineID, gymID); err != nil {
				return err
			}
		}
	}

	if _, err := c.Dequeue(ctx, gymID, userID); err != nil && !errors.Is(err, store.ErrNotQueued) {
		return err
	}

	if err := c.timers.ClearAllForUser(ctx, userID); err != nil {
		log.Printf("failed to clear timers for user %s: %v", userID, err)
	}
	if err := c.store.SetCheckedInGym(ctx, userID, nil); err != nil {
		return err
	}
	c.hub.SendUserUpdate(userID, map[string]any{"checkedInGymId": nil})
	return nil
}

// HandleExpiry dispatches fired timers back into business operations.
// Every branch tolerates state that moved on since the timer was
// armed.
func (c *Coordinator) HandleExpiry(ctx context.Context, userID string, kind timer.Kind, payload timer.Payload) error {
	switch kind {
	case timer.KindMachineAutoTagOff:
		return c.ForceTagOff(ctx, userID, payload.MachineID, payload.GymID)
	case timer.KindGymSessionExpiry:
		return c.EndGymSession(ctx, userID, payload.GymID)
	case timer.KindQueueTurnCountdown:
		_, err := c.Dequeue(ctx, payload.GymID, userID)
		if errors.Is(err, store.ErrNotQueued) {
			return nil
		}
		return err
	}
	return fmt.Errorf("unknown timer kind %q", kind)
}
