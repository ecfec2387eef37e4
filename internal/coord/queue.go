package coord

import (
	"context"
	"log"

	"gym-status-backend/internal/notification"
	"gym-status-backend/internal/store"
	"gym-status-backend/internal/timer"
)

// Enqueue appends a user to a machine's waiting list and recomputes
// positions for everyone behind them.
func (c *Coordinator) Enqueue(ctx context.Context, userID, machineID, gymID string) (*store.EnqueueResult, error) {
	res, err := c.store.Enqueue(ctx, userID, machineID, gymID)
	if err != nil {
		return nil, err
	}
	c.invalidateSnapshot(gymID)

	c.hub.BroadcastMachineUpdate(gymID, machineID, machineDelta(res.Machine))
	c.advanceQueue(ctx, gymID, machineID)
	return res, nil
}

// Dequeue removes a user's queue entry, explicit or automatic. The
// entry's machine may live in a different gym than the request, so
// side effects are scoped to the machine's own gym.
func (c *Coordinator) Dequeue(ctx context.Context, gymID, userID string) (*store.DequeueResult, error) {
	res, err := c.store.Dequeue(ctx, gymID, userID)
	if err != nil {
		return nil, err
	}
	machineGym := res.Machine.GymID
	c.invalidateSnapshot(machineGym)

	if err := c.timers.Disarm(ctx, userID, timer.KindQueueTurnCountdown); err != nil {
		log.Printf("failed to clear countdown for user %s: %v", userID, err)
	}

	c.hub.SendQueueUpdate(userID, nil)
	c.hub.BroadcastMachineUpdate(machineGym, res.Machine.ID, machineDelta(res.Machine))
	c.advanceQueue(ctx, machineGym, res.Machine.ID)
	return res, nil
}

// advanceQueue recomputes queue positions, notifies every waiter, and
// starts the admission countdown for the head when the machine is
// vacant. Re-invoking it while a countdown is already armed is a
// no-op for the head.
func (c *Coordinator) advanceQueue(ctx context.Context, gymID, machineID string) {
	entries := c.broadcastQueuePositions(ctx, gymID, machineID)
	if len(entries) == 0 {
		return
	}

	machine, err := c.store.GetMachine(ctx, gymID, machineID)
	if err != nil {
		log.Printf("failed to fetch machine %s during queue advancement: %v", machineID, err)
		return
	}
	if machine.CurrentWorkoutLogID != nil {
		return
	}

	head := entries[0]
	_, armed, err := c.timers.Get(ctx, head.Item.UserID, timer.KindQueueTurnCountdown)
	if err != nil {
		log.Printf("failed to check countdown for user %s: %v", head.Item.UserID, err)
		return
	}
	if armed {
		return
	}

	payload := timer.Payload{GymID: gymID, MachineID: machineID}
	if err := c.timers.Arm(ctx, head.Item.UserID, timer.KindQueueTurnCountdown, payload, c.durations.QueueTurn); err != nil {
		log.Printf("failed to arm countdown for user %s: %v", head.Item.UserID, err)
		return
	}
	if c.push != nil {
		c.push.Dispatch(notification.Job{UserID: head.Item.UserID, MachineID: machineID})
	}
}

// broadcastQueuePositions sends each waiter their current entry and
// 1-based position.
func (c *Coordinator) broadcastQueuePositions(ctx context.Context, gymID, machineID string) []store.QueueEntry {
	entries, err := c.store.GetQueue(ctx, gymID, machineID)
	if err != nil {
		log.Printf("failed to fetch queue for machine %s: %v", machineID, err)
		return nil
	}
	for _, entry := range entries {
		c.hub.SendQueueUpdate(entry.Item.UserID, entry)
	}
	return entries
}
