package coord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/patrickmn/go-cache"

	"gym-status-backend/internal/model"
	"gym-status-backend/internal/notification"
	"gym-status-backend/internal/store"
	"gym-status-backend/internal/timer"
)

// Broadcaster fans state deltas out to connected clients. Implemented
// by the websocket hub; tests substitute a recorder.
type Broadcaster interface {
	BroadcastMachineUpdate(gymID, machineID string, fields any)
	SendUserUpdate(userID string, fields any)
	SendQueueUpdate(userID string, entry any)
	SendTimerNotification(userID string, kind string, message string, remainingSeconds int, payload any)
	SendMachineStatus(userID, gymID string, machines any)
}

// Scheduler is the slice of the timer service the coordinator drives.
type Scheduler interface {
	Arm(ctx context.Context, userID string, kind timer.Kind, payload timer.Payload, duration time.Duration) error
	Disarm(ctx context.Context, userID string, kind timer.Kind) error
	Get(ctx context.Context, userID string, kind timer.Kind) (*timer.Record, bool, error)
	ClearAllForUser(ctx context.Context, userID string) error
}

// Pusher dispatches web push jobs for users without a live socket.
type Pusher interface {
	Dispatch(job notification.Job)
}

// Durations are the fixed timer windows the coordinator arms, plus
// the freshness window of the machine snapshot cache.
type Durations struct {
	QueueTurn   time.Duration
	GymSession  time.Duration
	SnapshotTTL time.Duration
}

// Coordinator composes the store, the timer service and the
// broadcaster into the atomic tag-on/tag-off/queue operations.
type Coordinator struct {
	store     store.Store
	timers    Scheduler
	hub       Broadcaster
	push      Pusher
	snapshots *cache.Cache
	durations Durations
}

// New creates a coordinator. push may be nil when web push is not
// configured.
func New(s store.Store, timers Scheduler, hub Broadcaster, push Pusher, d Durations) *Coordinator {
	if d.QueueTurn <= 0 {
		d.QueueTurn = 30 * time.Second
	}
	if d.GymSession <= 0 {
		d.GymSession = time.Hour
	}
	if d.SnapshotTTL <= 0 {
		d.SnapshotTTL = 5 * time.Second
	}
	return &Coordinator{
		store:     s,
		timers:    timers,
		hub:       hub,
		push:      push,
		snapshots: cache.New(d.SnapshotTTL, time.Minute),
		durations: d,
	}
}

func snapshotKey(gymID string) string {
	return "machines:" + gymID
}

// MachineSnapshot returns all machines in a gym, served from the
// read cache when fresh. The relational store stays the source of
// truth; every write invalidates the cached snapshot.
func (c *Coordinator) MachineSnapshot(ctx context.Context, gymID string) ([]model.Machine, error) {
	if v, found := c.snapshots.Get(snapshotKey(gymID)); found {
		return v.([]model.Machine), nil
	}
	machines, err := c.store.ListMachines(ctx, gymID)
	if err != nil {
		return nil, err
	}
	c.snapshots.Set(snapshotKey(gymID), machines, cache.DefaultExpiration)
	return machines, nil
}

func (c *Coordinator) invalidateSnapshot(gymID string) {
	c.snapshots.Delete(snapshotKey(gymID))
}

// GetQueue returns a machine's waiting list with positions.
func (c *Coordinator) GetQueue(ctx context.Context, gymID, machineID string) ([]store.QueueEntry, error) {
	return c.store.GetQueue(ctx, gymID, machineID)
}

// OnConnectionBound pushes the initial machine snapshot to a freshly
// authenticated connection and replays any live queue-turn countdown.
func (c *Coordinator) OnConnectionBound(userID, gymID string) {
	ctx := context.Background()
	machines, err := c.MachineSnapshot(ctx, gymID)
	if err != nil {
		log.Printf("failed to load snapshot for gym %s: %v", gymID, err)
		return
	}
	c.hub.SendMachineStatus(userID, gymID, machines)

	rec, found, err := c.timers.Get(ctx, userID, timer.KindQueueTurnCountdown)
	if err != nil {
		log.Printf("failed to check countdown for user %s: %v", userID, err)
		return
	}
	if found {
		// Round up the way the tick stream does, so the replayed value
		// never lags the ticks by a second.
		remaining := int(math.Ceil(time.Until(rec.EndTime).Seconds()))
		if remaining > 0 {
			c.hub.SendTimerNotification(userID, string(rec.Kind),
				fmt.Sprintf("Your turn! You have %d seconds to tag on.", remaining),
				remaining, rec.Payload)
		}
	}
}

// TagOn opens a session on a machine and arms its timers.
func (c *Coordinator) TagOn(ctx context.Context, userID, machineID, gymID string) (*store.TagOnResult, error) {
	res, err := c.store.TagOn(ctx, userID, machineID, gymID)
	if err != nil {
		return nil, err
	}
	c.invalidateSnapshot(gymID)

	// The user's previous session on another machine was closed in
	// the same transaction; run its tag-off side effects first. The
	// released machine may live in a different gym than this request.
	if res.Released != nil {
		releasedGym := res.Released.Machine.GymID
		c.invalidateSnapshot(releasedGym)
		c.hub.BroadcastMachineUpdate(releasedGym, res.Released.Machine.ID, machineDelta(res.Released.Machine))
		c.advanceQueue(ctx, releasedGym, res.Released.Machine.ID)
	}

	maxDuration := time.Duration(res.Machine.MaxSessionDuration) * time.Second
	payload := timer.Payload{GymID: gymID, MachineID: machineID}
	if err := c.timers.Arm(ctx, userID, timer.KindMachineAutoTagOff, payload, maxDuration); err != nil {
		log.Printf("failed to arm auto tag-off for user %s: %v", userID, err)
	}
	if err := c.timers.Arm(ctx, userID, timer.KindGymSessionExpiry, timer.Payload{GymID: gymID}, c.durations.GymSession); err != nil {
		log.Printf("failed to refresh gym session timer for user %s: %v", userID, err)
	}

	if res.ConsumedQueueItem != nil {
		if err := c.timers.Disarm(ctx, userID, timer.KindQueueTurnCountdown); err != nil {
			log.Printf("failed to clear countdown for user %s: %v", userID, err)
		}
		c.hub.SendQueueUpdate(userID, nil)
	}

	c.hub.BroadcastMachineUpdate(gymID, machineID, machineDelta(res.Machine))
	c.hub.SendUserUpdate(userID, userDelta(res.User))
	c.broadcastQueuePositions(ctx, gymID, machineID)
	return res, nil
}

// TagOff closes the user's session on a machine and advances the queue.
func (c *Coordinator) TagOff(ctx context.Context, userID, machineID, gymID string) (*store.TagOffResult, error) {
	return c.tagOff(ctx, userID, machineID, gymID, false)
}

// ForceTagOff is the timer-driven variant: a session already closed
// by a concurrent manual tag-off is a no-op success.
func (c *Coordinator) ForceTagOff(ctx context.Context, userID, machineID, gymID string) error {
	_, err := c.tagOff(ctx, userID, machineID, gymID, true)
	return err
}

func (c *Coordinator) tagOff(ctx context.Context, userID, machineID, gymID string, force bool) (*store.TagOffResult, error) {
	res, err := c.store.TagOff(ctx, userID, machineID, gymID)
	if err != nil {
		if force && errors.Is(err, store.ErrNoActiveSession) {
			return nil, nil
		}
		return nil, err
	}
	c.invalidateSnapshot(gymID)

	if err := c.timers.Disarm(ctx, userID, timer.KindMachineAutoTagOff); err != nil {
		log.Printf("failed to disarm auto tag-off for user %s: %v", userID, err)
	}

	c.hub.BroadcastMachineUpdate(gymID, machineID, machineDelta(res.Machine))
	c.hub.SendUserUpdate(userID, userDelta(res.User))
	c.advanceQueue(ctx, gymID, machineID)
	return res, nil
}

// machineDelta is the field set broadcast on any occupancy or queue
// size change.
func machineDelta(m model.Machine) map[string]any {
	return map[string]any{
		"currentWorkoutLogId": m.CurrentWorkoutLogID,
		"queueLength":         m.QueueLength,
		"averageUsageTime":    m.AverageUsageTime,
	}
}

func userDelta(u model.User) map[string]any {
	return map[string]any{
		"currentWorkoutLogId": u.CurrentWorkoutLogID,
		"checkedInGymId":      u.CheckedInGymID,
	}
}
