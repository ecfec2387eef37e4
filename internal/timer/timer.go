package timer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"
)

// Kind identifies what a timer does when it fires. At most one timer
// exists per (subject, kind); arming replaces any previous one.
type Kind string

const (
	KindMachineAutoTagOff  Kind = "machineAutoTagOff"
	KindGymSessionExpiry   Kind = "gymSessionExpiry"
	KindQueueTurnCountdown Kind = "queueTurnCountdown"
)

// Payload is carried from arm time to the expiry handler. The subject
// of every timer is a user; the payload locates the machine and gym
// the firing acts on.
type Payload struct {
	GymID     string `json:"gymId"`
	MachineID string `json:"machineId,omitempty"`
}

// Record is what the timer store persists per (subject, kind). The
// absolute EndTime is the single source for remaining-time math so
// ticks do not accumulate drift.
type Record struct {
	Kind    Kind      `json:"kind"`
	Payload Payload   `json:"payload"`
	EndTime time.Time `json:"endTime"`
}

// KV is the durable key/value store timers live in.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// TaskQueue schedules delayed jobs by caller-chosen id. Cancel is a
// no-op when the job has already fired or never existed.
type TaskQueue interface {
	Schedule(ctx context.Context, id, typename string, payload []byte, delay time.Duration) error
	Cancel(ctx context.Context, id string) error
}

// Notifier delivers timer notifications to the timer's subject.
type Notifier interface {
	SendTimerNotification(userID string, kind string, message string, remainingSeconds int, payload any)
}

// ExpiryHandler receives timer expirations, dispatched by kind.
type ExpiryHandler interface {
	HandleExpiry(ctx context.Context, userID string, kind Kind, payload Payload) error
}

// Task type names routed by the asynq mux.
const (
	TypeExpire = "timer:expire"
	TypeWarn   = "timer:warn"
	TypeTick   = "timer:tick"
)

// taskPayload is the wire format of every scheduled job.
type taskPayload struct {
	UserID string `json:"userId"`
	Kind   Kind   `json:"kind"`
}

// profile describes the per-kind refinements layered on a plain timer.
type profile struct {
	// warningOffset > 0 schedules a pre-expiry job that starts the
	// countdown tick sequence this long before the end.
	warningOffset time.Duration
	// tickFromStart starts the countdown ticks immediately at arm time.
	tickFromStart bool
}

// Options configures the per-kind warning offsets.
type Options struct {
	TagOffWarning     time.Duration
	GymSessionWarning time.Duration
}

// Service provides generic arm/disarm of durable, cancelable timers
// with warning sub-timers and per-second countdown ticks.
type Service struct {
	kv       KV
	queue    TaskQueue
	notifier Notifier
	handler  ExpiryHandler
	profiles map[Kind]profile
}

// NewService creates a timer service on top of a durable KV store and
// a delayed task queue.
func NewService(kv KV, queue TaskQueue, notifier Notifier, opts Options) *Service {
	if opts.TagOffWarning <= 0 {
		opts.TagOffWarning = 15 * time.Second
	}
	if opts.GymSessionWarning <= 0 {
		opts.GymSessionWarning = 60 * time.Second
	}
	return &Service{
		kv:       kv,
		queue:    queue,
		notifier: notifier,
		profiles: map[Kind]profile{
			KindMachineAutoTagOff:  {warningOffset: opts.TagOffWarning},
			KindGymSessionExpiry:   {warningOffset: opts.GymSessionWarning},
			KindQueueTurnCountdown: {tickFromStart: true},
		},
	}
}

// SetExpiryHandler wires in the component that acts on expirations.
// Must be called before the task mux starts serving.
func (s *Service) SetExpiryHandler(h ExpiryHandler) {
	s.handler = h
}

func storeKey(userID string, kind Kind) string {
	return fmt.Sprintf("timer:%s:%s", userID, kind)
}

func jobID(userID string, kind Kind) string {
	return fmt.Sprintf("%s:%s", userID, kind)
}

// Arm replaces any existing (subject, kind) timer with a new one that
// fires after the given duration.
func (s *Service) Arm(ctx context.Context, userID string, kind Kind, payload Payload, duration time.Duration) error {
	if err := s.Disarm(ctx, userID, kind); err != nil {
		return err
	}

	rec := Record{
		Kind:    kind,
		Payload: payload,
		EndTime: time.Now().UTC().Add(duration),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal timer record: %w", err)
	}
	// Keep the record around slightly past expiry so the firing
	// handler can still verify it.
	if err := s.kv.Set(ctx, storeKey(userID, kind), raw, duration+time.Minute); err != nil {
		return fmt.Errorf("failed to persist timer %s/%s: %w", userID, kind, err)
	}

	job, err := json.Marshal(taskPayload{UserID: userID, Kind: kind})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}
	if err := s.queue.Schedule(ctx, jobID(userID, kind), TypeExpire, job, duration); err != nil {
		return fmt.Errorf("failed to schedule expiry for %s/%s: %w", userID, kind, err)
	}

	p := s.profiles[kind]
	if p.warningOffset > 0 && duration > p.warningOffset {
		warnID := jobID(userID, kind) + ":warning"
		if err := s.queue.Schedule(ctx, warnID, TypeWarn, job, duration-p.warningOffset); err != nil {
			return fmt.Errorf("failed to schedule warning for %s/%s: %w", userID, kind, err)
		}
	}
	if p.tickFromStart {
		if err := s.tick(ctx, userID, kind); err != nil {
			return err
		}
	}
	return nil
}

// Disarm cancels a timer and all of its sub-jobs. It is a no-op when
// the timer is absent or has already fired.
func (s *Service) Disarm(ctx context.Context, userID string, kind Kind) error {
	if err := s.kv.Del(ctx, storeKey(userID, kind)); err != nil {
		return fmt.Errorf("failed to delete timer %s/%s: %w", userID, kind, err)
	}
	base := jobID(userID, kind)
	for _, id := range []string{base, base + ":warning", base + ":tick0", base + ":tick1"} {
		if err := s.queue.Cancel(ctx, id); err != nil {
			return fmt.Errorf("failed to cancel job %s: %w", id, err)
		}
	}
	return nil
}

// Get returns the outstanding timer for (subject, kind), if any.
func (s *Service) Get(ctx context.Context, userID string, kind Kind) (*Record, bool, error) {
	raw, found, err := s.kv.Get(ctx, storeKey(userID, kind))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read timer %s/%s: %w", userID, kind, err)
	}
	if !found {
		return nil, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("failed to decode timer %s/%s: %w", userID, kind, err)
	}
	return &rec, true, nil
}

// ClearAllForUser disarms every timer kind for a user. Used when the
// user's gym session ends.
func (s *Service) ClearAllForUser(ctx context.Context, userID string) error {
	for _, kind := range []Kind{KindMachineAutoTagOff, KindGymSessionExpiry, KindQueueTurnCountdown} {
		if err := s.Disarm(ctx, userID, kind); err != nil {
			return err
		}
	}
	return nil
}

// tick sends one countdown notification computed from the stored
// absolute end time and schedules the next tick one second out. The
// job id alternates between two parity suffixes so a tick never races
// to cancel-and-replace itself.
func (s *Service) tick(ctx context.Context, userID string, kind Kind) error {
	rec, found, err := s.Get(ctx, userID, kind)
	if err != nil {
		return err
	}
	if !found || rec.Kind != kind {
		// Timer was disarmed or replaced; the chain stops here.
		return nil
	}

	remaining := int(math.Ceil(time.Until(rec.EndTime).Seconds()))
	if remaining <= 0 {
		s.notifier.SendTimerNotification(userID, string(kind), expiredMessage(kind), 0, rec.Payload)
		return nil
	}

	s.notifier.SendTimerNotification(userID, string(kind), countdownMessage(kind, remaining), remaining, rec.Payload)

	job, err := json.Marshal(taskPayload{UserID: userID, Kind: kind})
	if err != nil {
		return fmt.Errorf("failed to marshal tick payload: %w", err)
	}
	tickID := fmt.Sprintf("%s:tick%d", jobID(userID, kind), remaining%2)
	if err := s.queue.Schedule(ctx, tickID, TypeTick, job, time.Second); err != nil {
		return fmt.Errorf("failed to schedule tick for %s/%s: %w", userID, kind, err)
	}
	return nil
}

// HandleExpire processes a fired expiry job. The store entry is the
// source of truth: a missing entry means the timer was disarmed or
// already handled, and the firing is a no-op.
func (s *Service) HandleExpire(ctx context.Context, userID string, kind Kind) error {
	rec, found, err := s.Get(ctx, userID, kind)
	if err != nil {
		return err
	}
	if !found || rec.Kind != kind {
		log.Printf("timer %s/%s fired but no record found; already handled", userID, kind)
		return nil
	}

	// Dispatch before deleting so a failed handler leaves the timer
	// in place and the job can safely retry.
	if s.handler != nil {
		if err := s.handler.HandleExpiry(ctx, userID, kind, rec.Payload); err != nil {
			return fmt.Errorf("expiry handler failed for %s/%s: %w", userID, kind, err)
		}
	}
	if err := s.kv.Del(ctx, storeKey(userID, kind)); err != nil {
		return fmt.Errorf("failed to delete fired timer %s/%s: %w", userID, kind, err)
	}
	return nil
}

// HandleWarn starts the countdown tick sequence for a timer entering
// its warning window.
func (s *Service) HandleWarn(ctx context.Context, userID string, kind Kind) error {
	return s.tick(ctx, userID, kind)
}

// HandleTick continues a countdown tick sequence.
func (s *Service) HandleTick(ctx context.Context, userID string, kind Kind) error {
	return s.tick(ctx, userID, kind)
}

func countdownMessage(kind Kind, remaining int) string {
	switch kind {
	case KindQueueTurnCountdown:
		return fmt.Sprintf("Your turn! You have %d seconds to tag on.", remaining)
	case KindMachineAutoTagOff:
		return fmt.Sprintf("Your machine session ends in %d seconds.", remaining)
	case KindGymSessionExpiry:
		return fmt.Sprintf("Your gym session ends in %d seconds.", remaining)
	}
	return fmt.Sprintf("%d seconds remaining.", remaining)
}

func expiredMessage(kind Kind) string {
	switch kind {
	case KindQueueTurnCountdown:
		return "Your turn has expired."
	case KindMachineAutoTagOff:
		return "Your machine session has ended."
	case KindGymSessionExpiry:
		return "Your gym session has ended."
	}
	return "Timer expired."
}
