package timer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string][]byte{}} }

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type scheduledJob struct {
	ID       string
	Typename string
	Delay    time.Duration
}

type fakeQueue struct {
	mu        sync.Mutex
	scheduled []scheduledJob
	canceled  []string
}

func (f *fakeQueue) Schedule(_ context.Context, id, typename string, _ []byte, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduledJob{ID: id, Typename: typename, Delay: delay})
	return nil
}

func (f *fakeQueue) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeQueue) jobIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.scheduled))
	for i, j := range f.scheduled {
		ids[i] = j.ID
	}
	return ids
}

type notice struct {
	UserID    string
	Kind      string
	Message   string
	Remaining int
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []notice
}

func (f *fakeNotifier) SendTimerNotification(userID, kind, message string, remaining int, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, notice{UserID: userID, Kind: kind, Message: message, Remaining: remaining})
}

type expiryCall struct {
	UserID string
	Kind   Kind
}

type fakeExpiryHandler struct {
	calls []expiryCall
	err   error
}

func (f *fakeExpiryHandler) HandleExpiry(_ context.Context, userID string, kind Kind, _ Payload) error {
	f.calls = append(f.calls, expiryCall{UserID: userID, Kind: kind})
	return f.err
}

func newTestService() (*Service, *fakeKV, *fakeQueue, *fakeNotifier) {
	kv := newFakeKV()
	queue := &fakeQueue{}
	notifier := &fakeNotifier{}
	svc := NewService(kv, queue, notifier, Options{})
	return svc, kv, queue, notifier
}

func TestArm_SchedulesExpiryAndWarning(t *testing.T) {
	svc, kv, queue, _ := newTestService()
	ctx := context.Background()

	err := svc.Arm(ctx, "user-a", KindMachineAutoTagOff, Payload{GymID: "gym-1", MachineID: "machine-1"}, 20*time.Minute)
	require.NoError(t, err)

	raw, found, err := kv.Get(ctx, "timer:user-a:machineAutoTagOff")
	require.NoError(t, err)
	require.True(t, found)

	var rec Record
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, KindMachineAutoTagOff, rec.Kind)
	assert.Equal(t, "machine-1", rec.Payload.MachineID)
	assert.WithinDuration(t, time.Now().UTC().Add(20*time.Minute), rec.EndTime, time.Second)

	require.Len(t, queue.scheduled, 2)
	assert.Equal(t, "user-a:machineAutoTagOff", queue.scheduled[0].ID)
	assert.Equal(t, TypeExpire, queue.scheduled[0].Typename)
	assert.Equal(t, 20*time.Minute, queue.scheduled[0].Delay)
	assert.Equal(t, "user-a:machineAutoTagOff:warning", queue.scheduled[1].ID)
	assert.Equal(t, TypeWarn, queue.scheduled[1].Typename)
	assert.Equal(t, 20*time.Minute-15*time.Second, queue.scheduled[1].Delay)
}

func TestArm_SkipsWarningForShortDurations(t *testing.T) {
	svc, _, queue, _ := newTestService()

	err := svc.Arm(context.Background(), "user-a", KindMachineAutoTagOff, Payload{GymID: "gym-1"}, 10*time.Second)
	require.NoError(t, err)

	// The whole duration fits inside the warning window, so only the
	// expiry job exists.
	require.Len(t, queue.scheduled, 1)
	assert.Equal(t, TypeExpire, queue.scheduled[0].Typename)
}

func TestArm_CountdownTicksImmediately(t *testing.T) {
	svc, _, queue, notifier := newTestService()

	err := svc.Arm(context.Background(), "user-b", KindQueueTurnCountdown, Payload{GymID: "gym-1", MachineID: "machine-1"}, 30*time.Second)
	require.NoError(t, err)

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "user-b", notifier.notes[0].UserID)
	assert.Equal(t, 30, notifier.notes[0].Remaining)

	// Expiry job plus the first parity tick, one second out.
	ids := queue.jobIDs()
	require.Len(t, ids, 2)
	assert.Equal(t, "user-b:queueTurnCountdown", ids[0])
	assert.Equal(t, "user-b:queueTurnCountdown:tick0", ids[1])
	assert.Equal(t, time.Second, queue.scheduled[1].Delay)
}

func TestArm_ReplacesExistingTimer(t *testing.T) {
	svc, _, queue, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Arm(ctx, "user-a", KindGymSessionExpiry, Payload{GymID: "gym-1"}, time.Hour))
	require.NoError(t, svc.Arm(ctx, "user-a", KindGymSessionExpiry, Payload{GymID: "gym-1"}, 2*time.Hour))

	// The second arm cancels everything the first could have left.
	assert.Contains(t, queue.canceled, "user-a:gymSessionExpiry")
	assert.Contains(t, queue.canceled, "user-a:gymSessionExpiry:warning")
	assert.Contains(t, queue.canceled, "user-a:gymSessionExpiry:tick0")
	assert.Contains(t, queue.canceled, "user-a:gymSessionExpiry:tick1")

	rec, found, err := svc.Get(ctx, "user-a", KindGymSessionExpiry)
	require.NoError(t, err)
	require.True(t, found)
	assert.WithinDuration(t, time.Now().UTC().Add(2*time.Hour), rec.EndTime, time.Second)
}

func TestDisarm_RemovesRecordAndJobs(t *testing.T) {
	svc, kv, queue, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Arm(ctx, "user-a", KindMachineAutoTagOff, Payload{GymID: "gym-1"}, time.Minute))
	require.NoError(t, svc.Disarm(ctx, "user-a", KindMachineAutoTagOff))

	_, found, err := kv.Get(ctx, "timer:user-a:machineAutoTagOff")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Contains(t, queue.canceled, "user-a:machineAutoTagOff")
}

func TestTick_AlternatesParityAndStopsWhenDisarmed(t *testing.T) {
	svc, kv, queue, notifier := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Arm(ctx, "user-a", KindQueueTurnCountdown, Payload{GymID: "gym-1"}, 30*time.Second))

	// Move the timer one second ahead so the next tick computes an odd
	// remaining value and lands in the other parity slot.
	rec := Record{Kind: KindQueueTurnCountdown, Payload: Payload{GymID: "gym-1"}, EndTime: time.Now().UTC().Add(29 * time.Second)}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "timer:user-a:queueTurnCountdown", raw, time.Minute))
	require.NoError(t, svc.HandleTick(ctx, "user-a", KindQueueTurnCountdown))

	ids := queue.jobIDs()
	assert.Contains(t, ids, "user-a:queueTurnCountdown:tick0")
	assert.Contains(t, ids, "user-a:queueTurnCountdown:tick1")

	// Once the timer is gone the chain stops without notifying.
	require.NoError(t, svc.Disarm(ctx, "user-a", KindQueueTurnCountdown))
	before := len(notifier.notes)
	scheduledBefore := len(queue.scheduled)
	require.NoError(t, svc.HandleTick(ctx, "user-a", KindQueueTurnCountdown))
	assert.Len(t, notifier.notes, before)
	assert.Len(t, queue.scheduled, scheduledBefore)
}

func TestTick_ReportsExpiryAtZero(t *testing.T) {
	svc, kv, queue, notifier := newTestService()
	ctx := context.Background()

	rec := Record{Kind: KindQueueTurnCountdown, Payload: Payload{GymID: "gym-1"}, EndTime: time.Now().UTC().Add(-time.Second)}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "timer:user-a:queueTurnCountdown", raw, time.Minute))

	require.NoError(t, svc.HandleTick(ctx, "user-a", KindQueueTurnCountdown))

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, 0, notifier.notes[0].Remaining)
	assert.Equal(t, "Your turn has expired.", notifier.notes[0].Message)
	// No further tick is scheduled after the terminal notification.
	assert.Empty(t, queue.scheduled)
}

func TestHandleExpire_DispatchesThenDeletes(t *testing.T) {
	svc, kv, _, _ := newTestService()
	handler := &fakeExpiryHandler{}
	svc.SetExpiryHandler(handler)
	ctx := context.Background()

	require.NoError(t, svc.Arm(ctx, "user-a", KindMachineAutoTagOff, Payload{GymID: "gym-1", MachineID: "machine-1"}, time.Minute))
	require.NoError(t, svc.HandleExpire(ctx, "user-a", KindMachineAutoTagOff))

	require.Len(t, handler.calls, 1)
	assert.Equal(t, expiryCall{UserID: "user-a", Kind: KindMachineAutoTagOff}, handler.calls[0])

	_, found, err := kv.Get(ctx, "timer:user-a:machineAutoTagOff")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHandleExpire_MissingRecordIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestService()
	handler := &fakeExpiryHandler{}
	svc.SetExpiryHandler(handler)

	require.NoError(t, svc.HandleExpire(context.Background(), "user-a", KindMachineAutoTagOff))
	assert.Empty(t, handler.calls)
}

func TestHandleExpire_FailedHandlerKeepsRecord(t *testing.T) {
	svc, kv, _, _ := newTestService()
	handler := &fakeExpiryHandler{err: assert.AnError}
	svc.SetExpiryHandler(handler)
	ctx := context.Background()

	require.NoError(t, svc.Arm(ctx, "user-a", KindGymSessionExpiry, Payload{GymID: "gym-1"}, time.Hour))
	err := svc.HandleExpire(ctx, "user-a", KindGymSessionExpiry)
	require.Error(t, err)

	// The record survives so a retried job can act on it.
	_, found, kvErr := kv.Get(ctx, "timer:user-a:gymSessionExpiry")
	require.NoError(t, kvErr)
	assert.True(t, found)
}

func TestClearAllForUser(t *testing.T) {
	svc, kv, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Arm(ctx, "user-a", KindMachineAutoTagOff, Payload{GymID: "gym-1"}, time.Minute))
	require.NoError(t, svc.Arm(ctx, "user-a", KindGymSessionExpiry, Payload{GymID: "gym-1"}, time.Hour))
	require.NoError(t, svc.ClearAllForUser(ctx, "user-a"))

	assert.Empty(t, kv.data)
}
