package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gym-status-backend/internal/model"
)

type sentPush struct {
	Endpoint string
	Payload  string
}

type mockSender struct {
	mu        sync.Mutex
	sent      []sentPush
	statusFor map[string]int
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentPush{Endpoint: sub.Endpoint, Payload: string(payload)})
	status := http.StatusCreated
	if s, ok := m.statusFor[sub.Endpoint]; ok {
		status = s
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func newTestPool(t *testing.T) (*WorkerPool, *mockSender, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:push_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Machine{}, &model.PushSubscription{}))

	require.NoError(t, db.Create(&model.Machine{
		ID: "machine-1", GymID: "gym-1", Name: "Leg Press", Type: "strength",
		MaxSessionDuration: 1200, MaxQueueLength: 5,
		LastTenSessions: model.SeedSessions(), AverageUsageTime: 600,
	}).Error)

	sender := &mockSender{statusFor: map[string]int{}}
	pool := NewWorkerPool(2, db, &webpush.Options{Subscriber: "mailto:test@example.com"})
	pool.sender = sender
	return pool, sender, db
}

func TestSendQueueTurnAlert_PushesToEverySubscription(t *testing.T) {
	pool, sender, db := newTestPool(t)

	require.NoError(t, db.Create(&[]model.PushSubscription{
		{Endpoint: "https://push.example.com/one", UserID: "user-a", P256DH: "k1", Auth: "a1"},
		{Endpoint: "https://push.example.com/two", UserID: "user-a", P256DH: "k2", Auth: "a2"},
		{Endpoint: "https://push.example.com/other", UserID: "user-b", P256DH: "k3", Auth: "a3"},
	}).Error)

	pool.sendQueueTurnAlert(context.Background(), Job{UserID: "user-a", MachineID: "machine-1"})

	require.Len(t, sender.sent, 2)
	endpoints := []string{sender.sent[0].Endpoint, sender.sent[1].Endpoint}
	assert.Contains(t, endpoints, "https://push.example.com/one")
	assert.Contains(t, endpoints, "https://push.example.com/two")
	assert.Contains(t, sender.sent[0].Payload, "Leg Press")
}

func TestSendQueueTurnAlert_NoSubscriptionsIsNoOp(t *testing.T) {
	pool, sender, _ := newTestPool(t)
	pool.sendQueueTurnAlert(context.Background(), Job{UserID: "user-a", MachineID: "machine-1"})
	assert.Empty(t, sender.sent)
}

func TestSendQueueTurnAlert_FallsBackToMachineID(t *testing.T) {
	pool, sender, db := newTestPool(t)

	require.NoError(t, db.Create(&model.PushSubscription{
		Endpoint: "https://push.example.com/one", UserID: "user-a", P256DH: "k1", Auth: "a1",
	}).Error)

	pool.sendQueueTurnAlert(context.Background(), Job{UserID: "user-a", MachineID: "machine-unknown"})
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Payload, "machine-unknown")
}

func TestSendNotification_DeletesExpiredSubscription(t *testing.T) {
	pool, sender, db := newTestPool(t)
	sender.statusFor["https://push.example.com/gone"] = http.StatusGone

	require.NoError(t, db.Create(&[]model.PushSubscription{
		{Endpoint: "https://push.example.com/gone", UserID: "user-a", P256DH: "k1", Auth: "a1"},
		{Endpoint: "https://push.example.com/live", UserID: "user-a", P256DH: "k2", Auth: "a2"},
	}).Error)

	pool.sendQueueTurnAlert(context.Background(), Job{UserID: "user-a", MachineID: "machine-1"})

	var remaining []model.PushSubscription
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "https://push.example.com/live", remaining[0].Endpoint)
}

func TestDispatch_DropsWhenPoolSaturated(t *testing.T) {
	pool, _, _ := newTestPool(t)

	// No workers are running, so the buffer fills and the overflow job
	// is dropped instead of blocking the caller.
	for i := 0; i < 10; i++ {
		pool.Dispatch(Job{UserID: "user-a", MachineID: "machine-1"})
	}
	assert.Len(t, pool.Jobs(), 2)
}
