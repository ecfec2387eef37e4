package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, userID, gymID string) *Client {
	return &Client{
		hub:    h,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		gymID:  gymID,
	}
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case raw := <-c.send:
		return raw
	default:
		t.Fatal("expected a queued message")
		return nil
	}
}

func TestBind_LastConnectionWins(t *testing.T) {
	h := NewHub()
	first := newTestClient(h, "user-a", "gym-1")
	second := newTestClient(h, "user-a", "gym-1")

	h.bind(first)
	h.bind(second)

	assert.True(t, h.HasConnection("user-a"))
	assert.Same(t, second, h.byUser["user-a"])

	// The replaced connection got the close sentinel and is no longer
	// part of the gym set.
	assert.Nil(t, receive(t, first))
	_, stillThere := h.byGym["gym-1"][first]
	assert.False(t, stillThere)

	// Targeted sends reach only the surviving connection.
	h.SendUserUpdate("user-a", map[string]any{"currentWorkoutLogId": nil})
	raw := receive(t, second)
	var msg userUpdateMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypeUserUpdate, msg.Type)
}

func TestBind_InvokesOnBind(t *testing.T) {
	h := NewHub()
	var boundUser, boundGym string
	h.OnBind = func(userID, gymID string) {
		boundUser, boundGym = userID, gymID
	}

	h.bind(newTestClient(h, "user-a", "gym-1"))
	assert.Equal(t, "user-a", boundUser)
	assert.Equal(t, "gym-1", boundGym)
}

func TestUnbind_OnlyRemovesCurrentConnection(t *testing.T) {
	h := NewHub()
	first := newTestClient(h, "user-a", "gym-1")
	second := newTestClient(h, "user-a", "gym-1")

	h.bind(first)
	h.bind(second)

	// The stale first connection's read pump exits after replacement;
	// its unbind must not evict the live second connection.
	h.unbind(first)
	assert.True(t, h.HasConnection("user-a"))

	h.unbind(second)
	assert.False(t, h.HasConnection("user-a"))
	assert.Empty(t, h.byGym)
}

func TestBroadcastMachineUpdate_ScopedToGym(t *testing.T) {
	h := NewHub()
	a := newTestClient(h, "user-a", "gym-1")
	b := newTestClient(h, "user-b", "gym-1")
	c := newTestClient(h, "user-c", "gym-2")
	h.bind(a)
	h.bind(b)
	h.bind(c)

	h.BroadcastMachineUpdate("gym-1", "machine-1", map[string]any{"queueLength": 2})

	for _, client := range []*Client{a, b} {
		var msg machineUpdateMessage
		require.NoError(t, json.Unmarshal(receive(t, client), &msg))
		assert.Equal(t, TypeMachineUpdate, msg.Type)
		assert.Equal(t, "machine-1", msg.MachineID)
	}
	select {
	case <-c.send:
		t.Fatal("gym-2 client must not receive gym-1 broadcasts")
	default:
	}
}

func TestSendToUser_NoConnectionIsNoOp(t *testing.T) {
	h := NewHub()
	// Must not panic or block.
	h.SendUserUpdate("nobody", map[string]any{"checkedInGymId": nil})
	h.SendQueueUpdate("nobody", nil)
}

func TestSendTimerNotification_Shape(t *testing.T) {
	h := NewHub()
	a := newTestClient(h, "user-a", "gym-1")
	h.bind(a)

	h.SendTimerNotification("user-a", "queueTurnCountdown", "Your turn! You have 30 seconds to tag on.", 30,
		map[string]string{"machineId": "machine-1"})

	var msg timerNotificationMessage
	require.NoError(t, json.Unmarshal(receive(t, a), &msg))
	assert.Equal(t, TypeTimerNotification, msg.Type)
	assert.Equal(t, "queueTurnCountdown", msg.Data.Kind)
	assert.Equal(t, 30, msg.Data.RemainingSeconds)
	assert.Contains(t, msg.Data.Message, "30 seconds")
}

func TestTrySend_DropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	a := &Client{hub: h, send: make(chan []byte, 1), userID: "user-a", gymID: "gym-1"}
	h.bind(a)

	h.SendUserUpdate("user-a", map[string]any{"n": 1})
	h.SendUserUpdate("user-a", map[string]any{"n": 2})

	// The second message was dropped, not queued behind a slow reader.
	<-a.send
	select {
	case <-a.send:
		t.Fatal("expected the overflow message to be dropped")
	default:
	}
}

func TestVerifyToken(t *testing.T) {
	secret := "test-secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, wsClaims{
		GymID: "gym-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	userID, gymID, err := VerifyToken(signed, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-a", userID)
	assert.Equal(t, "gym-1", gymID)

	_, _, err = VerifyToken(signed, "wrong-secret")
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, wsClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signedExpired, err := expired.SignedString([]byte(secret))
	require.NoError(t, err)
	_, _, err = VerifyToken(signedExpired, secret)
	assert.Error(t, err)
}
