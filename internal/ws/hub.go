package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub is the process-local connection registry: at most one addressed
// connection per user (last authenticated wins) and a set of
// connections per gym for group broadcasts. Delivery is best-effort,
// at-most-once; nothing is queued for disconnected users.
type Hub struct {
	mu     sync.RWMutex
	byUser map[string]*Client
	byGym  map[string]map[*Client]struct{}

	// OnBind, when set, runs after a connection authenticates. Used
	// to push the initial machine snapshot and replay any live
	// countdown.
	OnBind func(userID, gymID string)
}

// NewHub creates an empty connection registry.
func NewHub() *Hub {
	return &Hub{
		byUser: make(map[string]*Client),
		byGym:  make(map[string]map[*Client]struct{}),
	}
}

// bind registers an authenticated client. A previous connection for
// the same user is closed and replaced.
func (h *Hub) bind(c *Client) {
	h.mu.Lock()
	if prev, ok := h.byUser[c.userID]; ok && prev != c {
		h.removeLocked(prev)
		prev.close()
	}
	h.byUser[c.userID] = c
	gym, ok := h.byGym[c.gymID]
	if !ok {
		gym = make(map[*Client]struct{})
		h.byGym[c.gymID] = gym
	}
	gym[c] = struct{}{}
	h.mu.Unlock()

	if h.OnBind != nil {
		h.OnBind(c.userID, c.gymID)
	}
}

// unbind removes a client if it is still the user's current one.
func (h *Hub) unbind(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.byUser[c.userID]; ok && cur == c {
		delete(h.byUser, c.userID)
	}
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if gym, ok := h.byGym[c.gymID]; ok {
		delete(gym, c)
		if len(gym) == 0 {
			delete(h.byGym, c.gymID)
		}
	}
}

// HasConnection reports whether a user currently has a live,
// authenticated connection.
func (h *Hub) HasConnection(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.byUser[userID]
	return ok
}

// broadcastToGym sends a message to every live connection in a gym.
func (h *Hub) broadcastToGym(gymID string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal broadcast message: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byGym[gymID] {
		c.trySend(raw)
	}
}

// sendToUser sends a message to the one connection bound to a user.
// A no-op when the user has no live connection.
func (h *Hub) sendToUser(userID string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal message for user %s: %v", userID, err)
		return
	}
	h.mu.RLock()
	c, ok := h.byUser[userID]
	h.mu.RUnlock()
	if ok {
		c.trySend(raw)
	}
}

// BroadcastMachineUpdate fans a machine-state delta out to every
// connection in the machine's gym.
func (h *Hub) BroadcastMachineUpdate(gymID, machineID string, fields any) {
	h.broadcastToGym(gymID, machineUpdateMessage{
		Type:      TypeMachineUpdate,
		MachineID: machineID,
		Data:      fields,
	})
}

// SendUserUpdate pushes changed user fields to that user.
func (h *Hub) SendUserUpdate(userID string, fields any) {
	h.sendToUser(userID, userUpdateMessage{Type: TypeUserUpdate, Data: fields})
}

// SendQueueUpdate pushes a user's queue entry and position to them.
func (h *Hub) SendQueueUpdate(userID string, entry any) {
	h.sendToUser(userID, queueUpdateMessage{Type: TypeQueueUpdate, Data: entry})
}

// SendTimerNotification pushes a timer arm/tick/expiry notification
// to the timer's subject.
func (h *Hub) SendTimerNotification(userID string, kind string, message string, remainingSeconds int, payload any) {
	h.sendToUser(userID, timerNotificationMessage{
		Type: TypeTimerNotification,
		Data: timerNotificationData{
			Kind:             kind,
			Message:          message,
			RemainingSeconds: remainingSeconds,
			Payload:          payload,
		},
	})
}

// SendMachineStatus pushes the initial machine snapshot to a user.
func (h *Hub) SendMachineStatus(userID, gymID string, machines any) {
	h.sendToUser(userID, machineStatusMessage{
		Type:  TypeMachineStatus,
		GymID: gymID,
		Data:  machines,
	})
}
