package ws

// Outbound message types pushed over live connections.
const (
	TypeMachineStatus     = "machineStatus"
	TypeMachineUpdate     = "machineUpdate"
	TypeUserUpdate        = "userUpdate"
	TypeQueueUpdate       = "queueUpdate"
	TypeTimerNotification = "timerNotification"
)

// machineUpdateMessage carries changed machine fields to every
// connection in the machine's gym.
type machineUpdateMessage struct {
	Type      string `json:"type"`
	MachineID string `json:"machineId"`
	Data      any    `json:"data"`
}

// userUpdateMessage carries changed user fields to that user.
type userUpdateMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// queueUpdateMessage carries a user's queue entry and position.
type queueUpdateMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// timerNotificationMessage carries timer arm/tick/expiry information.
type timerNotificationMessage struct {
	Type string                `json:"type"`
	Data timerNotificationData `json:"data"`
}

type timerNotificationData struct {
	Kind             string `json:"kind"`
	Message          string `json:"message"`
	RemainingSeconds int    `json:"remainingSeconds"`
	Payload          any    `json:"payload,omitempty"`
}

// machineStatusMessage is the initial snapshot sent right after a
// connection authenticates.
type machineStatusMessage struct {
	Type  string `json:"type"`
	GymID string `json:"gymId"`
	Data  any    `json:"data"`
}

// authenticateMessage is the first message a client must send.
type authenticateMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	GymID string `json:"gymId"`
}
