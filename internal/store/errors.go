package store

import "errors"

// Typed failures returned by store operations. The API layer maps
// these onto HTTP status codes; everything else is treated as a
// transient internal failure.
var (
	// Not found.
	ErrGymNotFound     = errors.New("gym not found")
	ErrMachineNotFound = errors.New("machine not found")
	ErrUserNotFound    = errors.New("user not found")

	// Conflict.
	ErrMachineOccupied = errors.New("machine is already occupied")
	ErrNotFirstInQueue = errors.New("user is not first in the queue")
	ErrAlreadyQueued   = errors.New("user is already in a queue")
	ErrUserBusy        = errors.New("user already has an active session")

	// Capacity.
	ErrQueueFull = errors.New("queue is full")

	// Precondition.
	ErrMachineIdle     = errors.New("machine is idle, tag on instead of queueing")
	ErrNoActiveSession = errors.New("no active session to tag off")
	ErrNotQueued       = errors.New("user is not in a queue")
)

// IsConflict reports whether err belongs to the conflict class.
func IsConflict(err error) bool {
	return errors.Is(err, ErrMachineOccupied) ||
		errors.Is(err, ErrNotFirstInQueue) ||
		errors.Is(err, ErrAlreadyQueued) ||
		errors.Is(err, ErrUserBusy)
}

// IsNotFound reports whether err belongs to the not-found class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGymNotFound) ||
		errors.Is(err, ErrMachineNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsPrecondition reports whether err belongs to the precondition class.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrMachineIdle) ||
		errors.Is(err, ErrNoActiveSession) ||
		errors.Is(err, ErrNotQueued)
}
