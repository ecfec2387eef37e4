package store

import (
	"time"

	"gym-status-backend/internal/model"
)

// ReleasedSession describes a session on another machine that was
// closed as part of a tag-on, so the caller can run the usual tag-off
// side effects (disarm timers, broadcast, advance that queue).
type ReleasedSession struct {
	Log      model.WorkoutLog
	Machine  model.Machine
	Duration time.Duration
	Folded   bool
}

// TagOnResult reports everything a tag-on changed.
type TagOnResult struct {
	Log     model.WorkoutLog
	Machine model.Machine
	User    model.User

	// ConsumedQueueItem is non-nil when the caller was head of the
	// machine's queue and the entry was removed in the same transaction.
	ConsumedQueueItem *model.QueueItem

	// Released is non-nil when the user's previous session on a
	// different machine was closed first.
	Released *ReleasedSession
}

// TagOffResult reports everything a tag-off changed.
type TagOffResult struct {
	Log      model.WorkoutLog
	Machine  model.Machine
	User     model.User
	Duration time.Duration

	// Folded is true when the duration was accepted into the
	// machine's rolling window.
	Folded bool
}

// EnqueueResult reports a created queue entry and its position.
type EnqueueResult struct {
	Item     model.QueueItem
	Machine  model.Machine
	Position int
}

// DequeueResult reports a destroyed queue entry.
type DequeueResult struct {
	Item    model.QueueItem
	Machine model.Machine
}

// QueueEntry is a queue item with its 1-based position.
type QueueEntry struct {
	Item     model.QueueItem `json:"item"`
	Position int             `json:"position"`
}
