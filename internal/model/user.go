package model

import "time"

// User represents a gym member.
type User struct {
	ID    string `gorm:"primaryKey;size:36" json:"id"`
	Name  string `gorm:"size:128;not null" json:"name"`
	Email string `gorm:"uniqueIndex;size:256;not null" json:"email"`

	// CurrentWorkoutLogID mirrors the occupied machine's pointer: when
	// set, exactly one machine's CurrentWorkoutLogID holds the same
	// session id. Mutated only by the store layer.
	CurrentWorkoutLogID *string `gorm:"size:36" json:"currentWorkoutLogId"`

	// CheckedInGymID is set while the user has an active gym session.
	CheckedInGymID *string `gorm:"size:36" json:"checkedInGymId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	QueueItem *QueueItem `gorm:"foreignKey:UserID" json:"queueItem,omitempty"`
}
