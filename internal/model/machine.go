package model

import "time"

// RecentSessionCount is the fixed size of a machine's rolling
// duration window. The window always holds exactly this many values.
const RecentSessionCount = 10

// DefaultSessionSeconds seeds the rolling window so a new machine
// reports a sane average before any real sessions are recorded.
const DefaultSessionSeconds = 600

// Machine represents a single piece of gym equipment with exclusive
// single-occupant access.
type Machine struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	GymID  string `gorm:"index;size:36;not null" json:"gymId"`
	Name   string `gorm:"size:128;not null" json:"name"`
	Type   string `gorm:"size:64;not null" json:"type"`

	// CurrentWorkoutLogID points at the open session occupying this
	// machine. Null means vacant. Mutated only by the store layer.
	CurrentWorkoutLogID *string `gorm:"size:36" json:"currentWorkoutLogId"`

	// MaxSessionDuration is the auto tag-off limit in seconds.
	MaxSessionDuration int `gorm:"not null;default:1200" json:"maxSessionDuration"`

	QueueLength    int `gorm:"not null;default:0" json:"queueLength"`
	MaxQueueLength int `gorm:"not null;default:5" json:"maxQueueLength"`

	// LastTenSessions is the rolling window of accepted session
	// durations in seconds, oldest first.
	LastTenSessions  []float64 `gorm:"serializer:json" json:"lastTenSessions"`
	AverageUsageTime float64   `gorm:"not null;default:600" json:"averageUsageTime"`

	MaintenanceStatus string    `gorm:"size:32;default:Good" json:"maintenanceStatus"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	// Associations
	Gym Gym `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// SeedSessions returns a fresh rolling window filled with the default
// session duration.
func SeedSessions() []float64 {
	s := make([]float64, RecentSessionCount)
	for i := range s {
		s[i] = DefaultSessionSeconds
	}
	return s
}
