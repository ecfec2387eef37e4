package model

import "time"

// Gym represents a site whose machine pool and broadcasts are scoped together.
type Gym struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Location  string    `gorm:"size:256" json:"location"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`

	// Associations
	Machines []Machine `gorm:"foreignKey:GymID" json:"machines,omitempty"`
}
