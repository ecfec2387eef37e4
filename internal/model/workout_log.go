package model

import "time"

// WorkoutLog records one continuous interval of a user occupying a
// machine. A null TimeOfTagOff means the session is still active.
type WorkoutLog struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	UserID       string     `gorm:"index;size:36;not null" json:"userId"`
	MachineID    string     `gorm:"index;size:36;not null" json:"machineId"`
	TimeOfTagOn  time.Time  `gorm:"not null" json:"timeOfTagOn"`
	TimeOfTagOff *time.Time `json:"timeOfTagOff"`
}
