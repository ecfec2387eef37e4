package model

import "time"

// QueueItem is a user's reservation of a future turn on a machine.
// The unique index on UserID enforces single queue membership; the
// composite index serves the (enqueue_time, id) ordering scans.
type QueueItem struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"uniqueIndex;size:36;not null" json:"userId"`
	MachineID   string    `gorm:"index:idx_queue_items_machine_order;size:36;not null" json:"machineId"`
	EnqueueTime time.Time `gorm:"index:idx_queue_items_machine_order;not null" json:"enqueueTime"`
}
