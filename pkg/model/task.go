package model

import "time"

// Task statuses driven by agent reports.
const (
	TaskRunning = "running"
	TaskReady   = "ready"
	TaskError   = "error"
)

// Task represents a deployment or verification action issued against a cluster.
// It is created elsewhere; the reconciler only moves its status.
type Task struct {
	UUID      string    `gorm:"primaryKey;size:64" json:"uuid"`
	Name      string    `gorm:"size:64" json:"name,omitempty"`
	Status    string    `gorm:"size:32;index" json:"status"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	ClusterID uint      `gorm:"index" json:"clusterId"`
	UpdatedAt time.Time `json:"updatedAt"`
}
