package model

import "time"

// Node statuses as reported by provisioning agents.
const (
	NodeDiscover     = "discover"
	NodeProvisioning = "provisioning"
	NodeDeploying    = "deploying"
	NodeReady        = "ready"
	NodeError        = "error"
	NodeOffline      = "offline"
)

// Node is a managed machine. ID is the fqdn/uid agents put in their reports.
type Node struct {
	ID        string    `gorm:"primaryKey;size:255" json:"id"`
	Status    string    `gorm:"size:32" json:"status"`
	MAC       string    `gorm:"size:17;index" json:"mac"`
	IP        string    `gorm:"size:45" json:"ip,omitempty"`
	Name      string    `gorm:"size:100" json:"name,omitempty"`
	ClusterID uint      `gorm:"index" json:"clusterId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
