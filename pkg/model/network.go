package model

// Network is the expected L2 configuration of a cluster. Read-only for the reconciler.
type Network struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ClusterID uint   `gorm:"index" json:"clusterId"`
	Name      string `gorm:"size:100" json:"name,omitempty"`
	VLANID    int    `gorm:"column:vlan_id" json:"vlanId"`
}
