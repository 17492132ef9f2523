package model

// ReportKind selects the reducer a report is routed to.
type ReportKind string

const (
	KindDeploy         ReportKind = "deploy"
	KindVerifyNetworks ReportKind = "verify-networks"
)

// Report is a completion report sent by a remote agent. Optional fields are
// left at their zero value when the agent omits them.
type Report struct {
	TaskUUID string         `json:"task_uuid"`
	Kind     ReportKind     `json:"kind,omitempty"`
	Status   string         `json:"status,omitempty"`
	Error    string         `json:"error,omitempty"`
	Nodes    []NodeResult   `json:"nodes,omitempty"`
	Networks []NodeNetworks `json:"networks,omitempty"`
}

// NodeResult is the per-node part of a deploy report.
type NodeResult struct {
	UID    string `json:"uid"`
	Status string `json:"status,omitempty"`
}

// NodeNetworks lists the VLANs seen on each interface of one node.
type NodeNetworks struct {
	UID      string           `json:"uid"`
	Networks []InterfaceVLANs `json:"networks"`
}

type InterfaceVLANs struct {
	Iface string `json:"iface,omitempty"`
	VLANs []int  `json:"vlans"`
}
