package reconcile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"deploy-reconciler/pkg/model"
)

const unknown = "Unknown"

type failedNodeInfo struct {
	MAC  string `json:"MAC"`
	IP   string `json:"IP"`
	Name string `json:"NAME"`
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func deployFailureMessage(nodes []model.Node) string {
	lines := make([]string, 0, len(nodes))
	for _, n := range nodes {
		b, _ := json.Marshal(failedNodeInfo{MAC: n.MAC, IP: orUnknown(n.IP), Name: orUnknown(n.Name)})
		lines = append(lines, string(b))
	}
	return "Failed to deploy nodes:\n" + strings.Join(lines, "\n")
}

// absentVLANs is one interface missing some of the expected VLANs.
type absentVLANs struct {
	UID   string
	Iface string
	VLANs []int
}

// missingVLANs computes expected minus reported for every reported interface.
func missingVLANs(expected map[int]struct{}, reports []model.NodeNetworks) []absentVLANs {
	var out []absentVLANs
	for _, node := range reports {
		for _, iface := range node.Networks {
			seen := make(map[int]struct{}, len(iface.VLANs))
			for _, v := range iface.VLANs {
				seen[v] = struct{}{}
			}
			var absent []int
			for v := range expected {
				if _, ok := seen[v]; !ok {
					absent = append(absent, v)
				}
			}
			if len(absent) == 0 {
				continue
			}
			sort.Ints(absent)
			out = append(out, absentVLANs{UID: node.UID, Iface: iface.Iface, VLANs: absent})
		}
	}
	return out
}

func verifyFailureMessage(missing []absentVLANs) string {
	lines := make([]string, 0, len(missing))
	for _, m := range missing {
		if m.Iface != "" {
			lines = append(lines, fmt.Sprintf("uid=%s iface=%s absent_vlans=%v", m.UID, m.Iface, m.VLANs))
			continue
		}
		lines = append(lines, fmt.Sprintf("uid=%s absent_vlans=%v", m.UID, m.VLANs))
	}
	return "Following nodes do not have vlans:\n" + strings.Join(lines, "\n")
}
