package reconcile

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"deploy-reconciler/pkg/model"
	"deploy-reconciler/pkg/store"
)

type snapshot struct {
	TaskStatus string
	TaskError  string
	Nodes      map[string]string
}

func takeSnapshot(t *rapid.T, st *store.MemoryStore, nodes int) snapshot {
	ctx := context.Background()
	task, ok, err := st.GetTask(ctx, "T")
	if err != nil || !ok {
		t.Fatalf("task lookup: ok=%v err=%v", ok, err)
	}
	s := snapshot{TaskStatus: task.Status, TaskError: task.Error, Nodes: map[string]string{}}
	for i := 0; i < nodes; i++ {
		n, _, _ := st.GetNode(ctx, fmt.Sprintf("n%d", i))
		s.Nodes[n.ID] = n.Status
	}
	return s
}

// Applying the same deploy report twice leaves the same state as applying it once,
// and any known node reporting error drives the task to error.
func TestPropertyDeployIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		nodeCount := rapid.IntRange(0, 5).Draw(t, "nodeCount")
		st := store.NewMemoryStore()
		_ = st.SaveTask(ctx, model.Task{
			UUID:   "T",
			Status: model.TaskRunning,
			Error:  rapid.SampledFrom([]string{"", "previous failure"}).Draw(t, "previousError"),
		})
		for i := 0; i < nodeCount; i++ {
			_ = st.SaveNode(ctx, model.Node{ID: fmt.Sprintf("n%d", i), Status: model.NodeDiscover, MAC: fmt.Sprintf("mac-%d", i)})
		}

		nodeStatuses := []string{"", model.NodeReady, model.NodeError, model.NodeDeploying}
		rep := model.Report{
			TaskUUID: "T",
			Status:   rapid.SampledFrom([]string{"", model.TaskReady, model.TaskError, model.TaskRunning}).Draw(t, "status"),
			Error:    rapid.SampledFrom([]string{"", "agent error"}).Draw(t, "error"),
		}
		wantError := false
		for i, n := 0, rapid.IntRange(0, 8).Draw(t, "results"); i < n; i++ {
			idx := rapid.IntRange(0, nodeCount).Draw(t, "node") // nodeCount is an unknown node
			status := rapid.SampledFrom(nodeStatuses).Draw(t, "nodeStatus")
			rep.Nodes = append(rep.Nodes, model.NodeResult{UID: fmt.Sprintf("n%d", idx), Status: status})
			if idx < nodeCount && status == model.NodeError {
				wantError = true
			}
		}

		rec := New(st, nil)
		_, _ = rec.ApplyDeploy(ctx, rep)
		once := takeSnapshot(t, st, nodeCount)
		_, _ = rec.ApplyDeploy(ctx, rep)
		twice := takeSnapshot(t, st, nodeCount)

		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("second application changed state:\nonce:  %+v\ntwice: %+v", once, twice)
		}
		if wantError && once.TaskStatus != model.TaskError {
			t.Fatalf("error node reported but task status is %q", once.TaskStatus)
		}
		if !wantError && rep.Status == "" && once.TaskStatus != model.TaskRunning {
			t.Fatalf("progress report changed task status to %q", once.TaskStatus)
		}
	})
}

// The task goes to error exactly when some interface misses an expected VLAN.
func TestPropertyVerifyNetworks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		st := store.NewMemoryStore()
		_ = st.SaveTask(ctx, model.Task{UUID: "T", Status: model.TaskRunning, ClusterID: 1})

		vlanGen := rapid.IntRange(1, 12)
		expected := rapid.SliceOfDistinct(vlanGen, rapid.ID[int]).Draw(t, "expected")
		for _, v := range expected {
			_ = st.SaveNetwork(ctx, model.Network{ClusterID: 1, VLANID: v})
		}

		var reports []model.NodeNetworks
		wantError := false
		for i, n := 0, rapid.IntRange(0, 4).Draw(t, "nodes"); i < n; i++ {
			node := model.NodeNetworks{UID: fmt.Sprintf("n%d", i)}
			for j, m := 0, rapid.IntRange(0, 3).Draw(t, "ifaces"); j < m; j++ {
				vlans := rapid.SliceOf(vlanGen).Draw(t, "vlans")
				node.Networks = append(node.Networks, model.InterfaceVLANs{VLANs: vlans})
				got := map[int]bool{}
				for _, v := range vlans {
					got[v] = true
				}
				for _, v := range expected {
					if !got[v] {
						wantError = true
					}
				}
			}
			reports = append(reports, node)
		}

		rep := model.Report{TaskUUID: "T", Status: model.TaskReady, Networks: reports}
		rec := New(st, nil)
		if _, err := rec.ApplyVerifyNetworks(ctx, rep); err != nil {
			t.Fatalf("apply: %v", err)
		}
		first, _, _ := st.GetTask(ctx, "T")
		if _, err := rec.ApplyVerifyNetworks(ctx, rep); err != nil {
			t.Fatalf("reapply: %v", err)
		}
		second, _, _ := st.GetTask(ctx, "T")

		if (first.Status == model.TaskError) != wantError {
			t.Fatalf("status %q, want error=%v", first.Status, wantError)
		}
		if first.Status != second.Status || first.Error != second.Error {
			t.Fatalf("reapply changed task: %+v -> %+v", first, second)
		}
	})
}
