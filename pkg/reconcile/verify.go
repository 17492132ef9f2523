package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"deploy-reconciler/pkg/model"
)

// ApplyVerifyNetworks checks that every reported interface carries all VLANs
// configured for the task's cluster and marks the task error otherwise.
func (r *Reconciler) ApplyVerifyNetworks(ctx context.Context, rep model.Report) (Outcome, error) {
	out := Outcome{TaskUUID: rep.TaskUUID, Kind: model.KindVerifyNetworks}
	r.log.Info("verify-networks report received",
		zap.String("task_uuid", rep.TaskUUID),
		zap.String("status", rep.Status),
		zap.Int("nodes", len(rep.Networks)))

	task, err := r.lookupTask(ctx, rep.TaskUUID)
	if err != nil {
		return out, err
	}
	nets, err := r.store.ListNetworks(ctx, task.ClusterID)
	if err != nil {
		return out, fmt.Errorf("list networks of cluster %d: %w: %w", task.ClusterID, ErrStoreCommit, err)
	}
	expected := make(map[int]struct{}, len(nets))
	for _, n := range nets {
		expected[n.VLANID] = struct{}{}
	}

	status, message := rep.Status, rep.Error
	if missing := missingVLANs(expected, rep.Networks); len(missing) > 0 {
		message = verifyFailureMessage(missing)
		r.log.Error("nodes are missing vlans", zap.String("task_uuid", rep.TaskUUID), zap.String("error", message))
		status = model.TaskError
	}
	if status != "" {
		if err := r.updateTaskStatus(ctx, rep.TaskUUID, status, message); err != nil {
			return out, err
		}
		out.TaskStatus = status
		out.ErrorMessage = message
	}
	return out, nil
}
