package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"deploy-reconciler/pkg/model"
)

// ApplyDeploy folds a deploy report into node and task state.
//
// Every node result carrying a status is written on its own, so a failure
// midway leaves earlier nodes committed. Any node in error forces the task to
// error with a message describing those nodes, whatever status the report
// declared. Without a status and without failed nodes the task is untouched.
func (r *Reconciler) ApplyDeploy(ctx context.Context, rep model.Report) (Outcome, error) {
	out := Outcome{TaskUUID: rep.TaskUUID, Kind: model.KindDeploy}
	r.log.Info("deploy report received",
		zap.String("task_uuid", rep.TaskUUID),
		zap.String("status", rep.Status),
		zap.Int("nodes", len(rep.Nodes)))

	if _, err := r.lookupTask(ctx, rep.TaskUUID); err != nil {
		return out, err
	}

	status, message := rep.Status, rep.Error
	var (
		failed     []model.Node
		commitErrs []error
	)
	for _, res := range rep.Nodes {
		if res.Status == "" {
			continue
		}
		if res.UID == "" {
			r.log.Warn("node result without uid skipped", zap.String("task_uuid", rep.TaskUUID))
			out.NodesSkipped++
			continue
		}
		node, ok, err := r.store.GetNode(ctx, res.UID)
		if err != nil {
			r.log.Error("get node failed", zap.String("uid", res.UID), zap.Error(err))
			commitErrs = append(commitErrs, fmt.Errorf("get node %s: %w: %w", res.UID, ErrStoreCommit, err))
			out.NodesSkipped++
			continue
		}
		if !ok {
			r.log.Error("node not found", zap.String("uid", res.UID), zap.String("task_uuid", rep.TaskUUID),
				zap.Error(fmt.Errorf("%w: %s", ErrNodeNotFound, res.UID)))
			out.NodesSkipped++
			continue
		}
		node.Status = res.Status
		if err := r.store.SaveNode(ctx, node); err != nil {
			r.log.Error("save node failed", zap.String("uid", res.UID), zap.Error(err))
			commitErrs = append(commitErrs, fmt.Errorf("save node %s: %w: %w", res.UID, ErrStoreCommit, err))
		} else {
			out.NodesUpdated++
		}
		if res.Status == model.NodeError {
			failed = append(failed, node)
		}
	}

	if len(failed) > 0 {
		message = deployFailureMessage(failed)
		status = model.TaskError
	}
	if status != "" {
		if err := r.updateTaskStatus(ctx, rep.TaskUUID, status, message); err != nil {
			if out.NodesUpdated > 0 {
				err = fmt.Errorf("%w after %d node writes: %w", ErrPartialApply, out.NodesUpdated, err)
			}
			return out, errors.Join(append(commitErrs, err)...)
		}
		out.TaskStatus = status
		out.ErrorMessage = message
	}
	return out, errors.Join(commitErrs...)
}
