// Package reconcile folds agent completion reports into task and node state.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"deploy-reconciler/pkg/model"
	"deploy-reconciler/pkg/store"
)

// Outcome summarizes what applying one report changed.
type Outcome struct {
	TaskUUID     string
	Kind         model.ReportKind
	TaskStatus   string // empty when the task was left unchanged
	ErrorMessage string
	NodesUpdated int
	NodesSkipped int
}

// Reconciler applies reports against an injected record store.
type Reconciler struct {
	store store.RecordStore
	log   *zap.Logger
}

func New(st store.RecordStore, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: st, log: log}
}

// lookupTask resolves the task read-only; a missing task is logged and
// returned as ErrTaskNotFound.
func (r *Reconciler) lookupTask(ctx context.Context, uuid string) (model.Task, error) {
	task, ok, err := r.store.GetTask(ctx, uuid)
	if err != nil {
		return model.Task{}, fmt.Errorf("get task %s: %w: %w", uuid, ErrStoreCommit, err)
	}
	if !ok {
		r.log.Error("no task with this uuid", zap.String("task_uuid", uuid))
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, uuid)
	}
	return task, nil
}

// updateTaskStatus writes the final status. A non-empty message replaces the
// task error; an empty one clears it unless the task goes to error.
func (r *Reconciler) updateTaskStatus(ctx context.Context, uuid, status, message string) error {
	task, ok, err := r.store.GetTask(ctx, uuid)
	if err != nil {
		return fmt.Errorf("get task %s: %w: %w", uuid, ErrStoreCommit, err)
	}
	if !ok {
		r.log.Error("can't set task status: no task with this uuid",
			zap.String("task_uuid", uuid), zap.String("status", status), zap.String("error", message))
		return fmt.Errorf("%w: %s", ErrTaskNotFound, uuid)
	}
	task.Status = status
	switch {
	case message != "":
		task.Error = message
	case status != model.TaskError:
		task.Error = ""
	}
	if err := r.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("save task %s: %w: %w", uuid, ErrStoreCommit, err)
	}
	r.log.Info("task status updated", zap.String("task_uuid", uuid), zap.String("status", status))
	return nil
}
