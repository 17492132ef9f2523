package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-reconciler/pkg/model"
	"deploy-reconciler/pkg/store"
)

func TestDeployReadyReport(t *testing.T) {
	f := newFixture(t)
	f.task(t, model.Task{UUID: "T1", Status: model.TaskRunning})
	f.node(t, model.Node{ID: "n1", Status: model.NodeDeploying, MAC: "52:54:00:00:00:01"})

	out, err := f.rec.ApplyDeploy(context.Background(), model.Report{
		TaskUUID: "T1",
		Nodes:    []model.NodeResult{{UID: "n1", Status: model.NodeReady}},
		Status:   model.TaskReady,
	})
	require.NoError(t, err)

	assert.Equal(t, model.NodeReady, f.getNode(t, "n1").Status)
	task := f.getTask(t, "T1")
	assert.Equal(t, model.TaskReady, task.Status)
	assert.Empty(t, task.Error)
	assert.Equal(t, 1, out.NodesUpdated)
	assert.Equal(t, model.TaskReady, out.TaskStatus)
}

func TestDeployErrorNodesForceTaskError(t *testing.T) {
	f := newFixture(t)
	f.task(t, model.Task{UUID: "T1", Status: model.TaskRunning})
	f.node(t, model.Node{ID: "n1", Status: model.NodeDeploying, MAC: "52:54:00:00:00:01", IP: "10.20.0.2", Name: "ctrl-1"})
	f.node(t, model.Node{ID: "n2", Status: model.NodeDeploying, MAC: "52:54:00:00:00:02", IP: "10.20.0.3"})
	f.node(t, model.Node{ID: "n3", Status: model.NodeDeploying, MAC: "52:54:00:00:00:03"})

	out, err := f.rec.ApplyDeploy(context.Background(), model.Report{
		TaskUUID: "T1",
		Status:   model.TaskReady,
		Error:    "agent finished",
		Nodes: []model.NodeResult{
			{UID: "n1", Status: model.NodeReady},
			{UID: "n2", Status: model.NodeError},
			{UID: "n3", Status: model.NodeError},
		},
	})
	require.NoError(t, err)

	want := "Failed to deploy nodes:\n" +
		`{"MAC":"52:54:00:00:00:02","IP":"10.20.0.3","NAME":"Unknown"}` + "\n" +
		`{"MAC":"52:54:00:00:00:03","IP":"Unknown","NAME":"Unknown"}`
	task := f.getTask(t, "T1")
	assert.Equal(t, model.TaskError, task.Status)
	assert.Equal(t, want, task.Error)
	assert.Equal(t, want, out.ErrorMessage)
	assert.Equal(t, model.NodeReady, f.getNode(t, "n1").Status)
	assert.Equal(t, model.NodeError, f.getNode(t, "n2").Status)
}

func TestDeployErrorNodeWithoutReportStatus(t *testing.T) {
	f := newFixture(t)
	f.task(t, model.Task{UUID: "T1", Status: model.TaskRunning})
	f.node(t, model.Node{ID: "n1", MAC: "aa", IP: "10.0.0.1", Name: "compute-1"})

	_, err := f.rec.ApplyDeploy(context.Background(), model.Report{
		TaskUUID: "T1",
		Nodes:    []model.NodeResult{{UID: "n1", Status: model.NodeError}},
	})
	require.NoError(t, err)

	task := f.getTask(t, "T1")
	assert.Equal(t, model.TaskError, task.Status)
	assert.Contains(t, task.Error, `{"MAC":"aa","IP":"10.0.0.1","NAME":"compute-1"}`)
}

func TestDeployUnknownTaskMutatesNothing(t *testing.T) {
	f := newFixture(t)
	f.node(t, model.Node{ID: "n1", Status: model.NodeDeploying})

	_, err := f.rec.ApplyDeploy(context.Background(), model.Report{
		TaskUUID: "missing",
		Nodes:    []model.NodeResult{{UID: "n1", Status: model.NodeError}},
		Status:   model.TaskReady,
	})
	require.ErrorIs(t, err, ErrTaskNotFound)
	assert.True(t, IsRejected(err))

	assert.Equal(t, model.NodeDeploying, f.getNode(t, "n1").Status)
	_, ok, _ := f.st.GetTask(context.Background(), "missing")
	assert.False(t, ok)
	assert.Equal(t, 1, f.log.FilterMessage("no task with this uuid").Len())
}

func TestDeployUnknownNodeIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.task(t, model.Task{UUID: "T1", Status: model.TaskRunning})
	f.node(t, model.Node{ID: "n1", Status: model.NodeDeploying})

	out, err := f.rec.ApplyDeploy(context.Background(), model.Report{
		TaskUUID: "T1",
		Nodes: []model.NodeResult{
			{UID: "ghost", Status: model.NodeError},
			{UID: "", Status: model.NodeReady},
			{UID: "n1", Status: model.NodeReady},
		},
		Status: model.TaskReady,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.NodesUpdated)
	assert.Equal(t, 2, out.NodesSkipped)
	assert.Equal(t, model.NodeReady, f.getNode(t, "n1").Status)
	// the missing node cannot contribute to the error set
	assert.Equal(t, model.TaskReady, f.getTask(t, "T1").Status)
	missing := f.log.FilterMessage("node not found").All()
	require.Len(t, missing, 1)
	logged, ok := missing[0].ContextMap()["error"].(string)
	require.True(t, ok)
	assert.Equal(t, "node not found: ghost", logged)
}

func TestDeployProgressReportLeavesTask(t *testing.T) {
	f := newFixture(t)
	f.task(t, model.Task{UUID: "T1", Status: model.TaskRunning})
	f.node(t, model.Node{ID: "n1", Status: model.NodeProvisioning})
	f.node(t, model.Node{ID: "n2", Status: model.NodeProvisioning})

	out, err := f.rec.ApplyDeploy(context.Background(), model.Report{
		TaskUUID: "T1",
		Nodes: []model.NodeResult{
			{UID: "n1", Status: model.NodeDeploying},
			{UID: "n2"},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, out.TaskStatus)
	assert.Equal(t, model.TaskRunning, f.getTask(t, "T1").Status)
	assert.Equal(t, model.NodeDeploying, f.getNode(t, "n1").Status)
	assert.Equal(t, model.NodeProvisioning, f.getNode(t, "n2").Status)
}

func TestDeployExplicitErrorKeepsReportedMessage(t *testing.T) {
	f := newFixture(t)
	f.task(t, model.Task{UUID: "T1", Status: model.TaskRunning})

	_, err := f.rec.ApplyDeploy(context.Background(), model.Report{
		TaskUUID: "T1",
		Status:   model.TaskError,
		Error:    "puppet run timed out",
	})
	require.NoError(t, err)

	task := f.getTask(t, "T1")
	assert.Equal(t, model.TaskError, task.Status)
	assert.Equal(t, "puppet run timed out", task.Error)
}

func TestDeployReadyClearsStaleError(t *testing.T) {
	f := newFixture(t)
	f.task(t, model.Task{UUID: "T1", Status: model.TaskError, Error: "old failure"})

	_, err := f.rec.ApplyDeploy(context.Background(), model.Report{TaskUUID: "T1", Status: model.TaskReady})
	require.NoError(t, err)

	task := f.getTask(t, "T1")
	assert.Equal(t, model.TaskReady, task.Status)
	assert.Empty(t, task.Error)
}

func TestDeployNodeSaveFailureDoesNotStopReport(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &flakyStore{MemoryStore: mem, failNodes: map[string]bool{"n1": true}}
	log, _ := newObserved()
	rec := New(st, log)
	ctx := context.Background()
	require.NoError(t, mem.SaveTask(ctx, model.Task{UUID: "T1", Status: model.TaskRunning}))
	require.NoError(t, mem.SaveNode(ctx, model.Node{ID: "n1", MAC: "aa", Status: model.NodeDeploying}))
	require.NoError(t, mem.SaveNode(ctx, model.Node{ID: "n2", MAC: "bb", Status: model.NodeDeploying}))

	out, err := rec.ApplyDeploy(ctx, model.Report{
		TaskUUID: "T1",
		Nodes: []model.NodeResult{
			{UID: "n1", Status: model.NodeError},
			{UID: "n2", Status: model.NodeReady},
		},
	})
	require.ErrorIs(t, err, ErrStoreCommit)
	assert.ErrorIs(t, err, errDiskFull)
	assert.False(t, IsRejected(err))

	n1, _, _ := mem.GetNode(ctx, "n1")
	n2, _, _ := mem.GetNode(ctx, "n2")
	assert.Equal(t, model.NodeDeploying, n1.Status)
	assert.Equal(t, model.NodeReady, n2.Status)
	assert.Equal(t, 1, out.NodesUpdated)

	task, _, _ := mem.GetTask(ctx, "T1")
	assert.Equal(t, model.TaskError, task.Status)
	assert.Contains(t, task.Error, `"MAC":"aa"`)
}

func TestDeployTaskVanishingBeforeUpdate(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &flakyStore{MemoryStore: mem, vanishAfter: 1}
	log, logs := newObserved()
	rec := New(st, log)
	ctx := context.Background()
	require.NoError(t, mem.SaveTask(ctx, model.Task{UUID: "T1", Status: model.TaskRunning}))

	_, err := rec.ApplyDeploy(ctx, model.Report{TaskUUID: "T1", Status: model.TaskReady})
	require.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, 1, logs.FilterMessage("can't set task status: no task with this uuid").Len())

	task, _, _ := mem.GetTask(ctx, "T1")
	assert.Equal(t, model.TaskRunning, task.Status)
}

func TestDeployTaskVanishingAfterNodeWritesIsFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &flakyStore{MemoryStore: mem, failNodes: map[string]bool{"n2": true}, vanishAfter: 1}
	rec := New(st, nil)
	ctx := context.Background()
	require.NoError(t, mem.SaveTask(ctx, model.Task{UUID: "T1", Status: model.TaskRunning}))
	require.NoError(t, mem.SaveNode(ctx, model.Node{ID: "n1", Status: model.NodeDeploying}))
	require.NoError(t, mem.SaveNode(ctx, model.Node{ID: "n2", Status: model.NodeDeploying}))

	_, err := rec.ApplyDeploy(ctx, model.Report{
		TaskUUID: "T1",
		Status:   model.TaskReady,
		Nodes: []model.NodeResult{
			{UID: "n1", Status: model.NodeReady},
			{UID: "n2", Status: model.NodeReady},
		},
	})
	require.ErrorIs(t, err, ErrStoreCommit)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, err, ErrPartialApply)
	assert.False(t, IsRejected(err))

	n1, _, _ := mem.GetNode(ctx, "n1")
	assert.Equal(t, model.NodeReady, n1.Status)
}

func TestDeployTaskVanishingAfterCleanNodeWritesIsFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &flakyStore{MemoryStore: mem, vanishAfter: 1}
	rec := New(st, nil)
	ctx := context.Background()
	require.NoError(t, mem.SaveTask(ctx, model.Task{UUID: "T1", Status: model.TaskRunning}))
	require.NoError(t, mem.SaveNode(ctx, model.Node{ID: "n1", Status: model.NodeDeploying}))

	_, err := rec.ApplyDeploy(ctx, model.Report{
		TaskUUID: "T1",
		Status:   model.TaskReady,
		Nodes:    []model.NodeResult{{UID: "n1", Status: model.NodeReady}},
	})
	require.ErrorIs(t, err, ErrPartialApply)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.False(t, IsRejected(err))
}

func TestIsRejected(t *testing.T) {
	assert.True(t, IsRejected(ErrTaskNotFound))
	assert.True(t, IsRejected(ErrUnknownKind))
	assert.False(t, IsRejected(nil))
	assert.False(t, IsRejected(errors.Join(ErrStoreCommit, ErrTaskNotFound)))
	assert.False(t, IsRejected(errors.Join(ErrPartialApply, ErrTaskNotFound)))
}
