package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"deploy-reconciler/pkg/model"
	"deploy-reconciler/pkg/store"
)

var errDiskFull = errors.New("disk full")

// flakyStore fails SaveNode for selected ids and can make a task vanish
// after a number of reads.
type flakyStore struct {
	*store.MemoryStore
	failNodes   map[string]bool
	vanishAfter int
	taskReads   int
}

func (f *flakyStore) SaveNode(ctx context.Context, n model.Node) error {
	if f.failNodes[n.ID] {
		return errDiskFull
	}
	return f.MemoryStore.SaveNode(ctx, n)
}

func (f *flakyStore) GetTask(ctx context.Context, uuid string) (model.Task, bool, error) {
	f.taskReads++
	if f.vanishAfter > 0 && f.taskReads > f.vanishAfter {
		return model.Task{}, false, nil
	}
	return f.MemoryStore.GetTask(ctx, uuid)
}

func newObserved() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

type fixture struct {
	st  *store.MemoryStore
	rec *Reconciler
	log *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	log, logs := newObserved()
	return &fixture{st: st, rec: New(st, log), log: logs}
}

func (f *fixture) task(t *testing.T, task model.Task) {
	t.Helper()
	require.NoError(t, f.st.SaveTask(context.Background(), task))
}

func (f *fixture) node(t *testing.T, n model.Node) {
	t.Helper()
	require.NoError(t, f.st.SaveNode(context.Background(), n))
}

func (f *fixture) network(t *testing.T, clusterID uint, vlan int) {
	t.Helper()
	require.NoError(t, f.st.SaveNetwork(context.Background(), model.Network{ClusterID: clusterID, VLANID: vlan}))
}

func (f *fixture) getTask(t *testing.T, uuid string) model.Task {
	t.Helper()
	task, ok, err := f.st.GetTask(context.Background(), uuid)
	require.NoError(t, err)
	require.True(t, ok, "task %s", uuid)
	return task
}

func (f *fixture) getNode(t *testing.T, id string) model.Node {
	t.Helper()
	n, ok, err := f.st.GetNode(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "node %s", id)
	return n
}
