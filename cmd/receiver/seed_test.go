package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deploy-reconciler/pkg/model"
	"deploy-reconciler/pkg/store"
)

const fixture = `
tasks:
  - uuid: T1
    name: deploy
    cluster_id: 1
nodes:
  - id: n1
    mac: "52:54:00:00:00:01"
    cluster_id: 1
networks:
  - cluster_id: 1
    name: management
    vlan: 101
  - cluster_id: 1
    name: storage
    vlan: 102
`

func TestSeedLoadsFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	ctx := context.Background()
	st := store.NewMemoryStore()

	require.NoError(t, seed(ctx, st, path, zap.NewNop()))

	task, ok, err := st.GetTask(ctx, "T1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.TaskRunning, task.Status)

	node, ok, _ := st.GetNode(ctx, "n1")
	require.True(t, ok)
	assert.Equal(t, model.NodeDiscover, node.Status)

	nets, err := st.ListNetworks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.Equal(t, 101, nets[0].VLANID)
}

func TestSeedRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tasks: {"), 0o644))
	assert.Error(t, seed(context.Background(), store.NewMemoryStore(), path, zap.NewNop()))
}

func TestReseedUpdatesNetworksInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	ctx := context.Background()
	st := store.NewMemoryStore()

	require.NoError(t, seed(ctx, st, path, zap.NewNop()))
	first, err := st.ListNetworks(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, seed(ctx, st, path, zap.NewNop()))
	second, err := st.ListNetworks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSeedHonoursNetworkID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks:\n  - id: 7\n    cluster_id: 2\n    vlan: 300\n"), 0o644))
	ctx := context.Background()
	st := store.NewMemoryStore()

	require.NoError(t, seed(ctx, st, path, zap.NewNop()))
	require.NoError(t, seed(ctx, st, path, zap.NewNop()))
	nets, err := st.ListNetworks(ctx, 2)
	require.NoError(t, err)
	require.Len(t, nets, 1)
	assert.Equal(t, uint(7), nets[0].ID)
}
