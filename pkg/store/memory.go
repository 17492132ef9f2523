package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"deploy-reconciler/pkg/model"
)

// MemoryStore is a simple in-memory implementation, intended for dev/tests.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]model.Task
	nodes    map[string]model.Node
	networks map[uint]model.Network
	nextNet  uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]model.Task),
		nodes:    make(map[string]model.Node),
		networks: make(map[uint]model.Network),
	}
}

func (m *MemoryStore) GetTask(_ context.Context, uuid string) (model.Task, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[uuid]
	return t, ok, nil
}

func (m *MemoryStore) SaveTask(_ context.Context, t model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.UpdatedAt = time.Now()
	m.tasks[t.UUID] = t
	return nil
}

func (m *MemoryStore) GetNode(_ context.Context, id string) (model.Node, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok, nil
}

func (m *MemoryStore) SaveNode(_ context.Context, n model.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.UpdatedAt = time.Now()
	m.nodes[n.ID] = n
	return nil
}

func (m *MemoryStore) ListNetworks(_ context.Context, clusterID uint) ([]model.Network, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Network{}
	for _, n := range m.networks {
		if n.ClusterID == clusterID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveNetwork assigns the next free ID when n.ID is zero.
func (m *MemoryStore) SaveNetwork(_ context.Context, n model.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == 0 {
		m.nextNet++
		for m.networks[m.nextNet].ID != 0 {
			m.nextNet++
		}
		n.ID = m.nextNet
	}
	m.networks[n.ID] = n
	return nil
}

// Ping reports readiness.
func (m *MemoryStore) Ping() error { return nil }
