package store

import (
	"context"

	"deploy-reconciler/pkg/model"
)

// RecordStore is the persistence layer the reconciler reads and writes.
// Lookups report absence through the bool result, never through the error.
// Every Save is committed on its own.
type RecordStore interface {
	GetTask(ctx context.Context, uuid string) (model.Task, bool, error)
	SaveTask(ctx context.Context, t model.Task) error
	GetNode(ctx context.Context, id string) (model.Node, bool, error)
	SaveNode(ctx context.Context, n model.Node) error
	ListNetworks(ctx context.Context, clusterID uint) ([]model.Network, error)
	SaveNetwork(ctx context.Context, n model.Network) error
}

// NewMemory is a helper to construct the in-memory implementation without importing it directly.
func NewMemory() RecordStore {
	return NewMemoryStore()
}
