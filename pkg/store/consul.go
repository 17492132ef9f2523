package store

import (
	"deploy-reconciler/pkg/consul"
)

// NewConsulStore creates a Consul KV backed store.
func NewConsulStore(addr, token string) (RecordStore, error) {
	return consul.NewStore(addr, token)
}
