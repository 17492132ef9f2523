package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"deploy-reconciler/pkg/model"
)

const (
	taskPrefix    = "deploy-reconciler/tasks/"
	nodePrefix    = "deploy-reconciler/nodes/"
	networkPrefix = "deploy-reconciler/networks/"
	networkSeqKey = "deploy-reconciler/seq/network"
)

// Store keeps records as JSON values in Consul KV. One Put is one commit.
type Store struct {
	cli *consulapi.Client
}

func NewStore(addr, token string) (*Store, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	if token != "" {
		cfg.Token = token
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Store{cli: cli}, nil
}

func taskKey(uuid string) string { return taskPrefix + uuid }

func nodeKey(id string) string { return nodePrefix + id }

func networkKey(clusterID, id uint) string {
	return fmt.Sprintf("%s%d/%d", networkPrefix, clusterID, id)
}

func networkClusterPrefix(clusterID uint) string {
	return fmt.Sprintf("%s%d/", networkPrefix, clusterID)
}

func (s *Store) GetTask(ctx context.Context, uuid string) (model.Task, bool, error) {
	var t model.Task
	ok, err := s.get(ctx, taskKey(uuid), &t)
	return t, ok, err
}

func (s *Store) SaveTask(ctx context.Context, t model.Task) error {
	t.UpdatedAt = time.Now()
	return s.put(ctx, taskKey(t.UUID), t)
}

func (s *Store) GetNode(ctx context.Context, id string) (model.Node, bool, error) {
	var n model.Node
	ok, err := s.get(ctx, nodeKey(id), &n)
	return n, ok, err
}

func (s *Store) SaveNode(ctx context.Context, n model.Node) error {
	n.UpdatedAt = time.Now()
	return s.put(ctx, nodeKey(n.ID), n)
}

func (s *Store) ListNetworks(ctx context.Context, clusterID uint) ([]model.Network, error) {
	pairs, _, err := s.cli.KV().List(networkClusterPrefix(clusterID), (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]model.Network, 0, len(pairs))
	for _, p := range pairs {
		var n model.Network
		if err := json.Unmarshal(p.Value, &n); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p.Key, err)
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveNetwork allocates an ID from a CAS-guarded counter when n.ID is zero.
func (s *Store) SaveNetwork(ctx context.Context, n model.Network) error {
	if n.ID == 0 {
		id, err := s.nextNetworkID(ctx)
		if err != nil {
			return err
		}
		n.ID = id
	}
	return s.put(ctx, networkKey(n.ClusterID, n.ID), n)
}

// Client exposes the underlying Consul client.
func (s *Store) Client() *consulapi.Client {
	return s.cli
}

// Ping checks that the agent answers.
func (s *Store) Ping() error {
	_, err := s.cli.Status().Leader()
	return err
}

func (s *Store) get(ctx context.Context, key string, out interface{}) (bool, error) {
	kv, _, err := s.cli.KV().Get(key, (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return false, err
	}
	if kv == nil {
		return false, nil
	}
	if err := json.Unmarshal(kv.Value, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.cli.KV().Put(&consulapi.KVPair{Key: key, Value: b}, (&consulapi.WriteOptions{}).WithContext(ctx))
	return err
}

func (s *Store) nextNetworkID(ctx context.Context) (uint, error) {
	for i := 0; i < 10; i++ {
		kv, _, err := s.cli.KV().Get(networkSeqKey, (&consulapi.QueryOptions{}).WithContext(ctx))
		if err != nil {
			return 0, err
		}
		var cur uint
		pair := &consulapi.KVPair{Key: networkSeqKey}
		if kv != nil {
			_, _ = fmt.Sscanf(string(kv.Value), "%d", &cur)
			pair.ModifyIndex = kv.ModifyIndex
		}
		next := cur + 1
		pair.Value = []byte(fmt.Sprintf("%d", next))
		ok, _, err := s.cli.KV().CAS(pair, (&consulapi.WriteOptions{}).WithContext(ctx))
		if err != nil {
			return 0, err
		}
		if ok {
			return next, nil
		}
	}
	return 0, fmt.Errorf("network id CAS failed")
}
