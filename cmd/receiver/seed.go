package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"deploy-reconciler/pkg/config"
	"deploy-reconciler/pkg/logger"
	"deploy-reconciler/pkg/model"
	"deploy-reconciler/pkg/store"
)

// seedFileData is the on-disk fixture format.
type seedFileData struct {
	Tasks []struct {
		UUID      string `yaml:"uuid"`
		Name      string `yaml:"name"`
		Status    string `yaml:"status"`
		ClusterID uint   `yaml:"cluster_id"`
	} `yaml:"tasks"`
	Nodes []struct {
		ID        string `yaml:"id"`
		Status    string `yaml:"status"`
		MAC       string `yaml:"mac"`
		IP        string `yaml:"ip"`
		Name      string `yaml:"name"`
		ClusterID uint   `yaml:"cluster_id"`
	} `yaml:"nodes"`
	Networks []struct {
		ID        uint   `yaml:"id"`
		ClusterID uint   `yaml:"cluster_id"`
		Name      string `yaml:"name"`
		VLAN      int    `yaml:"vlan"`
	} `yaml:"networks"`
}

var seedCmd = &cobra.Command{
	Use:     "seed <file>",
	Short:   "Load tasks, nodes and networks into the record store",
	Example: `  receiver seed --config config.yaml fixtures.yaml`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		log := logger.New(&cfg.Logging)
		defer func() { _ = log.Sync() }()
		if cfg.Store.Backend == "memory" {
			log.Warn("memory store does not outlive this command; use run --seed instead")
		}
		st, release, err := openStore(cfg.Store, log)
		if err != nil {
			return err
		}
		defer release()
		return seed(cmd.Context(), st, args[0], log)
	},
}

func seed(ctx context.Context, st store.RecordStore, path string, log *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var f seedFileData
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	for _, t := range f.Tasks {
		status := t.Status
		if status == "" {
			status = model.TaskRunning
		}
		if err := st.SaveTask(ctx, model.Task{UUID: t.UUID, Name: t.Name, Status: status, ClusterID: t.ClusterID}); err != nil {
			return fmt.Errorf("seed task %s: %w", t.UUID, err)
		}
	}
	for _, n := range f.Nodes {
		status := n.Status
		if status == "" {
			status = model.NodeDiscover
		}
		node := model.Node{ID: n.ID, Status: status, MAC: n.MAC, IP: n.IP, Name: n.Name, ClusterID: n.ClusterID}
		if err := st.SaveNode(ctx, node); err != nil {
			return fmt.Errorf("seed node %s: %w", n.ID, err)
		}
	}
	for _, n := range f.Networks {
		id := n.ID
		if id == 0 {
			if id, err = existingNetworkID(ctx, st, n.ClusterID, n.Name); err != nil {
				return err
			}
		}
		if err := st.SaveNetwork(ctx, model.Network{ID: id, ClusterID: n.ClusterID, Name: n.Name, VLANID: n.VLAN}); err != nil {
			return fmt.Errorf("seed network %s: %w", n.Name, err)
		}
	}
	log.Info("seed loaded",
		zap.Int("tasks", len(f.Tasks)),
		zap.Int("nodes", len(f.Nodes)),
		zap.Int("networks", len(f.Networks)))
	return nil
}

// existingNetworkID finds a network already stored under the same cluster
// and name so reseeding updates it in place. Zero means none.
func existingNetworkID(ctx context.Context, st store.RecordStore, clusterID uint, name string) (uint, error) {
	if name == "" {
		return 0, nil
	}
	nets, err := st.ListNetworks(ctx, clusterID)
	if err != nil {
		return 0, fmt.Errorf("list networks of cluster %d: %w", clusterID, err)
	}
	for _, n := range nets {
		if n.Name == name {
			return n.ID, nil
		}
	}
	return 0, nil
}
