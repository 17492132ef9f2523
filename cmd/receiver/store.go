package main

import (
	"fmt"

	"go.uber.org/zap"

	"deploy-reconciler/pkg/config"
	"deploy-reconciler/pkg/db"
	"deploy-reconciler/pkg/store"
)

type pinger interface{ Ping() error }

// openStore builds the configured backend and returns a release func.
func openStore(cfg config.StoreConfig, log *zap.Logger) (store.RecordStore, func(), error) {
	var (
		st      store.RecordStore
		release = func() {}
	)
	switch cfg.Backend {
	case "memory":
		st = store.NewMemory()
	case "mysql", "sqlite":
		gdb, err := db.Open(db.Options{Driver: cfg.Backend, DSN: cfg.MySQLDSN, Path: cfg.SQLitePath})
		if err != nil {
			return nil, nil, err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			release = func() { _ = sqlDB.Close() }
		}
		st = store.NewGormStore(gdb)
	case "consul":
		cs, err := store.NewConsulStore(cfg.ConsulAddr, cfg.ConsulToken)
		if err != nil {
			return nil, nil, err
		}
		st = cs
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %q", cfg.Backend)
	}
	if p, ok := st.(pinger); ok {
		if err := p.Ping(); err != nil {
			release()
			return nil, nil, fmt.Errorf("store %s unreachable: %w", cfg.Backend, err)
		}
	}
	log.Info("record store ready", zap.String("backend", cfg.Backend))
	return st, release, nil
}
