package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"deploy-reconciler/pkg/model"
)

// GormStore persists records through gorm (mysql in production, sqlite on a single host).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an opened and migrated DB (see db.Open).
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetTask(ctx context.Context, uuid string) (model.Task, bool, error) {
	var t model.Task
	err := s.db.WithContext(ctx).Where("uuid = ?", uuid).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, err
	}
	return t, true, nil
}

func (s *GormStore) SaveTask(ctx context.Context, t model.Task) error {
	return s.upsert(ctx, &t)
}

func (s *GormStore) GetNode(ctx context.Context, id string) (model.Node, bool, error) {
	var n model.Node
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Node{}, false, nil
	}
	if err != nil {
		return model.Node{}, false, err
	}
	return n, true, nil
}

func (s *GormStore) SaveNode(ctx context.Context, n model.Node) error {
	return s.upsert(ctx, &n)
}

func (s *GormStore) ListNetworks(ctx context.Context, clusterID uint) ([]model.Network, error) {
	var out []model.Network
	if err := s.db.WithContext(ctx).Where("cluster_id = ?", clusterID).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) SaveNetwork(ctx context.Context, n model.Network) error {
	return s.upsert(ctx, &n)
}

// Ping checks the underlying connection.
func (s *GormStore) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// upsert writes the full row in its own transaction; concurrent writers to
// the same primary key serialize in the database and the last commit wins.
func (s *GormStore) upsert(ctx context.Context, value interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
	})
}
