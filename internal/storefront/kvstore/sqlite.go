package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medimart/storefront/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type entry struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte
	UpdatedAt time.Time
}

func (entry) TableName() string { return "kv_entries" }

// SQLite stores entries in a single table of a local SQLite file.
type SQLite struct {
	client *db.Client
}

// NewSQLite prepares the kv table on the given connection.
func NewSQLite(ctx context.Context, client *db.Client) (*SQLite, error) {
	if client == nil || client.DB() == nil {
		return nil, fmt.Errorf("kvstore: db client is required")
	}
	if err := client.DB().WithContext(ctx).AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("kvstore: migrate: %w", err)
	}
	return &SQLite{client: client}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row entry
	err := s.client.DB().WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return row.Value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	row := entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.client.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("kvstore: set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.DB().WithContext(ctx).Where("key IN ?", keys).Delete(&entry{}).Error; err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	return nil
}
