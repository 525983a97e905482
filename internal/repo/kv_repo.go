// Package repo implements the SQLite-backed key-value store. This file
// provides SQLStore, a kv.Store over the kv_entries table.
//
// Every call is a single statement, so each operation is atomic on its own;
// the store offers no multi-key transactions, matching the kv.Store contract.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
)

// SQLStore persists key-value pairs in SQLite through GORM.
type SQLStore struct {
	DB *gorm.DB
}

// NewSQLStore returns a store over db. The schema must already be migrated.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// Get returns the value under key or kv.ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row domain.KVEntry
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.Value, nil
}

// Put upserts value under key.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	row := domain.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

// Delete removes key; deleting a missing key is a no-op.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	return s.DB.WithContext(ctx).Where("key = ?", key).Delete(&domain.KVEntry{}).Error
}

// Count returns the number of stored keys.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&domain.KVEntry{}).Count(&n).Error
	return n, err
}
