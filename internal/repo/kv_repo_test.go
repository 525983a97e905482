package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
)

func newKVDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("kv_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestSQLStore_Get_Missing(t *testing.T) {
	s := NewSQLStore(newKVDB(t, &domain.KVEntry{}))
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected kv.ErrNotFound, got %v", err)
	}
}

func TestSQLStore_Put_Upserts(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(newKVDB(t, &domain.KVEntry{}))

	if err := s.Put(ctx, "g:1:married_to", []byte("u1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "g:1:married_to", []byte("u2")); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err := s.Get(ctx, "g:1:married_to")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "u2" {
		t.Fatalf("expected overwrite to u2, got %q", got)
	}
	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected a single row, got n=%d err=%v", n, err)
	}
}

func TestSQLStore_Delete_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(newKVDB(t, &domain.KVEntry{}))

	_ = s.Put(ctx, "k", []byte("v"))
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected deleted key to be missing, got %v", err)
	}
}

func TestSQLStore_Error_NoTable(t *testing.T) {
	s := NewSQLStore(newKVDB(t /* no migrations */))
	if _, err := s.Get(context.Background(), "k"); err == nil || errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected a raw DB error without schema, got %v", err)
	}
}

func TestSQLStore_TypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(newKVDB(t, &domain.KVEntry{}))

	want := []string{"101", "202"}
	if err := kv.Save(ctx, s, "g:u1:partners", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := kv.Load(ctx, s, "g:u1:partners", []string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0] != "101" || got[1] != "202" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestSQLStore_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(newKVDB(t, &domain.KVEntry{}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Put(ctx, fmt.Sprintf("k%d", i), []byte("v"))
		}(i)
	}
	wg.Wait()

	n, err := s.Count(ctx)
	if err != nil || n != 8 {
		t.Fatalf("expected 8 keys, got n=%d err=%v", n, err)
	}
}
