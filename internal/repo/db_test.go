package repo

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "mudae.db")
	if db, err := OpenSQLite(path); err == nil || db != nil {
		t.Fatalf("OpenSQLite(%q) = %v, %v; want error", path, db, err)
	}
}

func TestOpenSQLite_Tuning(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "mudae.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var mode string
	var busy int
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&mode); err != nil || !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal_mode = %q, %v", mode, err)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busy); err != nil || busy != 5000 {
		t.Fatalf("busy_timeout = %d, %v", busy, err)
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != 10 {
		t.Fatalf("MaxOpenConnections = %d", n)
	}
}

func TestAutoMigrate_CreatesKVTable(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "mudae.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// Running it twice is how every restart behaves.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
	if !db.Migrator().HasTable(&domain.KVEntry{}) || !db.Migrator().HasTable("kv_entries") {
		t.Fatalf("kv_entries table missing")
	}
}
