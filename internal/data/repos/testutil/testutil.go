package testutil

import (
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/riskwatch-backend/internal/data/db"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens a fresh, migrated SQLite database in the test's temp dir.
// Every test gets its own file, so tests may run in parallel.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(tb.TempDir(), "risk.db"), nil)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("automigrate: %v", err)
	}
	if err := db.EnsureRiskIndexes(gdb, nil); err != nil {
		tb.Fatalf("ensure indexes: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
