// Package dbtest opens isolated sqlite databases carrying the full schema for
// repository and service tests.
package dbtest

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/models"
)

// Open returns a fresh in-memory database migrated with every model. A single
// connection is used so concurrent callers serialize the way row locks would
// serialize them on postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return conn
}

// Client wraps Open in the shared db.Client so services get a real tx runner.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromConn(conn), conn
}
