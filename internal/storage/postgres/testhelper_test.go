package postgres

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bobmcallan/folio/internal/common"
	tcommon "github.com/bobmcallan/folio/tests/common"
)

var dbCounter atomic.Int64

// testDB creates a fresh database on the shared container so tests never
// see each other's rows. The schema is left undefined.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	pc := tcommon.StartPostgres(t)
	admin, err := gorm.Open(postgres.Open(pc.DSN("folio")), &gorm.Config{Logger: newGormLogger(testLogger())})
	if err != nil {
		t.Fatalf("connect to Postgres: %v", err)
	}

	sanitized := strings.ToLower(strings.NewReplacer("/", "_", " ", "_", "-", "_").Replace(t.Name()))
	if len(sanitized) > 40 {
		sanitized = sanitized[:40]
	}
	name := fmt.Sprintf("t_%s_%d_%d", sanitized, time.Now().UnixNano()%100000, dbCounter.Add(1))
	if err := admin.Exec("CREATE DATABASE " + name).Error; err != nil {
		t.Fatalf("create database: %v", err)
	}
	if sqlDB, err := admin.DB(); err == nil {
		sqlDB.Close()
	}

	db, err := gorm.Open(postgres.Open(pc.DSN(name)), &gorm.Config{Logger: newGormLogger(testLogger())})
	if err != nil {
		t.Fatalf("connect to test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// testSchemaDB is testDB with the folio tables migrated.
func testSchemaDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}
