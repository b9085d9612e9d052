// Package dbtest opens throwaway SQLite databases carrying the full schema.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every persisted model in dependency order.
var Models = []any{
	&models.User{},
	&models.Contact{},
	&models.EmailConfirmationToken{},
	&models.Shop{},
	&models.Category{},
	&models.Product{},
	&models.Listing{},
	&models.Parameter{},
	&models.ListingParameter{},
	&models.Order{},
	&models.OrderLine{},
	&models.Task{},
}

// partialIndexes mirrors the partial unique indexes of the goose migrations.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_listings_active_external
		ON listings (product_id, shop_id, external_id) WHERE archived_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_user_basket
		ON orders (user_id) WHERE state = 'basket'`,
}

// Open returns an isolated in-memory database with foreign keys enforced.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_foreign_keys=on", name, uuid.NewString())

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
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
	// a single connection keeps the shared-cache database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(Models...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	for _, stmt := range partialIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create partial index: %v", err)
		}
	}
	return conn
}
