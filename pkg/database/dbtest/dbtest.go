// Package dbtest provides an in-memory SQLite database for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/doccontrol/pkg/database"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

var counter atomic.Int64

// New returns a migrated, isolated in-memory database. The pool is limited
// to one connection so every query sees the same in-memory database.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, counter.Add(1))

	db, err := database.Open(sqlite.Open(dsn), nil)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))
	return db
}

// SeedTypes inserts the default document types.
func SeedTypes(t *testing.T, db *gorm.DB) {
	t.Helper()
	_, err := models.SeedDocumentTypes(db, models.DefaultDocumentTypes())
	require.NoError(t, err)
}
