package infra

import (
	"path/filepath"
	"testing"

	"processhub/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type migrationProbe struct {
	ID   string `gorm:"primaryKey"`
	Name string
}

func TestInitDatabase_PureSQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver: "sqlite-pure",
		Path:   filepath.Join(t.TempDir(), "hub.db"),
	}

	db, err := InitDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDatabase() })

	require.NoError(t, AutoMigrate(db, &migrationProbe{}))
	require.NoError(t, db.Create(&migrationProbe{ID: "1", Name: "probe"}).Error)
	assert.Same(t, db, GetDB())
}

func TestInitDatabase_UnknownDriver(t *testing.T) {
	_, err := InitDatabase(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
