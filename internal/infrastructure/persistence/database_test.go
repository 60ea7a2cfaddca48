package persistence

import (
	"context"
	"testing"

	"github.com/ledgerbook/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_SQLite(t *testing.T) {
	db, err := NewDatabase(&config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AutoMigrate(context.Background()))
	require.NoError(t, db.Ping(context.Background()))
	assert.True(t, db.DB.Migrator().HasTable("payments"))
	assert.True(t, db.DB.Migrator().HasTable("payment_advance_uses"))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
}

func TestNewDatabase_UnsupportedDrivers(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Driver: config.DriverMemory})
	assert.ErrorIs(t, err, ErrNoDatabase)

	_, err = NewDatabase(&config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
