package db

import (
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadsongs/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser:        "app",
		DBPassword:    "p@ss",
		DBHost:        "db.local",
		DBPort:        "3307",
		DBName:        "music",
		DBDialTimeout: 3 * time.Second,
	}

	parsed, err := mysqldriver.ParseDSN(DSN(cfg))
	require.NoError(t, err)

	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "p@ss", parsed.Passwd)
	assert.Equal(t, "db.local:3307", parsed.Addr)
	assert.Equal(t, "music", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.True(t, parsed.ClientFoundRows)
	assert.Equal(t, 3*time.Second, parsed.Timeout)
}

func TestAutoMigrateWithoutDB(t *testing.T) {
	assert.Error(t, AutoMigrateModels(nil))
}

func TestModels(t *testing.T) {
	assert.Len(t, Models(), 3)
}
