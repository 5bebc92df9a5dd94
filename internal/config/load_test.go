package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("does-not-exist")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.App.StoreDriver)
	assert.Equal(t, "remittance_db", cfg.Database.DBName)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Mongo.Enabled)
	assert.Equal(t, 4, cfg.Engine.CandidatePoolSize)
	assert.Equal(t, 5*time.Second, cfg.Engine.LockTimeout)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LOCK_TIMEOUT", "250ms")

	cfg, err := Load("does-not-exist")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, StoreDriverMemory, cfg.App.StoreDriver)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.LockTimeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("CANDIDATE_POOL_SIZE", "0")

	cfg, err := Load("does-not-exist")
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
	assert.Contains(t, err.Error(), "CANDIDATE_POOL_SIZE must be greater than 0")
}

func TestDatabaseConfig_URL(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		User:     "recon",
		Password: "p@ss",
		DBName:   "remittance_db",
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://recon:p%40ss@db:5432/remittance_db?sslmode=disable", db.URL())
	assert.Equal(t, "host=db port=5432 user=recon password=p@ss dbname=remittance_db sslmode=disable", db.ConnectionString())
}
