package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, uint(5), cfg.Checkout.MaxAttempts)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
log_level: debug
database:
  driver: mysql
  dsn: "shop:shop@tcp(localhost:3306)/shop?parseTime=true&multiStatements=true"
  lock_wait_timeout: 3s
redis:
  addr: "localhost:6379"
kafka:
  brokers: ["k1:9092"]
`), 0o600))

	t.Setenv("HTTP_ADDR", ":9100")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("DB_LOCK_WAIT_TIMEOUT", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 750*time.Millisecond, cfg.Database.LockWaitTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Redis.CartTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "orders.placed", cfg.Kafka.Topic)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	_, err := Load("")
	assert.ErrorContains(t, err, `unsupported database driver "oracle"`)

	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "chatty")
	_, err = Load("")
	assert.ErrorContains(t, err, "log level")

	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("DB_LOCK_WAIT_TIMEOUT", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "DB_LOCK_WAIT_TIMEOUT")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}
