package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LINK_RETRY_ATTEMPTS", "")
	t.Setenv("CALL_RING_TIMEOUT_SEC", "")

	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.LinkRetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.LinkRetryBackoff)
	assert.Equal(t, 30*time.Second, cfg.CallRingTimeout)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverMemory)
	t.Setenv("LINK_RETRY_BACKOFF_MS", "20")
	t.Setenv("CALL_RING_TIMEOUT_SEC", "5")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 20*time.Millisecond, cfg.LinkRetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.CallRingTimeout)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5433"}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5433 sslmode=disable TimeZone=UTC", cfg.DSN())
}
