package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromYAML_Defaults(t *testing.T) {
	cfg := fromYAML(defaults())

	assert.Equal(t, ":8090", cfg.ServerAddr)
	assert.Equal(t, "http://localhost:5000", cfg.Backend.URL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "memory", cfg.Snapshot.Store)
	assert.Equal(t, 72*time.Hour, cfg.Snapshot.TTL)
	assert.Equal(t, time.Hour, cfg.Snapshot.IdleEvict)
	assert.Equal(t, int64(512)<<20, cfg.MaxUploadSize)
	assert.Equal(t, 10, cfg.DBMaxConnections())
	assert.Empty(t, cfg.DatabaseURL())
}

func TestFromYAML_EnvWins(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://chunks:5000/")
	t.Setenv("SNAPSHOT_STORE", "Redis")
	t.Setenv("SESSION_TTL_HOURS", "1")
	t.Setenv("MAX_UPLOAD_SIZE_MB", "2")
	t.Setenv("RATE_PER_SECOND", "2.5")
	t.Setenv("BREAKER_FAILURES", "not-a-number")

	yc := defaults()
	yc.BreakerFailures = 9
	cfg := fromYAML(yc)

	assert.Equal(t, "http://chunks:5000", cfg.Backend.URL)
	assert.Equal(t, "redis", cfg.Snapshot.Store)
	assert.Equal(t, time.Hour, cfg.Snapshot.TTL)
	assert.Equal(t, int64(2)<<20, cfg.MaxUploadSize)
	assert.Equal(t, 2.5, cfg.RateLimit.PerSecond)
	assert.Equal(t, 9, cfg.Backend.BreakerFailures, "unparsable env falls back to YAML")
}

func TestFromYAML_Normalizes(t *testing.T) {
	yc := defaults()
	yc.SnapshotStore = "etcd"
	yc.SessionTTLHours = 0
	yc.SessionIdleMinutes = -5
	yc.BreakerFailures = 0
	yc.RateBurst = 0
	cfg := fromYAML(yc)

	assert.Equal(t, "memory", cfg.Snapshot.Store)
	assert.Equal(t, 72*time.Hour, cfg.Snapshot.TTL)
	assert.Equal(t, time.Hour, cfg.Snapshot.IdleEvict)
	assert.Equal(t, 5, cfg.Backend.BreakerFailures)
	assert.Equal(t, 1, cfg.RateLimit.Burst)

	yc.SnapshotStore = "postgres"
	assert.Equal(t, "postgres", fromYAML(yc).Snapshot.Store)
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	path := filepath.Join(t.TempDir(), "editor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: ":9999"
backend_url: "http://backend:5000"
snapshot_store: postgres
database:
  database_url: "postgres://u:p@db:5432/editor"
  db_max_connections: 3
`), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg := Load()
	assert.Equal(t, ":9999", cfg.ServerAddr)
	assert.Equal(t, "http://backend:5000", cfg.Backend.URL)
	assert.Equal(t, "postgres", cfg.Snapshot.Store)
	assert.Equal(t, "postgres://u:p@db:5432/editor", cfg.DatabaseURL())
	assert.Equal(t, 3, cfg.DBMaxConnections())
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout, "missing keys keep defaults")
}

func TestLoad_BrokenYAMLFallsBack(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	path := filepath.Join(t.TempDir(), "editor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: [unclosed"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg := Load()
	assert.Equal(t, ":8090", cfg.ServerAddr)
}
