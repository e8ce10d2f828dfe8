package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/storybook-admin/internal/data/db"
	"github.com/yungbote/storybook-admin/internal/platform/gcp"
	"github.com/yungbote/storybook-admin/internal/services"
)

// clearConfigEnv blanks every key LoadConfig reads so the host environment cannot leak
// in; t.Setenv restores the originals afterward.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_CONFIG_FILE", "PORT", "LOG_MODE", "SHUTDOWN_TIMEOUT",
		"DB_DRIVER", "DATABASE_URL", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER",
		"POSTGRES_PASSWORD", "POSTGRES_NAME", "SQLITE_PATH",
		"OBJECT_STORAGE_MODE", "BOOKS_GCS_BUCKET_NAME", "BOOKS_CDN_DOMAIN",
		"STORAGE_EMULATOR_HOST", "OBJECT_STORAGE_PUBLIC_BASE_URL",
		"SNAPSHOT_LOCAL_DIR", "SNAPSHOT_SAVE_POLICY",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_STREAM_MAXLEN", "PIPELINE_TOPIC",
		"ADMIN_JWT_SECRET", "ADMIN_JWT_ISSUER", "CORS_ALLOWED_ORIGINS",
		"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLER_RATIO",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigSQLiteDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "books.db"))
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadConfig(newTestLogger(t))
	require.NoError(t, err)
	require.Equal(t, db.DriverSQLite, cfg.DB.Driver)
	require.Equal(t, ":8080", cfg.Addr())
	require.Equal(t, services.SnapshotRewrite, cfg.SnapshotSavePolicy)
	require.Equal(t, gcp.ObjectStorageModeDisabled, cfg.Storage.Mode)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	require.Empty(t, cfg.PipelineTopic)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":      {"DB_DRIVER": "mysql"},
		"bad save policy":     {"DB_DRIVER": "sqlite", "SNAPSHOT_SAVE_POLICY": "merge"},
		"bad storage mode":    {"DB_DRIVER": "sqlite", "OBJECT_STORAGE_MODE": "s3"},
		"topic without queue": {"DB_DRIVER": "sqlite", "PIPELINE_TOPIC": "storybook"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(newTestLogger(t))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigOverlayFillsUnsetKeys(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "storybook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
DB_DRIVER: sqlite
SQLITE_PATH: overlay.db
PORT: 9090
SNAPSHOT_SAVE_POLICY: invalidate
CORS_ALLOWED_ORIGINS:
  - https://a.example.com
  - https://b.example.com
`), 0o644))
	t.Setenv("APP_CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig(newTestLogger(t))
	require.NoError(t, err)
	require.Equal(t, "7070", cfg.Port, "environment wins over the overlay")
	require.Equal(t, "overlay.db", cfg.DB.SQLitePath)
	require.Equal(t, services.SnapshotInvalidate, cfg.SnapshotSavePolicy)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}
