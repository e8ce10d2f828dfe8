package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/storybook-admin/internal/data/db"
	"github.com/yungbote/storybook-admin/internal/observability"
	"github.com/yungbote/storybook-admin/internal/platform/envutil"
	"github.com/yungbote/storybook-admin/internal/platform/gcp"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/platform/queue"
	"github.com/yungbote/storybook-admin/internal/services"
)

type Config struct {
	Port            string
	LogMode         string
	ShutdownTimeout time.Duration

	DB      db.Config
	Storage gcp.ObjectStorageConfig

	SnapshotLocalDir   string
	SnapshotSavePolicy services.SnapshotSavePolicy

	Redis         queue.RedisConfig
	PipelineTopic string

	AdminJWTSecret     string
	AdminJWTIssuer     string
	CORSAllowedOrigins []string

	Otel observability.OtelConfig
}

// LoadConfig reads the environment once. When APP_CONFIG_FILE names a YAML file of
// KEY: value pairs, those values fill in any variable the environment leaves unset.
func LoadConfig(log *logger.Logger) (Config, error) {
	if path := envutil.String("APP_CONFIG_FILE", ""); path != "" {
		n, err := applyConfigOverlay(path)
		if err != nil {
			return Config{}, err
		}
		log.Info("Applied config overlay", "path", path, "keys", n)
	}

	policy, err := services.ParseSnapshotSavePolicy(envutil.String("SNAPSHOT_SAVE_POLICY", ""))
	if err != nil {
		return Config{}, err
	}
	storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("object storage: %w", err)
	}

	cfg := Config{
		Port:            envutil.String("PORT", "8080"),
		LogMode:         envutil.String("LOG_MODE", "development"),
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		DB: db.Config{
			Driver:     strings.ToLower(envutil.String("DB_DRIVER", db.DriverPostgres)),
			DSN:        envutil.String("DATABASE_URL", ""),
			Host:       envutil.String("POSTGRES_HOST", ""),
			Port:       envutil.String("POSTGRES_PORT", "5432"),
			User:       envutil.String("POSTGRES_USER", "postgres"),
			Password:   envutil.String("POSTGRES_PASSWORD", ""),
			Name:       envutil.String("POSTGRES_NAME", "storybook"),
			SQLitePath: envutil.String("SQLITE_PATH", "storybook.db"),
		},
		Storage:            storageCfg,
		SnapshotLocalDir:   envutil.String("SNAPSHOT_LOCAL_DIR", ""),
		SnapshotSavePolicy: policy,
		Redis: queue.RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", ""),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
			MaxLen:   int64(envutil.Int("REDIS_STREAM_MAXLEN", 10000)),
		},
		PipelineTopic:      envutil.String("PIPELINE_TOPIC", ""),
		AdminJWTSecret:     envutil.String("ADMIN_JWT_SECRET", ""),
		AdminJWTIssuer:     envutil.String("ADMIN_JWT_ISSUER", ""),
		CORSAllowedOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "storybook-admin"),
			Environment: envutil.String("OTEL_ENVIRONMENT", envutil.String("ENV", "development")),
			Version:     envutil.String("OTEL_SERVICE_VERSION", ""),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envFloat("OTEL_SAMPLER_RATIO", 1),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.DB.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := gcp.ValidateObjectStorageConfig(c.Storage); err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	if c.PipelineTopic != "" && c.Redis.Addr == "" {
		return fmt.Errorf("PIPELINE_TOPIC=%q requires REDIS_ADDR", c.PipelineTopic)
	}
	return nil
}

func (c Config) Addr() string { return ":" + c.Port }

// applyConfigOverlay exports every key in the YAML file that is not already set so
// the rest of the process reads one environment.
func applyConfigOverlay(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return 0, fmt.Errorf("parse config file %s: %w", path, err)
	}
	n := 0
	for k, v := range values {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" || v == nil || strings.TrimSpace(os.Getenv(key)) != "" {
			continue
		}
		var s string
		switch tv := v.(type) {
		case []interface{}:
			parts := make([]string, 0, len(tv))
			for _, p := range tv {
				parts = append(parts, fmt.Sprint(p))
			}
			s = strings.Join(parts, ",")
		default:
			s = fmt.Sprint(tv)
		}
		if err := os.Setenv(key, s); err != nil {
			return n, fmt.Errorf("set %s: %w", key, err)
		}
		n++
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envFloat(name string, def float64) float64 {
	v := envutil.String(name, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
