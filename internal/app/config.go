package app

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bookline/backend/internal/platform/envutil"
	"github.com/bookline/backend/internal/platform/logger"
)

type Config struct {
	HTTPAddr     string   `yaml:"http_addr"`
	LogMode      string   `yaml:"log_mode"`
	JWTSecretKey string   `yaml:"jwt_secret_key"`
	CORSOrigins  []string `yaml:"cors_origins"`

	Postgres PostgresConfig `yaml:"postgres"`
	Relay    RelayConfig    `yaml:"relay"`
}

type PostgresConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Name        string `yaml:"name"`
	SSLMode     string `yaml:"ssl_mode"`
	ListenerURL string `yaml:"listener_url"`
}

type RelayConfig struct {
	QueueSize         int           `yaml:"queue_size"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	WatchdogInterval  time.Duration `yaml:"watchdog_interval"`
	ReconnectBackoff  time.Duration `yaml:"reconnect_backoff"`
	SelfTestTimeout   time.Duration `yaml:"self_test_timeout"`
}

// LoadConfig layers defaults, then the optional CONFIG_FILE yaml, then
// environment variables. Env wins so deployments can override a baked-in
// file per instance.
func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		HTTPAddr: ":8080",
		LogMode:  "development",
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "bookline",
			SSLMode: "disable",
		},
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("could not read config file", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("could not parse config file", "path", path, "error", err)
		} else {
			log.Info("config file loaded", "path", path)
		}
	}

	cfg.HTTPAddr = envutil.Str("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogMode = envutil.Str("LOG_MODE", cfg.LogMode)
	cfg.JWTSecretKey = envutil.Str("JWT_SECRET_KEY", cfg.JWTSecretKey)
	if raw := envutil.Str("CORS_ORIGINS", ""); raw != "" {
		cfg.CORSOrigins = splitAndTrim(raw)
	}

	cfg.Postgres.Host = envutil.Str("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = envutil.Str("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = envutil.Str("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = envutil.Str("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Name = envutil.Str("POSTGRES_NAME", cfg.Postgres.Name)
	cfg.Postgres.SSLMode = envutil.Str("POSTGRES_SSLMODE", cfg.Postgres.SSLMode)
	cfg.Postgres.ListenerURL = envutil.Str("RELAY_DATABASE_URL", cfg.Postgres.ListenerURL)

	cfg.Relay.QueueSize = envutil.Int("RELAY_QUEUE_SIZE", cfg.Relay.QueueSize)
	cfg.Relay.HeartbeatInterval = envutil.Duration("RELAY_HEARTBEAT_INTERVAL", cfg.Relay.HeartbeatInterval)
	cfg.Relay.HeartbeatTimeout = envutil.Duration("RELAY_HEARTBEAT_TIMEOUT", cfg.Relay.HeartbeatTimeout)
	cfg.Relay.WatchdogInterval = envutil.Duration("RELAY_WATCHDOG_INTERVAL", cfg.Relay.WatchdogInterval)
	cfg.Relay.ReconnectBackoff = envutil.Duration("RELAY_RECONNECT_BACKOFF", cfg.Relay.ReconnectBackoff)
	cfg.Relay.SelfTestTimeout = envutil.Duration("RELAY_SELFTEST_TIMEOUT", cfg.Relay.SelfTestTimeout)

	if cfg.JWTSecretKey == "" {
		cfg.JWTSecretKey = "defaultsecret"
		log.Warn("JWT_SECRET_KEY not set, using insecure default")
	}
	return cfg
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
