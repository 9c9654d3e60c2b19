package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/types"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	// ListenerURL, when set, is used for the notification relay's dedicated
	// session instead of the pooled DSN. Needed when the app connects through
	// a transaction-mode pooler (pgbouncer), which breaks LISTEN.
	ListenerURL string
}

type PostgresService struct {
	db  *gorm.DB
	cfg Config
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger, cfg Config) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	serviceLog.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: db, cfg: cfg, log: serviceLog}, nil
}

func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, sslMode)
}

// ListenerDSN is the connection string for the relay's session-scoped
// connection. It must reach the server directly (session mode).
func (c Config) ListenerDSN() string {
	if c.ListenerURL != "" {
		return c.ListenerURL
	}
	return c.DSN()
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.Conversation{},
		&types.Message{},
		&types.MessageReaction{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
