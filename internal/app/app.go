package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bookline/backend/internal/db"
	"github.com/bookline/backend/internal/observability"
	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/relay"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Relay    *relay.Relay

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg := LoadConfig(log)

	dbCfg := db.Config{
		Host:        cfg.Postgres.Host,
		Port:        cfg.Postgres.Port,
		User:        cfg.Postgres.User,
		Password:    cfg.Postgres.Password,
		Name:        cfg.Postgres.Name,
		SSLMode:     cfg.Postgres.SSLMode,
		ListenerURL: cfg.Postgres.ListenerURL,
	}
	pg, err := db.NewPostgresService(log, dbCfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	rl := relay.New(log, relay.Dial(dbCfg.ListenerDSN()), relay.Config{
		QueueSize:         cfg.Relay.QueueSize,
		HeartbeatInterval: cfg.Relay.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Relay.HeartbeatTimeout,
		WatchdogInterval:  cfg.Relay.WatchdogInterval,
		ReconnectBackoff:  cfg.Relay.ReconnectBackoff,
		SelfTestTimeout:   cfg.Relay.SelfTestTimeout,
	})

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, rl, reposet)
	handlerset := wireHandlers(log, rl, serviceset)
	middlewareset := wireMiddleware(log, cfg)
	router := wireRouter(cfg, handlerset, middlewareset)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		Relay:    rl,
	}, nil
}

// Start launches the background pieces: tracing and the notification relay.
// Idempotent; a second call is a no-op.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "bookline-backend",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})

	a.Relay.Start(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Relay != nil {
		a.Relay.Stop()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = a.otelShutdown(ctx)
		cancel()
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
