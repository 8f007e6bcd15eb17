package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/expense-approval/api"
	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"
	"github.com/frahmantamala/expense-approval/internal/auth"
	approvalPostgres "github.com/frahmantamala/expense-approval/internal/approval/postgres"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/core/metrics"
	"github.com/frahmantamala/expense-approval/internal/expense"
	expensePostgres "github.com/frahmantamala/expense-approval/internal/expense/postgres"
	"github.com/frahmantamala/expense-approval/internal/lock"
	"github.com/frahmantamala/expense-approval/internal/transport/middleware"
	"github.com/frahmantamala/expense-approval/internal/transport/rest"
	"github.com/frahmantamala/expense-approval/internal/user"
	userPostgres "github.com/frahmantamala/expense-approval/internal/user/postgres"
	"github.com/frahmantamala/expense-approval/pkg/logger"

	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Redis  redis.UniversalClient
	Bus    *events.EventBus
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "lock_backend", deps.Config.Approval.LockBackend)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		deps.Bus.Wait()
		if deps.Redis != nil {
			if err := deps.Redis.Close(); err != nil {
				deps.Logger.Error("Redis close error", "error", err)
			}
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config
	lg := deps.Logger

	deps.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.Origins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Trace-ID", "X-User-ID"},
		ExposedHeaders: []string{"X-Trace-ID"},
		MaxAge:         300,
	}))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)
	m.Subscribe(deps.Bus)
	subscribeAuditLog(deps.Bus, lg)

	var locker lock.Locker = lock.NewKeyedMutex()
	if deps.Redis != nil {
		locker = lock.NewRedisLocker(deps.Redis, cfg.Approval.LockTTL, lg)
	}

	userService := user.NewService(userPostgres.NewUserRepository(deps.Gorm), lg)

	catalogRepo := approvalPostgres.NewCatalogRepository(deps.Gorm)
	approvalService := approval.NewService(catalogRepo, userService, lg)

	expenseService := expense.NewService(expense.Dependencies{
		Repo:      expensePostgres.NewExpenseRepository(deps.Gorm),
		Inbox:     expensePostgres.NewInboxRepository(deps.DB),
		Directory: userService,
		Flows:     approval.NewResolver(catalogRepo, lg),
		Locker:    locker,
		Publisher: deps.Bus,
		Metrics:   m,
		Logger:    lg,
		LockWait:  cfg.Approval.LockWait,
	})

	handlers := rest.Handlers{
		Health:   rest.NewHealthHandler(deps.DB.DB, deps.Redis),
		User:     user.NewHandler(userService),
		Approval: approval.NewHandler(approvalService),
		Expense:  expense.NewHandler(expenseService),
		Actor:    actorOptions(cfg.Auth, lg),
	}
	if cfg.Observability.Metrics.Enabled {
		handlers.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
		handlers.MetricsPath = cfg.Observability.Metrics.Path
	}

	rest.RegisterAllRoutes(deps.Router, handlers, lg)
}

func actorOptions(cfg internal.AuthConfig, lg *slog.Logger) middleware.ActorOptions {
	opts := middleware.ActorOptions{TrustActorHeader: cfg.TrustActorHeader}
	if cfg.JWTSecret != "" {
		opts.Verifier = auth.NewJWTTokenManager(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL)
	}
	if cfg.TrustActorHeader {
		lg.Warn("X-User-ID is trusted without a token; the gateway must strip it from client requests")
	}
	return opts
}

// subscribeAuditLog writes every lifecycle event to the log.
func subscribeAuditLog(bus *events.EventBus, lg *slog.Logger) {
	audit := func(_ context.Context, e events.Event) error {
		lg.Info("approval event",
			"event_type", e.EventType(),
			"event_id", e.EventID(),
			"payload", e.Payload())
		return nil
	}
	for _, t := range []string{
		events.EventTypeExpenseSubmitted,
		events.EventTypeStepActivated,
		events.EventTypeDecisionRecorded,
		events.EventTypeExpenseApproved,
		events.EventTypeExpenseRejected,
	} {
		bus.Subscribe(t, audit)
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	doc, err := api.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("invalid embedded openapi document: %w", err)
	}
	lg.Debug("openapi document loaded", "version", doc.Info.Version, "paths", doc.Paths.Len())

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db.DB)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	var rdb redis.UniversalClient
	if config.Approval.LockBackend == internal.LockBackendRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	return &Dependencies{
		Config: config,
		Logger: lg,
		DB:     db,
		Gorm:   gormDB,
		Redis:  rdb,
		Bus:    events.NewEventBus(lg),
		Router: chi.NewRouter(),
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool so both access paths see one connection limit.
func initGorm(conn *sql.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}
