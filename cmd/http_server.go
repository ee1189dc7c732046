package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/internal/automation"
	"github.com/oemhub/identity-broker/internal/broker"
	"github.com/oemhub/identity-broker/internal/core/events"
	"github.com/oemhub/identity-broker/internal/core/locks"
	"github.com/oemhub/identity-broker/internal/directory"
	"github.com/oemhub/identity-broker/internal/popup"
	"github.com/oemhub/identity-broker/internal/reconcile"
	"github.com/oemhub/identity-broker/internal/solutions"
	"github.com/oemhub/identity-broker/internal/transport/rest"
	"github.com/oemhub/identity-broker/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that fronts the identity broker`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config           *internal.Config
	DB               *sqlx.DB
	Router           *chi.Mux
	Logger           *slog.Logger
	BrokerService    *broker.Service
	ReconcileService *reconcile.Service
	BrokerHandler    *broker.Handler
	PopupHandler     *popup.Handler
	SolutionsHandler *solutions.Handler
	ReconcileHandler *reconcile.Handler
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB.DB,
		deps.Config.Server.AllowedOrigins,
		deps.BrokerHandler,
		deps.PopupHandler,
		deps.SolutionsHandler,
		deps.ReconcileHandler,
		deps.Logger,
	)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Periodic reconciliation shares the server's lifetime.
	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	defer cancelRunner()
	runner := reconcile.NewRunner(deps.ReconcileService, deps.Config.Reconcile.Interval, deps.Logger)
	go runner.Run(runnerCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		cancelRunner()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm over db connection: %w", err)
	}

	dir := directory.NewGormStore(gormDB)
	automationClient := automation.NewClient(config.Automation, lg)

	sessions := broker.NewSessionStore()
	handles := broker.NewHandleCodec(config.Security.SessionSecret, config.Security.SessionDuration)

	// One keyed mutex shared by the broker and the reconciler, so credential
	// updates, deletes and prunes of the same remote identity never
	// interleave.
	idLocks := locks.NewKeyedMutex()
	brokerService := broker.NewService(dir, automationClient, sessions, handles, idLocks, config.Security.BCryptCost, lg)

	// Deletion paths announce themselves on the bus; the broker answers by
	// tearing down the affected sessions before the record disappears.
	bus := events.NewBus(lg)
	bus.Subscribe(events.TypeUserDeleted, func(_ context.Context, event events.Event) error {
		if data, ok := event.Payload().(map[string]interface{}); ok {
			if remoteID, ok := data["remote_id"].(string); ok && remoteID != "" {
				brokerService.InvalidateByRemoteID(remoteID)
			}
		}
		return nil
	})

	reconcileService := reconcile.NewService(dir, automationClient, bus, idLocks, config.Reconcile, lg)
	popupService := popup.NewService(automationClient, config.Automation, lg)
	solutionsService := solutions.NewService(automationClient, popupService, lg)

	return &Dependencies{
		Config:           config,
		DB:               db,
		Router:           chi.NewRouter(),
		Logger:           lg,
		BrokerService:    brokerService,
		ReconcileService: reconcileService,
		BrokerHandler:    broker.NewHandler(brokerService),
		PopupHandler:     popup.NewHandler(popupService),
		SolutionsHandler: solutions.NewHandler(solutionsService),
		ReconcileHandler: reconcile.NewHandler(reconcileService, automationClient),
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
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
