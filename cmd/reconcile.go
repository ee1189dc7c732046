package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oemhub/identity-broker/internal/automation"
	"github.com/oemhub/identity-broker/internal/core/events"
	"github.com/oemhub/identity-broker/internal/directory"
	"github.com/oemhub/identity-broker/internal/reconcile"
	"github.com/oemhub/identity-broker/pkg/logger"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile the local directory against the automation platform",
	Long:  `Run a reconciliation pass that removes directory records whose remote user no longer exists. Use --interval to keep running periodically.`,
	Run: func(cmd *cobra.Command, args []string) {
		runReconcile()
	},
}

var reconcileInterval time.Duration

func init() {
	reconcileCmd.Flags().DurationVar(&reconcileInterval, "interval", 0, "run periodically at this interval instead of once (overrides config)")
}

func runReconcile() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open gorm over db connection: %v\n", err)
		os.Exit(1)
	}

	dir := directory.NewGormStore(gormDB)
	automationClient := automation.NewClient(config.Automation, lg)
	bus := events.NewBus(lg)
	service := reconcile.NewService(dir, automationClient, bus, nil, config.Reconcile, lg)

	interval := reconcileInterval
	if interval == 0 {
		interval = config.Reconcile.Interval
	}

	if interval <= 0 {
		report, err := service.Reconcile(context.Background())
		if err != nil {
			lg.Error("reconciliation failed", "error", err)
			os.Exit(1)
		}
		lg.Info("reconciliation complete",
			"removed_from_directory", report.RemovedFromDirectory,
			"removed_from_remote", report.RemovedFromRemote)
		return
	}

	runner := reconcile.NewRunner(service, interval, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	lg.Info("reconcile worker is running. Press Ctrl+C to stop.", "interval", interval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	lg.Info("received signal, shutting down reconcile worker", "signal", sig)
	cancel()
	<-done
	lg.Info("reconcile worker shutdown complete")
}
