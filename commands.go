package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fenilmodi00/nextipo-backend/config"
	"github.com/fenilmodi00/nextipo-backend/database"
	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/services"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newRootCommand() *cobra.Command {
	var cfg *config.Config
	var logCloser io.Closer

	root := &cobra.Command{
		Use:           "nextipo-backend",
		Short:         "Indian IPO listing backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.LoadConfig()
			logCloser = shared.ConfigureLogging(shared.LoggingOptions{
				Level:    cfg.LogLevel,
				Format:   cfg.LogFormat,
				FilePath: cfg.LogFile,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and background jobs",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Run one IPO sync and print the report and stats",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSync(cmd.Context(), cfg, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Probe the upstream listing and the database",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCheck(cmd.Context(), cfg, cmd.OutOrStdout())
			},
		},
	)
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signalContext(parent)
	defer stop()

	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	app := newApplication(cfg, store, db, services.NewIPOPremiumClient(cfg.Source))
	defer app.Close()

	if cfg.AdminToken == "" {
		logrus.Warn("ADMIN_TOKEN not set, admin endpoints will reject every request")
	}

	app.startJobs(ctx)
	server := app.routes()

	serverErr := make(chan error, 1)
	go func() {
		logrus.Infof("Server starting on port %s", cfg.ServerPort)
		serverErr <- server.Listen(":" + cfg.ServerPort)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logrus.Info("Shutting down server...")
	app.ipoService.Metrics.LogSummary()
	app.premiumService.Metrics.LogSummary()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Server shutdown did not complete cleanly")
	}
	return nil
}

type syncOutput struct {
	Report *models.SyncReport `json:"report"`
	Stats  models.IPOStats    `json:"stats"`
}

func runSync(parent context.Context, cfg *config.Config, out io.Writer) error {
	ctx, stop := signalContext(parent)
	defer stop()

	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	app := newApplication(cfg, store, db, services.NewIPOPremiumClient(cfg.Source))
	defer app.Close()

	report, err := app.syncJob.Run(ctx)
	if err != nil {
		return err
	}

	stats, err := app.ipoService.GetIPOStats(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(syncOutput{Report: report, Stats: stats})
}

type checkResult struct {
	Name   string
	OK     bool
	Detail string
}

// runCheck probes each dependency and fails when any probe fails
func runCheck(parent context.Context, cfg *config.Config, out io.Writer) error {
	ctx, cancel := context.WithTimeout(parentOrBackground(parent), 2*time.Minute)
	defer cancel()

	fmt.Fprintf(out, "IPO Backend Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out, strings.Repeat("=", 50))

	results := []checkResult{checkUpstream(ctx, cfg), checkDatabase(ctx, cfg)}

	passed := 0
	for _, r := range results {
		status := "FAILED"
		if r.OK {
			status = "OK"
			passed++
		}
		fmt.Fprintf(out, "%-16s %s (%s)\n", r.Name+":", status, r.Detail)
	}

	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "%d/%d checks passed\n", passed, len(results))
	if passed != len(results) {
		return errors.New("health check failed")
	}
	return nil
}

func checkUpstream(ctx context.Context, cfg *config.Config) checkResult {
	client := services.NewIPOPremiumClient(cfg.Source)
	entries, err := client.FetchIPOList(ctx)
	if err != nil {
		return checkResult{Name: "Upstream", Detail: err.Error()}
	}
	return checkResult{Name: "Upstream", OK: true, Detail: fmt.Sprintf("%d entries", len(entries))}
}

func checkDatabase(ctx context.Context, cfg *config.Config) checkResult {
	if cfg.DatabaseURL == "" {
		return checkResult{Name: "Database", OK: true, Detail: "in-memory store"}
	}

	db, err := database.ConnectWithConfig(cfg.DatabaseURL, cfg.Database)
	if err != nil {
		return checkResult{Name: "Database", Detail: err.Error()}
	}
	defer db.Close()

	if err := database.HealthCheck(ctx, db); err != nil {
		return checkResult{Name: "Database", Detail: err.Error()}
	}
	return checkResult{Name: "Database", OK: true, Detail: "postgres reachable"}
}

func parentOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
