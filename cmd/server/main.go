package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hrk-pass/household-account-book/internal/api"
	"github.com/hrk-pass/household-account-book/internal/config"
	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/realtime"
	"github.com/hrk-pass/household-account-book/internal/repository"
	"github.com/hrk-pass/household-account-book/internal/service"
	"github.com/hrk-pass/household-account-book/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var flagConfig string

var rootCmd = &cobra.Command{
	Use:           "household",
	Short:         "Household account book server",
	Long:          "Expense tracking with an ingredient and meal-prep consumption ledger.",
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", os.Getenv("HHBOOK_CONFIG"),
		"Path to a TOML config file (env HHBOOK_CONFIG)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.Log.Env)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	repo := repository.NewSQLRepository(db)
	led := ledger.New(repo,
		ledger.WithMealPrepCreditStep(cfg.Ledger.MealPrepCreditStep),
		ledger.WithLegacyIngredientCreditStep(cfg.Ledger.LegacyIngredientCreditStep),
		ledger.WithLogger(logger.Named("ledger")),
	)
	hub := realtime.NewHub(repo, logger.Named("realtime"))
	svc := service.NewDefaultService(repo, cfg.Auth.JWTSecret,
		service.WithLedger(led),
		service.WithNotifier(hub),
		service.WithLogger(logger.Named("service")),
		service.WithTokenDuration(cfg.Auth.TokenTTL),
	)
	handler := api.NewHandler(svc, hub, logger.Named("api"))

	if cfg.Log.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		// the websocket query carries the bearer token
		gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{api.WebsocketPath}}),
		gin.Recovery(),
		api.JWTSecret(cfg.Auth.JWTSecret),
	)
	handler.SetupRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", server.Addr), zap.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.Log.Env)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// SetupDatabase creates the tables
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	logger.Info("database tables created", zap.String("driver", cfg.Database.Driver))
	return nil
}
