package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/datasequence/datasequence/internal/config"
	"github.com/datasequence/datasequence/internal/domain/metriport"
	"github.com/datasequence/datasequence/internal/domain/records"
	"github.com/datasequence/datasequence/internal/platform/auth"
	"github.com/datasequence/datasequence/internal/platform/db"
	"github.com/datasequence/datasequence/internal/platform/emr"
	"github.com/datasequence/datasequence/internal/platform/middleware"
	"github.com/datasequence/datasequence/internal/platform/observability"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "datasequence-server",
		Short: "Health data ingestion and access gateway",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-50s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-50s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Auth components
	keys := auth.NewJWKSKeyProvider(cfg.AppleJWKSURL)
	verifier := auth.NewVerifier(
		[]byte(cfg.JWTSigningSecret),
		cfg.ServiceIssuer,
		cfg.AppleIssuer,
		cfg.AppleAudiences(),
		keys,
		logger,
	)
	tokens := auth.NewTokenService([]byte(cfg.JWTSigningSecret), cfg.ServiceIssuer, cfg.AppleAudiences())

	// EMR consent checker
	emrClient := emr.NewClient(cfg.EMRFHIRURL)
	consentChecker := emr.NewConsentChecker(emrClient, cfg.ServiceIssuer, cfg.AppleIssuer)
	consentGate := emr.RequireConsent(consentChecker, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(observability.Metrics())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Token exchange
	authHandler := auth.NewHandler(verifier, tokens)
	authHandler.RegisterRoutes(e.Group("/auth"))

	// First-party records
	recordsRepo := records.NewRepoPG(pool)
	recordsSvc := records.NewService(recordsRepo)
	recordsHandler := records.NewHandler(recordsSvc, pool)
	recordsHandler.RegisterRoutes(e.Group("/api/v1"), verifier, consentGate)

	// Metriport aggregator
	metriportRepo := metriport.NewRepoPG(pool)
	metriportSvc := metriport.NewService(metriportRepo, metriport.NewNormalizer(logger), logger)
	metriportClient := metriport.NewClient(cfg.MetriportAPIURL, cfg.MetriportKeyHeader, cfg.MetriportAPISecret)
	metriportHandler := metriport.NewHandler(metriportSvc, metriportClient, pool, logger)
	webhookGate := metriport.RequireWebhookKey(cfg.MetriportKeyHeader, cfg.MetriportWebhookKey, logger)
	metriportHandler.RegisterRoutes(e.Group("/metriport"), verifier, webhookGate, consentGate)

	logger.Info().Str("port", cfg.Port).Msg("starting server")
	return e.Start(":" + cfg.Port)
}
