package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/refermed/refermed/internal/config"
	"github.com/refermed/refermed/internal/domain/hospital"
	"github.com/refermed/refermed/internal/domain/matching"
	"github.com/refermed/refermed/internal/domain/referral"
	"github.com/refermed/refermed/internal/domain/user"
	"github.com/refermed/refermed/internal/platform/auth"
	"github.com/refermed/refermed/internal/platform/blobstore"
	"github.com/refermed/refermed/internal/platform/db"
	"github.com/refermed/refermed/internal/platform/middleware"
	"github.com/refermed/refermed/internal/platform/notification"
	"github.com/refermed/refermed/internal/platform/summary"
)

const defaultWhatsAppSender = "+15176843823"

func main() {
	rootCmd := &cobra.Command{
		Use:   "refermed-server",
		Short: "Hospital referral routing API server",
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
		Short: "Start the referral API server",
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

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// logSender stands in for the WhatsApp gateway when none is configured, so
// development environments can exercise the notification flow.
type logSender struct {
	logger zerolog.Logger
}

func (s *logSender) SendWhatsApp(_ context.Context, to, body string) error {
	s.logger.Info().Str("to", to).Str("body", body).Msg("whatsapp message (gateway not configured)")
	return nil
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

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware. The inbound WhatsApp webhook is registered before it
	// so the gateway can reach it unauthenticated.
	authMiddleware := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	})
	if cfg.IsDev() {
		authMiddleware = auth.DevAuthMiddleware()
	}

	// Repositories
	hospitalRepo := hospital.NewRepo(pool)
	userRepo := user.NewRepo(pool)
	referralRepo := referral.NewRepo(pool)

	// Services
	hospitalSvc := hospital.NewService(hospitalRepo)
	userSvc := user.NewService(userRepo)
	matchSvc := matching.NewService(userSvc, hospitalSvc)

	var sender notification.Sender = &logSender{logger: logger}
	if cfg.MessagingURL != "" {
		from := cfg.MessagingSender
		if from == "" {
			from = defaultWhatsAppSender
		}
		sender = notification.NewTwilioSender(cfg.MessagingURL, cfg.MessagingSID, cfg.MessagingToken, from)
	}
	notifyMgr := notification.NewManager(sender, notification.NewTemplateEngine())

	var summarizer summary.Generator
	if cfg.SummaryURL != "" {
		summarizer = summary.NewClient(cfg.SummaryURL, cfg.SummaryAPIKey, cfg.SummaryModel)
	}

	referralSvc := referral.NewService(referralRepo, matchSvc, userSvc, hospitalSvc, notifyMgr, summarizer, logger)

	docStore := blobstore.NewMemoryStore(fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port))

	// Unauthenticated webhook for the WhatsApp gateway's delivery callbacks.
	notifyHandler := notification.NewHandler(notifyMgr, referralSvc, logger)
	e.POST("/api/v1/notifications/inbound", notifyHandler.HandleInbound)

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(authMiddleware)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Handlers
	hospital.NewHandler(hospitalSvc).RegisterRoutes(apiV1)
	user.NewHandler(userSvc).RegisterRoutes(apiV1)
	matching.NewHandler(matchSvc).RegisterRoutes(apiV1)
	referral.NewHandler(referralSvc).RegisterRoutes(apiV1)
	blobstore.NewHandler(docStore).RegisterRoutes(apiV1)
	notifyHandler.RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
