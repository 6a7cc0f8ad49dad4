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

	"github.com/referralhub/referralhub/internal/config"
	"github.com/referralhub/referralhub/internal/domain/audit"
	"github.com/referralhub/referralhub/internal/domain/department"
	"github.com/referralhub/referralhub/internal/domain/escalation"
	"github.com/referralhub/referralhub/internal/domain/hospital"
	"github.com/referralhub/referralhub/internal/domain/notification"
	"github.com/referralhub/referralhub/internal/domain/patient"
	"github.com/referralhub/referralhub/internal/domain/referral"
	"github.com/referralhub/referralhub/internal/domain/staff"
	"github.com/referralhub/referralhub/internal/domain/triage"
	"github.com/referralhub/referralhub/internal/platform/ai"
	"github.com/referralhub/referralhub/internal/platform/db"
	"github.com/referralhub/referralhub/internal/platform/middleware"
	"github.com/referralhub/referralhub/internal/platform/taskqueue"
)

func main() {
	root := &cobra.Command{
		Use:   "referral-server",
		Short: "Hospital referral management service",
	}

	root.AddCommand(serveCmd(), migrateCmd(), sweepCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			tasks := taskqueue.New(logger)

			// Repositories
			hospitals := hospital.NewRepoPG(pool)
			patients := patient.NewRepoPG(pool)
			staffRepo := staff.NewRepoPG(pool)
			departments := department.NewRepoPG(pool)
			referrals := referral.NewRepoPG(pool)
			auditRepo := audit.NewRepoPG(pool)
			triageLogs := triage.NewRepoPG(pool)
			notifications := notification.NewRepoPG(pool)

			// Services
			auditSvc := audit.NewService(auditRepo)
			suggester := department.NewSuggester(departments)
			staffSvc := staff.NewService(staffRepo)
			referralSvc := referral.NewService(referrals, patients, auditSvc, logger)

			provider := ai.NewClient(ai.ClientConfig{
				BaseURL: cfg.AIBaseURL,
				APIKey:  cfg.AIAPIKey,
				Model:   cfg.AIModel,
				Timeout: cfg.AITimeout(),
			})
			triageSvc := triage.NewService(referrals, triageLogs, departments, suggester,
				provider, auditSvc, tasks, triage.ServiceConfig{
					MaxRetries: cfg.TriageMaxRetries,
					RetryDelay: cfg.TriageRetryDelay(),
				}, logger)

			var slackSender notification.SlackSender
			if cfg.SlackEnabled {
				slackSender = notification.NewSlackWebhookSender(cfg.SlackWebhookURL)
			} else {
				slackSender = noopSlack{}
			}
			dispatcher := notification.NewDispatcher(notifications, staffRepo, patients, referrals,
				notification.NewLogEmailSender(logger), notification.NewLogSMSSender(logger), slackSender,
				tasks, notification.DispatcherConfig{
					SlackEnabled: cfg.SlackEnabled,
					Policy:       notification.DefaultRoutingPolicy(),
				}, logger)

			// Cross-package wiring: the dispatcher stands behind the consumer
			// interfaces, so none of the domain packages import each other.
			referralSvc.SetTriager(triageSvc)
			referralSvc.SetAssignmentNotifier(dispatcher)
			triageSvc.SetNotifier(dispatcher)
			staffSvc.SetAvailabilityListener(dispatcher)

			sweeper := escalation.NewSweeper(referrals, auditSvc, dispatcher, cfg.EscalationThreshold(), logger)
			go sweeper.Start(ctx, cfg.SweepInterval())

			e := buildServer(cfg, logger, hospitals,
				referral.NewHandler(referralSvc, auditSvc),
				staff.NewHandler(staffSvc),
				notification.NewHandler(notifications),
				triage.NewHandler(triageSvc))

			go func() {
				logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
				if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()

			<-ctx.Done()
			logger.Info().Msg("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("http shutdown failed")
			}
			if err := tasks.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("task queue drain timed out")
			}
			return nil
		},
	}
}

func buildServer(
	cfg *config.Config,
	logger zerolog.Logger,
	hospitals hospital.Repository,
	referralHandler *referral.Handler,
	staffHandler *staff.Handler,
	notificationHandler *notification.Handler,
	triageHandler *triage.Handler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1")

	hospitalGroup := api.Group("/hospital", middleware.APIKeyAuth(hospitals))
	referralHandler.RegisterHospitalRoutes(hospitalGroup)

	staffGroup := api.Group("/staff", middleware.StaffAuth([]byte(cfg.JWTSecret)))
	referralHandler.RegisterStaffRoutes(staffGroup)
	staffHandler.RegisterRoutes(staffGroup)
	notificationHandler.RegisterRoutes(staffGroup)
	triageHandler.RegisterRoutes(staffGroup)

	adminGroup := api.Group("/admin",
		middleware.StaffAuth([]byte(cfg.JWTSecret)),
		middleware.RequireRole(staff.RoleAdmin, staff.RoleCoordinator))
	referralHandler.RegisterAdminRoutes(adminGroup)

	return e
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema",
	}
	var dir string
	cmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "migrations directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("applied", n).Msg("migrations complete")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(c *cobra.Command, args []string) error {
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

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	})

	return cmd
}

// sweepCmd runs a single escalation sweep and exits. Useful for cron-style
// deployments where the long-running sweeper is disabled.
func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation sweep",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			referrals := referral.NewRepoPG(pool)
			patients := patient.NewRepoPG(pool)
			staffRepo := staff.NewRepoPG(pool)
			notifications := notification.NewRepoPG(pool)
			auditSvc := audit.NewService(audit.NewRepoPG(pool))

			var slackSender notification.SlackSender
			if cfg.SlackEnabled {
				slackSender = notification.NewSlackWebhookSender(cfg.SlackWebhookURL)
			} else {
				slackSender = noopSlack{}
			}
			dispatcher := notification.NewDispatcher(notifications, staffRepo, patients, referrals,
				notification.NewLogEmailSender(logger), notification.NewLogSMSSender(logger), slackSender,
				taskqueue.NewInline(logger), notification.DispatcherConfig{
					SlackEnabled: cfg.SlackEnabled,
					Policy:       notification.DefaultRoutingPolicy(),
				}, logger)

			sweeper := escalation.NewSweeper(referrals, auditSvc, dispatcher, cfg.EscalationThreshold(), logger)
			return sweeper.Run(ctx)
		},
	}
}

type noopSlack struct{}

func (noopSlack) SendSlack(context.Context, string) error { return nil }
