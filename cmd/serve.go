package main

import (
	"context"
	"net/http"
	"time"

	"github.com/hellofresh/health-go/v5"
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/yakoovad/teamsaas/internal/api"
	"github.com/yakoovad/teamsaas/internal/auth"
	"github.com/yakoovad/teamsaas/internal/config"
	"github.com/yakoovad/teamsaas/internal/db"
	"github.com/yakoovad/teamsaas/internal/metrics"
	"github.com/yakoovad/teamsaas/internal/notify"
	"github.com/yakoovad/teamsaas/internal/payment"
	"github.com/yakoovad/teamsaas/internal/repository"
	"github.com/yakoovad/teamsaas/internal/service"
	"github.com/yakoovad/teamsaas/internal/telemetry"
	"github.com/yakoovad/teamsaas/pkg/logger"
	"go.uber.org/zap"
)

const version = "v0.1.0"

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, migrate bool) error {
	l, err := logger.NewLogger(cfg.Env)
	if err != nil {
		return err
	}
	defer l.Sync()

	l.Info("starting application", zap.String("version", version), zap.String("env", cfg.Env))

	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			l.Warn("failed to shut down tracing", zap.Error(err))
		}
	}()

	if migrate {
		if err = db.Migrate(ctx, cfg.DatabaseURL, db.MigrateUp); err != nil {
			return errors.Wrap(err, "migrate")
		}
		l.Info("migrations applied")
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	l.Info("database connection established")

	transactor := db.NewPgxTransactor(pool)

	userRepo := repository.NewPgxUserRepository(pool)
	teamRepo := repository.NewPgxTeamRepository(pool)
	memberRepo := repository.NewPgxMemberRepository(pool)
	inviteRepo := repository.NewPgxInviteRepository(pool)
	billingRepo := repository.NewPgxBillingRepository(pool)

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	checks := []health.Config{
		api.PingCheck("postgres", func(ctx context.Context) error { return db.Ping(ctx, pool) }),
	}

	var notifier service.Notifier = notify.Noop{}
	if cfg.NATS.URL != "" {
		publisher, nc, err := notify.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, nats.Name("teamsaas-api"))
		if err != nil {
			return err
		}
		defer nc.Close()

		notifier = publisher
		checks = append(checks, api.PingCheck("nats", func(context.Context) error {
			if status := nc.Status(); status != nats.CONNECTED {
				return errors.Errorf("nats connection is %s", status)
			}
			return nil
		}))
		l.Info("nats connection established")
	}

	user := service.NewUserService(transactor).
		WithUserRepo(userRepo).
		WithTokenIssuer(issuer).
		WithPasswordHasher(auth.NewBcryptHasher(auth.DefaultBcryptCost))
	team := service.NewTeamService(transactor).
		WithTeamRepo(teamRepo).
		WithMemberRepo(memberRepo)
	invite := service.NewInviteService(transactor).
		WithUserRepo(userRepo).
		WithTeamRepo(teamRepo).
		WithMemberRepo(memberRepo).
		WithInviteRepo(inviteRepo).
		WithNotifier(notifier)
	billing := service.NewBillingService(transactor).
		WithBillingRepo(billingRepo).
		WithUserRepo(userRepo).
		WithTeamRepo(teamRepo).
		WithMemberRepo(memberRepo).
		WithFallbackUserID(cfg.Stripe.FallbackUserID)
	if cfg.Stripe.Enabled() {
		billing.WithCheckoutProvider(payment.New(cfg.Stripe.SecretKey, cfg.AppURL))
	} else {
		l.Warn("STRIPE_SECRET_KEY is not set, checkout is disabled")
	}

	healthChecker, err := api.NewHealthChecker(version, checks...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err = metrics.RegisterMetrics(reg); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true

	api.NewHandler(l).
		WithUserService(user).
		WithTeamService(team).
		WithInviteService(invite).
		WithBillingService(billing, cfg.Stripe.WebhookSecret).
		WithHealthChecker(healthChecker).
		WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).
		WithAllowedOrigins(cfg.AllowedOrigins).
		RegisterRoutes(e)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           telemetry.Handler(e, cfg.Tracing.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("server starting", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}

	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
