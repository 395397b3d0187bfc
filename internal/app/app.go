// Package app wires the focus-mode control plane's components into a
// runnable process: config load, infrastructure connections, the
// envelope-cipher/token-vault/scheduler/notifier/focus-machine stack, and
// either the HTTP API or the background scheduler worker, selected by
// cfg.Mode. Grounded on the teacher's internal/app/app.go dependency-
// injection shape, trimmed to this repo's narrower domain.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/focusd/internal/config"
	"github.com/wisbric/focusd/internal/httpserver"
	"github.com/wisbric/focusd/internal/platform"
	"github.com/wisbric/focusd/internal/store"
	"github.com/wisbric/focusd/internal/telemetry"
	"github.com/wisbric/focusd/pkg/chatprovider"
	"github.com/wisbric/focusd/pkg/dedup"
	"github.com/wisbric/focusd/pkg/envelope"
	"github.com/wisbric/focusd/pkg/focus"
	"github.com/wisbric/focusd/pkg/notifier"
	"github.com/wisbric/focusd/pkg/oauthflow"
	"github.com/wisbric/focusd/pkg/oauthstate"
	"github.com/wisbric/focusd/pkg/scheduler"
	"github.com/wisbric/focusd/pkg/slackevents"
	"github.com/wisbric/focusd/pkg/tokenvault"
)

// Run is the process entry point. It reads config, connects to
// infrastructure, and starts the mode selected by cfg.Mode: "api" serves
// HTTP; "worker" runs the scheduler loop and backup sweep.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting focusd", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	kek, err := newKEKProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing KEK provider: %w", err)
	}
	cipher := envelope.NewCipher(kek)

	pg := store.NewPostgres(db)

	github := oauthflow.NewGitHubClient()
	slackOAuth := oauthflow.NewSlackClient()

	vault := tokenvault.NewVault(cipher, pg, pg, pg, github, github, cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.KEKProvider)
	vault.RegisterRevoker(tokenvault.ProviderSlack, slackOAuth)

	chatProvider := chatprovider.NewSlackProvider(vault, logger)

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	sched := scheduler.New(rdb, logger)
	registry := notifier.NewRegistry()
	notif := notifier.New(registry, pg, &http.Client{Timeout: 10 * time.Second}, logger)

	machine := focus.NewMachine(pg, pg, sched, notif, chatProvider, logger)
	sched.RegisterFunction(scheduler.FunctionFocusExpire, func(jobCtx context.Context, argument string) error {
		return fireFocusJob(jobCtx, argument, machine.OnExpire)
	})
	sched.RegisterFunction(scheduler.FunctionPomodoroTransition, func(jobCtx context.Context, argument string) error {
		return fireFocusJob(jobCtx, argument, machine.OnTransition)
	})

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, machine, notif, registry, vault, github, slackOAuth)
	case "worker":
		return runWorker(ctx, logger, sched, pg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// fireFocusJob parses the scheduler's string argument back into a user ID
// and re-enters the focus state machine through entry. Each fire opens its
// own machine call rather than reusing any request-scoped state, so a
// worker restart mid-job is always safe to retry.
func fireFocusJob(ctx context.Context, argument string, entry func(context.Context, uuid.UUID) (focus.Record, error)) error {
	userID, err := uuid.Parse(argument)
	if err != nil {
		return fmt.Errorf("parsing job argument as user id: %w", err)
	}
	_, err = entry(ctx, userID)
	return err
}

func newKEKProvider(ctx context.Context, cfg *config.Config) (envelope.KEKProvider, error) {
	switch cfg.KEKProvider {
	case "local", "":
		return envelope.NewLocalKEK(cfg.KEKLocalKey)
	case "gcpkms":
		return envelope.NewGCPKMSKEK(ctx, cfg.KEKKeyName)
	case "awskms":
		return envelope.NewAWSKMSKEK(ctx, cfg.AWSRegion, cfg.KEKKeyName)
	default:
		return nil, fmt.Errorf("unknown KEK provider %q", cfg.KEKProvider)
	}
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	machine *focus.Machine,
	notif *notifier.Notifier,
	registry *notifier.Registry,
	vault *tokenvault.Vault,
	github *oauthflow.GitHubClient,
	slackOAuth *oauthflow.SlackClient,
) error {
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	focusHandler := focus.NewHandler(machine, logger)
	srv.APIRouter.Mount("/focus", focusHandler.Routes())

	notifierHandler := notifier.NewHandler(registry, store.NewPostgres(db), logger)
	srv.APIRouter.Mount("/", notifierHandler.Routes())

	state := oauthstate.New(rdb)
	oauthHandler := oauthflow.NewHandler(state, vault, github, slackOAuth, logger,
		cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL,
		cfg.SlackClientID, cfg.SlackClientSecret, cfg.SlackRedirectURL,
	)
	srv.APIRouter.Mount("/oauth", oauthHandler.AuthenticatedRoutes())
	srv.Router.Mount("/oauth", oauthHandler.PublicRoutes())

	dedupChecker := dedup.New(rdb)
	slackEventsHandler := slackevents.NewHandler(dedupChecker, cfg.SlackSigningSecret, logger)
	srv.Router.Mount("/slack", slackEventsHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams hold the connection open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, logger *slog.Logger, sched *scheduler.Scheduler, sweepStore scheduler.SweepStore) error {
	logger.Info("worker started")

	errCh := make(chan error, 2)
	go func() { errCh <- sched.Run(ctx) }()
	go func() { errCh <- sched.RunSweep(ctx, sweepStore) }()

	select {
	case <-ctx.Done():
		<-errCh
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
