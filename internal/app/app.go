package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evvec/ps-tracker/external/omeda"
	"github.com/evvec/ps-tracker/external/telegram"
	"github.com/evvec/ps-tracker/internal/config"
	"github.com/evvec/ps-tracker/internal/domain/roster"
	"github.com/evvec/ps-tracker/internal/infrastructure/repository/memory"
	"github.com/evvec/ps-tracker/internal/infrastructure/repository/postgres"
	"github.com/evvec/ps-tracker/internal/interfaces/chatbot"
	"github.com/evvec/ps-tracker/internal/platform/logging"
	"github.com/evvec/ps-tracker/internal/platform/resilience"
	"github.com/evvec/ps-tracker/internal/usecase"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sourcegraph/conc/pool"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	"go.opentelemetry.io/otel/attribute"
)

// App owns the wired object graph: storage, outbound clients, use case
// services, the chatbot router and the refresh scheduler.
type App struct {
	cfg    config.Config
	logger *logging.Logger

	db        *sqlx.DB
	router    *chatbot.Router
	scheduler *Scheduler
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var (
		db   *sqlx.DB
		repo roster.Repository
		err  error
	)
	if cfg.DBURL == "" {
		// Roster survives only as long as the process. Fine for local
		// runs, not for a deployment.
		logger.Warn("DB_URL not set, using in-memory roster store")
		repo = memory.NewRosterRepository()
	} else {
		db, err = otelsqlx.Connect("postgres", cfg.DBURL,
			otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
			otelsql.WithDBName("ps_tracker"),
		)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		repo = postgres.NewRosterRepository(db)
	}

	statsClient := omeda.NewClient(omeda.ClientConfig{
		BaseURL:    cfg.OmedaBaseURL,
		Timeout:    cfg.OmedaTimeout,
		MaxRetries: cfg.OmedaMaxRetries,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.OmedaCircuitEnabled,
			FailureThreshold: cfg.OmedaCircuitFailureCount,
			OpenTimeout:      cfg.OmedaCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.OmedaCircuitHalfOpenMaxReq,
		},
		CacheEnabled: cfg.OmedaCacheEnabled,
		CacheTTL:     cfg.OmedaCacheTTL,
	}, logger)

	bot, err := telegram.NewClient(telegram.ClientConfig{
		Token:       cfg.TelegramToken,
		BaseURL:     cfg.TelegramBaseURL,
		Timeout:     cfg.TelegramTimeout,
		PollTimeout: cfg.TelegramPollTimeout,
	}, logger)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	rosterSvc := usecase.NewRosterService(repo, logger)
	scoreSvc := usecase.NewScoreService(statsClient, cfg.FetchWorkers, logger)
	deltaSvc := usecase.NewDeltaService(logger)
	reportSvc := usecase.NewReportService(rosterSvc, scoreSvc, deltaSvc, logger)
	refreshSvc := usecase.NewRefreshService(rosterSvc, scoreSvc, logger)

	messenger := chatbot.NewTelegramMessenger(bot)
	registrationSvc := usecase.NewRegistrationService(rosterSvc, statsClient, messenger, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		router:    chatbot.NewRouter(bot, registrationSvc, reportSvc, logger),
		scheduler: NewScheduler(refreshSvc, cfg.RefreshHour, logger),
	}, nil
}

// Run drives the poll loop and the refresh scheduler until the context
// is cancelled. The first hard failure in either loop stops both.
func (a *App) Run(ctx context.Context) error {
	group := pool.New().WithContext(ctx).WithCancelOnError()
	group.Go(a.router.Run)
	group.Go(a.scheduler.Run)

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
