package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/balance"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/ap"
	"github.com/odyssey-erp/ledger/internal/integration"
	"github.com/odyssey-erp/ledger/internal/observability"
	"github.com/odyssey-erp/ledger/internal/platform/breaker"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// Dependencies are the process-wide handles the services are built on.
type Dependencies struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Services is the wired application layer shared by the server and worker.
type Services struct {
	Journals    *journals.Service
	Mappings    mappings.Repository
	Gaps        *integration.GapRepository
	Integration *integration.Client
	Reconciler  *integration.Reconciler
	AP          *ap.Service
}

// BuildServices wires repositories, remote clients and services from cfg.
func BuildServices(cfg *Config, deps Dependencies) (*Services, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver, err := periods.NewResolver(cfg.FiscalYearStartMonth, cfg.SpecialPeriods)
	if err != nil {
		return nil, fmt.Errorf("app: fiscal calendar: %w", err)
	}
	mode, err := balance.ParseMode(cfg.LedgerBalanceMode)
	if err != nil {
		return nil, fmt.Errorf("app: balance mode: %w", err)
	}

	journalService := journals.NewService(
		journals.NewRepository(deps.Pool),
		resolver,
		shared.NewAuditLogger(deps.Pool),
		logger.With(slog.String("component", "journals")),
	)
	journalService.WithBalanceMode(mode)
	if deps.Metrics != nil {
		journalService.WithMetrics(deps.Metrics)
	}
	if checker := buildAccountChecker(cfg, deps, logger); checker != nil {
		journalService.WithAccountChecker(checker)
	} else {
		logger.Warn("COA_SERVICE_URL not set, account validation disabled")
	}

	gaps := integration.NewGapRepository(deps.Pool)
	client := integration.NewClient(
		integration.NewPool(cfg.GLPoolSize, transportFactory(cfg, journalService, logger)),
		gaps,
		cfg.GLTimeout,
		logger.With(slog.String("component", "gl-integration")),
	)
	if deps.Metrics != nil {
		client.WithMetrics(deps.Metrics)
	}

	mappingRepo := mappings.NewRepository(deps.Pool)
	hooks := integration.NewHooks(client, mappingRepo)

	apService := ap.NewService(ap.NewRepository(deps.Pool), hooks, logger.With(slog.String("component", "ap")))
	client.WithResolutionListener(apService)

	return &Services{
		Journals:    journalService,
		Mappings:    mappingRepo,
		Gaps:        gaps,
		Integration: client,
		Reconciler:  integration.NewReconciler(client, gaps, deps.Redis, logger.With(slog.String("component", "reconciler"))),
		AP:          apService,
	}, nil
}

func buildAccountChecker(cfg *Config, deps Dependencies, logger *slog.Logger) journals.AccountChecker {
	if cfg.COAServiceURL == "" {
		return nil
	}
	var validator accounts.Validator = accounts.NewClient(accounts.ClientConfig{
		BaseURL:             cfg.COAServiceURL,
		Timeout:             cfg.COATimeout,
		BreakerFailures:     cfg.COABreakerFailures,
		BreakerOpenDuration: 30 * time.Second,
	}, logger.With(slog.String("component", "coa")))
	if deps.Redis != nil && cfg.COACacheTTL > 0 {
		validator = accounts.NewCachedValidator(validator, deps.Redis, cfg.COACacheTTL, logger)
	}
	var recorder accounts.ValidationRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	return accounts.NewEntryValidator(validator, cfg.COAChart, recorder)
}

// transportFactory posts in-process when no remote ledger is configured.
// Remote handles share one breaker so a failing ledger opens it once.
func transportFactory(cfg *Config, service *journals.Service, logger *slog.Logger) func(slot int) integration.Transport {
	if cfg.GLServiceURL == "" {
		return func(int) integration.Transport {
			return integration.NewLocalTransport(service)
		}
	}
	b := breaker.New(breaker.Settings{
		Name:                "gl-service",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}, logger)
	return func(int) integration.Transport {
		return integration.NewHTTPTransport(cfg.GLServiceURL, b)
	}
}
