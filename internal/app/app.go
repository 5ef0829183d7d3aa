// Package app wires configuration, storage and services into one runnable unit.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/services/ledger"
	"github.com/bobmcallan/folio/internal/services/quote"
	"github.com/bobmcallan/folio/internal/services/snapshot"
	"github.com/bobmcallan/folio/internal/services/timeseries"
	"github.com/bobmcallan/folio/internal/services/valuation"
	"github.com/bobmcallan/folio/internal/storage"
)

// App holds all initialized services. It is shared by the HTTP server and
// the maintenance commands.
type App struct {
	Config            *common.Config
	Logger            *common.Logger
	Storage           interfaces.StorageManager
	LedgerService     interfaces.LedgerService
	QuoteService      interfaces.QuoteService
	ValuationService  interfaces.ValuationService
	SnapshotService   interfaces.SnapshotService
	TimeseriesService interfaces.TimeseriesService
	StartupTime       time.Time

	scheduler *Scheduler
	valuation *valuation.Service
	snapshots *snapshot.Service
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the explicit path, then FOLIO_CONFIG, then
// folio.toml next to the binary, then config/folio.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("FOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "folio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/folio.toml"
		}
	}
	return configPath
}

// NewApp loads configuration, opens storage and builds the services.
// configPath may be empty, in which case ResolveConfigPath decides.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(getBinaryDir(), config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a, err := New(config, logger, storageManager)
	if err != nil {
		storageManager.Close()
		return nil, err
	}
	a.StartupTime = startupStart

	logger.Info().
		Str("backend", storageManager.Backend()).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// New builds the service graph over an already opened storage manager.
func New(config *common.Config, logger *common.Logger, sm interfaces.StorageManager) (*App, error) {
	quoteService := quote.NewService(sm.PriceStore(), config.Prices, logger)
	snapshotService := snapshot.NewService(sm.SnapshotStore(), config.Portfolio, logger)

	valuationService, err := valuation.NewService(sm.LedgerStore(), quoteService, snapshotService, config.Portfolio, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create valuation service: %w", err)
	}

	ledgerService := ledger.NewService(sm.LedgerStore(), logger)
	ledgerService.AddListener(valuationService)

	timeseriesService := timeseries.NewService(sm.LedgerStore(), quoteService, snapshotService, config.Portfolio.IncludeWalletInTPV, logger)

	return &App{
		Config:            config,
		Logger:            logger,
		Storage:           sm,
		LedgerService:     ledgerService,
		QuoteService:      quoteService,
		ValuationService:  valuationService,
		SnapshotService:   snapshotService,
		TimeseriesService: timeseriesService,
		StartupTime:       time.Now(),
		valuation:         valuationService,
		snapshots:         snapshotService,
	}, nil
}

// StartScheduler registers the periodic revaluation job when enabled.
func (a *App) StartScheduler() error {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Scheduler disabled")
		return nil
	}
	s := NewScheduler(a.Logger)
	job := &revalueJob{ledger: a.Storage.LedgerStore(), valuation: a.ValuationService, logger: a.Logger}
	if err := s.AddJob(a.Config.Scheduler.RevalueSpec, job); err != nil {
		return fmt.Errorf("failed to schedule revaluation: %w", err)
	}
	s.Start()
	a.scheduler = s
	return nil
}

// Close releases all resources held by the App.
// Shutdown order: stop scheduler, drain background revaluations, drain
// snapshot writes, close storage.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
	if a.valuation != nil {
		a.valuation.Wait()
	}
	if a.snapshots != nil {
		a.snapshots.Wait()
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
