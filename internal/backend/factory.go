package backend

import (
	"context"
	"errors"
	"fmt"

	"tagihanair/internal/amqp"
	"tagihanair/internal/config"
	"tagihanair/internal/ledger"
	"tagihanair/internal/log"
	"tagihanair/internal/services"
	"tagihanair/internal/sheets"
	gsheet "tagihanair/internal/sheets/google"
	"tagihanair/internal/sheets/memory"
	"tagihanair/internal/storage"
)

// Seed files read by the memory backend from DATA_DIR.
const (
	LedgerFile = "ledger.csv"
	ConfigFile = "config.csv"
)

// Factory builds the workbook and history plumbing from configuration.
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create opens the configured backend. A Sheets client that cannot be created
// is not an error: the result carries an offline workbook instead.
func (f *Factory) Create(ctx context.Context, cfg *config.Config) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("app config is nil")
	}
	bt := BackendType(cfg.DataBackend)
	if !bt.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	res := &Result{}
	switch bt {
	case SheetsBackend:
		res.Workbook, res.Offline = f.createSheets(ctx, cfg)
	case MemoryBackend:
		res.Workbook = f.createMemory(cfg)
	}

	var closers []func() error
	var repo *storage.HistoryRepository
	if cfg.HistoryDBPath != "" {
		var err error
		repo, err = storage.NewHistoryRepository(cfg.HistoryDBPath)
		if err != nil {
			return nil, fmt.Errorf("open history database: %w", err)
		}
		closers = append(closers, repo.Close)
		res.History = repo
		res.Recorder = repo
		f.logger.Info("Billing history enabled", "db_path", cfg.HistoryDBPath)
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Keep writing history directly when the database is local.
			f.logger.Warn("Failed to initialize AMQP client, continuing without publishing",
				log.FieldError, err, "direct_history", repo != nil)
		} else {
			closers = append(closers, client.Close)
			res.Recorder = client
			f.logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return res, nil
}

func (f *Factory) createSheets(ctx context.Context, cfg *config.Config) (sheets.Workbook, error) {
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		f.logger.Error("Google Sheets unavailable, starting read-only", log.FieldError, err)
		return sheets.Offline(err), err
	}
	f.logger.Info("Initialized Google Sheets backend",
		log.FieldSheet, cfg.LedgerSheetName,
		"config_sheet", cfg.ConfigSheetName)
	return client, nil
}

func (f *Factory) createMemory(cfg *config.Config) sheets.Workbook {
	store := memory.NewFromFiles(cfg.DataDir,
		map[string]string{
			cfg.LedgerSheetName: LedgerFile,
			cfg.ConfigSheetName: ConfigFile,
		},
		map[string][][]string{
			cfg.LedgerSheetName: {ledger.Columns},
			cfg.ConfigSheetName: {
				{"Key", "Value"},
				{services.PriceKey, cfg.DefaultUnitPrice.String()},
			},
		})
	f.logger.Info("Initialized memory backend", "data_directory", cfg.DataDir)
	return store
}
