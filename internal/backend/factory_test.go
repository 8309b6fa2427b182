package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"tagihanair/internal/config"
	"tagihanair/internal/sheets"
	"tagihanair/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataBackend:      "memory",
		DataDir:          t.TempDir(),
		LedgerSheetName:  "Sheet1",
		ConfigSheetName:  "Konfigurasi",
		DefaultUnitPrice: decimal.NewFromInt(2500),
	}
}

func TestCreateMemoryBackendDefaults(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	res, err := NewFactory(nil).Create(ctx, cfg)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer res.Cleanup()

	if res.Offline != nil || sheets.IsOffline(res.Workbook) {
		t.Fatal("memory backend should be online")
	}
	if res.Recorder != nil || res.History != nil {
		t.Error("history should be disabled without HISTORY_DB_PATH")
	}

	ws, err := res.Workbook.Worksheet(ctx, "Konfigurasi")
	if err != nil {
		t.Fatalf("config sheet: %v", err)
	}
	rows, _ := ws.ReadAll(ctx)
	if len(rows) != 2 || rows[1][0] != "Harga Per Meter Kubik" || rows[1][1] != "2500" {
		t.Errorf("default config rows = %v", rows)
	}

	ledgerWS, err := res.Workbook.Worksheet(ctx, "Sheet1")
	if err != nil {
		t.Fatalf("ledger sheet: %v", err)
	}
	rows, _ = ledgerWS.ReadAll(ctx)
	if len(rows) != 1 || rows[0][0] != "KODE PELANGGAN" {
		t.Errorf("default ledger rows = %v", rows)
	}
}

func TestCreateMemoryBackendFromFiles(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	csv := "Key,Value\nHarga Per Meter Kubik,3000\n"
	if err := os.WriteFile(filepath.Join(cfg.DataDir, ConfigFile), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFactory(nil).Create(ctx, cfg)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ws, _ := res.Workbook.Worksheet(ctx, "Konfigurasi")
	rows, _ := ws.ReadAll(ctx)
	if len(rows) != 2 || rows[1][1] != "3000" {
		t.Errorf("config rows = %v, want seeded price 3000", rows)
	}
}

func TestCreateSheetsBackendWithoutCredentialsIsOffline(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.DataBackend = "sheets"
	cfg.GoogleSpreadsheetID = "1AbC"

	res, err := NewFactory(nil).Create(ctx, cfg)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if res.Offline == nil || !sheets.IsOffline(res.Workbook) {
		t.Fatal("expected offline workbook")
	}
	if _, err := res.Workbook.Worksheet(ctx, "Sheet1"); !errors.Is(err, sheets.ErrUnavailable) {
		t.Errorf("Worksheet() = %v, want ErrUnavailable", err)
	}
}

func TestCreateWithHistoryDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.HistoryDBPath = filepath.Join(t.TempDir(), "history.db")

	res, err := NewFactory(nil).Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, ok := res.Recorder.(*storage.HistoryRepository); !ok {
		t.Errorf("Recorder = %T, want direct history repository", res.Recorder)
	}
	if res.History == nil {
		t.Error("History reader should be set")
	}
	if err := res.Cleanup(); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}
}

func TestCreateRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataBackend = "sqlite"
	if _, err := NewFactory(nil).Create(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := NewFactory(nil).Create(context.Background(), nil); err == nil {
		t.Error("expected error for nil config")
	}
}
