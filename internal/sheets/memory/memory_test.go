package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	ports "tagihanair/internal/sheets"
)

func TestStoreReadWrite(t *testing.T) {
	ctx := context.Background()
	s := New("Sheet1")

	ws, err := s.Worksheet(ctx, "Sheet1")
	if err != nil {
		t.Fatalf("worksheet: %v", err)
	}
	if err := ws.AppendRow(ctx, []any{"A001", "Budi", 120.5, nil}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := ws.UpdateCell(ctx, 3, 2, "x"); err != nil {
		t.Fatalf("update cell: %v", err)
	}
	if err := ws.UpdateRow(ctx, 1, []any{"KODE", "NAMA"}); err != nil {
		t.Fatalf("update row: %v", err)
	}

	rows, err := ws.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %v", len(rows), rows)
	}
	if rows[0][0] != "KODE" || rows[0][1] != "NAMA" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[2][1] != "x" || rows[2][0] != "" {
		t.Fatalf("unexpected cell write: %v", rows[2])
	}

	// ReadAll hands out copies.
	rows[0][0] = "mutated"
	if s.Rows("Sheet1")[0][0] != "KODE" {
		t.Fatal("ReadAll leaked internal state")
	}
}

func TestStoreMissingTabAndFailingWrites(t *testing.T) {
	ctx := context.Background()
	s := New("Sheet1")
	if _, err := s.Worksheet(ctx, "Konfigurasi"); !errors.Is(err, ports.ErrWorksheetNotFound) {
		t.Fatalf("expected ErrWorksheetNotFound, got %v", err)
	}

	ws, _ := s.Worksheet(ctx, "Sheet1")
	s.FailWrites = true
	if err := ws.AppendRow(ctx, []any{"a"}); err == nil {
		t.Fatal("expected rejected append")
	}
	if err := ws.UpdateRow(ctx, 2, []any{"a"}); err == nil {
		t.Fatal("expected rejected update")
	}
	if len(s.Rows("Sheet1")) != 0 {
		t.Fatal("failed writes must not change the grid")
	}

	s.DeleteTab("Sheet1")
	if _, err := ws.ReadAll(ctx); !errors.Is(err, ports.ErrWorksheetNotFound) {
		t.Fatalf("expected ErrWorksheetNotFound after delete, got %v", err)
	}
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()
	defaults := map[string][][]string{
		"Konfigurasi": {{"Key", "Value"}, {"Harga Per Meter Kubik", "2500"}},
	}
	files := map[string]string{"Sheet1": "ledger.csv", "Konfigurasi": "config.csv"}

	s := NewFromFiles(dir, files, defaults)
	if got := s.Rows("Konfigurasi"); len(got) != 2 || got[1][1] != "2500" {
		t.Fatalf("expected defaults when files are missing, got %v", got)
	}
	if _, err := s.Worksheet(context.Background(), "Sheet1"); err != nil {
		t.Fatalf("tab without file or default should still exist: %v", err)
	}

	content := "# seeded ledger\nKODE PELANGGAN,NAMA\nA001,Budi\n"
	if err := os.WriteFile(filepath.Join(dir, "ledger.csv"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s = NewFromFiles(dir, files, defaults)
	rows := s.Rows("Sheet1")
	if len(rows) != 2 || rows[1][0] != "A001" {
		t.Fatalf("unexpected seeded rows: %v", rows)
	}
}
