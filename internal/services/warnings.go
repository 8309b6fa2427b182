package services

import (
	"errors"
	"fmt"

	"tagihanair/internal/core"
	"tagihanair/internal/sheets"
)

// WarningCode identifies a degraded read so callers and tests can tell the
// cases apart without matching on text.
type WarningCode string

const (
	WarnStoreUnavailable   WarningCode = "store_unavailable"
	WarnConfigSheetMissing WarningCode = "config_sheet_missing"
	WarnPriceKeyMissing    WarningCode = "price_key_missing"
	WarnPriceEmpty         WarningCode = "price_empty"
	WarnPriceInvalid       WarningCode = "price_invalid"
	WarnConfigReadFailed   WarningCode = "config_read_failed"
	WarnLedgerSheetMissing WarningCode = "ledger_sheet_missing"
	WarnLedgerReadFailed   WarningCode = "ledger_read_failed"
	WarnHistoryFailed      WarningCode = "history_failed"
)

// Warning is a user-visible notice; Message is shown as-is in the UI.
type Warning struct {
	Code    WarningCode
	Message string
}

func (w Warning) String() string { return string(w.Code) + ": " + w.Message }

// HasWarning reports whether ws contains code.
func HasWarning(ws []Warning, code WarningCode) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}

func fallbackSuffix(price core.UnitPrice) string {
	return fmt.Sprintf(" Menggunakan harga default (%s).", core.FormatRupiah(price.PerCubicMeter))
}

func storeUnavailable() Warning {
	return Warning{
		Code:    WarnStoreUnavailable,
		Message: "Gagal terhubung ke Google Sheets. Pastikan API telah diaktifkan dan Sheet sudah di-share. Perubahan data dinonaktifkan.",
	}
}

// ledgerWarning classifies a failed ledger read.
func ledgerWarning(sheet string, err error) Warning {
	switch {
	case errors.Is(err, sheets.ErrUnavailable):
		return storeUnavailable()
	case errors.Is(err, sheets.ErrWorksheetNotFound):
		return Warning{
			Code:    WarnLedgerSheetMissing,
			Message: fmt.Sprintf("Worksheet '%s' tidak ditemukan. Silakan buat terlebih dahulu.", sheet),
		}
	default:
		return Warning{
			Code:    WarnLedgerReadFailed,
			Message: fmt.Sprintf("Gagal memuat data dari worksheet. Error: %v", err),
		}
	}
}
