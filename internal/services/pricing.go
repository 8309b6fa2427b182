package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tagihanair/internal/cache"
	"tagihanair/internal/core"
	"tagihanair/internal/log"
	"tagihanair/internal/sheets"
)

// PriceKey is the configuration row holding the unit price.
const PriceKey = "Harga Per Meter Kubik"

// DefaultUnitPrice applies when the configuration cannot supply one.
var DefaultUnitPrice = decimal.NewFromInt(2500)

var configHeader = []any{"Key", "Value"}

type priceResult struct {
	price    core.UnitPrice
	warnings []Warning
}

// PriceAccessor reads and writes the unit price in the configuration sheet.
type PriceAccessor struct {
	book     sheets.Workbook
	sheet    string
	fallback core.UnitPrice
	cache    *cache.Value[priceResult]
	logger   *log.Logger
}

// NewPriceAccessor creates an accessor that caches the loaded price for ttl.
func NewPriceAccessor(book sheets.Workbook, sheet string, fallback decimal.Decimal, ttl time.Duration, logger *log.Logger, opts ...cache.Option) *PriceAccessor {
	if logger == nil {
		logger = log.Discard()
	}
	if fallback.IsNegative() {
		fallback = DefaultUnitPrice
	}
	return &PriceAccessor{
		book:     book,
		sheet:    sheet,
		fallback: core.NewUnitPrice(fallback),
		cache:    cache.NewValue[priceResult](ttl, opts...),
		logger:   logger.WithComponent(log.ComponentPricing),
	}
}

// Load returns the configured unit price, or the fallback together with a
// warning describing why the configured value could not be used. It never fails.
func (p *PriceAccessor) Load(ctx context.Context) (core.UnitPrice, []Warning) {
	res, err := p.cache.GetOrLoad(ctx, p.read)
	if err != nil {
		w := Warning{
			Code:    WarnConfigReadFailed,
			Message: fmt.Sprintf("Gagal memuat konfigurasi harga. Error: %v.", err) + fallbackSuffix(p.fallback),
		}
		if errors.Is(err, sheets.ErrUnavailable) {
			w = storeUnavailable()
			w.Message += fallbackSuffix(p.fallback)
		}
		p.logger.WarnContext(ctx, "Unit price unavailable, using fallback",
			log.FieldWarning, w.Code, log.FieldError, err, log.FieldUnitPrice, p.fallback.PerCubicMeter.String())
		return p.fallback, []Warning{w}
	}
	for _, w := range res.warnings {
		p.logger.WarnContext(ctx, "Unit price fallback", log.FieldWarning, w.Code, log.FieldSheet, p.sheet)
	}
	return res.price, append([]Warning(nil), res.warnings...)
}

// read loads the price. Configuration problems come back as warnings and are
// cached like a normal result; only store failures are returned as errors so
// the next request retries.
func (p *PriceAccessor) read(ctx context.Context) (priceResult, error) {
	ws, err := p.book.Worksheet(ctx, p.sheet)
	if err != nil {
		if errors.Is(err, sheets.ErrWorksheetNotFound) {
			return p.degraded(WarnConfigSheetMissing, fmt.Sprintf("Worksheet '%s' tidak ditemukan.", p.sheet)), nil
		}
		return priceResult{}, err
	}
	rows, err := ws.ReadAll(ctx)
	if err != nil {
		return priceResult{}, err
	}

	idx := findKeyRow(rows, PriceKey)
	if idx < 0 {
		return p.degraded(WarnPriceKeyMissing,
			fmt.Sprintf("Key '%s' tidak ditemukan di sheet '%s'.", PriceKey, p.sheet)), nil
	}
	raw := ""
	if len(rows[idx]) > 1 {
		raw = strings.TrimSpace(rows[idx][1])
	}
	if raw == "" {
		return p.degraded(WarnPriceEmpty,
			fmt.Sprintf("Nilai harga kosong di sheet '%s'.", p.sheet)), nil
	}
	value, err := core.ParseAmount(raw)
	if err != nil {
		return p.degraded(WarnPriceInvalid,
			fmt.Sprintf("Nilai harga tidak valid di sheet '%s'.", p.sheet)), nil
	}
	return priceResult{price: core.NewUnitPrice(value)}, nil
}

func (p *PriceAccessor) degraded(code WarningCode, msg string) priceResult {
	return priceResult{
		price:    p.fallback,
		warnings: []Warning{{Code: code, Message: msg + fallbackSuffix(p.fallback)}},
	}
}

// Update stores a new unit price: an empty sheet gets a header row first, an
// existing key has its value cell overwritten, and a missing key is appended.
// The cached price is dropped after a successful write.
func (p *PriceAccessor) Update(ctx context.Context, value decimal.Decimal) error {
	if value.IsNegative() {
		return &core.ValidationError{Field: "unit_price", Err: core.ErrNegativeAmount}
	}
	ws, err := p.book.Worksheet(ctx, p.sheet)
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", p.sheet, core.ErrWriteFailed, err)
	}
	rows, err := ws.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("read %s: %w: %w", p.sheet, core.ErrWriteFailed, err)
	}

	// A number, not text: USER_ENTERED would read "2750.5" by the sheet locale.
	cell := value.InexactFloat64()
	switch idx := findKeyRow(rows, PriceKey); {
	case isEmptySheet(rows):
		if err := ws.UpdateRow(ctx, 1, configHeader); err != nil {
			return fmt.Errorf("write header: %w: %w", core.ErrWriteFailed, err)
		}
		if err := ws.AppendRow(ctx, []any{PriceKey, cell}); err != nil {
			return fmt.Errorf("append price: %w: %w", core.ErrWriteFailed, err)
		}
	case idx >= 0:
		if err := ws.UpdateCell(ctx, idx+1, 2, cell); err != nil {
			return fmt.Errorf("update price: %w: %w", core.ErrWriteFailed, err)
		}
	default:
		if err := ws.AppendRow(ctx, []any{PriceKey, cell}); err != nil {
			return fmt.Errorf("append price: %w: %w", core.ErrWriteFailed, err)
		}
	}

	p.Invalidate()
	p.logger.InfoContext(ctx, "Unit price updated", log.FieldUnitPrice, value.String(), log.FieldSheet, p.sheet)
	return nil
}

// Invalidate drops the cached price.
func (p *PriceAccessor) Invalidate() { p.cache.Invalidate() }

// findKeyRow returns the 0-based index into rows of the data row whose key
// matches. The header row is never matched.
func findKeyRow(rows [][]string, key string) int {
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		if strings.TrimSpace(row[0]) == key {
			return i
		}
	}
	return -1
}

func isEmptySheet(rows [][]string) bool {
	for _, row := range rows {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				return false
			}
		}
	}
	return true
}
