package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tagihanair/internal/cache"
	"tagihanair/internal/core"
	"tagihanair/internal/ledger"
	"tagihanair/internal/log"
	"tagihanair/internal/sheets"
)

// EventRecorder receives every persisted ledger change.
type EventRecorder interface {
	Record(ctx context.Context, ev core.LedgerEvent) error
}

// ErrWritesDisabled is returned for writes while the store is offline.
var ErrWritesDisabled = fmt.Errorf("writes disabled: %w", sheets.ErrUnavailable)

// Options configures a BillingService.
type Options struct {
	LedgerSheet string
	LedgerTTL   time.Duration
	Location    *time.Location
	Now         func() time.Time
	Recorder    EventRecorder
	Logger      *log.Logger
	CacheOpts   []cache.Option
}

// BillingService runs the user-facing operations against the workbook.
type BillingService struct {
	book     sheets.Workbook
	prices   *PriceAccessor
	sheet    string
	loc      *time.Location
	now      func() time.Time
	ledger   *cache.Value[ledger.Table]
	recorder EventRecorder
	logger   *log.Logger

	// writeMu serializes read-modify-write cycles within this process.
	writeMu sync.Mutex
}

// NewBillingService wires the service. Zero-valued options take defaults.
func NewBillingService(book sheets.Workbook, prices *PriceAccessor, opts Options) *BillingService {
	if opts.LedgerSheet == "" {
		opts.LedgerSheet = "Sheet1"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &BillingService{
		book:     book,
		prices:   prices,
		sheet:    opts.LedgerSheet,
		loc:      opts.Location,
		now:      opts.Now,
		ledger:   cache.NewValue[ledger.Table](opts.LedgerTTL, opts.CacheOpts...),
		recorder: opts.Recorder,
		logger:   opts.Logger.WithComponent(log.ComponentBilling),
	}
}

// WritesEnabled is false when the workbook could not be reached at startup.
func (s *BillingService) WritesEnabled() bool { return !sheets.IsOffline(s.book) }

// Price returns the active unit price with any fallback warnings.
func (s *BillingService) Price(ctx context.Context) (core.UnitPrice, []Warning) {
	return s.prices.Load(ctx)
}

// Ledger returns the cached ledger. Read failures yield an empty table and a
// warning instead of an error.
func (s *BillingService) Ledger(ctx context.Context) (ledger.Table, []Warning) {
	tbl, err := s.ledger.GetOrLoad(ctx, func(ctx context.Context) (ledger.Table, error) {
		_, tbl, err := s.readLedger(ctx)
		return tbl, err
	})
	if err != nil {
		w := ledgerWarning(s.sheet, err)
		s.logger.WarnContext(ctx, "Ledger unavailable",
			log.FieldOperation, log.OpRead, log.FieldWarning, w.Code, log.FieldSheet, s.sheet, log.FieldError, err)
		return ledger.Table{}, []Warning{w}
	}
	return tbl, nil
}

func (s *BillingService) readLedger(ctx context.Context) (sheets.Worksheet, ledger.Table, error) {
	ws, err := s.book.Worksheet(ctx, s.sheet)
	if err != nil {
		return nil, nil, err
	}
	rows, err := ws.ReadAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ws, ledger.Parse(rows, s.loc), nil
}

// Dashboard is everything the overview page shows.
type Dashboard struct {
	Summary       core.Summary
	Price         core.UnitPrice
	Records       ledger.Table
	Customers     []ledger.CustomerOption
	Warnings      []Warning
	WritesEnabled bool
	FetchedAt     time.Time
}

// Dashboard loads the ledger and price and aggregates them.
func (s *BillingService) Dashboard(ctx context.Context) Dashboard {
	tbl, warns := s.Ledger(ctx)
	price, pwarns := s.prices.Load(ctx)
	warns = mergeWarnings(warns, pwarns)
	return Dashboard{
		Summary:       ledger.Summarize(tbl),
		Price:         price,
		Records:       tbl,
		Customers:     tbl.Customers(),
		Warnings:      warns,
		WritesEnabled: s.WritesEnabled(),
		FetchedAt:     s.ledger.FetchedAt(),
	}
}

// LastRecord returns the customer's latest record from the cached ledger.
func (s *BillingService) LastRecord(ctx context.Context, code string) (core.CustomerRecord, []Warning, error) {
	tbl, warns := s.Ledger(ctx)
	rec, err := ledger.FindLatest(tbl, code)
	return rec, warns, err
}

// Refresh drops the cached ledger and price.
func (s *BillingService) Refresh() {
	s.ledger.Invalidate()
	s.prices.Invalidate()
}

// UpdateRequest is the billing form input.
type UpdateRequest struct {
	Code           string
	CurrentReading decimal.Decimal
	AmountPaid     decimal.Decimal
}

// UpdateResult carries the computed bill whether or not it was stored.
type UpdateResult struct {
	Previous core.CustomerRecord
	Record   core.CustomerRecord
	Bill     core.Bill
	Price    core.UnitPrice
	Saved    bool
	Warnings []Warning
}

// UpdateCustomer records a new reading and payment for a customer. The ledger
// is read fresh, the latest record validated and recomputed, and its stored
// row overwritten. When the write itself fails the computed result is still
// returned, with Saved false and an error wrapping core.ErrWriteFailed.
func (s *BillingService) UpdateCustomer(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	if !s.WritesEnabled() {
		return UpdateResult{}, ErrWritesDisabled
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	price, warns := s.prices.Load(ctx)
	ws, tbl, err := s.readLedger(ctx)
	if err != nil {
		return UpdateResult{Warnings: warns}, fmt.Errorf("read ledger: %w", err)
	}
	last, err := ledger.FindLatest(tbl, req.Code)
	if err != nil {
		return UpdateResult{Warnings: warns}, err
	}
	if err := ledger.ValidateReading(last, req.CurrentReading, req.AmountPaid); err != nil {
		return UpdateResult{Previous: last, Warnings: warns}, err
	}

	next, bill := core.NextPeriod(last, req.CurrentReading, req.AmountPaid, price, s.now().In(s.loc))
	res := UpdateResult{Previous: last, Record: next, Bill: bill, Price: price, Warnings: warns}

	// Other processes may write to the sheet; confirm the row still holds the
	// record the bill was computed from before overwriting it.
	rows, err := ws.ReadAll(ctx)
	if err != nil {
		return res, fmt.Errorf("re-read ledger: %w", err)
	}
	row, err := ledger.ResolveStoragePosition(ledger.Parse(rows, s.loc), last)
	if err != nil {
		s.logger.WarnContext(ctx, "Ledger row changed before update",
			log.FieldCustomerCode, last.Code, log.FieldRow, last.Row, log.FieldError, err)
		return res, err
	}
	fields := log.NewFields().WithCustomer(next.Code, row).WithOperation(log.OpUpdate)
	if err := ws.UpdateRow(ctx, row, next.Values()); err != nil {
		s.logger.ErrorContext(ctx, "Ledger update failed", fields.WithError(err).ToSlice()...)
		return res, fmt.Errorf("update row %d: %w: %w", row, core.ErrWriteFailed, err)
	}
	res.Saved = true
	s.ledger.Invalidate()
	s.logger.InfoContext(ctx, "Ledger row updated", append(fields.ToSlice(), log.FieldBalance, bill.Balance.String())...)

	s.record(ctx, core.LedgerEvent{
		Kind:       core.EventBillingUpdated,
		Record:     next,
		UnitPrice:  price.PerCubicMeter,
		OccurredAt: next.RecordedAt,
	})
	return res, nil
}

// RegisterCustomer validates and appends a new customer row.
func (s *BillingService) RegisterCustomer(ctx context.Context, reg core.Registration) (core.CustomerRecord, error) {
	if !s.WritesEnabled() {
		return core.CustomerRecord{}, ErrWritesDisabled
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	reg = reg.Normalize()
	ws, err := s.book.Worksheet(ctx, s.sheet)
	if err != nil {
		return core.CustomerRecord{}, fmt.Errorf("open ledger: %w", err)
	}
	rows, err := ws.ReadAll(ctx)
	if err != nil {
		return core.CustomerRecord{}, fmt.Errorf("read ledger: %w", err)
	}
	if err := ledger.ValidateNewCustomer(ledger.Parse(rows, s.loc), reg); err != nil {
		return core.CustomerRecord{}, err
	}

	rec := core.NewCustomerRecord(reg, s.now().In(s.loc))
	fields := log.NewFields().WithCustomer(rec.Code, 0).WithOperation(log.OpRegister)
	if len(rows) == 0 {
		if err := ws.UpdateRow(ctx, 1, ledgerHeader()); err != nil {
			s.logger.ErrorContext(ctx, "Ledger header write failed", fields.WithError(err).ToSlice()...)
			return rec, fmt.Errorf("write header: %w: %w", core.ErrWriteFailed, err)
		}
	}
	if err := ws.AppendRow(ctx, rec.Values()); err != nil {
		s.logger.ErrorContext(ctx, "Customer registration failed", fields.WithError(err).ToSlice()...)
		return rec, fmt.Errorf("append customer: %w: %w", core.ErrWriteFailed, err)
	}
	s.ledger.Invalidate()
	s.logger.InfoContext(ctx, "Customer registered", fields.ToSlice()...)

	s.record(ctx, core.LedgerEvent{
		Kind:       core.EventCustomerRegistered,
		Record:     rec,
		OccurredAt: rec.RecordedAt,
	})
	return rec, nil
}

// UpdatePrice stores a new unit price. Bills already written keep the price
// they were computed with.
func (s *BillingService) UpdatePrice(ctx context.Context, value decimal.Decimal) error {
	if !s.WritesEnabled() {
		return ErrWritesDisabled
	}
	if err := s.prices.Update(ctx, value); err != nil {
		return err
	}
	s.record(ctx, core.LedgerEvent{
		Kind:       core.EventPriceChanged,
		UnitPrice:  value,
		OccurredAt: s.now().In(s.loc),
	})
	return nil
}

func (s *BillingService) record(ctx context.Context, ev core.LedgerEvent) {
	if s.recorder == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.recorder.Record(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to record ledger event",
			log.FieldOperation, log.OpRecord,
			log.FieldEventID, ev.ID,
			log.FieldEventKind, ev.Kind, log.FieldCustomerCode, ev.Record.Code, log.FieldError, err)
	}
}

func ledgerHeader() []any {
	out := make([]any, len(ledger.Columns))
	for i, c := range ledger.Columns {
		out[i] = c
	}
	return out
}

func mergeWarnings(a, b []Warning) []Warning {
	out := append([]Warning(nil), a...)
	for _, w := range b {
		if HasWarning(out, w.Code) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// IsUserError reports whether err is a rejected input rather than a store failure.
func IsUserError(err error) bool {
	var verr *core.ValidationError
	return errors.As(err, &verr) || errors.Is(err, core.ErrRecordNotFound)
}
