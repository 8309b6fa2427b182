package services

import (
	"context"
	"fmt"
	"time"

	"tagihanair/internal/cache"
	"tagihanair/internal/core"
	"tagihanair/internal/log"
)

// HistoryReader lists recorded ledger events for one customer, newest first.
type HistoryReader interface {
	ListByCustomer(ctx context.Context, code string, limit int) ([]core.LedgerEvent, error)
}

// HistoryService serves per-customer billing history with a short cache.
type HistoryService struct {
	reader HistoryReader
	cache  *cache.TTL[[]core.LedgerEvent]
	limit  int
	logger *log.Logger
}

// NewHistoryService returns nil when reader is nil; a nil service reports
// itself disabled.
func NewHistoryService(reader HistoryReader, ttl time.Duration, limit int, logger *log.Logger, opts ...cache.Option) *HistoryService {
	if reader == nil {
		return nil
	}
	if limit <= 0 {
		limit = 24
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &HistoryService{
		reader: reader,
		cache:  cache.NewTTL[[]core.LedgerEvent](256, ttl, opts...),
		limit:  limit,
		logger: logger.WithComponent(log.ComponentStorage),
	}
}

// Enabled reports whether a history store is configured.
func (h *HistoryService) Enabled() bool { return h != nil && h.reader != nil }

// Cache exposes the cache for periodic sweeping.
func (h *HistoryService) Cache() cache.Cleaner { return h.cache }

// ForCustomer returns the customer's recorded events. Failures degrade to an
// empty list with a warning.
func (h *HistoryService) ForCustomer(ctx context.Context, code string) ([]core.LedgerEvent, []Warning) {
	if !h.Enabled() {
		return nil, nil
	}
	code = core.NormalizeCode(code)
	events, err := h.cache.GetOrLoad(ctx, code, func(ctx context.Context) ([]core.LedgerEvent, error) {
		return h.reader.ListByCustomer(ctx, code, h.limit)
	})
	if err != nil {
		h.logger.WarnContext(ctx, "History lookup failed", log.FieldCustomerCode, code, log.FieldError, err)
		return nil, []Warning{{
			Code:    WarnHistoryFailed,
			Message: fmt.Sprintf("Gagal memuat riwayat tagihan. Error: %v", err),
		}}
	}
	return events, nil
}

// Reset drops all cached history; the worker may have stored events this
// process never saw.
func (h *HistoryService) Reset() {
	if !h.Enabled() {
		return
	}
	h.cache.Clear()
}

// Forget drops a customer's cached history after a local write.
func (h *HistoryService) Forget(code string) {
	if !h.Enabled() {
		return
	}
	h.cache.Delete(core.NormalizeCode(code))
}
