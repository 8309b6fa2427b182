package worker

import (
	"context"
	"errors"
	"fmt"

	"tagihanair/internal/amqp"
	"tagihanair/internal/core"
	"tagihanair/internal/log"
)

// EventStore persists ledger events.
type EventStore interface {
	Record(ctx context.Context, ev core.LedgerEvent) error
}

// HistoryWorker appends events delivered over AMQP to the billing history.
type HistoryWorker struct {
	store  EventStore
	logger *log.Logger
}

func NewHistoryWorker(store EventStore, logger *log.Logger) *HistoryWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &HistoryWorker{store: store, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleMessage stores one event. Unknown kinds are logged and acknowledged;
// store failures are returned so the message is requeued.
func (w *HistoryWorker) HandleMessage(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	ev := msg.Event()
	if !knownKind(ev.Kind) {
		w.logger.WarnContext(ctx, "Dropping event of unknown kind",
			log.FieldEventKind, ev.Kind, log.FieldEventID, ev.ID)
		return nil
	}
	if ev.Kind != core.EventPriceChanged && ev.Record.Code == "" {
		w.logger.WarnContext(ctx, "Dropping customer event without code",
			log.FieldEventKind, ev.Kind, log.FieldEventID, ev.ID)
		return nil
	}

	if err := w.store.Record(ctx, ev); err != nil {
		return fmt.Errorf("record %s event %s: %w", ev.Kind, ev.ID, err)
	}

	w.logger.InfoContext(ctx, "History event stored",
		log.FieldEventID, ev.ID,
		log.FieldEventKind, ev.Kind,
		log.FieldCustomerCode, ev.Record.Code)
	return nil
}

// Run consumes until ctx is cancelled.
func (w *HistoryWorker) Run(ctx context.Context, client *amqp.Client) error {
	w.logger.InfoContext(ctx, "History worker started")
	err := client.ConsumeEvents(ctx, w.HandleMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func knownKind(k core.EventKind) bool {
	switch k {
	case core.EventCustomerRegistered, core.EventBillingUpdated, core.EventPriceChanged:
		return true
	}
	return false
}
