package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the dashboard aggregate over each customer's latest record.
type Summary struct {
	ActiveCustomers  int
	TotalOutstanding decimal.Decimal
}

// EventKind names a persisted ledger change.
type EventKind string

const (
	EventCustomerRegistered EventKind = "customer_registered"
	EventBillingUpdated     EventKind = "billing_updated"
	EventPriceChanged       EventKind = "price_changed"
)

// LedgerEvent describes one successful write, for the append-only history.
// ID deduplicates redelivered events.
type LedgerEvent struct {
	ID         string
	Kind       EventKind
	Record     CustomerRecord // zero for price changes
	UnitPrice  decimal.Decimal
	OccurredAt time.Time
}
