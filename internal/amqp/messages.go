package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"tagihanair/internal/core"
)

// LedgerEventMessage is the wire form of a core.LedgerEvent. Amounts travel as
// decimal strings so no precision is lost between publisher and consumer.
type LedgerEventMessage struct {
	ID         string          `json:"id"`
	Kind       core.EventKind  `json:"kind"`
	Code       string          `json:"customer_code,omitempty"`
	Name       string          `json:"customer_name,omitempty"`
	Village    string          `json:"village,omitempty"`
	Unit       string          `json:"unit,omitempty"`
	Prior      decimal.Decimal `json:"prior_reading"`
	Current    decimal.Decimal `json:"current_reading"`
	Usage      decimal.Decimal `json:"usage"`
	Charge     decimal.Decimal `json:"charge"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Balance    decimal.Decimal `json:"balance"`
	Arrears    decimal.Decimal `json:"arrears"`
	TotalDue   decimal.Decimal `json:"total_due"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	OccurredAt time.Time       `json:"occurred_at"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewLedgerEventMessage wraps an event for publishing.
func NewLedgerEventMessage(ev core.LedgerEvent) *LedgerEventMessage {
	r := ev.Record
	return &LedgerEventMessage{
		ID:         ev.ID,
		Kind:       ev.Kind,
		Code:       r.Code,
		Name:       r.Name,
		Village:    r.Village,
		Unit:       r.Unit,
		Prior:      r.PriorReading,
		Current:    r.CurrentReading,
		Usage:      r.Usage,
		Charge:     r.Charge,
		AmountPaid: r.AmountPaid,
		Balance:    r.Balance,
		Arrears:    r.Arrears,
		TotalDue:   r.TotalDue,
		UnitPrice:  ev.UnitPrice,
		OccurredAt: ev.OccurredAt,
		Timestamp:  time.Now(),
	}
}

// Event converts the message back into a domain event.
func (m *LedgerEventMessage) Event() core.LedgerEvent {
	return core.LedgerEvent{
		ID:   m.ID,
		Kind: m.Kind,
		Record: core.CustomerRecord{
			Code:           m.Code,
			Name:           m.Name,
			Village:        m.Village,
			Unit:           m.Unit,
			PriorReading:   m.Prior,
			CurrentReading: m.Current,
			Usage:          m.Usage,
			Charge:         m.Charge,
			AmountPaid:     m.AmountPaid,
			Balance:        m.Balance,
			Arrears:        m.Arrears,
			TotalDue:       m.TotalDue,
			RecordedAt:     m.OccurredAt,
		},
		UnitPrice:  m.UnitPrice,
		OccurredAt: m.OccurredAt,
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes a message body.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
