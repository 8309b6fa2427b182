package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnitPrice is the price per cubic meter in effect for one computation.
// It is passed explicitly so a later rate change never alters a stored bill.
type UnitPrice struct {
	PerCubicMeter decimal.Decimal
}

// Bill is the outcome of one billing period.
type Bill struct {
	Usage    decimal.Decimal
	Charge   decimal.Decimal
	TotalDue decimal.Decimal
	Balance  decimal.Decimal
}

// NewUnitPrice wraps an amount in rupiah per cubic meter.
func NewUnitPrice(perCubicMeter decimal.Decimal) UnitPrice {
	return UnitPrice{PerCubicMeter: perCubicMeter}
}

// ComputeBill derives usage, charge, total due and balance. The caller must
// ensure current >= prior. An overpayment yields a negative balance.
func ComputeBill(prior, current, arrears, payment decimal.Decimal, price UnitPrice) Bill {
	usage := current.Sub(prior)
	charge := usage.Mul(price.PerCubicMeter)
	total := charge.Add(arrears)
	return Bill{
		Usage:    usage,
		Charge:   charge,
		TotalDue: total,
		Balance:  total.Sub(payment),
	}
}

// NextPeriod computes the bill that follows last and returns the record that
// replaces it. The previous current reading becomes the prior reading and the
// previous balance becomes the carried arrears.
func NextPeriod(last CustomerRecord, newReading, payment decimal.Decimal, price UnitPrice, now time.Time) (CustomerRecord, Bill) {
	bill := ComputeBill(last.CurrentReading, newReading, last.Balance, payment, price)
	next := CustomerRecord{
		Code:           last.Code,
		Name:           last.Name,
		Village:        last.Village,
		Unit:           last.Unit,
		PriorReading:   last.CurrentReading,
		CurrentReading: newReading,
		Usage:          bill.Usage,
		Charge:         bill.Charge,
		AmountPaid:     payment,
		Balance:        bill.Balance,
		Arrears:        last.Balance,
		TotalDue:       bill.TotalDue,
		RecordedAt:     now,
		Row:            last.Row,
	}
	return next, bill
}
