package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the layout written to the TANGGAL INPUT column.
const TimestampLayout = "2006-01-02 15:04:05"

type (
	// CustomerRecord is one ledger row. The store keeps a single live row per
	// customer code; billing updates overwrite it in place.
	CustomerRecord struct {
		Code           string
		Name           string
		Village        string
		Unit           string // RT/RW
		PriorReading   decimal.Decimal
		CurrentReading decimal.Decimal
		Usage          decimal.Decimal
		Charge         decimal.Decimal
		AmountPaid     decimal.Decimal
		Balance        decimal.Decimal // outstanding after payment; next period's arrears
		Arrears        decimal.Decimal
		TotalDue       decimal.Decimal
		RecordedAt     time.Time // zero when the stored value was absent or unparsable

		// Row is the 1-based physical row the record was read from, 0 if never stored.
		Row int
	}

	// Registration holds the form input for a new customer.
	Registration struct {
		Code           string
		Name           string
		Village        string
		Unit           string
		InitialReading decimal.Decimal
	}

	// ValidationError names the offending field of a rejected input.
	ValidationError struct {
		Field string
		Err   error
	}
)

var (
	ErrRecordNotFound   = errors.New("customer record not found")
	ErrDuplicateCode    = errors.New("customer code already exists")
	ErrMissingField     = errors.New("required field is empty")
	ErrReadingDecreased = errors.New("new meter reading is lower than the previous reading")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrStalePosition    = errors.New("stored row no longer matches the customer")
	ErrWriteFailed      = errors.New("write to store failed")
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NormalizeCode trims and uppercases a customer code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Normalize returns the registration with trimmed text fields and an uppercase code.
func (r Registration) Normalize() Registration {
	r.Code = NormalizeCode(r.Code)
	r.Name = strings.TrimSpace(r.Name)
	r.Village = strings.TrimSpace(r.Village)
	r.Unit = strings.TrimSpace(r.Unit)
	return r
}

// Validate checks the registration on its own, without looking at existing customers.
func (r Registration) Validate() error {
	n := r.Normalize()
	fields := []struct{ name, value string }{
		{"code", n.Code},
		{"name", n.Name},
		{"village", n.Village},
		{"unit", n.Unit},
	}
	for _, f := range fields {
		if f.value == "" {
			return &ValidationError{Field: f.name, Err: ErrMissingField}
		}
	}
	if r.InitialReading.IsNegative() {
		return &ValidationError{Field: "initial_reading", Err: ErrNegativeAmount}
	}
	return nil
}

// NewCustomerRecord builds the first ledger row of a customer. All derived
// amounts start at zero; the initial reading becomes the current reading.
func NewCustomerRecord(r Registration, now time.Time) CustomerRecord {
	n := r.Normalize()
	return CustomerRecord{
		Code:           n.Code,
		Name:           n.Name,
		Village:        n.Village,
		Unit:           n.Unit,
		PriorReading:   decimal.Zero,
		CurrentReading: n.InitialReading,
		Usage:          decimal.Zero,
		Charge:         decimal.Zero,
		AmountPaid:     decimal.Zero,
		Balance:        decimal.Zero,
		Arrears:        decimal.Zero,
		TotalDue:       decimal.Zero,
		RecordedAt:     now,
	}
}

// Values returns the record in ledger column order, ready for a USER_ENTERED write.
// Amounts are sent as numbers so the sheet locale cannot reinterpret separators.
func (r CustomerRecord) Values() []any {
	recorded := ""
	if !r.RecordedAt.IsZero() {
		recorded = r.RecordedAt.Format(TimestampLayout)
	}
	return []any{
		r.Code,
		r.Name,
		r.Village,
		r.Unit,
		r.PriorReading.InexactFloat64(),
		r.CurrentReading.InexactFloat64(),
		r.Usage.InexactFloat64(),
		r.Charge.InexactFloat64(),
		r.AmountPaid.InexactFloat64(),
		r.Balance.InexactFloat64(),
		r.Arrears.InexactFloat64(),
		r.TotalDue.InexactFloat64(),
		recorded,
	}
}
