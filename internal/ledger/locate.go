package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tagihanair/internal/core"
)

// FindLatest returns the customer's record with the greatest timestamp.
// Records without a timestamp rank below any dated record; ties keep the
// first stored row.
func FindLatest(t Table, code string) (core.CustomerRecord, error) {
	code = core.NormalizeCode(code)
	idx := -1
	for i, r := range t {
		if r.Code != code {
			continue
		}
		if idx == -1 || r.RecordedAt.After(t[idx].RecordedAt) {
			idx = i
		}
	}
	if idx == -1 {
		return core.CustomerRecord{}, fmt.Errorf("customer %q: %w", code, core.ErrRecordNotFound)
	}
	return t[idx], nil
}

// ValidateNewCustomer rejects blank fields and codes already present in the table.
func ValidateNewCustomer(t Table, reg core.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	code := core.NormalizeCode(reg.Code)
	for _, r := range t {
		if r.Code == code {
			return &core.ValidationError{Field: "code", Err: fmt.Errorf("%q: %w", code, core.ErrDuplicateCode)}
		}
	}
	return nil
}

// ValidateReading checks a billing update against the customer's latest record.
func ValidateReading(last core.CustomerRecord, newReading, payment decimal.Decimal) error {
	if newReading.LessThan(last.CurrentReading) {
		return &core.ValidationError{
			Field: "current_reading",
			Err:   fmt.Errorf("%s < %s: %w", newReading, last.CurrentReading, core.ErrReadingDecreased),
		}
	}
	if payment.IsNegative() {
		return &core.ValidationError{Field: "amount_paid", Err: core.ErrNegativeAmount}
	}
	return nil
}

// ResolveStoragePosition returns the sheet row that holds rec. The row number
// is the one captured when rec was read; it is only trusted while t still
// shows the same record at that row. A different customer there means rows
// shifted; a different reading or timestamp means someone else updated it.
func ResolveStoragePosition(t Table, rec core.CustomerRecord) (int, error) {
	if rec.Row < HeaderOffset {
		return 0, fmt.Errorf("customer %q has no stored row: %w", rec.Code, core.ErrStalePosition)
	}
	for _, r := range t {
		if r.Row != rec.Row {
			continue
		}
		if r.Code != core.NormalizeCode(rec.Code) {
			return 0, fmt.Errorf("row %d holds %q, expected %q: %w", rec.Row, r.Code, rec.Code, core.ErrStalePosition)
		}
		if !r.CurrentReading.Equal(rec.CurrentReading) || !r.RecordedAt.Equal(rec.RecordedAt) {
			return 0, fmt.Errorf("row %d for %q changed since it was read: %w", rec.Row, rec.Code, core.ErrStalePosition)
		}
		return rec.Row, nil
	}
	return 0, fmt.Errorf("row %d not present: %w", rec.Row, core.ErrStalePosition)
}
