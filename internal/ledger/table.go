// Package ledger holds the in-memory ledger table and the pure operations over
// it: parsing stored rows, locating a customer's latest record, validating
// new input, and aggregating the dashboard figures.
package ledger

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"tagihanair/internal/core"
)

// Ledger column headers, in stored order.
const (
	ColCode           = "KODE PELANGGAN"
	ColName           = "NAMA"
	ColVillage        = "KAMPUNG"
	ColUnit           = "RT/RW"
	ColPriorReading   = "JUMLAH METER BULAN LALU"
	ColCurrentReading = "JUMLAH METER BULAN INI"
	ColUsage          = "JUMLAH METER DIGUNAKAN BULAN INI"
	ColCharge         = "TAGIHAN YANG HARUS DI BAYAR BULAN INI"
	ColAmountPaid     = "TAGIHAN YANG SUDAH DI BAYAR BULAN INI"
	ColBalance        = "SISA TAGIHAN BULAN INI"
	ColArrears        = "TUNGGAKAN DARI BULAN LALU"
	ColTotalDue       = "TOTAL TAGIHAN (TERMASUK TUNGGAKAN)"
	ColRecordedAt     = "TANGGAL INPUT"
)

// Columns is the column contract with the backing store.
var Columns = []string{
	ColCode, ColName, ColVillage, ColUnit,
	ColPriorReading, ColCurrentReading, ColUsage,
	ColCharge, ColAmountPaid, ColBalance,
	ColArrears, ColTotalDue, ColRecordedAt,
}

// HeaderOffset converts a 0-based data index into a 1-based sheet row:
// one for 1-based numbering and one for the header row.
const HeaderOffset = 2

// Text timestamps are ISO or day-first, as typed in an Indonesian sheet.
// Date cells arrive as serial numbers and never reach these layouts.
var timestampLayouts = []string{
	core.TimestampLayout,
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"2/1/2006 15:04:05",
	"2/1/2006 15.04.05",
	"2/1/2006 15:04",
	"2/1/2006 15.04",
	"2/1/2006",
}

// serialEpoch is day zero of spreadsheet date serial numbers.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Table is the ledger as read from the store, in stored order.
type Table []core.CustomerRecord

// Parse converts raw sheet values (header row first) into a Table.
//
// Numeric cells that cannot be parsed become zero, unparsable timestamps
// become the zero time, customer codes are uppercased and fully blank rows
// are dropped. Each record keeps the sheet row it came from.
func Parse(values [][]string, loc *time.Location) Table {
	if loc == nil {
		loc = time.UTC
	}
	if len(values) <= 1 {
		return Table{}
	}
	out := make(Table, 0, len(values)-1)
	for i, raw := range values[1:] {
		if isBlank(raw) {
			continue
		}
		cells := make([]string, len(Columns))
		copy(cells, raw)
		for j := range cells {
			cells[j] = strings.TrimSpace(cells[j])
		}
		out = append(out, core.CustomerRecord{
			Code:           core.NormalizeCode(cells[0]),
			Name:           cells[1],
			Village:        cells[2],
			Unit:           cells[3],
			PriorReading:   core.ParseStoredNumber(cells[4]),
			CurrentReading: core.ParseStoredNumber(cells[5]),
			Usage:          core.ParseStoredNumber(cells[6]),
			Charge:         core.ParseStoredNumber(cells[7]),
			AmountPaid:     core.ParseStoredNumber(cells[8]),
			Balance:        core.ParseStoredNumber(cells[9]),
			Arrears:        core.ParseStoredNumber(cells[10]),
			TotalDue:       core.ParseStoredNumber(cells[11]),
			RecordedAt:     parseTimestamp(cells[12], loc),
			Row:            i + HeaderOffset,
		})
	}
	return out
}

func parseTimestamp(s string, loc *time.Location) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	if t, ok := fromSerial(s, loc); ok {
		return t
	}
	return time.Time{}
}

// fromSerial converts a spreadsheet serial date (days since 1899-12-30, the
// fraction being the time of day) to wall-clock time in loc.
func fromSerial(s string, loc *time.Location) (time.Time, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return time.Time{}, false
	}
	days := math.Floor(f)
	secs := int(math.Round((f - days) * 86400))
	y, m, d := serialEpoch.AddDate(0, 0, int(days)).Date()
	return time.Date(y, m, d, 0, 0, secs, 0, loc), true
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// CustomerOption is one entry of the customer picker.
type CustomerOption struct {
	Code string
	Name string
}

// Customers lists each customer code once, sorted by name then code.
func (t Table) Customers() []CustomerOption {
	seen := make(map[string]struct{}, len(t))
	out := make([]CustomerOption, 0, len(t))
	for _, r := range t {
		if r.Code == "" {
			continue
		}
		if _, ok := seen[r.Code]; ok {
			continue
		}
		seen[r.Code] = struct{}{}
		out = append(out, CustomerOption{Code: r.Code, Name: r.Name})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out
}
