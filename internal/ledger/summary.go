package ledger

import (
	"github.com/shopspring/decimal"

	"tagihanair/internal/core"
)

// LatestPerCustomer keeps one record per customer code, chosen like FindLatest,
// in order of each code's first appearance.
func LatestPerCustomer(t Table) []core.CustomerRecord {
	pos := make(map[string]int, len(t))
	out := make([]core.CustomerRecord, 0, len(t))
	for _, r := range t {
		i, ok := pos[r.Code]
		if !ok {
			pos[r.Code] = len(out)
			out = append(out, r)
			continue
		}
		if r.RecordedAt.After(out[i].RecordedAt) {
			out[i] = r
		}
	}
	return out
}

// Summarize counts distinct customers and sums their latest outstanding balance.
func Summarize(t Table) core.Summary {
	latest := LatestPerCustomer(t)
	total := decimal.Zero
	for _, r := range latest {
		total = total.Add(r.Balance)
	}
	return core.Summary{ActiveCustomers: len(latest), TotalOutstanding: total}
}
