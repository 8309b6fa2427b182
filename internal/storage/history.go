package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tagihanair/internal/core"

	_ "modernc.org/sqlite"
)

// HistoryRepository is the append-only billing history kept in SQLite.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewHistoryRepository(dbPath string) (*HistoryRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the worker and the web process may share the file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &HistoryRepository{db: db}, nil
}

func (r *HistoryRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *HistoryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const insertEvent = `
INSERT OR IGNORE INTO billing_history (
    event_id, kind, customer_code, customer_name, village, unit,
    prior_reading, current_reading, usage, charge, amount_paid,
    balance, arrears, total_due, unit_price, occurred_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Record appends an event. Events already stored under the same ID are ignored.
func (r *HistoryRepository) Record(ctx context.Context, ev core.LedgerEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	rec := ev.Record
	res, err := r.db.ExecContext(ctx, insertEvent,
		ev.ID, string(ev.Kind), rec.Code, rec.Name, rec.Village, rec.Unit,
		rec.PriorReading.String(), rec.CurrentReading.String(), rec.Usage.String(),
		rec.Charge.String(), rec.AmountPaid.String(), rec.Balance.String(),
		rec.Arrears.String(), rec.TotalDue.String(), ev.UnitPrice.String(),
		ev.OccurredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert history event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.DebugContext(ctx, "History event already recorded", "event_id", ev.ID)
		return nil
	}
	slog.DebugContext(ctx, "History event recorded",
		"event_id", ev.ID, "kind", ev.Kind, "customer_code", rec.Code)
	return nil
}

const selectByCustomer = `
SELECT event_id, kind, customer_code, customer_name, village, unit,
       prior_reading, current_reading, usage, charge, amount_paid,
       balance, arrears, total_due, unit_price, occurred_at_ms
FROM billing_history
WHERE customer_code = ?
ORDER BY occurred_at_ms DESC, id DESC
LIMIT ?`

// ListByCustomer returns up to limit events for a customer, newest first.
func (r *HistoryRepository) ListByCustomer(ctx context.Context, code string, limit int) ([]core.LedgerEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectByCustomer, core.NormalizeCode(code), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEvent
	for rows.Next() {
		var (
			ev         core.LedgerEvent
			kind       string
			nums       [9]string
			occurredMs int64
		)
		rec := &ev.Record
		if err := rows.Scan(&ev.ID, &kind, &rec.Code, &rec.Name, &rec.Village, &rec.Unit,
			&nums[0], &nums[1], &nums[2], &nums[3], &nums[4], &nums[5], &nums[6], &nums[7], &nums[8],
			&occurredMs); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		ev.Kind = core.EventKind(kind)
		dst := []*decimal.Decimal{
			&rec.PriorReading, &rec.CurrentReading, &rec.Usage, &rec.Charge, &rec.AmountPaid,
			&rec.Balance, &rec.Arrears, &rec.TotalDue, &ev.UnitPrice,
		}
		for i, p := range dst {
			d, err := decimal.NewFromString(nums[i])
			if err != nil {
				return nil, fmt.Errorf("parse stored amount %q: %w", nums[i], err)
			}
			*p = d
		}
		ev.OccurredAt = time.UnixMilli(occurredMs).UTC()
		rec.RecordedAt = ev.OccurredAt
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
