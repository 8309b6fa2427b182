// Package memory is an in-process workbook used for local runs and tests.
package memory

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	ports "tagihanair/internal/sheets"
)

var _ ports.Workbook = (*Store)(nil)

// Store holds named grids of cells.
type Store struct {
	mu     sync.Mutex
	sheets map[string][][]string
	// FailWrites makes every write return an error; tests use it to simulate
	// a store that rejects updates.
	FailWrites bool
}

// New creates an empty workbook with the given tabs.
func New(tabs ...string) *Store {
	s := &Store{sheets: make(map[string][][]string, len(tabs))}
	for _, t := range tabs {
		s.sheets[t] = nil
	}
	return s
}

// NewFromFiles seeds tabs from CSV files in base. Each entry of files maps a
// tab name to a file name; a missing or unreadable file leaves the tab with
// the given default rows.
func NewFromFiles(base string, files map[string]string, defaults map[string][][]string) *Store {
	s := New()
	for tab, rows := range defaults {
		s.sheets[tab] = cloneRows(rows)
	}
	for tab, name := range files {
		rows, err := readCSV(filepath.Join(base, name))
		if err != nil || len(rows) == 0 {
			if _, ok := s.sheets[tab]; !ok {
				s.sheets[tab] = nil
			}
			continue
		}
		s.sheets[tab] = rows
	}
	return s
}

// Seed replaces the contents of a tab, creating it if needed.
func (s *Store) Seed(tab string, rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[tab] = cloneRows(rows)
}

// Rows returns a copy of a tab's contents.
func (s *Store) Rows(tab string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRows(s.sheets[tab])
}

// DeleteTab removes a tab.
func (s *Store) DeleteTab(tab string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sheets, tab)
}

func (s *Store) Worksheet(_ context.Context, name string) (ports.Worksheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sheets[name]; !ok {
		return nil, fmt.Errorf("%q: %w", name, ports.ErrWorksheetNotFound)
	}
	return &sheet{store: s, name: name}, nil
}

type sheet struct {
	store *Store
	name  string
}

func (w *sheet) Name() string { return w.name }

func (w *sheet) ReadAll(_ context.Context) ([][]string, error) {
	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.sheets[w.name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", w.name, ports.ErrWorksheetNotFound)
	}
	return cloneRows(rows), nil
}

func (w *sheet) AppendRow(_ context.Context, values []any) error {
	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return fmt.Errorf("append to %q: write rejected", w.name)
	}
	s.sheets[w.name] = append(s.sheets[w.name], toStrings(values))
	return nil
}

func (w *sheet) UpdateRow(_ context.Context, row int, values []any) error {
	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return fmt.Errorf("update %q row %d: write rejected", w.name, row)
	}
	if row < 1 {
		return fmt.Errorf("update %q: invalid row %d", w.name, row)
	}
	grid := grow(s.sheets[w.name], row)
	grid[row-1] = toStrings(values)
	s.sheets[w.name] = grid
	return nil
}

func (w *sheet) UpdateCell(_ context.Context, row, col int, value any) error {
	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return fmt.Errorf("update %q cell %d,%d: write rejected", w.name, row, col)
	}
	if row < 1 || col < 1 {
		return fmt.Errorf("update %q: invalid cell %d,%d", w.name, row, col)
	}
	grid := grow(s.sheets[w.name], row)
	line := grid[row-1]
	for len(line) < col {
		line = append(line, "")
	}
	line[col-1] = toString(value)
	grid[row-1] = line
	s.sheets[w.name] = grid
	return nil
}

func grow(grid [][]string, rows int) [][]string {
	for len(grid) < rows {
		grid = append(grid, nil)
	}
	return grid
}

func toStrings(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = toString(v)
	}
	return out
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func cloneRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, row := range rows {
		if len(row) > 0 && strings.HasPrefix(strings.TrimSpace(row[0]), "#") {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}
