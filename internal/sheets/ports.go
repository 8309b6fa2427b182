package sheets

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("spreadsheet unavailable")
	// ErrWorksheetNotFound means the named tab does not exist in the workbook.
	ErrWorksheetNotFound = errors.New("worksheet not found")
)

// Ports for outbound adapters.
type (
	// Workbook opens worksheets by tab name.
	Workbook interface {
		Worksheet(ctx context.Context, name string) (Worksheet, error)
	}

	// Worksheet is the minimal tabular surface the billing code needs.
	// Row and column numbers are 1-based; row 1 is the header.
	Worksheet interface {
		Name() string
		// ReadAll returns the used range, header included, as strings.
		// Numbers are unformatted and date cells are serial day numbers.
		ReadAll(ctx context.Context) ([][]string, error)
		AppendRow(ctx context.Context, values []any) error
		UpdateRow(ctx context.Context, row int, values []any) error
		UpdateCell(ctx context.Context, row, col int, value any) error
	}
)

// Offline returns a workbook that fails every call with ErrUnavailable.
// It stands in for a spreadsheet client that could not be created.
func Offline(cause error) Workbook {
	return offline{cause: cause}
}

// IsOffline reports whether w was created by Offline.
func IsOffline(w Workbook) bool {
	_, ok := w.(offline)
	return ok
}

type offline struct{ cause error }

func (o offline) Worksheet(_ context.Context, name string) (Worksheet, error) {
	if o.cause == nil {
		return nil, fmt.Errorf("open %q: %w", name, ErrUnavailable)
	}
	return nil, fmt.Errorf("open %q: %w: %v", name, ErrUnavailable, o.cause)
}
