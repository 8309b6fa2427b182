package backend

import (
	"tagihanair/internal/services"
	"tagihanair/internal/sheets"
)

// BackendType names the workbook implementation.
type BackendType string

const (
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc releases resources opened by the factory.
type CleanupFunc func() error

// Result is everything the web process needs from the outside world.
// Recorder and History are nil when the billing history is disabled.
type Result struct {
	Workbook sheets.Workbook
	Recorder services.EventRecorder
	History  services.HistoryReader
	Cleanup  CleanupFunc

	// Offline is the reason the workbook could not be reached, if any.
	Offline error
}
