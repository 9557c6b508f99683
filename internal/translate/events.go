package translate

import (
	"time"

	"github.com/jwhan/csvlingo/internal/domain"
)

// EventType classifies progress stream payloads.
type EventType string

const (
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one entry in a run's progress stream. Events are ordered by Seq
// and exactly one terminal event (complete or error) ends every run.
type Event struct {
	Seq           int64         `json:"seq"`
	Timestamp     time.Time     `json:"timestamp"`
	Type          EventType     `json:"type"`
	TotalRows     int           `json:"totalRows"`
	ProcessedRows int           `json:"processedRows"`
	CurrentBatch  int           `json:"currentBatch,omitempty"`
	TotalBatches  int           `json:"totalBatches,omitempty"`
	FailedRows    int           `json:"failedRows,omitempty"`
	FailedBatches int           `json:"failedBatches,omitempty"`
	DegradedCells int           `json:"degradedCells,omitempty"`
	Message       string        `json:"message,omitempty"`
	Result        *domain.Table `json:"result,omitempty"`
}

// Terminal reports whether the event ends the run.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
