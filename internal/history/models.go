package history

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run is one batch run of the processor.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Processed  int
	Succeeded  int
	Skipped    int
	Failed     int
}

// Delivery is one sink attempt for one meeting within a run.
type Delivery struct {
	ID         string
	RunID      string
	MeetingID  string
	Title      string
	Sink       string
	Success    bool
	Retries    int
	StatusCode int
	Error      string
	DurationMs int64
	CreatedAt  time.Time
}
