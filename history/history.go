// Package history defines the optional probe-history store. When a
// database path is configured, every evaluation run and its outcomes
// are recorded so latency trends survive across runs.
package history

import (
	"context"
	"time"

	"github.com/laityts/ddns"
)

// Run is one recorded evaluation pass.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
}

// Probe is one recorded outcome within a run.
type Probe struct {
	RunID     int64
	IP        string
	Port      uint16
	Status    string
	LatencyMs int
	Succeeded bool
}

// Store is the minimal contract the check command needs to persist
// runs.
type Store interface {
	RecordRun(ctx context.Context, startedAt, finishedAt time.Time, outcomes []ddns.Outcome) (int64, error)
	LastRun(ctx context.Context) (*Run, error)
	Close() error
}
