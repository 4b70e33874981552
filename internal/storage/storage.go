// Package storage persists the run log: one row per extraction run and its
// timestamped state transitions. Card content is never stored.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/cardex/internal/pipeline"
)

// ErrRunNotFound is returned by GetRun for an unknown ID.
var ErrRunNotFound = errors.New("run not found")

// Run is the persisted summary of one extraction run.
type Run struct {
	ID          string                `json:"id"`
	State       pipeline.State        `json:"state"`
	Reason      pipeline.Reason       `json:"reason,omitempty"`
	FailedSide  string                `json:"failed_side,omitempty"`
	Message     string                `json:"message,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Transitions []pipeline.Transition `json:"transitions"`
}

// Stats summarizes the run log.
type Stats struct {
	Runs     int64                    `json:"runs"`
	ByState  map[pipeline.State]int64 `json:"by_state"`
	ByReason map[pipeline.Reason]int64 `json:"by_reason,omitempty"`
}

// RunLog records pipeline runs and reads them back.
type RunLog interface {
	pipeline.Recorder

	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, offset, limit int) ([]*Run, error)
	CountRuns(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
