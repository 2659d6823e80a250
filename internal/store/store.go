package store

import (
	"context"
	"errors"

	"github.com/me/pmcore/pkg/model"
)

// ErrNotFound is returned by updates that match no row.
var ErrNotFound = errors.New("not found")

// Store defines the persistence layer for runs and their kernel trace.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, id string, ticks uint64, summary map[string]int) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)

	// Trace events
	AppendEvents(ctx context.Context, runID string, events []model.Event) error
	ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]*model.Event, int, error)
	CountEventsByKind(ctx context.Context, runID string) (map[model.EventKind]int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
