package replay

import (
	"context"

	"github.com/moznion/go-optional"

	"github.com/stockpulse/backtest/internal/types"
)

// Source replays historical bars in deterministic time order. A paused
// source blocks Next until resumed or the context is cancelled.
type Source interface {
	// Start prepares the source for iteration. Calling Start again rewinds
	// to the beginning.
	Start(ctx context.Context) error
	// Next returns the next bar, or None when the replay is exhausted or
	// stopped.
	Next(ctx context.Context) (optional.Option[types.Bar], error)
	// Pause suspends delivery before the next bar boundary.
	Pause()
	// Resume lifts a pause. Resuming a source that is not paused is a
	// no-op.
	Resume()
	// Stop ends the replay; subsequent Next calls return None.
	Stop() error
	// Progress reports bars delivered so far and the total bar count.
	Progress() (processed, total int)
}
