package replay

import (
	"context"
	"sort"
	"sync"

	"github.com/moznion/go-optional"

	"github.com/stockpulse/backtest/internal/types"
)

// MemorySource replays a fixed slice of bars from memory. Bars are sorted
// by time, then symbol, so replay order is deterministic regardless of
// input order.
type MemorySource struct {
	mu      sync.Mutex
	bars    []types.Bar
	idx     int
	stopped bool
	// resume is non-nil while paused and closed on Resume.
	resume chan struct{}
}

// NewMemorySource creates a source over a copy of the given bars.
func NewMemorySource(bars []types.Bar) *MemorySource {
	sorted := make([]types.Bar, len(bars))
	copy(sorted, bars)

	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Time.Equal(sorted[j].Time) {
			return sorted[i].Time.Before(sorted[j].Time)
		}

		return sorted[i].Symbol < sorted[j].Symbol
	})

	return &MemorySource{bars: sorted}
}

func (s *MemorySource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idx = 0
	s.stopped = false
	s.resume = nil

	return nil
}

func (s *MemorySource) Next(ctx context.Context) (optional.Option[types.Bar], error) {
	for {
		s.mu.Lock()
		resume := s.resume

		if resume == nil {
			if s.stopped || s.idx >= len(s.bars) {
				s.mu.Unlock()

				return optional.None[types.Bar](), nil
			}

			bar := s.bars[s.idx]
			s.idx++
			s.mu.Unlock()

			return optional.Some(bar), nil
		}
		s.mu.Unlock()

		select {
		case <-resume:
		case <-ctx.Done():
			return optional.None[types.Bar](), ctx.Err()
		}
	}
}

func (s *MemorySource) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resume == nil {
		s.resume = make(chan struct{})
	}
}

func (s *MemorySource) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resume != nil {
		close(s.resume)
		s.resume = nil
	}
}

func (s *MemorySource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true

	if s.resume != nil {
		close(s.resume)
		s.resume = nil
	}

	return nil
}

func (s *MemorySource) Progress() (processed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.idx, len(s.bars)
}
