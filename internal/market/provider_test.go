package market

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
)

// fakeClient counts fetches and can be flipped into a failing mode.
type fakeClient struct {
	calls int
	fail  bool
}

func (f *fakeClient) Name() string {
	return "fake"
}

func (f *fakeClient) Bars(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	f.calls++

	if f.fail {
		return nil, fmt.Errorf("vendor unavailable")
	}

	return []types.Bar{
		{Symbol: symbol, Time: start, Close: 100},
		{Symbol: symbol, Time: end, Close: 101},
	}, nil
}

type ProviderTestSuite struct {
	suite.Suite
	client   *fakeClient
	provider *Provider
	clock    time.Time
	start    time.Time
	end      time.Time
}

func TestProviderTestSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

func (s *ProviderTestSuite) SetupTest() {
	s.client = &fakeClient{}
	s.provider = NewProvider(s.client, time.Hour, logger.NewNopLogger())

	s.clock = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.provider.now = func() time.Time { return s.clock }

	s.start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s.end = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
}

func (s *ProviderTestSuite) TestCacheHitWithinTTL() {
	ctx := context.Background()

	bars, err := s.provider.Bars(ctx, "AAPL", s.start, s.end)
	s.Require().NoError(err)
	s.Require().Len(bars, 2)
	s.Require().Equal(1, s.client.calls)

	s.clock = s.clock.Add(30 * time.Minute)

	_, err = s.provider.Bars(ctx, "AAPL", s.start, s.end)
	s.Require().NoError(err)
	s.Require().Equal(1, s.client.calls)
}

func (s *ProviderTestSuite) TestCacheExpiresAfterTTL() {
	ctx := context.Background()

	_, err := s.provider.Bars(ctx, "AAPL", s.start, s.end)
	s.Require().NoError(err)

	s.clock = s.clock.Add(2 * time.Hour)

	_, err = s.provider.Bars(ctx, "AAPL", s.start, s.end)
	s.Require().NoError(err)
	s.Require().Equal(2, s.client.calls)
}

func (s *ProviderTestSuite) TestDistinctRangesFetchSeparately() {
	ctx := context.Background()

	_, err := s.provider.Bars(ctx, "AAPL", s.start, s.end)
	s.Require().NoError(err)

	_, err = s.provider.Bars(ctx, "AAPL", s.start, s.end.AddDate(0, 1, 0))
	s.Require().NoError(err)
	s.Require().Equal(2, s.client.calls)
}

func (s *ProviderTestSuite) TestStaleEntryServedOnVendorFailure() {
	ctx := context.Background()

	_, err := s.provider.Bars(ctx, "AAPL", s.start, s.end)
	s.Require().NoError(err)

	s.clock = s.clock.Add(2 * time.Hour)
	s.client.fail = true

	bars, err := s.provider.Bars(ctx, "AAPL", s.start, s.end)
	s.Require().NoError(err)
	s.Require().Len(bars, 2)
}

func (s *ProviderTestSuite) TestFailureWithoutCacheSurfaces() {
	s.client.fail = true

	_, err := s.provider.Bars(context.Background(), "AAPL", s.start, s.end)
	s.Require().Error(err)
}

func (s *ProviderTestSuite) TestInvalidateDropsSymbol() {
	ctx := context.Background()

	_, err := s.provider.Bars(ctx, "AAPL", s.start, s.end)
	s.Require().NoError(err)

	_, err = s.provider.Bars(ctx, "MSFT", s.start, s.end)
	s.Require().NoError(err)

	s.provider.Invalidate("AAPL")

	_, err = s.provider.Bars(ctx, "AAPL", s.start, s.end)
	s.Require().NoError(err)
	s.Require().Equal(3, s.client.calls)

	_, err = s.provider.Bars(ctx, "MSFT", s.start, s.end)
	s.Require().NoError(err)
	s.Require().Equal(3, s.client.calls)
}
