package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stockpulse/backtest/internal/types"
)

type SMACrossoverTestSuite struct {
	suite.Suite
	strat *SMACrossover
	now   time.Time
}

func TestSMACrossoverTestSuite(t *testing.T) {
	suite.Run(t, new(SMACrossoverTestSuite))
}

func (s *SMACrossoverTestSuite) SetupTest() {
	s.strat = NewSMACrossover(2, 4)
	s.Require().NoError(s.strat.Initialize(""))
	s.Require().NoError(s.strat.Start())
	s.now = time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
}

func (s *SMACrossoverTestSuite) feed(closes ...float64) []types.Signal {
	var signals []types.Signal

	for i, closePx := range closes {
		bar := types.Bar{
			Symbol: "AAPL",
			Time:   s.now.AddDate(0, 0, i),
			Open:   closePx,
			High:   closePx,
			Low:    closePx,
			Close:  closePx,
			Volume: 1_000_000,
		}

		s.Require().NoError(s.strat.OnBar("AAPL", bar))
		signals = append(signals, s.strat.GenerateSignals()...)
	}

	return signals
}

func (s *SMACrossoverTestSuite) TestInitializeFromYAML() {
	strat := NewSMACrossover(0, 0)
	s.Require().NoError(strat.Initialize("short_period: 10\nlong_period: 30\n"))
	s.Require().Equal("SMA_Cross_10_30", strat.Name())
}

func (s *SMACrossoverTestSuite) TestInitializeDefaults() {
	strat := NewSMACrossover(0, 0)
	s.Require().NoError(strat.Initialize(""))
	s.Require().Equal("SMA_Cross_5_20", strat.Name())
}

func (s *SMACrossoverTestSuite) TestInitializeRejectsInvertedPeriods() {
	strat := NewSMACrossover(0, 0)
	s.Require().Error(strat.Initialize("short_period: 30\nlong_period: 10\n"))
}

func (s *SMACrossoverTestSuite) TestBuyOnUpwardCrossover() {
	// Flat, then a rally pushes the short average through the long one.
	signals := s.feed(100, 100, 100, 100, 100, 110, 120)

	s.Require().NotEmpty(signals)
	s.Require().Equal(types.SignalTypeBuy, signals[0].Type)
	s.Require().Equal("AAPL", signals[0].Symbol)
	s.Require().Greater(signals[0].Confidence, 0.0)
}

func (s *SMACrossoverTestSuite) TestSellOnDownwardCrossover() {
	signals := s.feed(100, 100, 100, 100, 100, 110, 120, 100, 80, 70)

	var last types.Signal
	s.Require().NotEmpty(signals)
	last = signals[len(signals)-1]

	s.Require().Equal(types.SignalTypeSell, last.Type)
}

func (s *SMACrossoverTestSuite) TestNoSignalsBeforeWarmup() {
	signals := s.feed(100, 101, 102, 103)
	s.Require().Empty(signals)
}

func (s *SMACrossoverTestSuite) TestSymbolsTrackedIndependently() {
	rally := []float64{100, 100, 100, 100, 100, 110, 120}

	for i, closePx := range rally {
		aapl := types.Bar{Symbol: "AAPL", Time: s.now.AddDate(0, 0, i), Close: closePx}
		msft := types.Bar{Symbol: "MSFT", Time: s.now.AddDate(0, 0, i), Close: 100}

		s.Require().NoError(s.strat.OnBar("AAPL", aapl))
		s.Require().NoError(s.strat.OnBar("MSFT", msft))
	}

	signals := s.strat.GenerateSignals()

	s.Require().NotEmpty(signals)

	for _, signal := range signals {
		s.Require().Equal("AAPL", signal.Symbol)
	}
}

func (s *SMACrossoverTestSuite) TestStartResetsState() {
	s.feed(100, 100, 100, 100, 100, 110, 120)

	s.Require().NoError(s.strat.Start())

	// After the reset the warmup starts over.
	signals := s.feed(100, 101, 102)
	s.Require().Empty(signals)
}
