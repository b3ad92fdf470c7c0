package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/stockpulse/backtest/internal/backtest/replay"
	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/pkg/errors"
)

// scriptedStrategy emits pre-planned signals keyed by bar time and can be
// told to fault on its first bars or block until released.
type scriptedStrategy struct {
	signalsAt  map[time.Time][]types.Signal
	faultBars  int
	blockFirst chan struct{}

	barCount int
	pending  []types.Signal
	started  int
	stopped  int
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Initialize(config string) error { return nil }

func (s *scriptedStrategy) Start() error {
	s.started++
	s.barCount = 0
	s.pending = nil

	return nil
}

func (s *scriptedStrategy) OnBar(symbol string, bar types.Bar) error {
	s.barCount++

	if s.blockFirst != nil && s.barCount == 1 {
		<-s.blockFirst
	}

	if s.barCount <= s.faultBars {
		return fmt.Errorf("scripted fault on bar %d", s.barCount)
	}

	s.pending = append(s.pending, s.signalsAt[bar.Time]...)

	return nil
}

func (s *scriptedStrategy) GenerateSignals() []types.Signal {
	signals := s.pending
	s.pending = nil

	return signals
}

func (s *scriptedStrategy) Stop() error {
	s.stopped++

	return nil
}

type EngineTestSuite struct {
	suite.Suite
	now time.Time
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	s.now = time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
}

func (s *EngineTestSuite) config() Config {
	return Config{
		Symbols:          []string{"AAPL"},
		InitialCapital:   100_000,
		MaxOpenPositions: 5,
		MaxPositionSize:  0.2,
		Rebalance:        RebalanceNone,
		Cost:             freeCosts(),
	}
}

// bars builds one daily bar per close, starting at s.now.
func (s *EngineTestSuite) bars(closes ...float64) []types.Bar {
	bars := make([]types.Bar, 0, len(closes))

	for i, closePx := range closes {
		bars = append(bars, types.Bar{
			Symbol: "AAPL",
			Time:   s.now.AddDate(0, 0, i),
			Open:   closePx,
			High:   closePx * 1.01,
			Low:    closePx * 0.99,
			Close:  closePx,
			Volume: 1_000_000,
		})
	}

	return bars
}

func (s *EngineTestSuite) buySignalAt(day int) map[time.Time][]types.Signal {
	ts := s.now.AddDate(0, 0, day)

	return map[time.Time][]types.Signal{
		ts: {{
			Symbol:     "AAPL",
			Type:       types.SignalTypeBuy,
			Confidence: 0.9,
			Time:       ts,
		}},
	}
}

func (s *EngineTestSuite) newEngine(config Config, bars []types.Bar, strat *scriptedStrategy) *Engine {
	eng, err := NewEngine(config, logger.NewNopLogger())
	s.Require().NoError(err)
	s.Require().NoError(eng.Initialize(replay.NewMemorySource(bars), optional.None[[]types.Bar]()))
	s.Require().NoError(eng.SetStrategy(strat))

	return eng
}

func (s *EngineTestSuite) TestRunRequiresStrategy() {
	eng, err := NewEngine(s.config(), logger.NewNopLogger())
	s.Require().NoError(err)
	s.Require().NoError(eng.Initialize(replay.NewMemorySource(s.bars(100)), optional.None[[]types.Bar]()))

	_, err = eng.Run(context.Background())
	s.Require().True(errors.HasCode(err, errors.ErrCodeNoStrategy))
	s.Require().True(errors.IsFatal(err))
}

func (s *EngineTestSuite) TestRunRequiresInitialize() {
	eng, err := NewEngine(s.config(), logger.NewNopLogger())
	s.Require().NoError(err)

	_, err = eng.Run(context.Background())
	s.Require().True(errors.HasCode(err, errors.ErrCodeEngineNotInitialized))
}

func (s *EngineTestSuite) TestSignalOrdersFillOnTheNextBar() {
	strat := &scriptedStrategy{signalsAt: s.buySignalAt(1)}
	eng := s.newEngine(s.config(), s.bars(50, 50, 52, 53), strat)

	result, err := eng.Run(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(StateCompleted, eng.State())

	s.Require().Len(result.Trades, 1)
	trade := result.Trades[0]

	// Signal on day 1, fill at day 2's close.
	s.Require().Equal(s.now.AddDate(0, 0, 2), trade.FillDate)
	s.Require().Equal(52.0, trade.FillPrice)
	// 100k * 0.2 / 50 = 400 shares.
	s.Require().Equal(400.0, trade.Quantity)

	// Equity curve has one point per bar, and the mark moved with day 3.
	s.Require().Len(result.EquityCurve, 4)
	s.Require().InDelta(100_000+400*(53-52), result.FinalCapital, 1e-6)

	s.Require().Equal(1, strat.started)
	s.Require().Equal(1, strat.stopped)
}

func (s *EngineTestSuite) TestRunsAreDeterministic() {
	closes := []float64{50, 50, 52, 55, 54, 51, 53, 56, 58, 57}

	run := func() *types.Result {
		signals := s.buySignalAt(1)
		ts := s.now.AddDate(0, 0, 6)
		signals[ts] = []types.Signal{{
			Symbol: "AAPL",
			Type:   types.SignalTypeSell,
			Time:   ts,
		}}

		strat := &scriptedStrategy{signalsAt: signals}
		eng := s.newEngine(s.config(), s.bars(closes...), strat)

		result, err := eng.Run(context.Background())
		s.Require().NoError(err)

		return result
	}

	first := run()
	second := run()

	s.Require().Equal(len(first.Trades), len(second.Trades))
	s.Require().Equal(first.FinalCapital, second.FinalCapital)

	for i := range first.EquityCurve {
		s.Require().Equal(first.EquityCurve[i].Equity, second.EquityCurve[i].Equity)
	}

	for i := range first.Trades {
		s.Require().Equal(first.Trades[i].FillPrice, second.Trades[i].FillPrice)
		s.Require().Equal(first.Trades[i].PnL, second.Trades[i].PnL)
	}
}

func (s *EngineTestSuite) TestStopLossClosesPosition() {
	config := s.config()
	config.StopLossPct = 0.05

	strat := &scriptedStrategy{signalsAt: s.buySignalAt(1)}
	// Fill at 100 on day 2, then a 6% drop on day 3 trips the stop; the
	// close order fills on day 4.
	eng := s.newEngine(config, s.bars(100, 100, 100, 94, 93, 93), strat)

	result, err := eng.Run(context.Background())
	s.Require().NoError(err)

	var stopTrade *types.Trade

	for i := range result.Trades {
		if result.Trades[i].Reason == types.OrderReasonStopLoss {
			stopTrade = &result.Trades[i]
		}
	}

	s.Require().NotNil(stopTrade)
	s.Require().True(stopTrade.HasRealizedPnL())
	s.Require().Equal(s.now.AddDate(0, 0, 4), stopTrade.FillDate)
	s.Require().Equal(93.0, stopTrade.ExitPrice)

	var sawStopEvent bool
	for event := range eng.Events() {
		if _, ok := event.(types.StopLossEvent); ok {
			sawStopEvent = true
		}
	}

	s.Require().True(sawStopEvent)
}

func (s *EngineTestSuite) TestMaxDrawdownKillSwitch() {
	config := s.config()
	config.MaxPositionSize = 0.8
	config.MaxDrawdownPct = 0.25

	signals := s.buySignalAt(1)
	// A second buy after the crash must be dropped by the kill switch.
	lateTS := s.now.AddDate(0, 0, 4)
	signals[lateTS] = []types.Signal{{
		Symbol: "AAPL",
		Type:   types.SignalTypeBuy,
		Time:   lateTS,
	}}

	strat := &scriptedStrategy{signalsAt: signals}
	// Fill 800 shares at 100 on day 2, crash to 60 on day 3.
	eng := s.newEngine(config, s.bars(100, 100, 100, 60, 60, 60), strat)

	result, err := eng.Run(context.Background())
	s.Require().NoError(err)

	var killOrder *types.Order

	for i := range result.Orders {
		order := result.Orders[i]

		switch order.Reason {
		case types.OrderReasonMaxDrawdown:
			s.Require().Equal(types.OrderStatusFilled, order.Status)
			killOrder = &result.Orders[i]
		case types.OrderReasonSignal:
			// The post-crash buy never became an order, so every signal
			// order here predates the crash.
			s.Require().True(order.CreatedAt.Before(s.now.AddDate(0, 0, 3)))
		}
	}

	s.Require().NotNil(killOrder)
	s.Require().Equal(800.0, killOrder.Quantity)

	var sawKillEvent bool
	for event := range eng.Events() {
		if _, ok := event.(types.MaxDrawdownEvent); ok {
			sawKillEvent = true
		}
	}

	s.Require().True(sawKillEvent)
}

func (s *EngineTestSuite) TestCancelMidRunFinalizes() {
	strat := &scriptedStrategy{signalsAt: s.buySignalAt(1), blockFirst: make(chan struct{})}
	eng := s.newEngine(s.config(), s.bars(50, 50, 52, 53, 54, 55), strat)

	type runOutcome struct {
		result *types.Result
		err    error
	}

	done := make(chan runOutcome, 1)

	go func() {
		result, err := eng.Run(context.Background())
		done <- runOutcome{result: result, err: err}
	}()

	// Engine is blocked inside the first OnBar: cancel, then release.
	s.Require().Eventually(func() bool {
		return eng.State() == StateRunning
	}, time.Second, time.Millisecond)

	eng.Cancel()
	close(strat.blockFirst)

	outcome := <-done
	s.Require().NoError(outcome.err)
	s.Require().True(outcome.result.Cancelled)
	s.Require().Equal(StateCancelled, eng.State())

	// The curve stops where the replay stopped.
	s.Require().Less(len(outcome.result.EquityCurve), 6)
}

func (s *EngineTestSuite) TestSecondRunWhileRunningIsRejected() {
	strat := &scriptedStrategy{blockFirst: make(chan struct{})}
	eng := s.newEngine(s.config(), s.bars(50, 51, 52), strat)

	done := make(chan struct{})

	go func() {
		_, _ = eng.Run(context.Background())
		close(done)
	}()

	s.Require().Eventually(func() bool {
		return eng.State() == StateRunning
	}, time.Second, time.Millisecond)

	_, err := eng.Run(context.Background())
	s.Require().True(errors.HasCode(err, errors.ErrCodeRunInProgress))

	close(strat.blockFirst)
	<-done
}

func (s *EngineTestSuite) TestStrategyFaultStormAborts() {
	strat := &scriptedStrategy{faultBars: 12}
	eng := s.newEngine(s.config(), s.bars(
		50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50,
	), strat)

	_, err := eng.Run(context.Background())
	s.Require().True(errors.HasCode(err, errors.ErrCodeStrategyFaultStorm))
	s.Require().True(errors.IsFatal(err))
	s.Require().Equal(StateErrored, eng.State())
}

func (s *EngineTestSuite) TestStrategyFaultsBelowStormThresholdRecover() {
	strat := &scriptedStrategy{faultBars: 5, signalsAt: s.buySignalAt(7)}
	eng := s.newEngine(s.config(), s.bars(50, 50, 50, 50, 50, 50, 50, 50, 52, 53), strat)

	result, err := eng.Run(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(StateCompleted, eng.State())
	s.Require().Len(result.Trades, 1)
}

func (s *EngineTestSuite) TestPauseOutsideRunningIsNoop() {
	strat := &scriptedStrategy{}
	eng := s.newEngine(s.config(), s.bars(50, 51), strat)

	eng.Pause()
	s.Require().Equal(StateInitialized, eng.State())

	eng.Resume()
	s.Require().Equal(StateInitialized, eng.State())

	_, err := eng.Run(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(StateCompleted, eng.State())
}

func (s *EngineTestSuite) TestTimeBoundsSkipBars() {
	config := s.config()
	config.StartTime = optional.Some(s.now.AddDate(0, 0, 1))
	config.EndTime = optional.Some(s.now.AddDate(0, 0, 2))

	strat := &scriptedStrategy{}
	eng := s.newEngine(config, s.bars(50, 51, 52, 53, 54), strat)

	result, err := eng.Run(context.Background())
	s.Require().NoError(err)
	s.Require().Len(result.EquityCurve, 2)
}

func (s *EngineTestSuite) TestMonthlyReturnsAndEvents() {
	s.now = time.Date(2024, 1, 29, 16, 0, 0, 0, time.UTC)

	strat := &scriptedStrategy{signalsAt: s.buySignalAt(0)}
	eng := s.newEngine(s.config(), s.bars(50, 50, 52, 53, 55, 56), strat)

	result, err := eng.Run(context.Background())
	s.Require().NoError(err)

	s.Require().Equal([]string{"2024-01", "2024-02"}, result.MonthlyReturnKeys())
	s.Require().Greater(result.MonthlyReturns["2024-02"], 0.0)

	var progress int

	var completed bool

	for event := range eng.Events() {
		switch event.(type) {
		case types.ProgressEvent:
			progress++
		case types.RunCompletedEvent:
			completed = true
		}
	}

	s.Require().Equal(6, progress)
	s.Require().True(completed)
}

func (s *EngineTestSuite) TestMetricsComputedAtFinalization() {
	signals := s.buySignalAt(1)
	ts := s.now.AddDate(0, 0, 5)
	signals[ts] = []types.Signal{{Symbol: "AAPL", Type: types.SignalTypeSell, Time: ts}}

	strat := &scriptedStrategy{signalsAt: signals}
	eng := s.newEngine(s.config(), s.bars(50, 50, 50, 52, 54, 56, 58, 58), strat)

	result, err := eng.Run(context.Background())
	s.Require().NoError(err)

	s.Require().Equal(1, result.Metrics.TotalTrades)
	s.Require().Equal(1, result.Metrics.WinningTrades)
	s.Require().Greater(result.Metrics.TotalReturn, 0.0)
	s.Require().InDelta(result.FinalCapital-result.InitialCapital, result.Metrics.TotalReturn, 1e-6)
}
