package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/stockpulse/backtest/internal/backtest/analytics"
	"github.com/stockpulse/backtest/internal/backtest/cost"
	"github.com/stockpulse/backtest/internal/backtest/replay"
	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/pkg/errors"
	"github.com/stockpulse/backtest/pkg/strategy"
)

// State is the lifecycle state of an engine.
type State string

const (
	StateCreated     State = "created"
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StatePaused      State = "paused"
	StateCompleted   State = "completed"
	StateCancelled   State = "cancelled"
	StateErrored     State = "errored"
)

// maxStrategyFaultStreak is how many consecutive bars a strategy may panic
// or error on before the run aborts.
const maxStrategyFaultStreak = 10

// eventBufferSize bounds the outbox. A slow consumer drops events rather
// than stalling the replay loop.
const eventBufferSize = 256

// maxBarGap is the largest bar-to-bar distance per symbol that passes
// without a data-gap log. Daily bars span weekends and holidays, so a week
// of slack avoids false alarms.
const maxBarGap = 7 * 24 * time.Hour

// Engine replays bars through a strategy and produces a Result. One engine
// owns one ledger; create a new engine for every run configuration.
type Engine struct {
	mu     sync.Mutex
	state  State
	config Config

	source    replay.Source
	benchmark optional.Option[[]types.Bar]
	strat     strategy.Strategy

	ledger *Ledger
	router *SignalRouter

	events          chan types.Event
	cancelRequested bool
	faultStreak     int
	lastBarTime     map[string]time.Time

	logger *logger.Logger
}

// NewEngine creates an engine for the given config.
func NewEngine(config Config, l *logger.Logger) (*Engine, error) {
	if l == nil {
		l = logger.NewNopLogger()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		state:  StateCreated,
		config: config,
		logger: l,
	}, nil
}

// Initialize binds the bar source and optional benchmark series and builds
// the ledger. It must run before SetStrategy and Run.
func (e *Engine) Initialize(source replay.Source, benchmark optional.Option[[]types.Bar]) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateCreated {
		return errors.Newf(errors.ErrCodeEngineNotInitialized,
			"cannot initialize engine in state %s", e.state)
	}

	costModel := cost.NewModel(e.config.Cost, e.logger)

	e.source = source
	e.benchmark = benchmark
	e.ledger = NewLedger(e.config.InitialCapital, e.config.ShortSelling, costModel, e.logger)
	e.router = NewSignalRouter(e.config, e.ledger, e.logger)
	e.events = make(chan types.Event, eventBufferSize)
	e.state = StateInitialized

	return nil
}

// SetStrategy binds the strategy for the run.
func (e *Engine) SetStrategy(s strategy.Strategy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInitialized {
		return errors.Newf(errors.ErrCodeEngineNotInitialized,
			"cannot set strategy in state %s", e.state)
	}

	e.strat = s

	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Events returns the event outbox. The channel closes when the run
// finishes.
func (e *Engine) Events() <-chan types.Event {
	return e.events
}

// Pause suspends the replay at the next bar boundary. Outside a running
// engine it is a no-op.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return
	}

	e.state = StatePaused
	e.source.Pause()
}

// Resume lifts a pause. Outside a paused engine it is a no-op.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return
	}

	e.state = StateRunning
	e.source.Resume()
}

// Cancel stops the replay. The run finalizes with whatever the ledger
// holds and the result is marked cancelled.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning && e.state != StatePaused {
		return
	}

	e.cancelRequested = true

	if err := e.source.Stop(); err != nil {
		e.logger.Warn("failed to stop source on cancel", zap.Error(err))
	}
}

// Run replays every bar through the strategy and returns the finalized
// result. Run returns an error without a result only on fatal conditions:
// no strategy bound, a run already in progress, or a strategy fault storm.
func (e *Engine) Run(ctx context.Context) (*types.Result, error) {
	e.mu.Lock()

	switch {
	case e.state == StateRunning || e.state == StatePaused:
		e.mu.Unlock()

		return nil, errors.New(errors.ErrCodeRunInProgress, "a run is already in progress")
	case e.state != StateInitialized:
		e.mu.Unlock()

		return nil, errors.Newf(errors.ErrCodeEngineNotInitialized,
			"cannot run engine in state %s", e.state)
	case e.strat == nil:
		e.mu.Unlock()

		return nil, errors.New(errors.ErrCodeNoStrategy, "no strategy bound to engine")
	}

	e.state = StateRunning
	e.cancelRequested = false
	e.faultStreak = 0
	e.lastBarTime = make(map[string]time.Time)
	e.mu.Unlock()

	startedAt := time.Now()

	e.logger.Info("backtest run starting",
		zap.String("strategy", e.strat.Name()),
		zap.Strings("symbols", e.config.Symbols),
		zap.Float64("initial_capital", e.config.InitialCapital))

	if err := e.source.Start(ctx); err != nil {
		return nil, e.fail(errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to start bar source", err))
	}

	if err := e.strat.Start(); err != nil {
		return nil, e.fail(errors.Wrap(errors.ErrCodeStrategyFault, "strategy failed to start", err))
	}

	for {
		next, err := e.source.Next(ctx)
		if err != nil {
			// Context cancellation finalizes like an explicit Cancel.
			e.mu.Lock()
			e.cancelRequested = true
			e.mu.Unlock()

			break
		}

		bar, err := next.Take()
		if err != nil {
			break
		}

		if !e.inRange(bar.Time) {
			continue
		}

		if err := e.processBar(bar); err != nil {
			return nil, e.fail(err)
		}
	}

	return e.finalize(startedAt), nil
}

// inRange checks the configured time bounds.
func (e *Engine) inRange(ts time.Time) bool {
	if start, err := e.config.StartTime.Take(); err == nil && ts.Before(start) {
		return false
	}

	if end, err := e.config.EndTime.Take(); err == nil && ts.After(end) {
		return false
	}

	return true
}

// processBar runs the fixed per-bar pipeline: mark to market, fill pending
// orders, deliver the bar to the strategy, route the signals, append the
// curve point, then the risk checks in order: rebalance, protective stops,
// max drawdown.
func (e *Engine) processBar(bar types.Bar) error {
	if last, ok := e.lastBarTime[bar.Symbol]; ok && bar.Time.Sub(last) > maxBarGap {
		e.logger.Debug("data gap in bar series",
			zap.String("symbol", bar.Symbol),
			zap.Time("previous", last),
			zap.Time("current", bar.Time))
	}

	e.lastBarTime[bar.Symbol] = bar.Time

	e.ledger.MarkToMarket(bar)

	for _, fill := range e.ledger.FillPending(bar) {
		e.emit(types.OrderFilledEvent{Time: bar.Time, Order: fill.Order, Trades: fill.Trades})
	}

	signals, err := e.deliverBar(bar)
	if err != nil {
		return err
	}

	for _, signal := range signals {
		e.routeSignal(signal, bar)
	}

	e.ledger.AppendCurvePoint(bar.Time)

	processed, total := e.source.Progress()
	e.emit(types.ProgressEvent{Time: bar.Time, Processed: processed, Total: total})

	if orders := e.router.Rebalance(bar); len(orders) > 0 {
		e.submitAll(orders)
		e.emit(types.RebalanceEvent{Time: bar.Time, Orders: orders})
	}

	for _, order := range e.router.CheckStops(bar) {
		e.submitAll([]types.Order{order})

		pos, _ := e.ledger.Position(bar.Symbol).Take()
		move := 0.0
		if pos.EntryPrice > 0 {
			move = (bar.Close - pos.EntryPrice) / pos.EntryPrice
		}

		switch order.Reason {
		case types.OrderReasonStopLoss:
			e.emit(types.StopLossEvent{Time: bar.Time, Symbol: bar.Symbol, Order: order, MovePct: move})
		case types.OrderReasonTakeProfit:
			e.emit(types.TakeProfitEvent{Time: bar.Time, Symbol: bar.Symbol, Order: order, MovePct: move})
		}
	}

	if orders := e.router.CheckMaxDrawdown(bar.Time); len(orders) > 0 {
		e.submitAll(orders)
		e.emit(types.MaxDrawdownEvent{
			Time:        bar.Time,
			DrawdownPct: e.ledger.DrawdownPct(),
			Orders:      orders,
		})
	}

	return nil
}

// deliverBar hands the bar to the strategy and collects its signals,
// absorbing panics and errors. A streak of consecutive faults aborts the
// run; a clean bar resets the streak.
func (e *Engine) deliverBar(bar types.Bar) (signals []types.Signal, err error) {
	faulted := false

	func() {
		defer func() {
			if r := recover(); r != nil {
				faulted = true
				e.logger.Error("strategy panicked",
					zap.String("symbol", bar.Symbol),
					zap.Time("bar_time", bar.Time),
					zap.Any("panic", r))
			}
		}()

		if onBarErr := e.strat.OnBar(bar.Symbol, bar); onBarErr != nil {
			faulted = true
			e.logger.Error("strategy failed on bar",
				zap.String("symbol", bar.Symbol),
				zap.Time("bar_time", bar.Time),
				zap.Error(onBarErr))

			return
		}

		signals = e.strat.GenerateSignals()
	}()

	if !faulted {
		e.faultStreak = 0

		return signals, nil
	}

	e.faultStreak++
	if e.faultStreak >= maxStrategyFaultStreak {
		return nil, errors.Newf(errors.ErrCodeStrategyFaultStorm,
			"strategy faulted on %d consecutive bars", e.faultStreak)
	}

	return nil, nil
}

func (e *Engine) routeSignal(signal types.Signal, bar types.Bar) {
	routed := e.router.Route(signal, bar)

	order, err := routed.Take()
	if err != nil {
		e.emit(types.SignalProcessedEvent{Time: bar.Time, Signal: signal})

		return
	}

	if submitErr := e.ledger.SubmitOrder(order); submitErr != nil {
		e.logger.Warn("failed to submit routed order",
			zap.String("symbol", order.Symbol),
			zap.Error(submitErr))
		e.emit(types.SignalProcessedEvent{Time: bar.Time, Signal: signal})

		return
	}

	e.emit(types.SignalProcessedEvent{Time: bar.Time, Signal: signal, Accepted: true, OrderID: order.ID})
}

func (e *Engine) submitAll(orders []types.Order) {
	for _, order := range orders {
		if err := e.ledger.SubmitOrder(order); err != nil {
			e.logger.Warn("failed to submit order",
				zap.String("symbol", order.Symbol),
				zap.String("reason", string(order.Reason)),
				zap.Error(err))
		}
	}
}

// finalize cancels leftover pending orders, computes the metrics, and
// seals the engine in its terminal state.
func (e *Engine) finalize(startedAt time.Time) *types.Result {
	e.ledger.CancelPending()

	if err := e.strat.Stop(); err != nil {
		e.logger.Warn("strategy failed to stop", zap.Error(err))
	}

	curve := e.ledger.EquityCurve()

	result := &types.Result{
		ID:             uuid.NewString(),
		StartedAt:      startedAt,
		FinishedAt:     time.Now(),
		InitialCapital: e.config.InitialCapital,
		FinalCapital:   e.ledger.Equity(),
		Orders:         e.ledger.Orders(),
		Trades:         e.ledger.Trades(),
		EquityCurve:    curve,
		DrawdownCurve:  e.ledger.DrawdownCurve(),
		MonthlyReturns: monthlyReturns(curve, e.config.InitialCapital),
		Metrics:        analytics.Compute(curve, e.ledger.Trades(), e.config.InitialCapital, e.benchmark),
	}

	e.mu.Lock()
	result.Cancelled = e.cancelRequested

	if e.cancelRequested {
		e.state = StateCancelled
	} else {
		e.state = StateCompleted
	}
	e.mu.Unlock()

	e.emit(types.RunCompletedEvent{Time: result.FinishedAt, Result: result})
	close(e.events)

	e.logger.Info("backtest run finished",
		zap.String("state", string(e.State())),
		zap.Float64("final_capital", result.FinalCapital),
		zap.Int("orders", len(result.Orders)),
		zap.Int("trades", len(result.Trades)))

	return result
}

// fail seals the engine in the errored state and surfaces the fatal error.
func (e *Engine) fail(err error) error {
	e.mu.Lock()
	e.state = StateErrored
	e.mu.Unlock()

	e.logger.Error("backtest run failed", zap.Error(err))
	e.emit(types.RunFailedEvent{Time: time.Now(), Err: err})
	close(e.events)

	return err
}

// emit sends without blocking; a full outbox drops the event.
func (e *Engine) emit(event types.Event) {
	select {
	case e.events <- event:
	default:
	}
}

// monthlyReturns derives per-month equity returns from the curve, keyed
// "YYYY-MM". The first month measures against the initial capital.
func monthlyReturns(curve []types.EquityPoint, initialCapital float64) map[string]float64 {
	returns := make(map[string]float64)
	if len(curve) == 0 {
		return returns
	}

	prevEquity := initialCapital
	currentKey := monthKey(curve[0].Time)
	lastEquity := curve[0].Equity

	for _, point := range curve[1:] {
		key := monthKey(point.Time)
		if key != currentKey {
			if prevEquity > 0 {
				returns[currentKey] = (lastEquity - prevEquity) / prevEquity
			}

			prevEquity = lastEquity
			currentKey = key
		}

		lastEquity = point.Equity
	}

	if prevEquity > 0 {
		returns[currentKey] = (lastEquity - prevEquity) / prevEquity
	}

	return returns
}

func monthKey(ts time.Time) string {
	return fmt.Sprintf("%04d-%02d", ts.Year(), int(ts.Month()))
}
