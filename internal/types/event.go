package types

import "time"

// Event is the closed set of lifecycle notifications emitted by a backtest
// run. Consumers receive events through the engine's outbox channel rather
// than registering callbacks on a shared emitter.
type Event interface {
	isEvent()
	// EventTime is the simulation time the event refers to.
	EventTime() time.Time
}

// ProgressEvent is emitted once per processed bar.
type ProgressEvent struct {
	Time      time.Time
	Processed int
	Total     int
}

// OrderFilledEvent is emitted when a pending order fills against a bar.
type OrderFilledEvent struct {
	Time   time.Time
	Order  Order
	Trades []Trade
}

// SignalProcessedEvent is emitted after the router evaluates a signal,
// whether or not it produced an order.
type SignalProcessedEvent struct {
	Time     time.Time
	Signal   Signal
	Accepted bool
	OrderID  string
}

// StopLossEvent is emitted when a stop-loss close is synthesized.
type StopLossEvent struct {
	Time    time.Time
	Symbol  string
	Order   Order
	MovePct float64
}

// TakeProfitEvent is emitted when a take-profit close is synthesized.
type TakeProfitEvent struct {
	Time    time.Time
	Symbol  string
	Order   Order
	MovePct float64
}

// MaxDrawdownEvent is emitted when the drawdown kill switch engages and
// force-closes every open position.
type MaxDrawdownEvent struct {
	Time        time.Time
	DrawdownPct float64
	Orders      []Order
}

// RebalanceEvent is emitted when scheduled rebalancing produced orders.
type RebalanceEvent struct {
	Time   time.Time
	Orders []Order
}

// RunCompletedEvent carries the final result of a run.
type RunCompletedEvent struct {
	Time   time.Time
	Result *Result
}

// RunFailedEvent carries the fatal error that terminated a run.
type RunFailedEvent struct {
	Time time.Time
	Err  error
}

func (e ProgressEvent) isEvent()        {}
func (e OrderFilledEvent) isEvent()     {}
func (e SignalProcessedEvent) isEvent() {}
func (e StopLossEvent) isEvent()        {}
func (e TakeProfitEvent) isEvent()      {}
func (e MaxDrawdownEvent) isEvent()     {}
func (e RebalanceEvent) isEvent()       {}
func (e RunCompletedEvent) isEvent()    {}
func (e RunFailedEvent) isEvent()       {}

func (e ProgressEvent) EventTime() time.Time        { return e.Time }
func (e OrderFilledEvent) EventTime() time.Time     { return e.Time }
func (e SignalProcessedEvent) EventTime() time.Time { return e.Time }
func (e StopLossEvent) EventTime() time.Time        { return e.Time }
func (e TakeProfitEvent) EventTime() time.Time      { return e.Time }
func (e MaxDrawdownEvent) EventTime() time.Time     { return e.Time }
func (e RebalanceEvent) EventTime() time.Time       { return e.Time }
func (e RunCompletedEvent) EventTime() time.Time    { return e.Time }
func (e RunFailedEvent) EventTime() time.Time       { return e.Time }
