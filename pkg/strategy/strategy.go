package strategy

import "github.com/stockpulse/backtest/internal/types"

// Strategy is the contract between a trading strategy and the backtest
// engine. The engine drives it through a fixed lifecycle: Initialize once,
// Start at the beginning of a run, OnBar then GenerateSignals for every
// bar, and Stop when the run ends.
//
// A strategy never touches the ledger directly. It expresses intent
// through signals; sizing and risk limits are the engine's job.
type Strategy interface {
	// Name identifies the strategy in logs and results.
	Name() string
	// Initialize configures the strategy from a strategy-specific config
	// string, typically YAML.
	Initialize(config string) error
	// Start resets any per-run state. A strategy may run more than once.
	Start() error
	// OnBar feeds the next bar to the strategy.
	OnBar(symbol string, bar types.Bar) error
	// GenerateSignals returns the signals produced by the bar just
	// delivered. The engine calls it exactly once per bar.
	GenerateSignals() []types.Signal
	// Stop releases any resources held for the run.
	Stop() error
}
