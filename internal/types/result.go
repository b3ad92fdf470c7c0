package types

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Result is the outcome of one backtest run.
type Result struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id" json:"id"`
	// StartedAt and FinishedAt bound the wall-clock run.
	StartedAt  time.Time `yaml:"started_at" json:"started_at"`
	FinishedAt time.Time `yaml:"finished_at" json:"finished_at"`
	// Cancelled is true when the run was cancelled; the ledger state up to
	// the cancellation point is still finalized into this result.
	Cancelled bool `yaml:"cancelled" json:"cancelled"`

	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	FinalCapital   float64 `yaml:"final_capital" json:"final_capital"`

	Orders        []Order         `yaml:"orders" json:"orders"`
	Trades        []Trade         `yaml:"trades" json:"trades"`
	EquityCurve   []EquityPoint   `yaml:"equity_curve" json:"equity_curve"`
	DrawdownCurve []DrawdownPoint `yaml:"drawdown_curve" json:"drawdown_curve"`
	// MonthlyReturns maps "YYYY-MM" to the equity return over that month.
	MonthlyReturns map[string]float64 `yaml:"monthly_returns" json:"monthly_returns"`

	Metrics PerformanceMetrics `yaml:"metrics" json:"metrics"`
}

// MonthlyReturnKeys returns the months of MonthlyReturns in ascending order.
func (r *Result) MonthlyReturnKeys() []string {
	keys := make([]string, 0, len(r.MonthlyReturns))
	for k := range r.MonthlyReturns {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// WriteSummary writes the run summary (everything except the bulky order,
// trade and curve slices) to a YAML file.
func (r *Result) WriteSummary(path string) error {
	summary := struct {
		ID             string             `yaml:"id"`
		StartedAt      time.Time          `yaml:"started_at"`
		FinishedAt     time.Time          `yaml:"finished_at"`
		Cancelled      bool               `yaml:"cancelled"`
		InitialCapital float64            `yaml:"initial_capital"`
		FinalCapital   float64            `yaml:"final_capital"`
		TotalOrders    int                `yaml:"total_orders"`
		TotalTrades    int                `yaml:"total_trades"`
		MonthlyReturns map[string]float64 `yaml:"monthly_returns"`
		Metrics        PerformanceMetrics `yaml:"metrics"`
	}{
		ID:             r.ID,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Cancelled:      r.Cancelled,
		InitialCapital: r.InitialCapital,
		FinalCapital:   r.FinalCapital,
		TotalOrders:    len(r.Orders),
		TotalTrades:    len(r.Trades),
		MonthlyReturns: r.MonthlyReturns,
		Metrics:        r.Metrics,
	}

	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal result summary to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result summary to file: %w", err)
	}

	return nil
}
