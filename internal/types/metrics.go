package types

// PerformanceMetrics is the flat set of statistics derived from a finished
// equity curve and trade list. Computed once at finalization, never mutated.
// Every ratio defaults to zero when its denominator is non-positive, except
// ProfitFactor which is +Inf when there are wins and no losses.
type PerformanceMetrics struct {
	// Returns.
	TotalReturn      float64 `yaml:"total_return" json:"total_return"`
	TotalReturnPct   float64 `yaml:"total_return_pct" json:"total_return_pct"`
	AnnualizedReturn float64 `yaml:"annualized_return" json:"annualized_return"`

	// Risk.
	MaxDrawdown          float64 `yaml:"max_drawdown" json:"max_drawdown"`
	MaxDrawdownPct       float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	LongestDrawdownDays  float64 `yaml:"longest_drawdown_days" json:"longest_drawdown_days"`
	AnnualizedVolatility float64 `yaml:"annualized_volatility" json:"annualized_volatility"`
	DownsideDeviation    float64 `yaml:"downside_deviation" json:"downside_deviation"`
	SharpeRatio          float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	SortinoRatio         float64 `yaml:"sortino_ratio" json:"sortino_ratio"`
	CalmarRatio          float64 `yaml:"calmar_ratio" json:"calmar_ratio"`
	UlcerIndex           float64 `yaml:"ulcer_index" json:"ulcer_index"`

	// Benchmark-relative. Zero when no benchmark series was supplied.
	Alpha            float64 `yaml:"alpha" json:"alpha"`
	Beta             float64 `yaml:"beta" json:"beta"`
	TrackingError    float64 `yaml:"tracking_error" json:"tracking_error"`
	InformationRatio float64 `yaml:"information_ratio" json:"information_ratio"`
	Correlation      float64 `yaml:"correlation" json:"correlation"`

	// Trade statistics over closed trades ordered by exit date.
	TotalTrades          int     `yaml:"total_trades" json:"total_trades"`
	WinningTrades        int     `yaml:"winning_trades" json:"winning_trades"`
	LosingTrades         int     `yaml:"losing_trades" json:"losing_trades"`
	WinRate              float64 `yaml:"win_rate" json:"win_rate"`
	ProfitFactor         float64 `yaml:"profit_factor" json:"profit_factor"`
	Expectancy           float64 `yaml:"expectancy" json:"expectancy"`
	AverageWin           float64 `yaml:"average_win" json:"average_win"`
	AverageLoss          float64 `yaml:"average_loss" json:"average_loss"`
	LargestWin           float64 `yaml:"largest_win" json:"largest_win"`
	LargestLoss          float64 `yaml:"largest_loss" json:"largest_loss"`
	PayoffRatio          float64 `yaml:"payoff_ratio" json:"payoff_ratio"`
	AverageHoldingDays   float64 `yaml:"average_holding_days" json:"average_holding_days"`
	MaxConsecutiveWins   int     `yaml:"max_consecutive_wins" json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" json:"max_consecutive_losses"`
}
