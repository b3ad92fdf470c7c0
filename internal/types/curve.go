package types

import "time"

// EquityPoint is one point of the equity curve, appended once per processed
// bar and never mutated afterward. At every point
// cash + positions value == equity.
type EquityPoint struct {
	Time           time.Time `yaml:"time" json:"time"`
	Equity         float64   `yaml:"equity" json:"equity"`
	Cash           float64   `yaml:"cash" json:"cash"`
	PositionsValue float64   `yaml:"positions_value" json:"positions_value"`
	// Drawdown is high-water mark minus equity, never negative.
	Drawdown    float64 `yaml:"drawdown" json:"drawdown"`
	DrawdownPct float64 `yaml:"drawdown_pct" json:"drawdown_pct"`
}

// DrawdownPoint tracks the decline from the running equity peak.
type DrawdownPoint struct {
	Time          time.Time `yaml:"time" json:"time"`
	HighWaterMark float64   `yaml:"high_water_mark" json:"high_water_mark"`
	Drawdown      float64   `yaml:"drawdown" json:"drawdown"`
	DrawdownPct   float64   `yaml:"drawdown_pct" json:"drawdown_pct"`
}
