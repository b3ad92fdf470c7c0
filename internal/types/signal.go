package types

import "time"

type SignalType string

const (
	// SignalTypeStrongBuy is a high-conviction directional buy.
	SignalTypeStrongBuy SignalType = "strong_buy"
	// SignalTypeBuy is a directional buy.
	SignalTypeBuy SignalType = "buy"
	// SignalTypeHold takes no action.
	SignalTypeHold SignalType = "hold"
	// SignalTypeSell is a directional sell or position exit.
	SignalTypeSell SignalType = "sell"
	// SignalTypeStrongSell is a high-conviction sell or position exit.
	SignalTypeStrongSell SignalType = "strong_sell"
)

// IsBuy reports whether the signal asks to open or add exposure.
func (s SignalType) IsBuy() bool {
	return s == SignalTypeBuy || s == SignalTypeStrongBuy
}

// IsSell reports whether the signal asks to reduce or close exposure.
// Sell signals pass the risk gates that block new opening orders.
func (s SignalType) IsSell() bool {
	return s == SignalTypeSell || s == SignalTypeStrongSell
}

// Signal is a directional trading suggestion from a strategy, prior to
// sizing or risk evaluation.
type Signal struct {
	// Symbol is the symbol of the signal.
	Symbol string
	// Type is the directional intent of the signal.
	Type SignalType
	// Confidence is the strategy's conviction in [0,1].
	Confidence float64
	// Time is the time of the signal.
	Time time.Time
	// Metadata carries optional strategy-specific values. The router
	// recognizes "quantity" as an explicit size override.
	Metadata map[string]string
}
