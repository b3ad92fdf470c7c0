package types

import "time"

type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "OPEN"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// Trade records one fill. Opening fills create open trades; closing fills
// create trades that are born closed and carry the realized P&L for the
// closed quantity against the position's average entry. When a position
// fully closes, its remaining open entry trades transition to closed with
// zero P&L so realized profit is never counted twice.
type Trade struct {
	ID      string       `yaml:"id" json:"id"`
	OrderID string       `yaml:"order_id" json:"order_id"`
	Symbol  string       `yaml:"symbol" json:"symbol"`
	Side    PositionSide `yaml:"side" json:"side"`
	// Quantity is the filled quantity for this execution.
	Quantity  float64   `yaml:"quantity" json:"quantity"`
	FillPrice float64   `yaml:"fill_price" json:"fill_price"`
	FillDate  time.Time `yaml:"fill_date" json:"fill_date"`

	Commission   float64 `yaml:"commission" json:"commission"`
	Slippage     float64 `yaml:"slippage" json:"slippage"`
	MarketImpact float64 `yaml:"market_impact" json:"market_impact"`
	SpreadCost   float64 `yaml:"spread_cost" json:"spread_cost"`

	Status TradeStatus `yaml:"status" json:"status"`
	Reason OrderReason `yaml:"reason" json:"reason"`

	// EntryPrice is set on closing trades: the position's quantity-weighted
	// average entry price at close time.
	EntryPrice float64   `yaml:"entry_price" json:"entry_price"`
	ExitPrice  float64   `yaml:"exit_price" json:"exit_price"`
	ExitDate   time.Time `yaml:"exit_date" json:"exit_date"`
	// HoldingPeriodDays is exit date minus entry date in days, computed at
	// close time.
	HoldingPeriodDays float64 `yaml:"holding_period_days" json:"holding_period_days"`
	PnL               float64 `yaml:"pnl" json:"pnl"`
}

// IsClosed reports whether the trade reached its terminal status.
func (t *Trade) IsClosed() bool {
	return t.Status == TradeStatusClosed
}

// HasRealizedPnL reports whether this trade carries realized profit or
// loss, i.e. it closed position quantity against an entry price. Entry-leg
// trades transitioned to closed report false.
func (t *Trade) HasRealizedPnL() bool {
	return t.Status == TradeStatusClosed && t.EntryPrice != 0
}
