package types

import "time"

type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Position is the current holding for a symbol. At most one position per
// symbol exists at any time; the ledger owns every position exclusively.
type Position struct {
	Symbol string       `yaml:"symbol" json:"symbol"`
	Side   PositionSide `yaml:"side" json:"side"`
	// Quantity is always positive; Side carries the direction.
	Quantity float64 `yaml:"quantity" json:"quantity"`
	// EntryPrice is the quantity-weighted average entry price.
	EntryPrice   float64   `yaml:"entry_price" json:"entry_price"`
	EntryDate    time.Time `yaml:"entry_date" json:"entry_date"`
	CurrentPrice float64   `yaml:"current_price" json:"current_price"`
}

// MarketValue is the position's contribution to equity. Short positions
// contribute negatively so that cash + market value stays invariant across
// the opening fill.
func (p *Position) MarketValue() float64 {
	if p.Side == PositionSideShort {
		return -p.Quantity * p.CurrentPrice
	}

	return p.Quantity * p.CurrentPrice
}

// UnrealizedPnL is the profit or loss at the current mark against the
// average entry price.
func (p *Position) UnrealizedPnL() float64 {
	if p.Side == PositionSideShort {
		return (p.EntryPrice - p.CurrentPrice) * p.Quantity
	}

	return (p.CurrentPrice - p.EntryPrice) * p.Quantity
}
