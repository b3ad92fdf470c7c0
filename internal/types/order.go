package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/stockpulse/backtest/pkg/errors"
)

type OrderSide string

type OrderType string

type OrderStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// OrderReason is the closed set of reasons an order can exist. Exhaustive
// switches over this type cover every way the engine creates orders.
type OrderReason string

const (
	// OrderReasonSignal marks orders routed from a strategy signal.
	OrderReasonSignal OrderReason = "signal"
	// OrderReasonStopLoss marks synthetic closes on an adverse move.
	OrderReasonStopLoss OrderReason = "stop_loss"
	// OrderReasonTakeProfit marks synthetic closes on a favorable move.
	OrderReasonTakeProfit OrderReason = "take_profit"
	// OrderReasonMaxDrawdown marks forced closes from the drawdown kill switch.
	OrderReasonMaxDrawdown OrderReason = "max_drawdown"
	// OrderReasonRebalance marks scheduled rebalancing trims.
	OrderReasonRebalance OrderReason = "rebalance"
)

// AllOrderReasons lists every valid OrderReason, for schema generation.
var AllOrderReasons = []any{
	OrderReasonSignal,
	OrderReasonStopLoss,
	OrderReasonTakeProfit,
	OrderReasonMaxDrawdown,
	OrderReasonRebalance,
}

// Valid reports whether r is a member of the closed reason set.
func (r OrderReason) Valid() bool {
	switch r {
	case OrderReasonSignal, OrderReasonStopLoss, OrderReasonTakeProfit,
		OrderReasonMaxDrawdown, OrderReasonRebalance:
		return true
	}

	return false
}

// Order is a request to trade. Limit and stop prices are present depending
// on the order type. Orders are immutable once they reach a terminal status.
type Order struct {
	ID       string      `yaml:"id" json:"id" validate:"required"`
	Symbol   string      `yaml:"symbol" json:"symbol" validate:"required"`
	Side     OrderSide   `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Type     OrderType   `yaml:"type" json:"type" validate:"required,oneof=MARKET LIMIT STOP STOP_LIMIT"`
	Quantity float64     `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	Status   OrderStatus `yaml:"status" json:"status"`
	Reason   OrderReason `yaml:"reason" json:"reason"`
	// LimitPrice is required for LIMIT and STOP_LIMIT orders.
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price"`
	// StopPrice is required for STOP and STOP_LIMIT orders.
	StopPrice optional.Option[float64] `yaml:"stop_price" json:"stop_price"`
	// CreatedAt is the bar time the order was placed. Orders never fill on
	// the bar that created them.
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	// FilledAt is set when the order reaches OrderStatusFilled.
	FilledAt optional.Option[time.Time] `yaml:"filled_at" json:"filled_at"`
}

// Terminal reports whether the order reached a final status.
func (o *Order) Terminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	case OrderStatusPending:
		return false
	}

	return false
}

// Validate validates the Order struct, including type-specific price
// requirements the struct tags cannot express.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if !o.Reason.Valid() {
		return errors.Newf(errors.ErrCodeInvalidOrder, "invalid order reason %q", o.Reason)
	}

	switch o.Type {
	case OrderTypeLimit:
		if o.LimitPrice.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "limit order requires a limit price")
		}
	case OrderTypeStop:
		if o.StopPrice.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "stop order requires a stop price")
		}
	case OrderTypeStopLimit:
		if o.LimitPrice.IsNone() || o.StopPrice.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "stop-limit order requires stop and limit prices")
		}
	case OrderTypeMarket:
	}

	return nil
}
