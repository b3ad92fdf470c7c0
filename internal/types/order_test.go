package types

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

type OrderTestSuite struct {
	suite.Suite
}

func TestOrderTestSuite(t *testing.T) {
	suite.Run(t, new(OrderTestSuite))
}

func (s *OrderTestSuite) validOrder() Order {
	return Order{
		ID:        "order-1",
		Symbol:    "AAPL",
		Side:      OrderSideBuy,
		Type:      OrderTypeMarket,
		Quantity:  100,
		Status:    OrderStatusPending,
		Reason:    OrderReasonSignal,
		CreatedAt: time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC),
	}
}

func (s *OrderTestSuite) TestValidOrder() {
	order := s.validOrder()
	s.Require().NoError(order.Validate())
}

func (s *OrderTestSuite) TestValidateRejectsBadOrders() {
	tests := []struct {
		name   string
		mutate func(*Order)
	}{
		{
			name:   "missing symbol",
			mutate: func(o *Order) { o.Symbol = "" },
		},
		{
			name:   "zero quantity",
			mutate: func(o *Order) { o.Quantity = 0 },
		},
		{
			name:   "negative quantity",
			mutate: func(o *Order) { o.Quantity = -10 },
		},
		{
			name:   "bad side",
			mutate: func(o *Order) { o.Side = OrderSide("HOLD") },
		},
		{
			name:   "reason outside the closed set",
			mutate: func(o *Order) { o.Reason = OrderReason("margin_call") },
		},
		{
			name:   "limit order without limit price",
			mutate: func(o *Order) { o.Type = OrderTypeLimit },
		},
		{
			name:   "stop order without stop price",
			mutate: func(o *Order) { o.Type = OrderTypeStop },
		},
		{
			name: "stop-limit order with only stop price",
			mutate: func(o *Order) {
				o.Type = OrderTypeStopLimit
				o.StopPrice = optional.Some(95.0)
			},
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			order := s.validOrder()
			tc.mutate(&order)
			s.Require().Error(order.Validate())
		})
	}
}

func (s *OrderTestSuite) TestTypedOrdersWithPricesValidate() {
	order := s.validOrder()
	order.Type = OrderTypeStopLimit
	order.StopPrice = optional.Some(95.0)
	order.LimitPrice = optional.Some(94.0)

	s.Require().NoError(order.Validate())
}

func (s *OrderTestSuite) TestTerminal() {
	order := s.validOrder()
	s.Require().False(order.Terminal())

	for _, status := range []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected} {
		order.Status = status
		s.Require().True(order.Terminal())
	}
}

func (s *OrderTestSuite) TestOrderReasonValid() {
	for _, reason := range AllOrderReasons {
		s.Require().True(reason.(OrderReason).Valid())
	}

	s.Require().False(OrderReason("").Valid())
	s.Require().False(OrderReason("manual").Valid())
}
