package engine

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/internal/utils"
)

// SignalRouter turns strategy signals into sized orders and enforces the
// risk rules: the open-position cap, the per-position weight cap, stop-loss
// and take-profit exits, and the max-drawdown kill switch. While the kill
// switch is engaged, opening signals are dropped and closing signals still
// pass.
type SignalRouter struct {
	config     Config
	ledger     *Ledger
	logger     *logger.Logger
	killSwitch bool
	// lastRebalance is the time of the last completed rebalance period.
	lastRebalance time.Time
}

// NewSignalRouter creates a router over the given ledger.
func NewSignalRouter(config Config, ledger *Ledger, l *logger.Logger) *SignalRouter {
	if l == nil {
		l = logger.NewNopLogger()
	}

	return &SignalRouter{
		config: config,
		ledger: ledger,
		logger: l,
	}
}

// KillSwitchEngaged reports whether the max-drawdown kill switch is on.
func (r *SignalRouter) KillSwitchEngaged() bool {
	return r.killSwitch
}

// Route converts one signal into an order, or None when the signal is a
// hold, fails a risk gate, or cannot be sized.
func (r *SignalRouter) Route(signal types.Signal, bar types.Bar) optional.Option[types.Order] {
	switch {
	case signal.Type.IsBuy():
		return r.routeBuy(signal, bar)
	case signal.Type.IsSell():
		return r.routeSell(signal, bar)
	default:
		return optional.None[types.Order]()
	}
}

func (r *SignalRouter) routeBuy(signal types.Signal, bar types.Bar) optional.Option[types.Order] {
	if r.killSwitch {
		r.logger.Debug("dropping buy signal, kill switch engaged",
			zap.String("symbol", signal.Symbol))

		return optional.None[types.Order]()
	}

	// The drawdown gate also holds on the breach bar itself, before the
	// end-of-bar check engages the kill switch.
	if r.config.MaxDrawdownPct > 0 && r.ledger.DrawdownPct() >= r.config.MaxDrawdownPct {
		r.logger.Debug("dropping buy signal, drawdown at limit",
			zap.String("symbol", signal.Symbol),
			zap.Float64("drawdown_pct", r.ledger.DrawdownPct()))

		return optional.None[types.Order]()
	}

	// The cap only blocks opening a new position; adding to one held
	// already passes.
	_, err := r.ledger.Position(signal.Symbol).Take()
	if err != nil && r.config.MaxOpenPositions > 0 &&
		r.ledger.OpenPositionCount() >= r.config.MaxOpenPositions {
		r.logger.Debug("dropping buy signal, position cap reached",
			zap.String("symbol", signal.Symbol),
			zap.Int("max", r.config.MaxOpenPositions))

		return optional.None[types.Order]()
	}

	quantity := r.signalQuantity(signal, bar)
	if quantity <= 0 {
		return optional.None[types.Order]()
	}

	return optional.Some(types.Order{
		ID:        uuid.NewString(),
		Symbol:    signal.Symbol,
		Side:      types.OrderSideBuy,
		Type:      types.OrderTypeMarket,
		Quantity:  quantity,
		Status:    types.OrderStatusPending,
		Reason:    types.OrderReasonSignal,
		CreatedAt: bar.Time,
	})
}

func (r *SignalRouter) routeSell(signal types.Signal, bar types.Bar) optional.Option[types.Order] {
	pos, err := r.ledger.Position(signal.Symbol).Take()
	if err != nil && !r.config.ShortSelling {
		return optional.None[types.Order]()
	}

	// Default to the full position; a metadata quantity overrides it.
	quantity := 0.0
	if err == nil {
		quantity = pos.Quantity
	}

	if raw, ok := signal.Metadata["quantity"]; ok {
		parsed, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil || parsed <= 0 {
			r.logger.Warn("ignoring invalid quantity override",
				zap.String("symbol", signal.Symbol),
				zap.String("quantity", raw))
		} else {
			quantity = parsed
		}
	}

	if quantity <= 0 {
		return optional.None[types.Order]()
	}

	return optional.Some(types.Order{
		ID:        uuid.NewString(),
		Symbol:    signal.Symbol,
		Side:      types.OrderSideSell,
		Type:      types.OrderTypeMarket,
		Quantity:  quantity,
		Status:    types.OrderStatusPending,
		Reason:    types.OrderReasonSignal,
		CreatedAt: bar.Time,
	})
}

// signalQuantity sizes a buy from the configured cash fraction at the bar
// close.
func (r *SignalRouter) signalQuantity(signal types.Signal, bar types.Bar) float64 {
	if raw, ok := signal.Metadata["quantity"]; ok {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			return parsed
		}
	}

	return utils.QuantityForBudget(r.ledger.Cash(), r.config.MaxPositionSize, bar.Close)
}

// CheckStops evaluates stop-loss and take-profit on the bar's position and
// returns the synthetic close orders to submit. An adverse move of
// StopLossPct from entry triggers the stop; a favorable move of
// TakeProfitPct triggers the take.
func (r *SignalRouter) CheckStops(bar types.Bar) []types.Order {
	pos, err := r.ledger.Position(bar.Symbol).Take()
	if err != nil || pos.EntryPrice <= 0 {
		return nil
	}

	move := (bar.Close - pos.EntryPrice) / pos.EntryPrice
	if pos.Side == types.PositionSideShort {
		move = -move
	}

	var reason types.OrderReason

	switch {
	case r.config.StopLossPct > 0 && move <= -r.config.StopLossPct:
		reason = types.OrderReasonStopLoss
	case r.config.TakeProfitPct > 0 && move >= r.config.TakeProfitPct:
		reason = types.OrderReasonTakeProfit
	default:
		return nil
	}

	r.logger.Info("protective exit triggered",
		zap.String("symbol", bar.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("move_pct", move))

	return []types.Order{r.closeOrder(pos, reason, bar.Time)}
}

// CheckMaxDrawdown engages the kill switch when the drawdown breaches the
// configured limit, returning close orders for every open position. Once
// the drawdown recovers below the limit the switch disengages.
func (r *SignalRouter) CheckMaxDrawdown(ts time.Time) []types.Order {
	if r.config.MaxDrawdownPct <= 0 {
		return nil
	}

	ddPct := r.ledger.DrawdownPct()

	if r.killSwitch {
		if ddPct < r.config.MaxDrawdownPct {
			r.killSwitch = false
			r.logger.Info("kill switch disengaged", zap.Float64("drawdown_pct", ddPct))
		}

		return nil
	}

	if ddPct < r.config.MaxDrawdownPct {
		return nil
	}

	r.killSwitch = true
	r.logger.Warn("max drawdown breached, closing all positions",
		zap.Float64("drawdown_pct", ddPct),
		zap.Float64("limit", r.config.MaxDrawdownPct))

	var orders []types.Order
	for _, pos := range r.ledger.Positions() {
		orders = append(orders, r.closeOrder(pos, types.OrderReasonMaxDrawdown, ts))
	}

	return orders
}

// Rebalance trims positions whose weight exceeds MaxPositionSize of equity
// at period boundaries. It returns the trim orders, or nil when the bar
// does not cross a period boundary.
func (r *SignalRouter) Rebalance(bar types.Bar) []types.Order {
	if r.config.Rebalance == RebalanceNone {
		return nil
	}

	if !r.periodBoundary(bar.Time) {
		return nil
	}

	r.lastRebalance = bar.Time

	equity := r.ledger.Equity()
	if equity <= 0 {
		return nil
	}

	var orders []types.Order

	for _, pos := range r.ledger.Positions() {
		weight := pos.Quantity * pos.CurrentPrice / equity
		if weight <= r.config.MaxPositionSize || pos.CurrentPrice <= 0 {
			continue
		}

		excessValue := (weight - r.config.MaxPositionSize) * equity
		quantity := float64(int(excessValue / pos.CurrentPrice))

		if quantity <= 0 {
			continue
		}

		side := types.OrderSideSell
		if pos.Side == types.PositionSideShort {
			side = types.OrderSideBuy
		}

		r.logger.Info("rebalance trim",
			zap.String("symbol", pos.Symbol),
			zap.Float64("weight", weight),
			zap.Float64("quantity", quantity))

		orders = append(orders, types.Order{
			ID:        uuid.NewString(),
			Symbol:    pos.Symbol,
			Side:      side,
			Type:      types.OrderTypeMarket,
			Quantity:  quantity,
			Status:    types.OrderStatusPending,
			Reason:    types.OrderReasonRebalance,
			CreatedAt: bar.Time,
		})
	}

	return orders
}

// periodBoundary reports whether ts starts a new rebalance period relative
// to the last one.
func (r *SignalRouter) periodBoundary(ts time.Time) bool {
	if r.lastRebalance.IsZero() {
		return true
	}

	switch r.config.Rebalance {
	case RebalanceDaily:
		return ts.YearDay() != r.lastRebalance.YearDay() || ts.Year() != r.lastRebalance.Year()
	case RebalanceWeekly:
		y1, w1 := ts.ISOWeek()
		y2, w2 := r.lastRebalance.ISOWeek()

		return y1 != y2 || w1 != w2
	case RebalanceMonthly:
		return ts.Month() != r.lastRebalance.Month() || ts.Year() != r.lastRebalance.Year()
	default:
		return false
	}
}

func (r *SignalRouter) closeOrder(pos types.Position, reason types.OrderReason, ts time.Time) types.Order {
	side := types.OrderSideSell
	if pos.Side == types.PositionSideShort {
		side = types.OrderSideBuy
	}

	return types.Order{
		ID:        uuid.NewString(),
		Symbol:    pos.Symbol,
		Side:      side,
		Type:      types.OrderTypeMarket,
		Quantity:  pos.Quantity,
		Status:    types.OrderStatusPending,
		Reason:    reason,
		CreatedAt: ts,
	}
}
