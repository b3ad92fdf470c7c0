package engine

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stockpulse/backtest/internal/backtest/cost"
	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/pkg/errors"
)

// FillResult is the outcome of matching one pending order against a bar.
type FillResult struct {
	Order types.Order
	// Trades are the trades the fill produced: one for a plain fill, two
	// for a flip.
	Trades []types.Trade
}

// Ledger tracks cash, positions, orders and trades for one run. Cash moves
// through decimal arithmetic so repeated fills do not accumulate float
// drift. The ledger is not safe for concurrent use; the engine serializes
// access on its run loop.
type Ledger struct {
	cash         decimal.Decimal
	positions    map[string]*types.Position
	pending      []types.Order
	orders       []types.Order
	trades       []types.Trade
	equityCurve  []types.EquityPoint
	ddCurve      []types.DrawdownPoint
	hwm          float64
	shortSelling bool

	costModel *cost.Model
	logger    *logger.Logger
}

// NewLedger creates a ledger with the given starting cash.
func NewLedger(initialCapital float64, shortSelling bool, costModel *cost.Model, l *logger.Logger) *Ledger {
	if l == nil {
		l = logger.NewNopLogger()
	}

	return &Ledger{
		cash:         decimal.NewFromFloat(initialCapital),
		positions:    make(map[string]*types.Position),
		hwm:          initialCapital,
		shortSelling: shortSelling,
		costModel:    costModel,
		logger:       l,
	}
}

// Cash returns the current free cash.
func (l *Ledger) Cash() float64 {
	return l.cash.InexactFloat64()
}

// Equity returns cash plus the marked value of all open positions. Every
// equity figure in the ledger flows through this method.
func (l *Ledger) Equity() float64 {
	equity := l.cash

	for _, pos := range l.positions {
		equity = equity.Add(decimal.NewFromFloat(pos.MarketValue()))
	}

	return equity.InexactFloat64()
}

// Position returns the open position for symbol, if any.
func (l *Ledger) Position(symbol string) optional.Option[types.Position] {
	pos, ok := l.positions[symbol]
	if !ok {
		return optional.None[types.Position]()
	}

	return optional.Some(*pos)
}

// Positions returns a snapshot of all open positions.
func (l *Ledger) Positions() []types.Position {
	snapshot := make([]types.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		snapshot = append(snapshot, *pos)
	}

	return snapshot
}

// OpenPositionCount returns the number of open positions.
func (l *Ledger) OpenPositionCount() int {
	return len(l.positions)
}

// Orders returns every submitted order with its final status.
func (l *Ledger) Orders() []types.Order {
	return l.orders
}

// Trades returns every trade recorded so far.
func (l *Ledger) Trades() []types.Trade {
	return l.trades
}

// EquityCurve returns the points appended so far.
func (l *Ledger) EquityCurve() []types.EquityPoint {
	return l.equityCurve
}

// DrawdownCurve returns the drawdown points appended so far.
func (l *Ledger) DrawdownCurve() []types.DrawdownPoint {
	return l.ddCurve
}

// HighWaterMark returns the running equity peak.
func (l *Ledger) HighWaterMark() float64 {
	return l.hwm
}

// DrawdownPct returns the current decline from the high-water mark as a
// fraction of the mark.
func (l *Ledger) DrawdownPct() float64 {
	if l.hwm <= 0 {
		return 0
	}

	dd := l.hwm - l.Equity()
	if dd < 0 {
		return 0
	}

	return dd / l.hwm
}

// MarkToMarket updates the held position for the bar's symbol to the bar
// close.
func (l *Ledger) MarkToMarket(bar types.Bar) {
	if pos, ok := l.positions[bar.Symbol]; ok {
		pos.CurrentPrice = bar.Close
	}
}

// SubmitOrder validates the order and queues it for matching. Orders are
// eligible to fill starting from the bar after their creation bar.
func (l *Ledger) SubmitOrder(order types.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	if err := order.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "order rejected", err)
	}

	order.Status = types.OrderStatusPending
	l.pending = append(l.pending, order)

	return nil
}

// CancelPending cancels all pending orders, recording them as cancelled.
func (l *Ledger) CancelPending() {
	for _, order := range l.pending {
		order.Status = types.OrderStatusCancelled
		l.orders = append(l.orders, order)
	}

	l.pending = nil
}

// FillPending matches every eligible pending order against the bar. Orders
// created at or after the bar's time are held for a later bar, and orders
// for other symbols stay queued.
func (l *Ledger) FillPending(bar types.Bar) []FillResult {
	var (
		results []FillResult
		keep    []types.Order
	)

	for _, order := range l.pending {
		if order.Symbol != bar.Symbol || !order.CreatedAt.Before(bar.Time) {
			keep = append(keep, order)

			continue
		}

		price, ok := fillPrice(order, bar)
		if !ok {
			keep = append(keep, order)

			continue
		}

		result, err := l.executeFill(order, price, bar)
		if err != nil {
			order.Status = types.OrderStatusRejected
			l.orders = append(l.orders, order)
			l.logger.Warn("order rejected",
				zap.String("order_id", order.ID),
				zap.String("symbol", order.Symbol),
				zap.Error(err))

			continue
		}

		l.orders = append(l.orders, result.Order)
		results = append(results, result)
	}

	l.pending = keep

	return results
}

// fillPrice decides whether the order fills against the bar and at what
// raw price, before transaction costs.
func fillPrice(order types.Order, bar types.Bar) (float64, bool) {
	buy := order.Side == types.OrderSideBuy

	switch order.Type {
	case types.OrderTypeMarket:
		return bar.Close, true

	case types.OrderTypeLimit:
		limit := order.LimitPrice.Unwrap()
		if buy {
			if bar.Low <= limit {
				return math.Min(bar.Open, limit), true
			}
		} else {
			if bar.High >= limit {
				return math.Max(bar.Open, limit), true
			}
		}

		return 0, false

	case types.OrderTypeStop:
		stop := order.StopPrice.Unwrap()
		if buy {
			if bar.High >= stop {
				return math.Max(bar.Open, stop), true
			}
		} else {
			if bar.Low <= stop {
				return math.Min(bar.Open, stop), true
			}
		}

		return 0, false

	case types.OrderTypeStopLimit:
		stop := order.StopPrice.Unwrap()
		limit := order.LimitPrice.Unwrap()

		if buy {
			if bar.High >= stop && bar.Low <= limit {
				return math.Min(math.Max(bar.Open, stop), limit), true
			}
		} else {
			if bar.Low <= stop && bar.High >= limit {
				return math.Max(math.Min(bar.Open, stop), limit), true
			}
		}

		return 0, false
	}

	return 0, false
}

// executeFill applies one fill to cash and positions and records its
// trades. The raw price picks up slippage, impact and spread as a
// per-share adjustment; commission settles against cash.
func (l *Ledger) executeFill(order types.Order, rawPrice float64, bar types.Bar) (FillResult, error) {
	quantity := order.Quantity
	pos := l.positions[order.Symbol]

	if order.Side == types.OrderSideSell && !l.shortSelling {
		held := 0.0
		if pos != nil && pos.Side == types.PositionSideLong {
			held = pos.Quantity
		}

		if held == 0 {
			return FillResult{}, errors.Newf(errors.ErrCodeShortSellingDisabled,
				"no long position in %s to sell", order.Symbol)
		}

		if quantity > held {
			l.logger.Debug("clamping sell to held quantity",
				zap.String("symbol", order.Symbol),
				zap.Float64("requested", quantity),
				zap.Float64("held", held))
			quantity = held
		}
	}

	breakdown := l.costModel.Cost(rawPrice, quantity, bar.Volume, order.Side, bar.Time)
	friction := l.costModel.PriceFriction(breakdown, quantity)

	execPrice := rawPrice + friction
	if order.Side == types.OrderSideSell {
		execPrice = rawPrice - friction
	}

	if order.Side == types.OrderSideBuy {
		required := decimal.NewFromFloat(execPrice*quantity + breakdown.Commission)
		if l.cash.LessThan(required) {
			return FillResult{}, errors.Newf(errors.ErrCodeInsufficientFunds,
				"need %s, have %s", required.StringFixed(2), l.cash.StringFixed(2))
		}
	}

	trades, err := l.applyToPosition(order, execPrice, quantity, breakdown, bar)
	if err != nil {
		return FillResult{}, err
	}

	notional := decimal.NewFromFloat(execPrice * quantity)
	commission := decimal.NewFromFloat(breakdown.Commission)

	if order.Side == types.OrderSideBuy {
		l.cash = l.cash.Sub(notional).Sub(commission)
	} else {
		l.cash = l.cash.Add(notional).Sub(commission)
	}

	order.Quantity = quantity
	order.Status = types.OrderStatusFilled
	order.FilledAt = optional.Some(bar.Time)

	l.trades = append(l.trades, trades...)

	return FillResult{Order: order, Trades: trades}, nil
}

// applyToPosition runs the position transition for a fill: open, merge,
// partial close, full close, or flip.
func (l *Ledger) applyToPosition(
	order types.Order,
	execPrice, quantity float64,
	breakdown cost.Breakdown,
	bar types.Bar,
) ([]types.Trade, error) {
	pos := l.positions[order.Symbol]

	fillSide := types.PositionSideLong
	if order.Side == types.OrderSideSell {
		fillSide = types.PositionSideShort
	}

	// Open a fresh position.
	if pos == nil {
		l.positions[order.Symbol] = &types.Position{
			Symbol:       order.Symbol,
			Side:         fillSide,
			Quantity:     quantity,
			EntryPrice:   execPrice,
			EntryDate:    bar.Time,
			CurrentPrice: bar.Close,
		}

		return []types.Trade{l.newOpenTrade(order, fillSide, execPrice, quantity, breakdown, bar)}, nil
	}

	// Merge into the same direction with a weighted average entry.
	if pos.Side == fillSide {
		total := pos.Quantity + quantity
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + execPrice*quantity) / total
		pos.Quantity = total
		pos.CurrentPrice = bar.Close

		return []types.Trade{l.newOpenTrade(order, fillSide, execPrice, quantity, breakdown, bar)}, nil
	}

	// Opposite direction: close some, all, or flip.
	switch {
	case quantity < pos.Quantity:
		closing := l.newClosingTrade(order, execPrice, quantity, breakdown, bar, pos)
		pos.Quantity -= quantity
		pos.CurrentPrice = bar.Close

		return []types.Trade{closing}, nil

	case quantity == pos.Quantity:
		closing := l.newClosingTrade(order, execPrice, quantity, breakdown, bar, pos)
		delete(l.positions, order.Symbol)
		l.settleOpenTrades(order.Symbol, bar.Time)

		return []types.Trade{closing}, nil

	default:
		remainder := quantity - pos.Quantity
		if fillSide == types.PositionSideShort && !l.shortSelling {
			return nil, errors.Newf(errors.ErrCodeShortSellingDisabled,
				"sell of %.0f exceeds held %.0f in %s", quantity, pos.Quantity, order.Symbol)
		}

		closing := l.newClosingTrade(order, execPrice, pos.Quantity, breakdown, bar, pos)
		delete(l.positions, order.Symbol)
		l.settleOpenTrades(order.Symbol, bar.Time)

		l.positions[order.Symbol] = &types.Position{
			Symbol:       order.Symbol,
			Side:         fillSide,
			Quantity:     remainder,
			EntryPrice:   execPrice,
			EntryDate:    bar.Time,
			CurrentPrice: bar.Close,
		}

		opening := l.newOpenTrade(order, fillSide, execPrice, remainder, breakdown, bar)

		return []types.Trade{closing, opening}, nil
	}
}

func (l *Ledger) newOpenTrade(
	order types.Order,
	side types.PositionSide,
	execPrice, quantity float64,
	breakdown cost.Breakdown,
	bar types.Bar,
) types.Trade {
	return types.Trade{
		ID:           uuid.NewString(),
		OrderID:      order.ID,
		Symbol:       order.Symbol,
		Side:         side,
		Quantity:     quantity,
		FillPrice:    execPrice,
		FillDate:     bar.Time,
		Commission:   breakdown.Commission,
		Slippage:     breakdown.Slippage,
		MarketImpact: breakdown.MarketImpact,
		SpreadCost:   breakdown.SpreadCost,
		Status:       types.TradeStatusOpen,
		Reason:       order.Reason,
	}
}

// newClosingTrade records a realized exit against the position's average
// entry. Realized PnL is net of the closing fill's commission; slippage,
// impact and spread are already inside the execution price.
func (l *Ledger) newClosingTrade(
	order types.Order,
	execPrice, quantity float64,
	breakdown cost.Breakdown,
	bar types.Bar,
	pos *types.Position,
) types.Trade {
	direction := 1.0
	if pos.Side == types.PositionSideShort {
		direction = -1
	}

	pnl := direction*(execPrice-pos.EntryPrice)*quantity - breakdown.Commission

	return types.Trade{
		ID:                uuid.NewString(),
		OrderID:           order.ID,
		Symbol:            order.Symbol,
		Side:              pos.Side,
		Quantity:          quantity,
		FillPrice:         execPrice,
		FillDate:          bar.Time,
		Commission:        breakdown.Commission,
		Slippage:          breakdown.Slippage,
		MarketImpact:      breakdown.MarketImpact,
		SpreadCost:        breakdown.SpreadCost,
		Status:            types.TradeStatusClosed,
		Reason:            order.Reason,
		EntryPrice:        pos.EntryPrice,
		ExitPrice:         execPrice,
		ExitDate:          bar.Time,
		HoldingPeriodDays: bar.Time.Sub(pos.EntryDate).Hours() / 24,
		PnL:               pnl,
	}
}

// settleOpenTrades flips the symbol's remaining open entry trades to
// closed once the position is gone. Their PnL was realized on the closing
// trades, so they settle with none of their own.
func (l *Ledger) settleOpenTrades(symbol string, ts time.Time) {
	for i := range l.trades {
		if l.trades[i].Symbol == symbol && l.trades[i].Status == types.TradeStatusOpen {
			l.trades[i].Status = types.TradeStatusClosed
			l.trades[i].ExitDate = ts
		}
	}
}

// AppendCurvePoint records the equity and drawdown state at ts. The
// high-water mark only ratchets upward.
func (l *Ledger) AppendCurvePoint(ts time.Time) types.EquityPoint {
	equity := l.Equity()

	if equity > l.hwm {
		l.hwm = equity
	}

	dd := l.hwm - equity
	if dd < 0 {
		dd = 0
	}

	ddPct := 0.0
	if l.hwm > 0 {
		ddPct = dd / l.hwm
	}

	var positionsValue float64
	for _, pos := range l.positions {
		positionsValue += pos.MarketValue()
	}

	point := types.EquityPoint{
		Time:           ts,
		Equity:         equity,
		Cash:           l.Cash(),
		PositionsValue: positionsValue,
		Drawdown:       dd,
		DrawdownPct:    ddPct,
	}

	l.equityCurve = append(l.equityCurve, point)
	l.ddCurve = append(l.ddCurve, types.DrawdownPoint{
		Time:          ts,
		HighWaterMark: l.hwm,
		Drawdown:      dd,
		DrawdownPct:   ddPct,
	})

	return point
}
