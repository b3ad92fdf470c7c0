package cost

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
)

// fallbackRate is the percentage rate used when a config names an unknown
// cost type.
const fallbackRate = 0.001

// Breakdown itemizes the friction of one execution. All components are
// totals for the whole fill, not per share.
type Breakdown struct {
	Commission   float64 `yaml:"commission" json:"commission"`
	Slippage     float64 `yaml:"slippage" json:"slippage"`
	MarketImpact float64 `yaml:"market_impact" json:"market_impact"`
	SpreadCost   float64 `yaml:"spread_cost" json:"spread_cost"`
	Total        float64 `yaml:"total" json:"total"`
}

// Model computes transaction costs for executions. A Model is stateless and
// safe for concurrent use.
type Model struct {
	config Config
	logger *logger.Logger
}

// NewModel creates a cost model from the given config.
func NewModel(config Config, l *logger.Logger) *Model {
	if l == nil {
		l = logger.NewNopLogger()
	}

	return &Model{
		config: config,
		logger: l,
	}
}

// Cost returns the full cost breakdown for executing quantity shares at
// price against a bar with the given volume. The timestamp feeds the
// volume-based slippage profile.
func (m *Model) Cost(price, quantity, volume float64, side types.OrderSide, ts time.Time) Breakdown {
	commission := m.commission(price, quantity, volume)
	slippage, impact := m.slippage(price, quantity, volume, ts)
	spread := m.spread(price, quantity, volume)

	return Breakdown{
		Commission:   commission,
		Slippage:     slippage,
		MarketImpact: impact,
		SpreadCost:   spread,
		Total:        commission + slippage + impact + spread,
	}
}

// AdjustedExecutionPrice returns the effective per-share price after all
// friction: raised for buys, lowered for sells.
func (m *Model) AdjustedExecutionPrice(price, quantity, volume float64, side types.OrderSide, ts time.Time) float64 {
	if quantity <= 0 {
		return price
	}

	breakdown := m.Cost(price, quantity, volume, side, ts)
	perShare := breakdown.Total / quantity

	if side == types.OrderSideBuy {
		return price + perShare
	}

	return price - perShare
}

// PriceFriction returns the per-share price adjustment excluding
// commission. Commission settles against cash, not the fill price.
func (m *Model) PriceFriction(breakdown Breakdown, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}

	return (breakdown.Slippage + breakdown.MarketImpact + breakdown.SpreadCost) / quantity
}

func (m *Model) commission(price, quantity, volume float64) float64 {
	cfg := m.config.Commission
	notional := price * quantity

	var fee float64

	switch cfg.Type {
	case CommissionTypeFixed:
		fee = cfg.Amount
	case CommissionTypePercentage:
		fee = notional * cfg.Amount
	case CommissionTypePerUnit:
		fee = quantity * cfg.Amount
	case CommissionTypeTiered:
		fee = notional * m.tieredRate(notional)
	case CommissionTypeCustom:
		if cfg.Custom != nil {
			fee = cfg.Custom(price, quantity, volume)
			break
		}

		m.logger.Warn("custom commission function not set, falling back to percentage",
			zap.Float64("rate", fallbackRate))
		fee = notional * fallbackRate
	default:
		m.logger.Warn("unknown commission type, falling back to percentage",
			zap.String("type", string(cfg.Type)),
			zap.Float64("rate", fallbackRate))
		fee = notional * fallbackRate
	}

	return clamp(fee, cfg.Min, cfg.Max)
}

// tieredRate returns the rate of the first tier whose threshold the
// notional meets, scanning tiers in descending threshold order.
func (m *Model) tieredRate(notional float64) float64 {
	tiers := m.config.Commission.Tiers
	if len(tiers) == 0 {
		return fallbackRate
	}

	for _, tier := range tiers {
		if notional >= tier.Threshold {
			return tier.Rate
		}
	}

	// Below every threshold: charge the smallest-notional tier.
	return tiers[len(tiers)-1].Rate
}

func (m *Model) slippage(price, quantity, volume float64, ts time.Time) (slippage, impact float64) {
	cfg := m.config.Slippage
	notional := price * quantity

	switch cfg.Type {
	case SlippageTypeNone:
		return 0, 0
	case SlippageTypeFixed:
		return cfg.Value * quantity, 0
	case SlippageTypePercentage:
		return notional * cfg.Value, 0
	case SlippageTypeMarketImpact:
		return 0, m.marketImpact(price, quantity, volume)
	case SlippageTypeVolumeBased:
		factor := 1.0
		if f, ok := cfg.VolumeProfile[ts.Hour()]; ok {
			factor = f
		}

		return notional * cfg.Value * factor, 0
	case SlippageTypeCustom:
		if cfg.Custom != nil {
			return cfg.Custom(price, quantity, volume), 0
		}

		m.logger.Warn("custom slippage function not set, falling back to percentage",
			zap.Float64("rate", fallbackRate))

		return notional * fallbackRate, 0
	default:
		m.logger.Warn("unknown slippage type, falling back to percentage",
			zap.String("type", string(cfg.Type)),
			zap.Float64("rate", fallbackRate))

		return notional * fallbackRate, 0
	}
}

// marketImpact returns the total impact cost using a power-law
// participation model. Volume of zero is treated as one to keep the
// participation ratio finite.
func (m *Model) marketImpact(price, quantity, volume float64) float64 {
	cfg := m.config.Impact

	participation := quantity / math.Max(volume, 1)
	perShare := cfg.Factor * price * math.Pow(participation, cfg.Exponent)
	perShare = clamp(perShare, cfg.Min, cfg.Max)

	return perShare * quantity
}

func (m *Model) spread(price, quantity, volume float64) float64 {
	cfg := m.config.Spread

	switch cfg.Type {
	case SpreadTypeNone:
		return 0
	case SpreadTypeFixed:
		return cfg.Value / 2 * quantity
	case SpreadTypePercentage:
		return price * cfg.Value / 2 * quantity
	case SpreadTypeCustom:
		if cfg.Custom != nil {
			return cfg.Custom(price, quantity, volume)
		}

		m.logger.Warn("custom spread function not set, treating spread as none")

		return 0
	default:
		m.logger.Warn("unknown spread type, treating spread as none",
			zap.String("type", string(cfg.Type)))

		return 0
	}
}

// clamp bounds v to [min, max]. A max of zero means no upper bound.
func clamp(v, min, max float64) float64 {
	if v < min {
		v = min
	}

	if max > 0 && v > max {
		v = max
	}

	return v
}
