package cost

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
)

type CostModelTestSuite struct {
	suite.Suite
	logger *logger.Logger
}

func TestCostModelTestSuite(t *testing.T) {
	suite.Run(t, new(CostModelTestSuite))
}

func (s *CostModelTestSuite) SetupTest() {
	s.logger = logger.NewNopLogger()
}

func (s *CostModelTestSuite) model(config Config) *Model {
	return NewModel(config, s.logger)
}

func (s *CostModelTestSuite) TestFixedCommission() {
	model := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed, Amount: 4.95},
		Slippage:   SlippageConfig{Type: SlippageTypeNone},
		Spread:     SpreadConfig{Type: SpreadTypeNone},
	})

	breakdown := model.Cost(100, 10, 1_000_000, types.OrderSideBuy, time.Now())
	s.Require().Equal(4.95, breakdown.Commission)
	s.Require().Equal(4.95, breakdown.Total)
}

func (s *CostModelTestSuite) TestPercentageCommissionClamped() {
	tests := []struct {
		name     string
		price    float64
		quantity float64
		min      float64
		max      float64
		expected float64
	}{
		{
			name:     "within bounds",
			price:    100,
			quantity: 100,
			min:      1,
			max:      50,
			expected: 10, // 10_000 * 0.001
		},
		{
			name:     "clamped to min",
			price:    10,
			quantity: 1,
			min:      1,
			max:      50,
			expected: 1,
		},
		{
			name:     "clamped to max",
			price:    1000,
			quantity: 1000,
			min:      1,
			max:      50,
			expected: 50,
		},
		{
			name:     "zero max means uncapped",
			price:    1000,
			quantity: 1000,
			min:      0,
			max:      0,
			expected: 1000, // 1_000_000 * 0.001
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			model := s.model(Config{
				Commission: CommissionConfig{
					Type:   CommissionTypePercentage,
					Amount: 0.001,
					Min:    tc.min,
					Max:    tc.max,
				},
				Slippage: SlippageConfig{Type: SlippageTypeNone},
				Spread:   SpreadConfig{Type: SpreadTypeNone},
			})

			breakdown := model.Cost(tc.price, tc.quantity, 1_000_000, types.OrderSideBuy, time.Now())
			s.Require().InDelta(tc.expected, breakdown.Commission, 1e-9)
		})
	}
}

func (s *CostModelTestSuite) TestPerUnitCommission() {
	model := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypePerUnit, Amount: 0.01},
		Slippage:   SlippageConfig{Type: SlippageTypeNone},
		Spread:     SpreadConfig{Type: SpreadTypeNone},
	})

	breakdown := model.Cost(50, 300, 1_000_000, types.OrderSideSell, time.Now())
	s.Require().InDelta(3.0, breakdown.Commission, 1e-9)
}

func (s *CostModelTestSuite) TestTieredCommission() {
	tiers := []Tier{
		{Threshold: 1_000_000, Rate: 0.0002},
		{Threshold: 100_000, Rate: 0.0005},
		{Threshold: 0, Rate: 0.001},
	}

	tests := []struct {
		name     string
		notional float64
		expected float64
	}{
		{
			name:     "large trade hits top tier",
			notional: 2_000_000,
			expected: 2_000_000 * 0.0002,
		},
		{
			name:     "exactly at middle threshold",
			notional: 100_000,
			expected: 100_000 * 0.0005,
		},
		{
			name:     "150k uses middle tier",
			notional: 150_000,
			expected: 150_000 * 0.0005,
		},
		{
			name:     "small trade uses base tier",
			notional: 50_000,
			expected: 50_000 * 0.001,
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			model := s.model(Config{
				Commission: CommissionConfig{Type: CommissionTypeTiered, Tiers: tiers},
				Slippage:   SlippageConfig{Type: SlippageTypeNone},
				Spread:     SpreadConfig{Type: SpreadTypeNone},
			})

			// Use a unit price so quantity equals notional.
			breakdown := model.Cost(1, tc.notional, 10_000_000, types.OrderSideBuy, time.Now())
			s.Require().InDelta(tc.expected, breakdown.Commission, 1e-6)
		})
	}
}

func (s *CostModelTestSuite) TestUnknownCommissionTypeFallsBackToPercentage() {
	model := s.model(Config{
		Commission: CommissionConfig{Type: CommissionType("exotic")},
		Slippage:   SlippageConfig{Type: SlippageTypeNone},
		Spread:     SpreadConfig{Type: SpreadTypeNone},
	})

	breakdown := model.Cost(100, 100, 1_000_000, types.OrderSideBuy, time.Now())
	s.Require().InDelta(10_000*fallbackRate, breakdown.Commission, 1e-9)
}

func (s *CostModelTestSuite) TestCustomCommission() {
	model := s.model(Config{
		Commission: CommissionConfig{
			Type: CommissionTypeCustom,
			Custom: func(price, quantity, volume float64) float64 {
				return 7.5
			},
		},
		Slippage: SlippageConfig{Type: SlippageTypeNone},
		Spread:   SpreadConfig{Type: SpreadTypeNone},
	})

	breakdown := model.Cost(100, 100, 1_000_000, types.OrderSideBuy, time.Now())
	s.Require().Equal(7.5, breakdown.Commission)
}

func (s *CostModelTestSuite) TestFixedAndPercentageSlippage() {
	fixed := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed},
		Slippage:   SlippageConfig{Type: SlippageTypeFixed, Value: 0.02},
		Spread:     SpreadConfig{Type: SpreadTypeNone},
	})

	breakdown := fixed.Cost(100, 50, 1_000_000, types.OrderSideBuy, time.Now())
	s.Require().InDelta(1.0, breakdown.Slippage, 1e-9)

	pct := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed},
		Slippage:   SlippageConfig{Type: SlippageTypePercentage, Value: 0.001},
		Spread:     SpreadConfig{Type: SpreadTypeNone},
	})

	breakdown = pct.Cost(100, 50, 1_000_000, types.OrderSideBuy, time.Now())
	s.Require().InDelta(5.0, breakdown.Slippage, 1e-9)
}

func (s *CostModelTestSuite) TestMarketImpactSublinearPerShare() {
	model := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed},
		Slippage:   SlippageConfig{Type: SlippageTypeMarketImpact},
		Impact:     ImpactConfig{Factor: 0.1, Exponent: 0.5},
		Spread:     SpreadConfig{Type: SpreadTypeNone},
	})

	now := time.Now()
	small := model.Cost(100, 1_000, 1_000_000, types.OrderSideBuy, now)
	large := model.Cost(100, 10_000, 1_000_000, types.OrderSideBuy, now)

	perShareSmall := small.MarketImpact / 1_000
	perShareLarge := large.MarketImpact / 10_000

	// Per-share impact grows with size, but slower than linearly.
	s.Require().Greater(perShareLarge, perShareSmall)
	s.Require().Less(perShareLarge/perShareSmall, 10.0)

	// participation 0.001, sqrt ~= 0.0316, per share = 0.1*100*0.0316
	expected := 0.1 * 100 * math.Sqrt(0.001)
	s.Require().InDelta(expected, perShareSmall, 1e-9)
}

func (s *CostModelTestSuite) TestMarketImpactZeroVolume() {
	model := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed},
		Slippage:   SlippageConfig{Type: SlippageTypeMarketImpact},
		Impact:     ImpactConfig{Factor: 0.1, Exponent: 0.5},
		Spread:     SpreadConfig{Type: SpreadTypeNone},
	})

	breakdown := model.Cost(100, 10, 0, types.OrderSideBuy, time.Now())
	s.Require().False(math.IsNaN(breakdown.MarketImpact))
	s.Require().False(math.IsInf(breakdown.MarketImpact, 1))
}

func (s *CostModelTestSuite) TestMarketImpactClamped() {
	model := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed},
		Slippage:   SlippageConfig{Type: SlippageTypeMarketImpact},
		Impact:     ImpactConfig{Factor: 10, Exponent: 0.5, Max: 0.05},
		Spread:     SpreadConfig{Type: SpreadTypeNone},
	})

	breakdown := model.Cost(100, 100_000, 100_000, types.OrderSideBuy, time.Now())
	s.Require().InDelta(0.05*100_000, breakdown.MarketImpact, 1e-6)
}

func (s *CostModelTestSuite) TestVolumeBasedSlippageProfile() {
	profile := map[int]float64{
		9:  2.0,
		16: 1.5,
	}

	model := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed},
		Slippage: SlippageConfig{
			Type:          SlippageTypeVolumeBased,
			Value:         0.001,
			VolumeProfile: profile,
		},
		Spread: SpreadConfig{Type: SpreadTypeNone},
	})

	open := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	midday := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	atOpen := model.Cost(100, 100, 1_000_000, types.OrderSideBuy, open)
	atMidday := model.Cost(100, 100, 1_000_000, types.OrderSideBuy, midday)

	s.Require().InDelta(10_000*0.001*2.0, atOpen.Slippage, 1e-9)
	// Missing hour falls back to a factor of 1.
	s.Require().InDelta(10_000*0.001, atMidday.Slippage, 1e-9)
}

func (s *CostModelTestSuite) TestSpread() {
	fixed := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed},
		Slippage:   SlippageConfig{Type: SlippageTypeNone},
		Spread:     SpreadConfig{Type: SpreadTypeFixed, Value: 0.02},
	})

	breakdown := fixed.Cost(100, 100, 1_000_000, types.OrderSideBuy, time.Now())
	s.Require().InDelta(1.0, breakdown.SpreadCost, 1e-9)

	pct := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed},
		Slippage:   SlippageConfig{Type: SlippageTypeNone},
		Spread:     SpreadConfig{Type: SpreadTypePercentage, Value: 0.0002},
	})

	breakdown = pct.Cost(100, 100, 1_000_000, types.OrderSideSell, time.Now())
	s.Require().InDelta(100*0.0002/2*100, breakdown.SpreadCost, 1e-9)
}

func (s *CostModelTestSuite) TestAdjustedExecutionPrice() {
	model := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypePercentage, Amount: 0.001},
		Slippage:   SlippageConfig{Type: SlippageTypePercentage, Value: 0.0005},
		Spread:     SpreadConfig{Type: SpreadTypeNone},
	})

	now := time.Now()

	buy := model.AdjustedExecutionPrice(100, 100, 1_000_000, types.OrderSideBuy, now)
	sell := model.AdjustedExecutionPrice(100, 100, 1_000_000, types.OrderSideSell, now)

	s.Require().Greater(buy, 100.0)
	s.Require().Less(sell, 100.0)

	breakdown := model.Cost(100, 100, 1_000_000, types.OrderSideBuy, now)
	s.Require().InDelta(100+breakdown.Total/100, buy, 1e-9)
}

func (s *CostModelTestSuite) TestPriceFrictionExcludesCommission() {
	model := s.model(Config{
		Commission: CommissionConfig{Type: CommissionTypeFixed, Amount: 5},
		Slippage:   SlippageConfig{Type: SlippageTypeFixed, Value: 0.02},
		Spread:     SpreadConfig{Type: SpreadTypeFixed, Value: 0.02},
	})

	breakdown := model.Cost(100, 100, 1_000_000, types.OrderSideBuy, time.Now())
	friction := model.PriceFriction(breakdown, 100)

	// 0.02 slippage + 0.01 half-spread per share, no commission.
	s.Require().InDelta(0.03, friction, 1e-9)
}

func (s *CostModelTestSuite) TestBreakdownTotalIsSumOfComponents() {
	model := s.model(DefaultConfig())

	breakdown := model.Cost(250, 400, 2_000_000, types.OrderSideBuy, time.Now())
	sum := breakdown.Commission + breakdown.Slippage + breakdown.MarketImpact + breakdown.SpreadCost
	s.Require().InDelta(sum, breakdown.Total, 1e-9)
}
