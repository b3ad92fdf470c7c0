package cost

// CommissionType selects the commission formula.
type CommissionType string

const (
	CommissionTypeFixed      CommissionType = "fixed"
	CommissionTypePercentage CommissionType = "percentage"
	CommissionTypePerUnit    CommissionType = "per_unit"
	CommissionTypeTiered     CommissionType = "tiered"
	CommissionTypeCustom     CommissionType = "custom"
)

// SlippageType selects the slippage formula.
type SlippageType string

const (
	SlippageTypeNone         SlippageType = "none"
	SlippageTypeFixed        SlippageType = "fixed"
	SlippageTypePercentage   SlippageType = "percentage"
	SlippageTypeMarketImpact SlippageType = "market_impact"
	SlippageTypeVolumeBased  SlippageType = "volume_based"
	SlippageTypeCustom       SlippageType = "custom"
)

// SpreadType selects the bid-ask spread formula.
type SpreadType string

const (
	SpreadTypeNone       SpreadType = "none"
	SpreadTypeFixed      SpreadType = "fixed"
	SpreadTypePercentage SpreadType = "percentage"
	SpreadTypeCustom     SpreadType = "custom"
)

// Tier is one rung of a tiered commission schedule. Threshold is the
// minimum trade notional for the tier's rate to apply.
type Tier struct {
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"gte=0"`
	Rate      float64 `yaml:"rate" json:"rate" validate:"gte=0"`
}

// CustomFunc computes a cost component directly from the raw execution
// values. It is consulted only for the custom cost types.
type CustomFunc func(price, quantity, volume float64) float64

// CommissionConfig configures the commission component.
type CommissionConfig struct {
	Type CommissionType `yaml:"type" json:"type"`
	// Amount is the fixed fee, percentage rate, or per-unit fee depending
	// on Type.
	Amount float64 `yaml:"amount" json:"amount" validate:"gte=0"`
	// Min and Max clamp the computed commission. Max of zero means no cap.
	Min float64 `yaml:"min" json:"min" validate:"gte=0"`
	Max float64 `yaml:"max" json:"max" validate:"gte=0"`
	// Tiers is the schedule for the tiered type, highest threshold first.
	Tiers []Tier `yaml:"tiers" json:"tiers"`

	Custom CustomFunc `yaml:"-" json:"-"`
}

// SlippageConfig configures the slippage component.
type SlippageConfig struct {
	Type SlippageType `yaml:"type" json:"type"`
	// Value is the fixed per-share amount or the percentage rate.
	Value float64 `yaml:"value" json:"value" validate:"gte=0"`
	// VolumeProfile maps hour of day (0-23) to a slippage multiplier for
	// the volume_based type. Hours absent from the map use a factor of 1.
	VolumeProfile map[int]float64 `yaml:"volume_profile" json:"volume_profile"`

	Custom CustomFunc `yaml:"-" json:"-"`
}

// ImpactConfig configures the market impact term used by the market_impact
// slippage type.
type ImpactConfig struct {
	// Factor scales the impact per share.
	Factor float64 `yaml:"factor" json:"factor" validate:"gte=0"`
	// Exponent shapes the participation curve; below 1 the per-share
	// impact grows sublinearly with order size. Required only when the
	// market_impact slippage type is in use.
	Exponent float64 `yaml:"exponent" json:"exponent" validate:"gte=0"`
	// Min and Max clamp the per-share impact. Max of zero means no cap.
	Min float64 `yaml:"min" json:"min" validate:"gte=0"`
	Max float64 `yaml:"max" json:"max" validate:"gte=0"`
}

// SpreadConfig configures the bid-ask spread component. Half the spread is
// charged per share on each side.
type SpreadConfig struct {
	Type SpreadType `yaml:"type" json:"type"`
	// Value is the full spread: absolute for fixed, fraction of price for
	// percentage.
	Value float64 `yaml:"value" json:"value" validate:"gte=0"`

	Custom CustomFunc `yaml:"-" json:"-"`
}

// Config is the full transaction cost model configuration.
type Config struct {
	Commission CommissionConfig `yaml:"commission" json:"commission"`
	Slippage   SlippageConfig   `yaml:"slippage" json:"slippage"`
	Impact     ImpactConfig     `yaml:"impact" json:"impact"`
	Spread     SpreadConfig     `yaml:"spread" json:"spread"`
}

// DefaultConfig returns a retail-like cost profile: 0.1% commission,
// 0.05% slippage, square-root market impact available but unused, and no
// spread.
func DefaultConfig() Config {
	return Config{
		Commission: CommissionConfig{
			Type:   CommissionTypePercentage,
			Amount: 0.001,
		},
		Slippage: SlippageConfig{
			Type:  SlippageTypePercentage,
			Value: 0.0005,
		},
		Impact: ImpactConfig{
			Factor:   0.1,
			Exponent: 0.5,
		},
		Spread: SpreadConfig{
			Type: SpreadTypeNone,
		},
	}
}
