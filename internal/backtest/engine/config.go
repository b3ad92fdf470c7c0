package engine

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"

	"github.com/stockpulse/backtest/internal/backtest/cost"
	"github.com/stockpulse/backtest/pkg/errors"
)

// RebalanceFrequency is how often scheduled rebalancing runs.
type RebalanceFrequency string

const (
	RebalanceNone    RebalanceFrequency = "none"
	RebalanceDaily   RebalanceFrequency = "daily"
	RebalanceWeekly  RebalanceFrequency = "weekly"
	RebalanceMonthly RebalanceFrequency = "monthly"
)

// Config configures one backtest run.
type Config struct {
	Symbols        []string                   `yaml:"symbols" json:"symbols" jsonschema:"title=Symbols,description=Symbols to replay" validate:"min=1"`
	StartTime      optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start of the backtest period"`
	EndTime        optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end of the backtest period"`
	InitialCapital float64                    `yaml:"initial_capital" json:"initial_capital" jsonschema:"title=Initial Capital,description=Starting capital in USD,minimum=0" validate:"gt=0"`

	// MaxOpenPositions caps concurrent positions; zero means unlimited.
	MaxOpenPositions int `yaml:"max_open_positions" json:"max_open_positions" jsonschema:"title=Max Open Positions,minimum=0" validate:"gte=0"`
	// MaxPositionSize is the cash fraction allocated to a new position and
	// the weight ceiling enforced by rebalancing.
	MaxPositionSize float64 `yaml:"max_position_size" json:"max_position_size" jsonschema:"title=Max Position Size,minimum=0,maximum=1" validate:"gt=0,lte=1"`
	// MaxDrawdownPct engages the kill switch; zero disables it.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct" jsonschema:"title=Max Drawdown Pct,minimum=0,maximum=1" validate:"gte=0,lte=1"`
	// StopLossPct closes a position after an adverse move of this
	// fraction from entry; zero disables it.
	StopLossPct float64 `yaml:"stop_loss_pct" json:"stop_loss_pct" validate:"gte=0"`
	// TakeProfitPct closes a position after a favorable move of this
	// fraction from entry; zero disables it.
	TakeProfitPct float64 `yaml:"take_profit_pct" json:"take_profit_pct" validate:"gte=0"`
	// ShortSelling permits sell fills beyond the held quantity to flip
	// into a short position.
	ShortSelling bool               `yaml:"short_selling" json:"short_selling"`
	Rebalance    RebalanceFrequency `yaml:"rebalance" json:"rebalance" jsonschema:"title=Rebalance,enum=none,enum=daily,enum=weekly,enum=monthly"`

	// BenchmarkSymbol is compared against the equity curve for the
	// benchmark-relative metrics. Empty disables them.
	BenchmarkSymbol string `yaml:"benchmark_symbol" json:"benchmark_symbol"`

	Cost cost.Config `yaml:"cost" json:"cost"`
}

// UnmarshalYAML implements custom unmarshaling so the optional time bounds
// accept plain timestamps.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain struct {
		Symbols          []string           `yaml:"symbols"`
		StartTime        *time.Time         `yaml:"start_time"`
		EndTime          *time.Time         `yaml:"end_time"`
		InitialCapital   float64            `yaml:"initial_capital"`
		MaxOpenPositions int                `yaml:"max_open_positions"`
		MaxPositionSize  float64            `yaml:"max_position_size"`
		MaxDrawdownPct   float64            `yaml:"max_drawdown_pct"`
		StopLossPct      float64            `yaml:"stop_loss_pct"`
		TakeProfitPct    float64            `yaml:"take_profit_pct"`
		ShortSelling     bool               `yaml:"short_selling"`
		Rebalance        RebalanceFrequency `yaml:"rebalance"`
		BenchmarkSymbol  string             `yaml:"benchmark_symbol"`
		Cost             cost.Config        `yaml:"cost"`
	}

	var config plain
	if err := unmarshal(&config); err != nil {
		return err
	}

	c.Symbols = config.Symbols
	c.InitialCapital = config.InitialCapital
	c.MaxOpenPositions = config.MaxOpenPositions
	c.MaxPositionSize = config.MaxPositionSize
	c.MaxDrawdownPct = config.MaxDrawdownPct
	c.StopLossPct = config.StopLossPct
	c.TakeProfitPct = config.TakeProfitPct
	c.ShortSelling = config.ShortSelling
	c.Rebalance = config.Rebalance
	c.BenchmarkSymbol = config.BenchmarkSymbol
	c.Cost = config.Cost

	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}

	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	if c.Rebalance == "" {
		c.Rebalance = RebalanceNone
	}

	return nil
}

// Validate checks the config for structural problems before a run starts.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest config", err)
	}

	switch c.Rebalance {
	case RebalanceNone, RebalanceDaily, RebalanceWeekly, RebalanceMonthly:
	default:
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown rebalance frequency: %s", c.Rebalance)
	}

	// The impact block is optional; it only has to be coherent when the
	// slippage type actually uses it.
	if c.Cost.Slippage.Type == cost.SlippageTypeMarketImpact && c.Cost.Impact.Exponent <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration,
			"market_impact slippage requires a positive impact exponent")
	}

	if start, err := c.StartTime.Take(); err == nil {
		if end, err := c.EndTime.Take(); err == nil && end.Before(start) {
			return errors.New(errors.ErrCodeInvalidConfiguration, "end_time is before start_time")
		}
	}

	return nil
}

// GenerateSchema generates a JSON schema for the backtest config.
func (c *Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for a backtest run"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates the JSON schema as an indented string.
func (c *Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// DefaultConfig returns a single-symbol config with conservative risk
// limits and the default cost model.
func DefaultConfig(symbols ...string) Config {
	return Config{
		Symbols:          symbols,
		InitialCapital:   100_000,
		MaxOpenPositions: 10,
		MaxPositionSize:  0.2,
		MaxDrawdownPct:   0.25,
		Rebalance:        RebalanceNone,
		Cost:             cost.DefaultConfig(),
	}
}
