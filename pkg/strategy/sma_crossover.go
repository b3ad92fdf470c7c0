package strategy

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/pkg/errors"
)

// SMACrossoverConfig configures the moving average crossover strategy.
type SMACrossoverConfig struct {
	ShortPeriod int `yaml:"short_period"`
	LongPeriod  int `yaml:"long_period"`
}

// SMACrossover buys when the short moving average crosses above the long
// one and sells when it crosses below. Crossings are evaluated per symbol
// on bar closes.
type SMACrossover struct {
	shortPeriod int
	longPeriod  int

	closes  map[string][]float64
	signals []types.Signal
}

// NewSMACrossover creates the strategy with the given periods. Zero
// periods fall back to 5 and 20 during Initialize.
func NewSMACrossover(shortPeriod, longPeriod int) *SMACrossover {
	return &SMACrossover{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
	}
}

// Name returns the name of the strategy.
func (s *SMACrossover) Name() string {
	return fmt.Sprintf("SMA_Cross_%d_%d", s.shortPeriod, s.longPeriod)
}

// Initialize parses the YAML config string. An empty string keeps the
// constructor values.
func (s *SMACrossover) Initialize(config string) error {
	if config != "" {
		var cfg SMACrossoverConfig
		if err := yaml.Unmarshal([]byte(config), &cfg); err != nil {
			return errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse SMA crossover config", err)
		}

		s.shortPeriod = cfg.ShortPeriod
		s.longPeriod = cfg.LongPeriod
	}

	if s.shortPeriod == 0 {
		s.shortPeriod = 5
	}

	if s.longPeriod == 0 {
		s.longPeriod = 20
	}

	if s.shortPeriod >= s.longPeriod {
		return errors.Newf(errors.ErrCodeStrategyConfigError,
			"short period %d must be below long period %d", s.shortPeriod, s.longPeriod)
	}

	return nil
}

// Start resets the per-run state.
func (s *SMACrossover) Start() error {
	s.closes = make(map[string][]float64)
	s.signals = nil

	return nil
}

// OnBar records the close and evaluates the crossover for the symbol.
func (s *SMACrossover) OnBar(symbol string, bar types.Bar) error {
	closes := append(s.closes[symbol], bar.Close)
	s.closes[symbol] = closes

	// Need one bar beyond the long window to compare against the
	// previous averages.
	if len(closes) <= s.longPeriod {
		return nil
	}

	shortNow := sma(closes, s.shortPeriod)
	longNow := sma(closes, s.longPeriod)

	prev := closes[:len(closes)-1]
	shortPrev := sma(prev, s.shortPeriod)
	longPrev := sma(prev, s.longPeriod)

	switch {
	case shortPrev <= longPrev && shortNow > longNow:
		s.signals = append(s.signals, types.Signal{
			Symbol:     symbol,
			Type:       types.SignalTypeBuy,
			Confidence: crossoverConfidence(shortNow, longNow),
			Time:       bar.Time,
		})
	case shortPrev >= longPrev && shortNow < longNow:
		s.signals = append(s.signals, types.Signal{
			Symbol:     symbol,
			Type:       types.SignalTypeSell,
			Confidence: crossoverConfidence(longNow, shortNow),
			Time:       bar.Time,
		})
	}

	return nil
}

// GenerateSignals drains the signals produced since the last call.
func (s *SMACrossover) GenerateSignals() []types.Signal {
	signals := s.signals
	s.signals = nil

	return signals
}

// Stop releases the per-run state.
func (s *SMACrossover) Stop() error {
	s.closes = nil
	s.signals = nil

	return nil
}

func sma(closes []float64, period int) float64 {
	var sum float64
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}

	return sum / float64(period)
}

// crossoverConfidence scales conviction with the separation of the two
// averages, capped at 1.
func crossoverConfidence(above, below float64) float64 {
	if below <= 0 {
		return 0.5
	}

	confidence := 0.5 + (above-below)/below*10
	if confidence > 1 {
		confidence = 1
	}

	return confidence
}
