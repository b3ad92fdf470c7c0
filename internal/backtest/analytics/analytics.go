package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/moznion/go-optional"

	"github.com/stockpulse/backtest/internal/types"
)

const (
	// tradingDaysPerYear annualizes statistics computed on daily returns.
	tradingDaysPerYear = 252.0
	// calendarDaysPerYear annualizes the total return over the run span.
	calendarDaysPerYear = 365.25
)

// Compute derives the full performance metric set from a finished equity
// curve and trade list. An empty curve yields zeroed metrics. When a
// benchmark series is supplied, the benchmark-relative block is filled by
// aligning strategy and benchmark returns on their common calendar days.
func Compute(
	curve []types.EquityPoint,
	trades []types.Trade,
	initialCapital float64,
	benchmark optional.Option[[]types.Bar],
) types.PerformanceMetrics {
	metrics := types.PerformanceMetrics{}

	if len(curve) == 0 {
		computeTradeStats(&metrics, trades)

		return metrics
	}

	finalEquity := curve[len(curve)-1].Equity

	metrics.TotalReturn = finalEquity - initialCapital
	if initialCapital > 0 {
		metrics.TotalReturnPct = metrics.TotalReturn / initialCapital
	}

	days := curve[len(curve)-1].Time.Sub(curve[0].Time).Hours() / 24
	if days > 0 && 1+metrics.TotalReturnPct > 0 {
		metrics.AnnualizedReturn = math.Pow(1+metrics.TotalReturnPct, calendarDaysPerYear/days) - 1
	}

	computeDrawdownStats(&metrics, curve)

	daily := dailyEquity(curve)
	returns := toReturns(equities(daily))

	metrics.AnnualizedVolatility = stddev(returns) * math.Sqrt(tradingDaysPerYear)
	metrics.DownsideDeviation = downsideDeviation(returns) * math.Sqrt(tradingDaysPerYear)

	if metrics.AnnualizedVolatility > 0 {
		metrics.SharpeRatio = mean(returns) * tradingDaysPerYear / metrics.AnnualizedVolatility
	}

	if metrics.DownsideDeviation > 0 {
		metrics.SortinoRatio = mean(returns) * tradingDaysPerYear / metrics.DownsideDeviation
	}

	if metrics.MaxDrawdownPct > 0 {
		metrics.CalmarRatio = metrics.AnnualizedReturn / metrics.MaxDrawdownPct
	}

	if bars, err := benchmark.Take(); err == nil && len(bars) > 1 {
		computeBenchmarkStats(&metrics, daily, bars)
	}

	computeTradeStats(&metrics, trades)

	return metrics
}

// datedValue is one per-calendar-day sample of a series.
type datedValue struct {
	date  string
	value float64
}

// dailyEquity collapses the equity curve to one sample per calendar day,
// keeping the last point of each day.
func dailyEquity(curve []types.EquityPoint) []datedValue {
	daily := make([]datedValue, 0, len(curve))

	for _, point := range curve {
		date := point.Time.Format(time.DateOnly)
		if len(daily) > 0 && daily[len(daily)-1].date == date {
			daily[len(daily)-1].value = point.Equity

			continue
		}

		daily = append(daily, datedValue{date: date, value: point.Equity})
	}

	return daily
}

func equities(daily []datedValue) []float64 {
	values := make([]float64, len(daily))
	for i, d := range daily {
		values[i] = d.value
	}

	return values
}

// toReturns converts a value series to simple period returns. Periods
// starting from a non-positive value are skipped.
func toReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(values)-1)

	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}

		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}

	return returns
}

func computeDrawdownStats(metrics *types.PerformanceMetrics, curve []types.EquityPoint) {
	var (
		peak       = curve[0].Equity
		peakTime   = curve[0].Time
		longest    time.Duration
		sumSquares float64
	)

	for _, point := range curve {
		if point.Equity >= peak {
			if d := point.Time.Sub(peakTime); d > longest {
				longest = d
			}

			peak = point.Equity
			peakTime = point.Time
		}

		if point.Drawdown > metrics.MaxDrawdown {
			metrics.MaxDrawdown = point.Drawdown
		}

		if point.DrawdownPct > metrics.MaxDrawdownPct {
			metrics.MaxDrawdownPct = point.DrawdownPct
		}

		sumSquares += point.DrawdownPct * point.DrawdownPct
	}

	// An unrecovered drawdown at the end of the run counts too.
	last := curve[len(curve)-1]
	if last.Equity < peak {
		if d := last.Time.Sub(peakTime); d > longest {
			longest = d
		}
	}

	metrics.LongestDrawdownDays = longest.Hours() / 24
	metrics.UlcerIndex = math.Sqrt(sumSquares / float64(len(curve)))
}

func computeBenchmarkStats(metrics *types.PerformanceMetrics, daily []datedValue, bars []types.Bar) {
	benchByDate := make(map[string]float64, len(bars))
	for _, bar := range bars {
		benchByDate[bar.Time.Format(time.DateOnly)] = bar.Close
	}

	// Align the two series on their common calendar days, in strategy
	// curve order.
	var strategyValues, benchValues []float64

	for _, d := range daily {
		benchClose, ok := benchByDate[d.date]
		if !ok {
			continue
		}

		strategyValues = append(strategyValues, d.value)
		benchValues = append(benchValues, benchClose)
	}

	strategyReturns := toReturns(strategyValues)
	benchReturns := toReturns(benchValues)

	if len(strategyReturns) < 2 || len(strategyReturns) != len(benchReturns) {
		return
	}

	benchVar := variance(benchReturns)
	cov := covariance(strategyReturns, benchReturns)

	if benchVar > 0 {
		metrics.Beta = cov / benchVar
	}

	annBench := mean(benchReturns) * tradingDaysPerYear
	metrics.Alpha = metrics.AnnualizedReturn - metrics.Beta*annBench

	diffs := make([]float64, len(strategyReturns))
	for i := range strategyReturns {
		diffs[i] = strategyReturns[i] - benchReturns[i]
	}

	metrics.TrackingError = stddev(diffs) * math.Sqrt(tradingDaysPerYear)
	if metrics.TrackingError > 0 {
		metrics.InformationRatio = mean(diffs) * tradingDaysPerYear / metrics.TrackingError
	}

	strategyStd := stddev(strategyReturns)
	benchStd := stddev(benchReturns)

	if strategyStd > 0 && benchStd > 0 {
		metrics.Correlation = cov / (strategyStd * benchStd)
	}
}

func computeTradeStats(metrics *types.PerformanceMetrics, trades []types.Trade) {
	closed := make([]types.Trade, 0, len(trades))
	for _, trade := range trades {
		if trade.HasRealizedPnL() {
			closed = append(closed, trade)
		}
	}

	metrics.TotalTrades = len(closed)
	if len(closed) == 0 {
		return
	}

	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ExitDate.Before(closed[j].ExitDate)
	})

	var (
		grossProfit, grossLoss  float64
		largestWin, largestLoss float64
		holdingSum              float64
		winStreak, lossStreak   int
	)

	for _, trade := range closed {
		holdingSum += trade.HoldingPeriodDays

		if trade.PnL > 0 {
			metrics.WinningTrades++
			grossProfit += trade.PnL

			if trade.PnL > largestWin {
				largestWin = trade.PnL
			}

			winStreak++
			lossStreak = 0
		} else if trade.PnL < 0 {
			metrics.LosingTrades++
			grossLoss += -trade.PnL

			if -trade.PnL > largestLoss {
				largestLoss = -trade.PnL
			}

			lossStreak++
			winStreak = 0
		} else {
			winStreak = 0
			lossStreak = 0
		}

		if winStreak > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = winStreak
		}

		if lossStreak > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = lossStreak
		}
	}

	metrics.WinRate = float64(metrics.WinningTrades) / float64(len(closed))
	metrics.AverageHoldingDays = holdingSum / float64(len(closed))
	metrics.LargestWin = largestWin
	metrics.LargestLoss = largestLoss

	if metrics.WinningTrades > 0 {
		metrics.AverageWin = grossProfit / float64(metrics.WinningTrades)
	}

	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = grossLoss / float64(metrics.LosingTrades)
	}

	switch {
	case grossLoss > 0:
		metrics.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		metrics.ProfitFactor = math.Inf(1)
	}

	metrics.Expectancy = metrics.WinRate*metrics.AverageWin - (1-metrics.WinRate)*metrics.AverageLoss

	if metrics.AverageLoss > 0 {
		metrics.PayoffRatio = metrics.AverageWin / metrics.AverageLoss
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)

	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}

	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	return math.Sqrt(variance(values))
}

// downsideDeviation is the root mean square of the negative returns over
// the full sample count.
func downsideDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		if v < 0 {
			sum += v * v
		}
	}

	return math.Sqrt(sum / float64(len(values)))
}

func covariance(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}

	mx := mean(xs)
	my := mean(ys)

	var sum float64
	for i := range xs {
		sum += (xs[i] - mx) * (ys[i] - my)
	}

	return sum / float64(len(xs))
}
