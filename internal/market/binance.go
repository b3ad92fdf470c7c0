package market

import (
	"context"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/pkg/errors"
)

// binancePageSize is the kline page limit enforced by the Binance API.
const binancePageSize = 500

// BinanceClient fetches daily klines from Binance. Public kline data needs
// no API credentials.
type BinanceClient struct {
	client *binance.Client
}

func NewBinanceClient() *BinanceClient {
	return &BinanceClient{client: binance.NewClient("", "")}
}

func (c *BinanceClient) Name() string {
	return "binance"
}

// Bars pages through the daily klines for symbol over [start, end].
func (c *BinanceClient) Bars(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	var bars []types.Bar

	currentStart := start.UnixMilli()
	endMillis := end.UnixMilli()

	for {
		klines, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval("1d").
			StartTime(currentStart).
			EndTime(endMillis).
			Limit(binancePageSize).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err,
				"failed to fetch %s klines from binance", symbol)
		}

		for _, kline := range klines {
			bar, err := klineToBar(symbol, kline)
			if err != nil {
				return nil, err
			}

			bars = append(bars, bar)
		}

		if len(klines) < binancePageSize {
			break
		}

		currentStart = klines[len(klines)-1].CloseTime + 1
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound,
			"binance returned no klines for %s", symbol)
	}

	return bars, nil
}

// klineToBar converts one Binance kline, whose prices arrive as strings,
// to a bar.
func klineToBar(symbol string, kline *binance.Kline) (types.Bar, error) {
	open, err := strconv.ParseFloat(kline.Open, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeInvalidParameter, "bad kline open", err)
	}

	high, err := strconv.ParseFloat(kline.High, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeInvalidParameter, "bad kline high", err)
	}

	low, err := strconv.ParseFloat(kline.Low, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeInvalidParameter, "bad kline low", err)
	}

	closePx, err := strconv.ParseFloat(kline.Close, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeInvalidParameter, "bad kline close", err)
	}

	volume, err := strconv.ParseFloat(kline.Volume, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeInvalidParameter, "bad kline volume", err)
	}

	return types.Bar{
		Symbol: symbol,
		Time:   time.UnixMilli(kline.OpenTime).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: volume,
	}, nil
}
