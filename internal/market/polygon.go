package market

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/pkg/errors"
)

// PolygonClient fetches daily aggregates from Polygon.io.
type PolygonClient struct {
	client *polygon.Client
}

// NewPolygonClient creates a client with the given API key.
func NewPolygonClient(apiKey string) (*PolygonClient, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon API key is not set")
	}

	return &PolygonClient{client: polygon.New(apiKey)}, nil
}

func (c *PolygonClient) Name() string {
	return "polygon"
}

// Bars lists daily aggregates for the ticker over [start, end].
func (c *PolygonClient) Bars(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	params := models.ListAggsParams{
		Ticker:     symbol,
		From:       models.Millis(start),
		To:         models.Millis(end),
		Multiplier: 1,
		Timespan:   models.Day,
	}

	iter := c.client.ListAggs(ctx, &params)

	var bars []types.Bar

	for iter.Next() {
		agg := iter.Item()

		bars = append(bars, types.Bar{
			Symbol: symbol,
			Time:   time.Time(agg.Timestamp),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err,
			"failed to list %s aggregates from polygon", symbol)
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound,
			"polygon returned no bars for %s", symbol)
	}

	return bars, nil
}
