package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/market"
	"github.com/stockpulse/backtest/internal/types"
)

// newClient picks the vendor client for the --provider flag.
func newClient(provider string) (market.Client, error) {
	switch provider {
	case "polygon":
		return market.NewPolygonClient(os.Getenv("POLYGON_API_KEY"))
	case "binance":
		return market.NewBinanceClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	l, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer l.Sync()

	client, err := newClient(cmd.String("provider"))
	if err != nil {
		return err
	}

	provider := market.NewProvider(client, time.Hour, l)

	symbols := cmd.StringSlice("symbol")
	start := cmd.Timestamp("start")
	end := cmd.Timestamp("end")
	output := cmd.String("output")

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	bar := progressbar.Default(int64(len(symbols)), "downloading symbols")

	var bars []types.Bar

	for _, symbol := range symbols {
		fetched, err := provider.Bars(ctx, symbol, start, end)
		if err != nil {
			return err
		}

		bars = append(bars, fetched...)
		_ = bar.Add(1)
	}

	if err := writeParquet(bars, output); err != nil {
		return err
	}

	fmt.Printf("\nWrote %d bars to %s\n", len(bars), output)

	return nil
}

// writeParquet stages the bars in an in-memory DuckDB and exports them as
// one Parquet file.
func writeParquet(bars []types.Bar, path string) error {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE bars (
			time TIMESTAMP,
			symbol TEXT,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bars table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO bars VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()

		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.Time, b.Symbol, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()

			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	query := fmt.Sprintf(`COPY (SELECT * FROM bars ORDER BY time, symbol) TO '%s' (FORMAT PARQUET)`, path)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to export parquet: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "download",
		Usage: "Download historical daily bars to a Parquet file",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "symbol",
				Aliases:  []string{"t"},
				Usage:    "Symbol to download, repeatable",
				Required: true,
			},
			&cli.TimestampFlag{
				Name:    "start",
				Aliases: []string{"s"},
				Usage:   "Start date in `YYYY-MM-DD` format",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
				Required: true,
			},
			&cli.TimestampFlag{
				Name:    "end",
				Aliases: []string{"e"},
				Usage:   "End date in `YYYY-MM-DD` format, defaults to today",
				Value:   time.Now(),
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Data vendor: polygon or binance",
				Value:   "polygon",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output Parquet file",
				Value:   "data/bars.parquet",
			},
		},
		Action: downloadAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
