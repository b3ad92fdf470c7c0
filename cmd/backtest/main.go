package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v2"

	"github.com/stockpulse/backtest/internal/backtest/engine"
	"github.com/stockpulse/backtest/internal/backtest/replay"
	"github.com/stockpulse/backtest/internal/backtest/store"
	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/pkg/strategy"
)

func runAction(ctx context.Context, cmd *cli.Command) error {
	l, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer l.Sync()

	raw, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var config engine.Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataPath := cmd.String("data")

	source, err := replay.NewFileSource(replay.FileQuery{
		Path:    dataPath,
		Symbols: config.Symbols,
		Start:   config.StartTime,
		End:     config.EndTime,
	}, l)
	if err != nil {
		return err
	}

	benchmark, err := loadBenchmark(config, dataPath, l)
	if err != nil {
		return err
	}

	eng, err := engine.NewEngine(config, l)
	if err != nil {
		return err
	}

	if err := eng.Initialize(source, benchmark); err != nil {
		return err
	}

	strategyConfig := ""

	if path := cmd.String("strategy-config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read strategy config: %w", err)
		}

		strategyConfig = string(data)
	}

	smaStrategy := strategy.NewSMACrossover(0, 0)
	if err := smaStrategy.Initialize(strategyConfig); err != nil {
		return err
	}

	if err := eng.SetStrategy(smaStrategy); err != nil {
		return err
	}

	go renderProgress(eng.Events())

	result, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	resultStore, err := store.NewResultStore(l)
	if err != nil {
		return err
	}
	defer resultStore.Close()

	output := cmd.String("output")
	if err := resultStore.Write(result, output); err != nil {
		return err
	}

	fmt.Printf("\nFinal capital: %.2f (return %.2f%%, max drawdown %.2f%%)\n",
		result.FinalCapital,
		result.Metrics.TotalReturnPct*100,
		result.Metrics.MaxDrawdownPct*100)
	fmt.Printf("Results written to %s\n", output)

	return nil
}

// loadBenchmark pulls the benchmark symbol's bars out of the same data
// file when one is configured.
func loadBenchmark(config engine.Config, dataPath string, l *logger.Logger) (optional.Option[[]types.Bar], error) {
	if config.BenchmarkSymbol == "" {
		return optional.None[[]types.Bar](), nil
	}

	source, err := replay.NewFileSource(replay.FileQuery{
		Path:    dataPath,
		Symbols: []string{config.BenchmarkSymbol},
		Start:   config.StartTime,
		End:     config.EndTime,
	}, l)
	if err != nil {
		return optional.None[[]types.Bar](), fmt.Errorf("failed to load benchmark bars: %w", err)
	}

	ctx := context.Background()
	if err := source.Start(ctx); err != nil {
		return optional.None[[]types.Bar](), err
	}

	var bars []types.Bar

	for {
		next, err := source.Next(ctx)
		if err != nil {
			return optional.None[[]types.Bar](), err
		}

		bar, err := next.Take()
		if err != nil {
			break
		}

		bars = append(bars, bar)
	}

	return optional.Some(bars), nil
}

// renderProgress drives a progress bar from the engine's event stream.
func renderProgress(events <-chan types.Event) {
	var bar *progressbar.ProgressBar

	for event := range events {
		progress, ok := event.(types.ProgressEvent)
		if !ok {
			continue
		}

		if bar == nil {
			bar = progressbar.Default(int64(progress.Total), "replaying bars")
		}

		_ = bar.Set(progress.Processed)
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Replay historical bars through a strategy and report performance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Backtest config YAML file",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Bar data file (CSV or Parquet)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "strategy-config",
				Usage: "Strategy config YAML file",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Folder for result files",
				Value:   "results",
			},
		},
		Action: runAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
