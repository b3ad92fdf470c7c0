package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/pkg/errors"
)

// ResultStore persists a backtest result to a folder: Parquet files for
// the orders, trades and equity curve, plus a YAML summary. The data lives
// in an in-memory DuckDB until Write exports it.
type ResultStore struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
}

// NewResultStore opens the backing in-memory database and creates the
// result tables.
func NewResultStore(l *logger.Logger) (*ResultStore, error) {
	if l == nil {
		l = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	store := &ResultStore{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger: l,
	}

	if err := store.createTables(); err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (s *ResultStore) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			status TEXT,
			reason TEXT,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			order_id TEXT,
			symbol TEXT,
			side TEXT,
			quantity DOUBLE,
			fill_price DOUBLE,
			fill_date TIMESTAMP,
			commission DOUBLE,
			slippage DOUBLE,
			market_impact DOUBLE,
			spread_cost DOUBLE,
			status TEXT,
			reason TEXT,
			entry_price DOUBLE,
			exit_price DOUBLE,
			pnl DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS equity_curve (
			time TIMESTAMP,
			equity DOUBLE,
			cash DOUBLE,
			positions_value DOUBLE,
			drawdown DOUBLE,
			drawdown_pct DOUBLE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create result tables", err)
		}
	}

	return nil
}

// Load inserts the result's orders, trades and equity curve into the
// backing tables.
func (s *ResultStore) Load(result *types.Result) error {
	for _, order := range result.Orders {
		insert := s.sq.Insert("orders").
			Columns("order_id", "symbol", "side", "order_type", "quantity", "status", "reason", "created_at").
			Values(order.ID, order.Symbol, string(order.Side), string(order.Type),
				order.Quantity, string(order.Status), string(order.Reason), order.CreatedAt)

		if err := s.exec(insert); err != nil {
			return err
		}
	}

	for _, trade := range result.Trades {
		insert := s.sq.Insert("trades").
			Columns("trade_id", "order_id", "symbol", "side", "quantity", "fill_price", "fill_date",
				"commission", "slippage", "market_impact", "spread_cost", "status", "reason",
				"entry_price", "exit_price", "pnl").
			Values(trade.ID, trade.OrderID, trade.Symbol, string(trade.Side), trade.Quantity,
				trade.FillPrice, trade.FillDate, trade.Commission, trade.Slippage,
				trade.MarketImpact, trade.SpreadCost, string(trade.Status), string(trade.Reason),
				trade.EntryPrice, trade.ExitPrice, trade.PnL)

		if err := s.exec(insert); err != nil {
			return err
		}
	}

	for _, point := range result.EquityCurve {
		insert := s.sq.Insert("equity_curve").
			Columns("time", "equity", "cash", "positions_value", "drawdown", "drawdown_pct").
			Values(point.Time, point.Equity, point.Cash, point.PositionsValue,
				point.Drawdown, point.DrawdownPct)

		if err := s.exec(insert); err != nil {
			return err
		}
	}

	return nil
}

func (s *ResultStore) exec(insert squirrel.InsertBuilder) error {
	stmt, args, err := insert.ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build insert", err)
	}

	if _, err := s.db.Exec(stmt, args...); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to insert result row", err)
	}

	return nil
}

// Write exports the loaded result to folder: orders.parquet,
// trades.parquet, equity_curve.parquet and summary.yaml.
func (s *ResultStore) Write(result *types.Result, folder string) error {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return fmt.Errorf("failed to create results folder: %w", err)
	}

	if err := s.Load(result); err != nil {
		return err
	}

	for _, table := range []string{"orders", "trades", "equity_curve"} {
		path := filepath.Join(folder, table+".parquet")

		query := fmt.Sprintf("COPY %s TO '%s' (FORMAT PARQUET)", table, path)
		if _, err := s.db.Exec(query); err != nil {
			return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to export %s", table)
		}

		s.logger.Debug("exported result table",
			zap.String("table", table),
			zap.String("path", path))
	}

	if err := result.WriteSummary(filepath.Join(folder, "summary.yaml")); err != nil {
		return err
	}

	s.logger.Info("wrote backtest results",
		zap.String("folder", folder),
		zap.Int("orders", len(result.Orders)),
		zap.Int("trades", len(result.Trades)))

	return nil
}

// CountRows returns the row count of one of the result tables.
func (s *ResultStore) CountRows(table string) (int, error) {
	switch table {
	case "orders", "trades", "equity_curve":
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "unknown result table %q", table)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count rows", err)
	}

	return count, nil
}

// Close releases the backing database.
func (s *ResultStore) Close() error {
	return s.db.Close()
}
