package replay

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
	"github.com/stockpulse/backtest/pkg/errors"
)

// FileQuery selects the bars to replay from a CSV or Parquet file. The
// file needs time, symbol, open, high, low, close and volume columns.
type FileQuery struct {
	// Path is the CSV or Parquet file to load.
	Path string
	// Symbols filters to the given symbols; empty means all.
	Symbols []string
	// Start and End bound the replayed range, inclusive.
	Start optional.Option[time.Time]
	End   optional.Option[time.Time]
}

// relation returns the DuckDB table function that reads the file.
func (q FileQuery) relation() (string, error) {
	switch {
	case strings.HasSuffix(q.Path, ".csv"):
		return fmt.Sprintf("read_csv_auto('%s')", q.Path), nil
	case strings.HasSuffix(q.Path, ".parquet"):
		return fmt.Sprintf("read_parquet('%s')", q.Path), nil
	default:
		return "", errors.Newf(errors.ErrCodeDataSourceUnavailable,
			"unsupported bar file format: %s", q.Path)
	}
}

// NewFileSource loads bars from a CSV or Parquet file through DuckDB and
// returns an in-memory source over them. The whole range is materialized up
// front so replay speed is independent of the file format.
func NewFileSource(query FileQuery, l *logger.Logger) (*MemorySource, error) {
	if l == nil {
		l = logger.NewNopLogger()
	}

	relation, err := query.relation()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}
	defer db.Close()

	sq := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	builder := sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From(relation).
		OrderBy("time", "symbol")

	if len(query.Symbols) > 0 {
		builder = builder.Where(squirrel.Eq{"symbol": query.Symbols})
	}

	if start, err := query.Start.Take(); err == nil {
		builder = builder.Where(squirrel.GtOrEq{"time": start})
	}

	if end, err := query.End.Take(); err == nil {
		builder = builder.Where(squirrel.LtOrEq{"time": end})
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build bar query", err)
	}

	l.Debug("loading bars", zap.String("path", query.Path))

	rows, err := db.Query(stmt, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var bar types.Bar
		if err := rows.Scan(&bar.Time, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar row", err)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read bar rows", err)
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no bars matched in %s", query.Path)
	}

	l.Info("loaded bars", zap.String("path", query.Path), zap.Int("count", len(bars)))

	return NewMemorySource(bars), nil
}
