package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// SlippageLogStore implements domain.SlippageLogStore.
type SlippageLogStore struct {
	pool *pgxpool.Pool
}

// NewSlippageLogStore creates a SlippageLogStore backed by pool.
func NewSlippageLogStore(pool *pgxpool.Pool) *SlippageLogStore {
	return &SlippageLogStore{pool: pool}
}

const slippageLogCols = `id::text, logged_at, symbol,
	probe_order_size_usd, market_spread_bps, market_depth_best_ask_usd,
	true_slippage_pct_walk_the_book, user_order_size_usd,
	predicted_slippage_pct_regression`

func scanLogRows(rows pgx.Rows) ([]domain.LogRecord, error) {
	var out []domain.LogRecord
	for rows.Next() {
		var r domain.LogRecord
		if err := rows.Scan(
			&r.ID, &r.LoggedAt, &r.Symbol,
			&r.ProbeOrderSizeUSD, &r.MarketSpreadBps, &r.MarketDepthBestAskUSD,
			&r.TrueSlippagePctWalkTheBook, &r.UserOrderSizeUSD,
			&r.PredictedSlippagePctRegress,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertBatch inserts records in one round trip. Rows whose id already
// exists are skipped.
func (s *SlippageLogStore) InsertBatch(ctx context.Context, records []domain.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	const query = `
		INSERT INTO slippage_regression_log (
			id, logged_at, symbol,
			probe_order_size_usd, market_spread_bps, market_depth_best_ask_usd,
			true_slippage_pct_walk_the_book, user_order_size_usd,
			predicted_slippage_pct_regression
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, r := range records {
		loggedAt := r.LoggedAt
		if loggedAt.IsZero() {
			loggedAt = time.Now().UTC()
		}
		batch.Queue(query,
			r.ID, loggedAt, r.Symbol,
			r.ProbeOrderSizeUSD, r.MarketSpreadBps, r.MarketDepthBestAskUSD,
			r.TrueSlippagePctWalkTheBook, r.UserOrderSizeUSD,
			r.PredictedSlippagePctRegress,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert slippage log item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns rows newest first, filtered by opts.
func (s *SlippageLogStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.LogRecord, error) {
	query := `SELECT ` + slippageLogCols + ` FROM slippage_regression_log WHERE TRUE`
	var args []any
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND logged_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND logged_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY logged_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list slippage log: %w", err)
	}
	defer rows.Close()

	out, err := scanLogRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan slippage log: %w", err)
	}
	return out, nil
}

// ListBefore returns up to limit rows logged strictly before before, oldest
// first.
func (s *SlippageLogStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.LogRecord, error) {
	query := `SELECT ` + slippageLogCols + ` FROM slippage_regression_log
		WHERE logged_at < $1 ORDER BY logged_at ASC, id ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list slippage log before: %w", err)
	}
	defer rows.Close()

	out, err := scanLogRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan slippage log before: %w", err)
	}
	return out, nil
}

// DeleteByID deletes the rows with the given ids and returns how many went.
func (s *SlippageLogStore) DeleteByID(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM slippage_regression_log WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete slippage log rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.SlippageLogStore = (*SlippageLogStore)(nil)
