package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

// ModelPerformanceStore implements domain.ModelPerformanceStore.
type ModelPerformanceStore struct {
	pool *pgxpool.Pool
}

// NewModelPerformanceStore creates a ModelPerformanceStore backed by pool.
func NewModelPerformanceStore(pool *pgxpool.Pool) *ModelPerformanceStore {
	return &ModelPerformanceStore{pool: pool}
}

// Insert records one training run.
func (s *ModelPerformanceStore) Insert(ctx context.Context, eval domain.ModelEvaluation) error {
	coef := eval.Coefficients
	if coef == nil {
		coef = []float64{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO model_performance_log (
			id, logged_at, num_training_samples, train_mse, train_r2_score,
			coefficients, intercept
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		eval.ID, eval.LoggedAt, eval.NumTrainingSamples, eval.TrainMSE, eval.TrainR2,
		coef, eval.Intercept,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert model evaluation %s: %w", eval.ID, err)
	}
	return nil
}

// ListRecent returns the newest evaluations first.
func (s *ModelPerformanceStore) ListRecent(ctx context.Context, limit int) ([]domain.ModelEvaluation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, logged_at, num_training_samples, train_mse, train_r2_score,
			coefficients, intercept
		FROM model_performance_log
		ORDER BY logged_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list model evaluations: %w", err)
	}
	defer rows.Close()

	var out []domain.ModelEvaluation
	for rows.Next() {
		var e domain.ModelEvaluation
		if err := rows.Scan(&e.ID, &e.LoggedAt, &e.NumTrainingSamples, &e.TrainMSE, &e.TrainR2,
			&e.Coefficients, &e.Intercept); err != nil {
			return nil, fmt.Errorf("postgres: scan model evaluation: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list model evaluations: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.ModelPerformanceStore = (*ModelPerformanceStore)(nil)
