package pg

import (
	"context"
	"time"

	"marketdata-service/internal/application"
	"marketdata-service/internal/domain"
)

// FailureHistoryRepo is the durable append-only log of fetch failures.
// It backs the statistics queries with SQL aggregation instead of a
// per-day ledger walk.
type FailureHistoryRepo struct{ db *DB }

var _ application.FailureHistory = (*FailureHistoryRepo)(nil)

func NewFailureHistoryRepo(db *DB) *FailureHistoryRepo { return &FailureHistoryRepo{db: db} }

func (r *FailureHistoryRepo) Append(ctx context.Context, rec domain.FailureRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
        INSERT INTO fetch_failures(symbol, data_type, reason, occurred_at, date_key)
        VALUES ($1, $2, $3, $4, $5)
    `, rec.Symbol, string(rec.Type), rec.Reason, rec.Timestamp, rec.DateKey)
	return err
}

func (r *FailureHistoryRepo) CountsSince(ctx context.Context, from time.Time) ([]domain.DayTypeCount, error) {
	rows, err := r.db.Pool.Query(ctx, `
        SELECT date_key, data_type, COUNT(DISTINCT symbol), array_agg(DISTINCT symbol)
        FROM fetch_failures
        WHERE occurred_at >= $1
        GROUP BY date_key, data_type
        ORDER BY date_key DESC, data_type
    `, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DayTypeCount
	for rows.Next() {
		var cell domain.DayTypeCount
		var dt string
		if err := rows.Scan(&cell.DateKey, &dt, &cell.Count, &cell.Symbols); err != nil {
			return nil, err
		}
		cell.Type = domain.DataType(dt)
		out = append(out, cell)
	}
	return out, rows.Err()
}

func (r *FailureHistoryRepo) TopSymbols(ctx context.Context, from time.Time, limit int) ([]domain.SymbolCount, error) {
	rows, err := r.db.Pool.Query(ctx, `
        SELECT symbol, COUNT(*)
        FROM fetch_failures
        WHERE occurred_at >= $1
        GROUP BY symbol
        ORDER BY COUNT(*) DESC, symbol
        LIMIT $2
    `, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SymbolCount
	for rows.Next() {
		var sc domain.SymbolCount
		if err := rows.Scan(&sc.Symbol, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
