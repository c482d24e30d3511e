package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps each user's history as one JSONB document in
// order_histories (see internal/postgres/migrations).
type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) Load(ctx context.Context, userID string) ([]Order, error) {
	var b []byte
	err := s.DB.QueryRow(ctx, `SELECT orders FROM order_histories WHERE user_id=$1`, userID).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select order history: %w", err)
	}
	return decodeOrders(b)
}

func (s *PostgresStore) Update(ctx context.Context, userID string, fn func([]Order) ([]Order, error)) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// pastikan row ada supaya FOR UPDATE selalu dapat lock
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_histories(user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("ensure order history: %w", err)
	}

	var b []byte
	if err := tx.QueryRow(ctx, `SELECT orders FROM order_histories WHERE user_id=$1 FOR UPDATE`, userID).Scan(&b); err != nil {
		return fmt.Errorf("lock order history: %w", err)
	}
	current, err := decodeOrders(b)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	nb, err := encodeOrders(next)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE order_histories SET orders=$2::jsonb, updated_at=now()
		WHERE user_id=$1`, userID, string(nb)); err != nil {
		return fmt.Errorf("update order history: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.DB.Exec(ctx, `DELETE FROM order_histories WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete order history: %w", err)
	}
	return nil
}
