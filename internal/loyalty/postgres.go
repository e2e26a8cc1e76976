package loyalty

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresLedger stores balances in loyalty_accounts and uses
// loyalty_credits (primary key: ride id) as the idempotency record. Both
// writes happen in one transaction: if the ride was already credited the
// insert affects zero rows and the balance is left untouched.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Credit(ctx context.Context, passengerID, rideID string, points int64) (bool, error) {
	if points <= 0 {
		return false, ErrInvalidPoints
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_credits(ride_id, passenger_id, points, created_at)
		VALUES($1, $2, $3, $4)
		ON CONFLICT (ride_id) DO NOTHING`,
		rideID, passengerID, points, time.Now())
	if err != nil {
		return false, fmt.Errorf("record credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Already credited for this ride; nothing to apply.
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_accounts(passenger_id, points)
		VALUES($1, $2)
		ON CONFLICT (passenger_id) DO UPDATE SET points = loyalty_accounts.points + $2`,
		passengerID, points); err != nil {
		return false, fmt.Errorf("apply credit: %w", err)
	}
	return true, tx.Commit()
}

func (l *PostgresLedger) Balance(ctx context.Context, passengerID string) (int64, error) {
	var points int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT points FROM loyalty_accounts WHERE passenger_id = $1), 0)`,
		passengerID).Scan(&points)
	return points, err
}
