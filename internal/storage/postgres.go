package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-hailing/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying handle so the loyalty ledger can share the pool.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides(id, passenger_id, driver_id, vehicle_class,
			pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			fare, shared, status, created_at, updated_at)
		VALUES($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		r.ID, r.PassengerID, r.DriverID, string(r.VehicleClass),
		r.Pickup.Lat, r.Pickup.Lon, r.Dropoff.Lat, r.Dropoff.Lon,
		r.Fare, r.Shared, string(r.Status), r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, passenger_id, COALESCE(driver_id, ''), vehicle_class,
			pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			fare, shared, status, created_at, updated_at
		FROM rides WHERE id = $1`, id)
	return scanRide(row)
}

// UpdateStatusCAS is the conditional update that serializes lifecycle
// transitions: the WHERE clause only matches while the ride is still in the
// expected state, so exactly one of any set of racing writers commits.
func (p *PostgresStore) UpdateStatusCAS(ctx context.Context, id string, from, to models.RideStatus, driverID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE rides
		SET status = $1,
		    driver_id = COALESCE(NULLIF($2, ''), driver_id),
		    updated_at = $3
		WHERE id = $4 AND status = $5`,
		string(to), driverID, time.Now(), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish "lost the race" from "no such ride".
		var one int
		err := p.db.QueryRowContext(ctx, `SELECT 1 FROM rides WHERE id = $1`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		if err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (p *PostgresStore) HasActiveRide(ctx context.Context, passengerID string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM rides
			WHERE passenger_id = $1 AND status IN ('pending','accepted','ongoing')
		)`, passengerID).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) ListPending(ctx context.Context) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, passenger_id, COALESCE(driver_id, ''), vehicle_class,
			pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			fare, shared, status, created_at, updated_at
		FROM rides WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var class, status string
	err := row.Scan(&r.ID, &r.PassengerID, &r.DriverID, &class,
		&r.Pickup.Lat, &r.Pickup.Lon, &r.Dropoff.Lat, &r.Dropoff.Lon,
		&r.Fare, &r.Shared, &status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.VehicleClass = models.VehicleClass(class)
	r.Status = models.RideStatus(status)
	return &r, nil
}
