// README: Ride store backed by PostgreSQL.
package ride

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"drivemecrazy/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `
	id, rider_id, driver_id, status, revision,
	pickup_address, pickup_lng, pickup_lat,
	dropoff_address, dropoff_lng, dropoff_lat,
	requested_at, accepted_at, started_at, completed_at, cancelled_at,
	estimated_duration, estimated_distance, estimated_price, actual_price,
	payment_status`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, rider_id, status, revision,
			pickup_address, pickup_lng, pickup_lat,
			dropoff_address, dropoff_lng, dropoff_lat,
			requested_at,
			estimated_duration, estimated_distance, estimated_price,
			payment_status
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11,
			$12, $13, $14,
			$15
		)`,
		string(r.ID), string(r.RiderID), string(r.Status), r.Revision,
		r.Pickup.Address, r.Pickup.Coord.Lng, r.Pickup.Coord.Lat,
		r.Dropoff.Address, r.Dropoff.Coord.Lng, r.Dropoff.Coord.Lat,
		r.RequestedAt,
		r.EstimatedDuration, r.EstimatedDistance, r.EstimatedPrice,
		string(r.PaymentStatus),
	)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	return scanRide(row)
}

// UpdateStatus is the conditional transition write. The WHERE clause is the
// compare-and-swap: zero rows affected means another writer got there first.
func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from Status, fromRevision int64, to Status, actualPrice *float64) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE rides
		SET status = $1,
		    revision = revision + 1,
		    accepted_at  = CASE WHEN $1 = 'accepted'  AND accepted_at  IS NULL THEN NOW() ELSE accepted_at  END,
		    started_at   = CASE WHEN $1 = 'ongoing'   AND started_at   IS NULL THEN NOW() ELSE started_at   END,
		    completed_at = CASE WHEN $1 = 'completed' AND completed_at IS NULL THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' AND cancelled_at IS NULL THEN NOW() ELSE cancelled_at END,
		    actual_price   = CASE WHEN $1 = 'completed' THEN COALESCE($2, estimated_price) ELSE actual_price END,
		    payment_status = CASE WHEN $1 = 'completed' THEN 'completed' ELSE payment_status END
		WHERE id = $3 AND status = $4 AND revision = $5
		RETURNING `+rideColumns,
		string(to), actualPrice, string(id), string(from), fromRevision,
	)
	r, err := scanRide(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return r, err
}

// TryAccept is the arbitration primitive: one UPDATE guarded on both status
// and driver_id, so at most one concurrent accept can ever match the row.
func (s *PGStore) TryAccept(ctx context.Context, id types.ID, driverID types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE rides
		SET status = 'accepted',
		    driver_id = $2,
		    accepted_at = NOW(),
		    revision = revision + 1
		WHERE id = $1 AND status = 'requested' AND driver_id IS NULL
		RETURNING `+rideColumns,
		string(id), string(driverID),
	)
	r, err := scanRide(row)
	if errors.Is(err, ErrNotFound) {
		// Lost the race or the ride never existed; re-read to tell apart.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyAccepted
	}
	return r, err
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]*Ride, int, error) {
	where, args := listClauses(f)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM rides`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rides: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.Query(ctx,
		`SELECT `+rideColumns+` FROM rides`+where+
			fmt.Sprintf(` ORDER BY requested_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list rides: %w", err)
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func listClauses(f Filter) (string, []interface{}) {
	var owners []string
	var args []interface{}
	if f.RiderID != "" {
		args = append(args, string(f.RiderID))
		owners = append(owners, fmt.Sprintf("rider_id = $%d", len(args)))
	}
	if f.DriverID != "" {
		args = append(args, string(f.DriverID))
		owners = append(owners, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if f.IncludeOpen {
		owners = append(owners, "(status = 'requested' AND driver_id IS NULL)")
	}

	where := ""
	if len(owners) > 0 {
		where = " WHERE (" + joinOr(owners) + ")"
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		if where == "" {
			where = fmt.Sprintf(" WHERE status = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND status = $%d", len(args))
		}
	}
	return where, args
}

func joinOr(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " OR " + p
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRide(row rowScanner) (*Ride, error) {
	var r Ride
	var driverID sql.NullString
	var acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime
	var actualPrice sql.NullFloat64

	err := row.Scan(
		&r.ID, &r.RiderID, &driverID, &r.Status, &r.Revision,
		&r.Pickup.Address, &r.Pickup.Coord.Lng, &r.Pickup.Coord.Lat,
		&r.Dropoff.Address, &r.Dropoff.Coord.Lng, &r.Dropoff.Coord.Lat,
		&r.RequestedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt,
		&r.EstimatedDuration, &r.EstimatedDistance, &r.EstimatedPrice, &actualPrice,
		&r.PaymentStatus,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ride: %w", err)
	}

	if driverID.Valid {
		r.DriverID = types.ID(driverID.String)
	}
	r.AcceptedAt = toTimePtr(acceptedAt)
	r.StartedAt = toTimePtr(startedAt)
	r.CompletedAt = toTimePtr(completedAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	if actualPrice.Valid {
		v := actualPrice.Float64
		r.ActualPrice = &v
	}
	return &r, nil
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
