// README: Acceptance arbiter; resolves concurrent accepts to exactly one winner.
package ride

import (
	"context"
	"errors"
	"log/slog"

	"drivemecrazy/internal/observability"
	"drivemecrazy/internal/types"
)

// Arbiter settles the accept race for a single ride. It carries no state of
// its own: the store's TryAccept is a single conditional write on
// (status, driver_id), so exactly one concurrent attempt can ever match.
// Contention is scoped to one ride's record; no wider locking exists.
type Arbiter struct {
	store Store
	log   *slog.Logger
}

func NewArbiter(store Store, log *slog.Logger) *Arbiter {
	return &Arbiter{store: store, log: log}
}

// TryAccept assigns driverID to the ride, or reports ErrAlreadyAccepted for
// every attempt that lost the race.
func (a *Arbiter) TryAccept(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	r, err := a.store.TryAccept(ctx, rideID, driverID)
	if errors.Is(err, ErrAlreadyAccepted) {
		observability.AcceptRaceLost.Inc()
		a.log.Info("accept lost arbitration", "ride_id", rideID, "driver_id", driverID)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	a.log.Info("accept won arbitration", "ride_id", rideID, "driver_id", driverID)
	return r, nil
}
