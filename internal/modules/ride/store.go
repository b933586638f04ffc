// README: Ride store contract consumed by the coordinator.
package ride

import (
	"context"

	"drivemecrazy/internal/types"
)

// Filter selects rides for listing. Ownership clauses are OR-combined; the
// status clause, when set, further restricts the result.
type Filter struct {
	RiderID     types.ID // rides requested by this rider
	DriverID    types.ID // rides assigned to this driver
	IncludeOpen bool     // also include unassigned requested rides
	Status      Status   // optional status restriction
	Page        int
	Limit       int
}

// Store is the durable ride storage the coordinator writes through. Both
// conditional operations must be atomic with respect to concurrent callers:
// UpdateStatus is a compare-and-swap on (status, revision), and TryAccept is
// the single indivisible accept primitive the arbiter relies on.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	List(ctx context.Context, f Filter) ([]*Ride, int, error)

	// UpdateStatus moves the ride to the target status, stamps the
	// corresponding first-time timestamp, bumps the revision, and applies
	// actualPrice on completion — only if the row still matches (from,
	// fromRevision). A miss returns ErrConflict.
	UpdateStatus(ctx context.Context, id types.ID, from Status, fromRevision int64, to Status, actualPrice *float64) (*Ride, error)

	// TryAccept assigns the driver iff the ride is still requested and
	// unassigned. Exactly one concurrent caller wins; losers get
	// ErrAlreadyAccepted.
	TryAccept(ctx context.Context, id types.ID, driverID types.ID) (*Ride, error)
}
