// README: Ride aggregate, lifecycle state machine, and action authorization.
package ride

import (
	"time"

	"drivemecrazy/internal/identity"
	"drivemecrazy/internal/types"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Action string

const (
	ActionAccept   Action = "accept"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// Event names published to the notification fan-out.
type Event string

const (
	EventRideRequested Event = "RideRequested"
	EventRideAccepted  Event = "RideAccepted"
	EventRideStarted   Event = "RideStarted"
	EventRideCompleted Event = "RideCompleted"
	EventRideCancelled Event = "RideCancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Location is a street address plus a geographic point.
type Location struct {
	Address string      `json:"address"`
	Coord   types.Point `json:"coord"`
}

func (l Location) Valid() bool {
	return l.Address != "" && l.Coord.Valid()
}

type Ride struct {
	ID       types.ID `json:"id"`
	RiderID  types.ID `json:"rider_id"`
	DriverID types.ID `json:"driver_id,omitempty"`
	Status   Status   `json:"status"`

	Pickup  Location `json:"pickup"`
	Dropoff Location `json:"dropoff"`

	RequestedAt time.Time  `json:"requested_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	EstimatedDuration float64  `json:"estimated_duration"`
	EstimatedDistance float64  `json:"estimated_distance"`
	EstimatedPrice    float64  `json:"estimated_price"`
	ActualPrice       *float64 `json:"actual_price,omitempty"`

	PaymentStatus PaymentStatus `json:"payment_status"`

	// Revision is the optimistic-concurrency token; every write bumps it.
	Revision int64 `json:"revision"`
}

// transitions is the complete legal status graph. Terminal states have no
// outgoing edges; anything not listed here is an invalid transition.
var transitions = map[Status][]Status{
	StatusRequested: {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusOngoing, StatusCancelled},
	StatusOngoing:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// actionTarget maps each actor action to the status it drives the ride into.
var actionTarget = map[Action]Status{
	ActionAccept:   StatusAccepted,
	ActionStart:    StatusOngoing,
	ActionComplete: StatusCompleted,
	ActionCancel:   StatusCancelled,
}

// statusEvent maps a reached status to the fan-out event name.
var statusEvent = map[Status]Event{
	StatusRequested: EventRideRequested,
	StatusAccepted:  EventRideAccepted,
	StatusOngoing:   EventRideStarted,
	StatusCompleted: EventRideCompleted,
	StatusCancelled: EventRideCancelled,
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TargetStatus returns the status an action drives the ride into.
func TargetStatus(a Action) (Status, bool) {
	s, ok := actionTarget[a]
	return s, ok
}

func EventFor(s Status) Event {
	return statusEvent[s]
}

// Authorized is the pure role/identity predicate for an action. Status
// reachability is deliberately not checked here; the transition table owns
// that, so a wrong-role caller gets Forbidden while a stale or terminal ride
// gets InvalidTransition.
func Authorized(actor identity.Actor, r *Ride, a Action) bool {
	switch a {
	case ActionAccept:
		return actor.Role == identity.RoleDriver
	case ActionStart, ActionComplete:
		return actor.Role == identity.RoleDriver && r.DriverID != "" && actor.SubjectID == r.DriverID
	case ActionCancel:
		return actor.SubjectID == r.RiderID || (r.DriverID != "" && actor.SubjectID == r.DriverID)
	default:
		return false
	}
}

// Participant reports whether the actor is the ride's rider or assigned driver.
func (r *Ride) Participant(actor identity.Actor) bool {
	return actor.SubjectID == r.RiderID || (r.DriverID != "" && actor.SubjectID == r.DriverID)
}
