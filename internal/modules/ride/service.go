// README: Ride lifecycle coordinator: authorization, transition legality, conditional writes.
package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"drivemecrazy/internal/identity"
	"drivemecrazy/internal/observability"
	"drivemecrazy/internal/types"
)

var (
	ErrNotFound          = errors.New("ride not found")
	ErrForbidden         = errors.New("actor not permitted to perform this action")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("invalid ride request")
	ErrConflict          = errors.New("ride was modified concurrently")
	ErrAlreadyAccepted   = errors.New("ride already accepted by another driver")
)

// Publisher receives every successful transition for fan-out. Delivery is
// best-effort; implementations must never block the coordinator or surface
// errors back into the transition.
type Publisher interface {
	Publish(r *Ride, event Event)
}

// Service is the single place where transition legality and per-action
// authorization are enforced. Every write goes through here.
type Service struct {
	store   Store
	arbiter *Arbiter
	pub     Publisher
	log     *slog.Logger
}

func NewService(store Store, arbiter *Arbiter, pub Publisher, log *slog.Logger) *Service {
	return &Service{store: store, arbiter: arbiter, pub: pub, log: log}
}

type RequestInput struct {
	Pickup            Location
	Dropoff           Location
	EstimatedDuration float64
	EstimatedDistance float64
	EstimatedPrice    float64
}

// ApplyInput carries action-specific fields. Only complete uses it today.
type ApplyInput struct {
	ActualPrice *float64
}

// Request creates a new ride in the requested state.
func (s *Service) Request(ctx context.Context, actor identity.Actor, in RequestInput) (*Ride, error) {
	if actor.Role != identity.RoleRider {
		return nil, ErrForbidden
	}
	if err := validateRequest(in); err != nil {
		return nil, err
	}

	r := &Ride{
		ID:                types.ID(uuid.NewString()),
		RiderID:           actor.SubjectID,
		Status:            StatusRequested,
		Pickup:            in.Pickup,
		Dropoff:           in.Dropoff,
		RequestedAt:       time.Now(),
		EstimatedDuration: in.EstimatedDuration,
		EstimatedDistance: in.EstimatedDistance,
		EstimatedPrice:    in.EstimatedPrice,
		PaymentStatus:     PaymentPending,
		Revision:          0,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("ride requested", "ride_id", r.ID, "rider_id", r.RiderID)
	observability.TransitionsTotal.WithLabelValues("request", "ok").Inc()
	s.publish(r)
	return r, nil
}

// Apply performs one actor action against the ride. It loads the current
// state, authorizes the actor, checks transition legality, and issues a
// conditional write. A lost optimistic-concurrency race is retried once
// against the fresh state before surfacing Conflict.
func (s *Service) Apply(ctx context.Context, rideID types.ID, action Action, actor identity.Actor, in ApplyInput) (*Ride, error) {
	target, ok := TargetStatus(action)
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	var updated *Ride
	for attempt := 0; ; attempt++ {
		cur, err := s.store.Get(ctx, rideID)
		if err != nil {
			return nil, s.observe(action, err)
		}
		if !Authorized(actor, cur, action) {
			return nil, s.observe(action, ErrForbidden)
		}
		if !CanTransition(cur.Status, target) {
			return nil, s.observe(action, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, target))
		}

		if action == ActionAccept {
			// Multiple drivers may race here; the arbiter decides.
			updated, err = s.arbiter.TryAccept(ctx, rideID, actor.SubjectID)
		} else {
			updated, err = s.store.UpdateStatus(ctx, rideID, cur.Status, cur.Revision, target, in.ActualPrice)
			if errors.Is(err, ErrConflict) && attempt == 0 {
				continue
			}
		}
		if err != nil {
			return nil, s.observe(action, err)
		}
		break
	}

	s.log.Info("ride transition applied",
		"ride_id", updated.ID, "action", action, "status", updated.Status, "actor", actor.SubjectID)
	observability.TransitionsTotal.WithLabelValues(string(action), "ok").Inc()
	s.publish(updated)
	return updated, nil
}

func (s *Service) Accept(ctx context.Context, actor identity.Actor, rideID types.ID) (*Ride, error) {
	return s.Apply(ctx, rideID, ActionAccept, actor, ApplyInput{})
}

func (s *Service) Start(ctx context.Context, actor identity.Actor, rideID types.ID) (*Ride, error) {
	return s.Apply(ctx, rideID, ActionStart, actor, ApplyInput{})
}

func (s *Service) Complete(ctx context.Context, actor identity.Actor, rideID types.ID, actualPrice *float64) (*Ride, error) {
	if actualPrice != nil && *actualPrice <= 0 {
		return nil, fmt.Errorf("%w: actual price must be positive", ErrValidation)
	}
	return s.Apply(ctx, rideID, ActionComplete, actor, ApplyInput{ActualPrice: actualPrice})
}

func (s *Service) Cancel(ctx context.Context, actor identity.Actor, rideID types.ID) (*Ride, error) {
	return s.Apply(ctx, rideID, ActionCancel, actor, ApplyInput{})
}

// Get returns the ride to its rider or assigned driver only.
func (s *Service) Get(ctx context.Context, actor identity.Actor, rideID types.ID) (*Ride, error) {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !r.Participant(actor) {
		return nil, ErrForbidden
	}
	return r, nil
}

// List returns the actor's rides. Riders see their own rides; drivers see
// rides assigned to them plus open requests (the pull-based fallback for a
// driver that missed the pool broadcast).
func (s *Service) List(ctx context.Context, actor identity.Actor, status Status, page, limit int) ([]*Ride, int, error) {
	if status != "" {
		if _, ok := transitions[status]; !ok {
			return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
	}
	f := Filter{Status: status, Page: page, Limit: limit}
	switch actor.Role {
	case identity.RoleRider:
		f.RiderID = actor.SubjectID
	case identity.RoleDriver:
		f.DriverID = actor.SubjectID
		f.IncludeOpen = true
	default:
		return nil, 0, ErrForbidden
	}
	return s.store.List(ctx, f)
}

func (s *Service) publish(r *Ride) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(r, EventFor(r.Status))
}

func (s *Service) observe(action Action, err error) error {
	outcome := "error"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrForbidden):
		outcome = "forbidden"
	case errors.Is(err, ErrInvalidTransition):
		outcome = "invalid_transition"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	case errors.Is(err, ErrAlreadyAccepted):
		outcome = "already_accepted"
	}
	observability.TransitionsTotal.WithLabelValues(string(action), outcome).Inc()
	return err
}

func validateRequest(in RequestInput) error {
	if !in.Pickup.Valid() {
		return fmt.Errorf("%w: invalid pickup location", ErrValidation)
	}
	if !in.Dropoff.Valid() {
		return fmt.Errorf("%w: invalid dropoff location", ErrValidation)
	}
	if in.EstimatedDuration <= 0 {
		return fmt.Errorf("%w: estimated duration must be positive", ErrValidation)
	}
	if in.EstimatedDistance <= 0 {
		return fmt.Errorf("%w: estimated distance must be positive", ErrValidation)
	}
	if in.EstimatedPrice <= 0 {
		return fmt.Errorf("%w: estimated price must be positive", ErrValidation)
	}
	return nil
}
