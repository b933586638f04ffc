// README: In-memory ride store with the same conditional-update semantics as Postgres.
package ride

import (
	"context"
	"sort"
	"sync"
	"time"

	"drivemecrazy/internal/types"
)

// MemStore keeps rides in a map guarded by one mutex, so its conditional
// operations are indivisible the same way the SQL statements are. Used by
// tests and for running the API without a database.
type MemStore struct {
	mu    sync.Mutex
	rides map[types.ID]*Ride
}

func NewMemStore() *MemStore {
	return &MemStore{rides: make(map[types.ID]*Ride)}
}

func (s *MemStore) Create(_ context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rides[r.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id types.ID, from Status, fromRevision int64, to Status, actualPrice *float64) (*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok || r.Status != from || r.Revision != fromRevision {
		return nil, ErrConflict
	}
	now := time.Now()
	r.Status = to
	r.Revision++
	switch to {
	case StatusAccepted:
		if r.AcceptedAt == nil {
			r.AcceptedAt = &now
		}
	case StatusOngoing:
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
	case StatusCompleted:
		if r.CompletedAt == nil {
			r.CompletedAt = &now
		}
		price := r.EstimatedPrice
		if actualPrice != nil {
			price = *actualPrice
		}
		r.ActualPrice = &price
		r.PaymentStatus = PaymentCompleted
	case StatusCancelled:
		if r.CancelledAt == nil {
			r.CancelledAt = &now
		}
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) TryAccept(_ context.Context, id types.ID, driverID types.ID) (*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != StatusRequested || r.DriverID != "" {
		return nil, ErrAlreadyAccepted
	}
	now := time.Now()
	r.Status = StatusAccepted
	r.DriverID = driverID
	r.AcceptedAt = &now
	r.Revision++
	cp := *r
	return &cp, nil
}

func (s *MemStore) List(_ context.Context, f Filter) ([]*Ride, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Ride
	for _, r := range s.rides {
		owned := (f.RiderID != "" && r.RiderID == f.RiderID) ||
			(f.DriverID != "" && r.DriverID == f.DriverID) ||
			(f.IncludeOpen && r.Status == StatusRequested && r.DriverID == "")
		if !owned {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		cp := *r
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RequestedAt.After(matched[j].RequestedAt)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
