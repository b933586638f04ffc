// README: Event fan-out; routes ride snapshots to rider, driver, and the driver pool.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"drivemecrazy/internal/modules/ride"
	"drivemecrazy/internal/observability"
	"drivemecrazy/internal/types"
)

// PoolTopic is the shared channel idle drivers listen on for new requests.
const PoolTopic = "rides.drivers.available"

// UserTopic is the per-identity channel for a rider or driver.
func UserTopic(id types.ID) string {
	return "rides.user." + string(id)
}

// Envelope is the wire format for one delivered event.
type Envelope struct {
	Event ride.Event `json:"event"`
	Ride  *ride.Ride `json:"ride"`
}

const publishTimeout = 5 * time.Second

// Fanout implements ride.Publisher. Delivery is fire-and-forget: a broker
// failure is logged and counted, never returned, so it cannot invalidate the
// transition that triggered it.
type Fanout struct {
	broker Broker
	log    *slog.Logger
}

func NewFanout(broker Broker, log *slog.Logger) *Fanout {
	return &Fanout{broker: broker, log: log}
}

// Publish delivers the ride snapshot to every interested party: always the
// rider, the driver once one is assigned, and the shared pool on a new
// request so idle drivers can discover it.
//
// Each call delivers on its own goroutine, so consecutive transitions on one
// ride may arrive out of order. Consumers must key off the snapshot's status
// and revision, not the arrival order.
func (f *Fanout) Publish(r *ride.Ride, event ride.Event) {
	payload, err := json.Marshal(Envelope{Event: event, Ride: r})
	if err != nil {
		f.log.Error("fanout marshal failed", "ride_id", r.ID, "event", event, "err", err)
		return
	}

	topics := map[string]string{UserTopic(r.RiderID): "rider"}
	if r.DriverID != "" {
		topics[UserTopic(r.DriverID)] = "driver"
	}
	if event == ride.EventRideRequested {
		// A cancellation after assignment does not rebroadcast to the pool;
		// only new requests are of interest to idle drivers.
		topics[PoolTopic] = "pool"
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		for topic, kind := range topics {
			if err := f.broker.Publish(ctx, topic, payload); err != nil {
				observability.FanoutPublishes.WithLabelValues(kind, "error").Inc()
				f.log.Error("fanout delivery failed", "topic", topic, "ride_id", r.ID, "event", event, "err", err)
				continue
			}
			observability.FanoutPublishes.WithLabelValues(kind, "ok").Inc()
		}
	}()
}
