// README: Ride lifecycle HTTP handlers: request, accept, start, complete, cancel, get, list.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"drivemecrazy/internal/http/middleware"
	"drivemecrazy/internal/identity"
	"drivemecrazy/internal/modules/ride"
	"drivemecrazy/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type locationReq struct {
	Address string  `json:"address"`
	Lng     float64 `json:"lng"`
	Lat     float64 `json:"lat"`
}

func (l locationReq) toLocation() ride.Location {
	return ride.Location{Address: l.Address, Coord: types.Point{Lng: l.Lng, Lat: l.Lat}}
}

type requestRideReq struct {
	Pickup            locationReq `json:"pickup"`
	Dropoff           locationReq `json:"dropoff"`
	EstimatedDuration float64     `json:"estimated_duration"`
	EstimatedDistance float64     `json:"estimated_distance"`
	EstimatedPrice    float64     `json:"estimated_price"`
}

func (h *RideHandler) Request(c *gin.Context) {
	actor, ok := middleware.CallerActor(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthenticated", "")
		return
	}
	var req requestRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json", "validation")
		return
	}
	r, err := h.rides.Request(c.Request.Context(), actor, ride.RequestInput{
		Pickup:            req.Pickup.toLocation(),
		Dropoff:           req.Dropoff.toLocation(),
		EstimatedDuration: req.EstimatedDuration,
		EstimatedDistance: req.EstimatedDistance,
		EstimatedPrice:    req.EstimatedPrice,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *RideHandler) Accept(c *gin.Context) {
	h.applyAction(c, func(actor identity.Actor, id types.ID) (*ride.Ride, error) {
		return h.rides.Accept(c.Request.Context(), actor, id)
	})
}

func (h *RideHandler) Start(c *gin.Context) {
	h.applyAction(c, func(actor identity.Actor, id types.ID) (*ride.Ride, error) {
		return h.rides.Start(c.Request.Context(), actor, id)
	})
}

type completeRideReq struct {
	ActualPrice *float64 `json:"actual_price"`
}

func (h *RideHandler) Complete(c *gin.Context) {
	var req completeRideReq
	// An empty body means "use the estimate". Decode unconditionally so a
	// chunked request (ContentLength -1) still carries its price through.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "invalid json", "validation")
		return
	}
	h.applyAction(c, func(actor identity.Actor, id types.ID) (*ride.Ride, error) {
		return h.rides.Complete(c.Request.Context(), actor, id, req.ActualPrice)
	})
}

func (h *RideHandler) Cancel(c *gin.Context) {
	h.applyAction(c, func(actor identity.Actor, id types.ID) (*ride.Ride, error) {
		return h.rides.Cancel(c.Request.Context(), actor, id)
	})
}

func (h *RideHandler) Get(c *gin.Context) {
	h.applyAction(c, func(actor identity.Actor, id types.ID) (*ride.Ride, error) {
		return h.rides.Get(c.Request.Context(), actor, id)
	})
}

func (h *RideHandler) List(c *gin.Context) {
	actor, ok := middleware.CallerActor(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthenticated", "")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	status := ride.Status(c.Query("status"))

	rides, total, err := h.rides.List(c.Request.Context(), actor, status, page, limit)
	if err != nil {
		writeRideError(c, err)
		return
	}
	if rides == nil {
		rides = []*ride.Ride{}
	}
	c.JSON(http.StatusOK, gin.H{
		"rides": rides,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// applyAction factors the shared actor/id plumbing for the per-ride routes.
func (h *RideHandler) applyAction(c *gin.Context, fn func(identity.Actor, types.ID) (*ride.Ride, error)) {
	a, ok := middleware.CallerActor(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthenticated", "")
		return
	}
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id", "validation")
		return
	}
	r, err := fn(a, types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
