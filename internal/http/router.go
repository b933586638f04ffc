// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drivemecrazy/internal/http/handlers"
	"drivemecrazy/internal/http/middleware"
	"drivemecrazy/internal/infra"
	"drivemecrazy/internal/modules/notify"
	"drivemecrazy/internal/modules/ride"
)

type RouterDeps struct {
	Rides    *ride.Service
	Hub      *notify.Hub
	Verifier infra.TokenVerifier
	Log      *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.Logging(deps.Log))
	r.Use(middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rideHandler := handlers.NewRideHandler(deps.Rides)
	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Log)

	authed := r.Group("/", middleware.Auth(deps.Verifier))
	authed.POST("/api/rides", rideHandler.Request)
	authed.GET("/api/rides", rideHandler.List)
	authed.GET("/api/rides/:id", rideHandler.Get)
	authed.POST("/api/rides/:id/accept", rideHandler.Accept)
	authed.POST("/api/rides/:id/start", rideHandler.Start)
	authed.POST("/api/rides/:id/complete", rideHandler.Complete)
	authed.POST("/api/rides/:id/cancel", rideHandler.Cancel)
	authed.GET("/ws", wsHandler.Stream)

	return r
}
