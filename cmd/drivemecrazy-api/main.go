// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"drivemecrazy/internal/config"
	httptransport "drivemecrazy/internal/http"
	"drivemecrazy/internal/infra"
	"drivemecrazy/internal/logging"
	"drivemecrazy/internal/modules/notify"
	"drivemecrazy/internal/modules/ride"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	switch cfg.Auth.Mode {
	case config.AuthModeFirebase:
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseCredentials)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
	case config.AuthModeJWT:
		verifier = infra.NewJWTVerifier(cfg.Auth.JWTSecret)
		logger.Warn("using local JWT verifier; do not run this mode in production")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	broker := notify.NewRedisBroker(redisClient)
	fanout := notify.NewFanout(broker, logger)
	hub := notify.NewHub(broker, logger)

	rideStore := ride.NewPGStore(dbPool)
	arbiter := ride.NewArbiter(rideStore, logger)
	rideSvc := ride.NewService(rideStore, arbiter, fanout, logger)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Rides:    rideSvc,
		Hub:      hub,
		Verifier: verifier,
		Log:      logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr, "auth_mode", cfg.Auth.Mode)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
