// README: Check cases: health, ride flow, accept race, timestamp audit, redis fan-out.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"drivemecrazy/internal/infra"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type CheckCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	cases := []CheckCase{
		{Name: "http_health", Run: checkHealth},
		{Name: "ride_full_flow", Run: checkRideFlow},
		{Name: "accept_race_one_winner", Run: checkAcceptRace},
		{Name: "db_timestamp_audit", Run: checkTimestampAudit},
		{Name: "redis_pool_broadcast", Run: checkPoolBroadcast},
	}

	var results []Result
	for _, c := range cases {
		start := time.Now()
		res := c.Run(ctx, r)
		res.Name = c.Name
		res.Latency = time.Since(start)
		fmt.Printf("%-28s %-5s %8s  %s\n", res.Name, res.Status, res.Latency.Round(time.Millisecond), res.Note)
		results = append(results, res)
	}
	return results
}

func (r *Runner) token(subject, role string) (string, error) {
	return infra.SignJWT(r.cfg.JWTSecret, subject, role)
}

func (r *Runner) do(ctx context.Context, method, path, token string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

func rideRequestBody() map[string]interface{} {
	return map[string]interface{}{
		"pickup":             map[string]interface{}{"address": "1 MG Road", "lng": 77.59, "lat": 12.97},
		"dropoff":            map[string]interface{}{"address": "Airport Rd", "lng": 77.71, "lat": 13.20},
		"estimated_duration": 35.0,
		"estimated_distance": 28.4,
		"estimated_price":    450.0,
	}
}

func (r *Runner) requestRide(ctx context.Context, riderID string) (string, error) {
	tok, err := r.token(riderID, "rider")
	if err != nil {
		return "", err
	}
	status, body, err := r.do(ctx, http.MethodPost, "/api/rides", tok, rideRequestBody())
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("request ride: status %d body %s", status, body)
	}
	var ride struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &ride); err != nil {
		return "", err
	}
	return ride.ID, nil
}

func checkHealth(ctx context.Context, r *Runner) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/health", nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return Result{Status: "PASS"}
}

func checkRideFlow(ctx context.Context, r *Runner) Result {
	rideID, err := r.requestRide(ctx, "bench_rider_flow")
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	driverTok, err := r.token("bench_driver_flow", "driver")
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	steps := []string{"accept", "start", "complete"}
	for _, step := range steps {
		status, body, err := r.do(ctx, http.MethodPost, "/api/rides/"+rideID+"/"+step, driverTok, nil)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if status != http.StatusOK {
			return Result{Status: "FAIL", Note: fmt.Sprintf("%s: status %d body %s", step, status, body)}
		}
	}
	return Result{Status: "PASS", Note: "requested -> accepted -> ongoing -> completed"}
}

func checkAcceptRace(ctx context.Context, r *Runner) Result {
	rideID, err := r.requestRide(ctx, "bench_rider_race")
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	n := r.cfg.Concurrency
	type outcome struct {
		status int
		err    error
	}
	outcomes := make(chan outcome, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := r.token(fmt.Sprintf("bench_driver_%d", i), "driver")
			if err != nil {
				outcomes <- outcome{err: err}
				return
			}
			<-start
			status, _, err := r.do(ctx, http.MethodPost, "/api/rides/"+rideID+"/accept", tok, nil)
			outcomes <- outcome{status: status, err: err}
		}(i)
	}
	close(start)
	wg.Wait()
	close(outcomes)

	winners, losers := 0, 0
	for o := range outcomes {
		if o.err != nil {
			return Result{Status: "FAIL", Note: o.err.Error()}
		}
		switch o.status {
		case http.StatusOK:
			winners++
		case http.StatusConflict:
			losers++
		default:
			return Result{Status: "FAIL", Note: fmt.Sprintf("unexpected status %d", o.status)}
		}
	}
	if winners != 1 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("winners=%d losers=%d", winners, losers)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("1 winner, %d rejected", losers)}
}

func checkTimestampAudit(ctx context.Context, r *Runner) Result {
	db, err := r.openDB(ctx)
	if err != nil {
		return Result{Status: "SKIP", Note: "db unavailable: " + err.Error()}
	}
	var violations int
	err = db.QueryRow(ctx, `
		SELECT COUNT(*) FROM rides
		WHERE (accepted_at IS NOT NULL AND accepted_at < requested_at)
		   OR (started_at IS NOT NULL AND started_at < accepted_at)
		   OR (completed_at IS NOT NULL AND completed_at < started_at)`).Scan(&violations)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if violations > 0 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("%d rides with out-of-order timestamps", violations)}
	}
	return Result{Status: "PASS"}
}

func checkPoolBroadcast(ctx context.Context, r *Runner) Result {
	rc := r.openRedis()
	if err := rc.Ping(ctx).Err(); err != nil {
		return Result{Status: "SKIP", Note: "redis unavailable: " + err.Error()}
	}
	sub := rc.Subscribe(ctx, "rides.drivers.available")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	ch := sub.Channel()

	if _, err := r.requestRide(ctx, "bench_rider_pool"); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	select {
	case <-ch:
		return Result{Status: "PASS", Note: "pool topic received the new request"}
	case <-time.After(5 * time.Second):
		return Result{Status: "FAIL", Note: "no pool broadcast within 5s"}
	}
}

func (r *Runner) openDB(ctx context.Context) (*pgxpool.Pool, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := pgxpool.New(ctx, r.cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

func (r *Runner) openRedis() *redis.Client {
	if r.redis == nil {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}
	return r.redis
}
