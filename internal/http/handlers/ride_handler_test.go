// README: HTTP-level tests for the ride lifecycle endpoints.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"drivemecrazy/internal/http/handlers"
	httpmiddleware "drivemecrazy/internal/http/middleware"
	"drivemecrazy/internal/infra"
	"drivemecrazy/internal/modules/ride"
)

// claimVerifier decodes tokens of the form "uid:role" so one router can serve
// several actors in a single test flow.
type claimVerifier struct{}

func (claimVerifier) VerifyIDToken(_ context.Context, raw string) (*infra.Token, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return nil, errors.New("malformed test token")
	}
	return &infra.Token{
		UID:    parts[0],
		Claims: map[string]interface{}{"role": parts[1]},
	}, nil
}

func bearer(uid, role string) string {
	return fmt.Sprintf("Bearer %s:%s", uid, role)
}

// buildTestRouter wires a minimal Gin engine with the auth middleware and the
// ride handler over the in-memory store.
func buildTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ride.NewMemStore()
	svc := ride.NewService(store, ride.NewArbiter(store, log), nil, log)

	r := gin.New()
	r.Use(httpmiddleware.Auth(claimVerifier{}))
	h := handlers.NewRideHandler(svc)
	r.POST("/api/rides", h.Request)
	r.GET("/api/rides", h.List)
	r.GET("/api/rides/:id", h.Get)
	r.POST("/api/rides/:id/accept", h.Accept)
	r.POST("/api/rides/:id/start", h.Start)
	r.POST("/api/rides/:id/complete", h.Complete)
	r.POST("/api/rides/:id/cancel", h.Cancel)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}, authHeader string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func rideRequestBody() map[string]any {
	return map[string]any{
		"pickup":             map[string]any{"address": "1 MG Road", "lng": 77.59, "lat": 12.97},
		"dropoff":            map[string]any{"address": "Airport Rd", "lng": 77.71, "lat": 13.20},
		"estimated_duration": 35,
		"estimated_distance": 28.4,
		"estimated_price":    450,
	}
}

func createRide(t *testing.T, r *gin.Engine) ride.Ride {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/api/rides", rideRequestBody(), bearer("rider1", "rider"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create ride: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created ride.Ride
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created ride: %v", err)
	}
	return created
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Code
}

func TestRequest_Unauthenticated(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, http.MethodPost, "/api/rides", rideRequestBody(), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequest_Created(t *testing.T) {
	r := buildTestRouter()
	created := createRide(t, r)

	if created.Status != ride.StatusRequested {
		t.Errorf("status = %s, want requested", created.Status)
	}
	if created.ID == "" {
		t.Error("response missing ride id")
	}
	if created.RiderID != "rider1" {
		t.Errorf("riderId = %s, want rider1", created.RiderID)
	}
}

func TestRequest_DriverForbidden(t *testing.T) {
	r := buildTestRouter()
	w := doRequest(r, http.MethodPost, "/api/rides", rideRequestBody(), bearer("driver1", "driver"))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestRequest_InvalidBody(t *testing.T) {
	r := buildTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/rides", strings.NewReader("{not json"))
	req.Header.Set("Authorization", bearer("rider1", "rider"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed json: expected 400, got %d", w.Code)
	}

	body := rideRequestBody()
	body["estimated_price"] = -1
	w = doRequest(r, http.MethodPost, "/api/rides", body, bearer("rider1", "rider"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad estimate: expected 400, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "validation" {
		t.Errorf("error code = %s, want validation", code)
	}
}

func TestAccept_FullFlow(t *testing.T) {
	r := buildTestRouter()
	created := createRide(t, r)
	base := "/api/rides/" + string(created.ID)

	w := doRequest(r, http.MethodPost, base+"/accept", nil, bearer("driver1", "driver"))
	if w.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodPost, base+"/start", nil, bearer("driver1", "driver"))
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Empty body: actual price falls back to the estimate.
	w = doRequest(r, http.MethodPost, base+"/complete", nil, bearer("driver1", "driver"))
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var done ride.Ride
	if err := json.Unmarshal(w.Body.Bytes(), &done); err != nil {
		t.Fatalf("decode completed ride: %v", err)
	}
	if done.Status != ride.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
	if done.ActualPrice == nil || *done.ActualPrice != done.EstimatedPrice {
		t.Errorf("actualPrice = %v, want estimate %v", done.ActualPrice, done.EstimatedPrice)
	}
}

func TestAccept_RiderForbidden(t *testing.T) {
	r := buildTestRouter()
	created := createRide(t, r)

	w := doRequest(r, http.MethodPost, "/api/rides/"+string(created.ID)+"/accept", nil, bearer("rider1", "rider"))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestAccept_LateDriverConflict(t *testing.T) {
	r := buildTestRouter()
	created := createRide(t, r)
	base := "/api/rides/" + string(created.ID)

	if w := doRequest(r, http.MethodPost, base+"/accept", nil, bearer("driver1", "driver")); w.Code != http.StatusOK {
		t.Fatalf("first accept: expected 200, got %d", w.Code)
	}
	w := doRequest(r, http.MethodPost, base+"/accept", nil, bearer("driver2", "driver"))
	if w.Code != http.StatusConflict {
		t.Fatalf("late accept: expected 409, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "invalid_transition" {
		t.Errorf("error code = %s, want invalid_transition", code)
	}
}

func TestComplete_NegativePrice(t *testing.T) {
	r := buildTestRouter()
	created := createRide(t, r)
	base := "/api/rides/" + string(created.ID)

	doRequest(r, http.MethodPost, base+"/accept", nil, bearer("driver1", "driver"))
	doRequest(r, http.MethodPost, base+"/start", nil, bearer("driver1", "driver"))

	w := doRequest(r, http.MethodPost, base+"/complete", map[string]any{"actual_price": -5}, bearer("driver1", "driver"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// A price sent with chunked encoding (no Content-Length) must not be dropped
// in favour of the estimate.
func TestComplete_ChunkedBodyPrice(t *testing.T) {
	r := buildTestRouter()
	created := createRide(t, r)
	base := "/api/rides/" + string(created.ID)

	doRequest(r, http.MethodPost, base+"/accept", nil, bearer("driver1", "driver"))
	doRequest(r, http.MethodPost, base+"/start", nil, bearer("driver1", "driver"))

	// Wrapping the reader hides its concrete type, so the request carries
	// ContentLength -1 like a real chunked upload.
	body := struct{ io.Reader }{strings.NewReader(`{"actual_price": 512.5}`)}
	req := httptest.NewRequest(http.MethodPost, base+"/complete", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer("driver1", "driver"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var done ride.Ride
	if err := json.Unmarshal(w.Body.Bytes(), &done); err != nil {
		t.Fatalf("decode completed ride: %v", err)
	}
	if done.ActualPrice == nil || *done.ActualPrice != 512.5 {
		t.Errorf("actualPrice = %v, want 512.5 from the chunked body", done.ActualPrice)
	}
}

func TestCancel_StrangerForbidden(t *testing.T) {
	r := buildTestRouter()
	created := createRide(t, r)

	w := doRequest(r, http.MethodPost, "/api/rides/"+string(created.ID)+"/cancel", nil, bearer("rider2", "rider"))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestCancel_ThenStartConflict(t *testing.T) {
	r := buildTestRouter()
	created := createRide(t, r)
	base := "/api/rides/" + string(created.ID)

	doRequest(r, http.MethodPost, base+"/accept", nil, bearer("driver1", "driver"))
	if w := doRequest(r, http.MethodPost, base+"/cancel", nil, bearer("rider1", "rider")); w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", w.Code)
	}

	w := doRequest(r, http.MethodPost, base+"/start", nil, bearer("driver1", "driver"))
	if w.Code != http.StatusConflict {
		t.Errorf("start after cancel: expected 409, got %d", w.Code)
	}
}

func TestGet_Statuses(t *testing.T) {
	r := buildTestRouter()
	created := createRide(t, r)

	w := doRequest(r, http.MethodGet, "/api/rides/"+string(created.ID), nil, bearer("rider1", "rider"))
	if w.Code != http.StatusOK {
		t.Errorf("owner get: expected 200, got %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/api/rides/"+string(created.ID), nil, bearer("driver2", "driver"))
	if w.Code != http.StatusForbidden {
		t.Errorf("stranger get: expected 403, got %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/api/rides/nope", nil, bearer("rider1", "rider"))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown ride: expected 404, got %d", w.Code)
	}
}

func TestList_PaginationEnvelope(t *testing.T) {
	r := buildTestRouter()
	createRide(t, r)
	createRide(t, r)

	w := doRequest(r, http.MethodGet, "/api/rides?page=1&limit=1", nil, bearer("rider1", "rider"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Rides      []ride.Ride `json:"rides"`
		Pagination struct {
			Page  int `json:"page"`
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body.Rides) != 1 {
		t.Errorf("page of %d rides, want 1", len(body.Rides))
	}
	if body.Pagination.Total != 2 || body.Pagination.Page != 1 || body.Pagination.Limit != 1 {
		t.Errorf("pagination = %+v, want page 1 limit 1 total 2", body.Pagination)
	}

	// A driver with no assignments still sees the open requests.
	w = doRequest(r, http.MethodGet, "/api/rides", nil, bearer("driver1", "driver"))
	if w.Code != http.StatusOK {
		t.Fatalf("driver list: expected 200, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode driver list: %v", err)
	}
	if body.Pagination.Total != 2 {
		t.Errorf("driver total = %d, want 2 open requests", body.Pagination.Total)
	}

	w = doRequest(r, http.MethodGet, "/api/rides?status=flying", nil, bearer("rider1", "rider"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus status: expected 400, got %d", w.Code)
	}
}
