package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/stamp-dispenser/internal/cache"
	"github.com/eugenenazirov/stamp-dispenser/internal/dispenser"
	"github.com/eugenenazirov/stamp-dispenser/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// failingCache reports an error on every call.
type failingCache struct{}

func (failingCache) Get(context.Context, string) (dispenser.Result, bool, error) {
	return dispenser.Result{}, false, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, dispenser.Result) error {
	return errors.New("cache down")
}

func (failingCache) Close() error { return nil }

// brokenStorage hands out denominations that bypassed normalisation.
type brokenStorage struct {
	denominations []int
}

func (b *brokenStorage) GetDenominations() ([]int, error) { return b.denominations, nil }

func (b *brokenStorage) SetDenominations([]int) error { return errors.New("read-only") }

func setupTestRouter(t *testing.T, opts ...HandlerOption) (http.Handler, *controllableClock) {
	t.Helper()

	store := storage.NewMemoryStorage()
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))

	opts = append([]HandlerOption{WithClock(clock.Now), WithHandlerLogger(zaptest.NewLogger(t))}, opts...)
	handler := NewHandler(store, opts...)
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false))

	return router, clock
}

func doJSON(t *testing.T, router http.Handler, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = data
	}

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type dispenseBody struct {
	Request    int            `json:"request"`
	MinUnits   int            `json:"minUnits"`
	Units      map[string]int `json:"units"`
	TotalValue int            `json:"totalValue"`
	Cached     bool           `json:"cached"`
}

func decodeDispense(t *testing.T, rec *httptest.ResponseRecorder) dispenseBody {
	t.Helper()
	var body dispenseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := requestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, errors.New("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
}

func TestGetDenominationsReturnsDefaults(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/denominations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Denominations []int     `json:"denominations"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if want := storage.DefaultDenominations(); !slices.Equal(body.Denominations, want) {
		t.Fatalf("expected denominations %v, got %v", want, body.Denominations)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutDenominationsUpdatesStorage(t *testing.T) {
	router, clock := setupTestRouter(t)

	clock.Advance(time.Hour)

	rec := doJSON(t, router, http.MethodPut, "/api/denominations", map[string]any{
		"denominations": []int{1, 10, 25, 5},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Denominations []int     `json:"denominations"`
		UpdatedAt     time.Time `json:"updatedAt"`
		Message       string    `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Message == "" {
		t.Fatalf("expected success message, got empty string")
	}
	if want := []int{25, 10, 5, 1}; !slices.Equal(body.Denominations, want) {
		t.Fatalf("expected %v, got %v", want, body.Denominations)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutDenominationsValidatesInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	cases := []struct {
		name    string
		payload any
	}{
		{name: "empty", payload: map[string]any{"denominations": []int{}}},
		{name: "missing unit", payload: map[string]any{"denominations": []int{25, 10, 5}}},
		{name: "negative", payload: map[string]any{"denominations": []int{-3, 1}}},
		{name: "not json", payload: "nope"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPut, "/api/denominations", tc.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestDispenseEndpointSuccess(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/dispense", map[string]any{"request": 131})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodeDispense(t, rec)
	if body.Request != 131 || body.MinUnits != 4 || body.TotalValue != 131 {
		t.Fatalf("unexpected response: %+v", body)
	}
	want := map[string]int{"90": 1, "30": 1, "10": 1, "1": 1}
	for den, count := range want {
		if body.Units[den] != count {
			t.Fatalf("expected %d units of %s, got %v", count, den, body.Units)
		}
	}
	if body.Cached {
		t.Fatalf("expected first response to be computed")
	}
}

func TestDispenseEndpointZeroRequest(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/dispense", map[string]any{"request": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body := decodeDispense(t, rec); body.MinUnits != 0 || len(body.Units) != 0 {
		t.Fatalf("expected no units for zero request, got %+v", body)
	}
}

func TestDispenseEndpointUsesCache(t *testing.T) {
	memory := cache.NewMemoryCache(10)
	router, _ := setupTestRouter(t, WithCache(memory))

	first := decodeDispense(t, doJSON(t, router, http.MethodPost, "/api/dispense", map[string]any{"request": 92}))
	second := decodeDispense(t, doJSON(t, router, http.MethodPost, "/api/dispense", map[string]any{"request": 92}))

	if first.Cached || !second.Cached {
		t.Fatalf("expected miss then hit, got %v then %v", first.Cached, second.Cached)
	}
	if first.MinUnits != 2 || second.MinUnits != 2 {
		t.Fatalf("expected 2 units, got %d and %d", first.MinUnits, second.MinUnits)
	}
	if memory.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", memory.Len())
	}
}

func TestDispenseEndpointRecomputesAfterDenominationChange(t *testing.T) {
	router, _ := setupTestRouter(t)

	if body := decodeDispense(t, doJSON(t, router, http.MethodPost, "/api/dispense", map[string]any{"request": 97})); body.Cached {
		t.Fatalf("expected computed result")
	}

	if rec := doJSON(t, router, http.MethodPut, "/api/denominations", map[string]any{"denominations": []int{25, 10, 5, 1}}); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodeDispense(t, doJSON(t, router, http.MethodPost, "/api/dispense", map[string]any{"request": 97}))
	if body.Cached {
		t.Fatalf("expected result for new denominations to be computed")
	}
	if body.MinUnits != 7 {
		t.Fatalf("expected 7 coins for 97, got %d", body.MinUnits)
	}
}

func TestDispenseEndpointSurvivesCacheFailure(t *testing.T) {
	router, _ := setupTestRouter(t, WithCache(failingCache{}))

	rec := doJSON(t, router, http.MethodPost, "/api/dispense", map[string]any{"request": 18})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 despite cache failure, got %d", rec.Code)
	}
	if body := decodeDispense(t, rec); body.MinUnits != 3 {
		t.Fatalf("expected 3 units, got %d", body.MinUnits)
	}
}

func TestDispenseEndpointWithoutCache(t *testing.T) {
	router, _ := setupTestRouter(t, WithCache(nil))

	for i := 0; i < 2; i++ {
		body := decodeDispense(t, doJSON(t, router, http.MethodPost, "/api/dispense", map[string]any{"request": 24}))
		if body.Cached || body.MinUnits != 1 {
			t.Fatalf("unexpected response: %+v", body)
		}
	}
}

func TestDispenseEndpointRejectsInvalidRequests(t *testing.T) {
	router, _ := setupTestRouter(t, WithMaxRequest(1000))

	cases := []struct {
		name    string
		payload any
	}{
		{name: "negative", payload: map[string]any{"request": -1}},
		{name: "missing", payload: map[string]any{}},
		{name: "too large", payload: map[string]any{"request": 1001}},
		{name: "not a number", payload: map[string]any{"request": "ten"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/dispense", tc.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestDispenseEndpointInvalidStoredDenominations(t *testing.T) {
	handler := NewHandler(&brokenStorage{denominations: []int{25, 10, 5}}, WithCache(nil))
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false))

	rec := doJSON(t, router, http.MethodPost, "/api/dispense", map[string]any{"request": 30})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}

	var body struct {
		Suggestion string `json:"suggestion"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Suggestion == "" {
		t.Fatalf("expected suggestion to be populated")
	}
}

func TestWithMaxRequestIgnoresOutOfRange(t *testing.T) {
	h := NewHandler(storage.NewMemoryStorage(), WithMaxRequest(dispenser.MaxRequest+1))
	if h.maxRequest != dispenser.MaxRequest {
		t.Fatalf("expected max request to stay at %d, got %d", dispenser.MaxRequest, h.maxRequest)
	}
}

func TestCorsPreflight(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/dispense", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Fatalf("expected generated UUID request id, got %q", got)
	}
}
