package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/stamp-dispenser/internal/cache"
	"github.com/eugenenazirov/stamp-dispenser/internal/dispenser"
	"github.com/eugenenazirov/stamp-dispenser/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Handler wires storage, cache and dispenser into HTTP handlers.
type Handler struct {
	storage    storage.Storage
	cache      cache.Cache
	logger     *zap.Logger
	maxRequest int

	clock func() time.Time

	mu                     sync.RWMutex
	denominationsUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithCache sets the result cache. Passing nil disables caching.
func WithCache(c cache.Cache) HandlerOption {
	return func(h *Handler) {
		h.cache = c
	}
}

// WithMaxRequest caps the request value accepted by the dispense endpoint.
func WithMaxRequest(limit int) HandlerOption {
	return func(h *Handler) {
		if limit > 0 && limit <= dispenser.MaxRequest {
			h.maxRequest = limit
		}
	}
}

// WithHandlerLogger sets the logger used for non-fatal failures such as cache errors.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		storage:    store,
		cache:      cache.NewMemoryCache(0),
		logger:     zap.NewNop(),
		maxRequest: dispenser.MaxRequest,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.denominationsUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetDenominations(w http.ResponseWriter, _ *http.Request) {
	denominations, err := h.storage.GetDenominations()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := denominationsResponse{
		Denominations: denominations,
		UpdatedAt:     h.currentDenominationsUpdatedAt(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePutDenominations(w http.ResponseWriter, r *http.Request) {
	var req denominationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if len(req.Denominations) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid denominations", "denominations must contain at least one value")
		return
	}

	if err := h.storage.SetDenominations(req.Denominations); err != nil {
		if errors.Is(err, storage.ErrInvalidDenominations) {
			writeError(w, http.StatusBadRequest, "Invalid denominations", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markDenominationsUpdated()

	denominations, err := h.storage.GetDenominations()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := denominationsResponse{
		Denominations: denominations,
		UpdatedAt:     h.currentDenominationsUpdatedAt(),
		Message:       "Denominations updated successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDispense(w http.ResponseWriter, r *http.Request) {
	var req dispenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if req.Request == nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "request is required")
		return
	}
	request := *req.Request
	if request < 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", dispenser.ErrInvalidRequest.Error())
		return
	}
	if request > h.maxRequest {
		writeError(w, http.StatusBadRequest, "Invalid request", fmt.Sprintf("request must not exceed %d", h.maxRequest))
		return
	}

	denominations, err := h.storage.GetDenominations()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	ctx := r.Context()
	key := cache.Key(denominations, request)
	start := time.Now()

	result, cached := h.lookup(ctx, key)
	if !cached {
		d, err := dispenser.New(denominations)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Invalid denominations", err.Error(),
				"Update the denominations so they are strictly descending and end with 1")
			return
		}

		result, err = d.Dispense(request)
		if err != nil {
			switch {
			case errors.Is(err, dispenser.ErrInvalidRequest), errors.Is(err, dispenser.ErrRequestTooLarge):
				writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			default:
				writeInternalError(w, err)
			}
			return
		}
		h.store(ctx, key, result)
	}
	elapsed := time.Since(start)

	units := make(map[string]int, len(result.Units))
	for den, count := range result.Units {
		units[strconv.Itoa(den)] = count
	}

	resp := dispenseResponse{
		Request:           result.Request,
		MinUnits:          result.TotalUnits,
		Units:             units,
		TotalValue:        result.TotalValue,
		Cached:            cached,
		CalculationTimeMs: elapsed.Milliseconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) lookup(ctx context.Context, key string) (dispenser.Result, bool) {
	if h.cache == nil {
		return dispenser.Result{}, false
	}
	result, ok, err := h.cache.Get(ctx, key)
	if err != nil {
		h.logger.Warn("cache lookup failed",
			zap.String("key", key),
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.Error(err),
		)
		return dispenser.Result{}, false
	}
	return result, ok
}

func (h *Handler) store(ctx context.Context, key string, result dispenser.Result) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, key, result); err != nil {
		h.logger.Warn("cache store failed",
			zap.String("key", key),
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.Error(err),
		)
	}
}

func (h *Handler) currentDenominationsUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.denominationsUpdatedAt
}

func (h *Handler) markDenominationsUpdated() {
	h.mu.Lock()
	h.denominationsUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type denominationsRequest struct {
	Denominations []int `json:"denominations"`
}

type dispenseRequest struct {
	Request *int `json:"request"`
}

type dispenseResponse struct {
	Request           int            `json:"request"`
	MinUnits          int            `json:"minUnits"`
	Units             map[string]int `json:"units"`
	TotalValue        int            `json:"totalValue"`
	Cached            bool           `json:"cached"`
	CalculationTimeMs int64          `json:"calculationTimeMs"`
}

type denominationsResponse struct {
	Denominations []int     `json:"denominations"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Message       string    `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
