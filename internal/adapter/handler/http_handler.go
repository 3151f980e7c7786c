package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/checkout/internal/core/domain"
)

const maxRequestBody = 1 << 20

// OrderPlacer is satisfied by service.IdempotentOrderService.
type OrderPlacer interface {
	Execute(ctx context.Context, requestID, customerID string, items []domain.RequestedProduct) (domain.Order, error)
}

type HTTPHandler struct {
	orders     OrderPlacer
	log        *zap.Logger
	retryAfter time.Duration
}

type PlaceOrderHTTPRequest struct {
	RequestID  string                    `json:"request_id"`
	CustomerID string                    `json:"customer_id"`
	Products   []domain.RequestedProduct `json:"products"`
}

type ErrorHTTPResponse struct {
	Kind    domain.Kind    `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func NewHTTPHandler(orders OrderPlacer, log *zap.Logger) *HTTPHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPHandler{orders: orders, log: log, retryAfter: time.Second}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	r.Post("/api/orders", h.PlaceOrder)
	return r
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderHTTPRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorHTTPResponse{
				Kind:    "invalid_request",
				Message: "request body too large",
			})
			return
		}
		h.log.Debug("invalid request body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{
			Kind:    "invalid_request",
			Message: "invalid request body",
		})
		return
	}

	order, err := h.orders.Execute(r.Context(), req.RequestID, req.CustomerID, req.Products)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := httpStatus(kind)
	if kind == domain.KindBusy {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
	}
	writeJSON(w, status, ErrorHTTPResponse{
		Kind:    kind,
		Message: publicMessage(err),
		Details: errorDetails(err),
	})
}

func httpStatus(kind domain.Kind) int {
	switch kind {
	case domain.KindCustomerNotFound, domain.KindProductNotFound:
		return http.StatusNotFound
	case domain.KindEmptyOrder, domain.KindInvalidQuantity, domain.KindDuplicateProduct:
		return http.StatusBadRequest
	case domain.KindInsufficientStock:
		return http.StatusConflict
	case domain.KindBusy:
		return http.StatusServiceUnavailable
	case domain.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
