package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
)

const (
	SessionHeader = "X-Session-ID"
	UserHeader    = "X-User-ID"
	SessionCookie = "cart_session"
)

type HTTPHandler struct {
	ops    cartOps
	checks HealthChecks
}

type ItemRequest struct {
	Item domain.LineItem `json:"item"`
}

type ProgressRequest struct {
	Phase domain.Phase `json:"checkoutProgress"`
}

type OpenRequest struct {
	Open bool `json:"open"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ConfirmResponse struct {
	Order OrderView `json:"order"`
	Cart  CartView  `json:"cart"`
}

func NewHTTPHandler(registry *service.SessionRegistry, checkout *service.CheckoutService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{ops: cartOps{
		registry: registry,
		checkout: checkout,
		log:      log.With().Str("component", "http").Logger(),
	}}
}

// WithHealthChecks makes /health ping checks and report 503 when any fails.
func (h *HTTPHandler) WithHealthChecks(checks HealthChecks) *HTTPHandler {
	h.checks = checks
	return h
}

// Routes registers every endpoint on a new mux. gatherer may be nil.
func (h *HTTPHandler) Routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/add", h.AddToCart)
	mux.HandleFunc("POST /api/cart/remove", h.RemoveFromCart)
	mux.HandleFunc("POST /api/cart/clear", h.ClearCart)
	mux.HandleFunc("POST /api/cart/open", h.SetCartOpen)
	mux.HandleFunc("PUT /api/cart/progress", h.SetCheckoutProgress)

	mux.HandleFunc("POST /api/checkout/pay", h.BeginPayment)
	mux.HandleFunc("POST /api/checkout/confirm", h.ConfirmPayment)
	mux.HandleFunc("POST /api/checkout/acknowledge", h.Acknowledge)
	mux.HandleFunc("POST /api/checkout/cancel", h.Cancel)

	mux.HandleFunc("GET /api/orders", h.ListOrders)

	return h.withTracing(mux)
}

func (h *HTTPHandler) withTracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		h.ops.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("request")
	})
}

// sessionID prefers the header, then the cookie. A request carrying neither
// starts a new session, announced through the cookie and the header.
func (h *HTTPHandler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(SessionHeader, id)
	return id
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	state, err := h.ops.cart(r.Context(), h.sessionID(w, r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(state))
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	h.itemMutation(w, r, (*service.CartStore).AddToCart)
}

func (h *HTTPHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	h.itemMutation(w, r, (*service.CartStore).RemoveFromCart)
}

func (h *HTTPHandler) itemMutation(w http.ResponseWriter, r *http.Request, apply func(*service.CartStore, context.Context, domain.LineItem) error) {
	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := validateItem(req.Item); err != nil {
		h.writeError(w, err)
		return
	}

	ctx := r.Context()
	state, err := h.ops.mutate(ctx, h.sessionID(w, r), func(s *service.CartStore) error {
		return apply(s, ctx, req.Item)
	})
	h.writeState(w, state, err)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.ops.mutate(ctx, h.sessionID(w, r), func(s *service.CartStore) error {
		return s.ClearCart(ctx)
	})
	h.writeState(w, state, err)
}

func (h *HTTPHandler) SetCartOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := r.Context()
	state, err := h.ops.mutate(ctx, h.sessionID(w, r), func(s *service.CartStore) error {
		return s.SetCartOpen(ctx, req.Open)
	})
	h.writeState(w, state, err)
}

// SetCheckoutProgress only follows legal transitions; reaching the confirmation
// page requires /api/checkout/confirm.
func (h *HTTPHandler) SetCheckoutProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	phase, err := domain.ParsePhase(string(req.Phase))
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx := r.Context()
	state, err := h.ops.mutate(ctx, h.sessionID(w, r), func(s *service.CartStore) error {
		return s.Transition(ctx, phase, false)
	})
	h.writeState(w, state, err)
}

func (h *HTTPHandler) BeginPayment(w http.ResponseWriter, r *http.Request) {
	req, state, err := h.ops.beginPayment(r.Context(), h.sessionID(w, r), r.Header.Get(UserHeader))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentView{
		Amount:    req.Amount,
		Currency:  req.Currency,
		LineItems: req.LineItems,
		Cart:      newCartView(state),
	})
}

func (h *HTTPHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	order, state, err := h.ops.confirmPayment(r.Context(), h.sessionID(w, r), r.Header.Get(UserHeader))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfirmResponse{Order: newOrderView(order), Cart: newCartView(state)})
}

func (h *HTTPHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.ops.mutate(ctx, h.sessionID(w, r), func(s *service.CartStore) error {
		return h.ops.checkout.Acknowledge(ctx, s)
	})
	h.writeState(w, state, err)
}

func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.ops.mutate(ctx, h.sessionID(w, r), func(s *service.CartStore) error {
		return h.ops.checkout.Cancel(ctx, s)
	})
	h.writeState(w, state, err)
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.ops.checkout.ListOrders(r.Context(), r.Header.Get(UserHeader))
	if err != nil {
		h.writeError(w, err)
		return
	}

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o))
	}
	writeJSON(w, http.StatusOK, views)
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	statuses, ok := h.checks.Check(r.Context())
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Dependencies: statuses})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Dependencies: statuses})
}

func (h *HTTPHandler) writeState(w http.ResponseWriter, state domain.CartState, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(state))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.ops.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: publicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
