package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/currency"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/shopify"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/go-chi/chi/v5"
)

const maxQuantity = 99

// SessionProvider resolves the shopper session behind a request.
type SessionProvider interface {
	Do(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error)
}

// handler carries what every route needs to reach the caller's session.
type handler struct {
	sessions SessionProvider
	timeout  time.Duration
	log      *slog.Logger
}

func newHandler(sessions SessionProvider, timeout time.Duration, log *slog.Logger) handler {
	return handler{
		sessions: sessions,
		timeout:  timeout,
		log:      log.With(slog.String("component", "http")),
	}
}

type CartHandler struct {
	handler
}

func NewCartHandler(sessions SessionProvider, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{handler: newHandler(sessions, timeout, log)}
}

type AddItemRequestDTO struct {
	Product   domain.Product `json:"product"`
	VariantID string         `json:"variant_id"`
	Quantity  int            `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type SetCurrencyRequestDTO struct {
	CurrencyCode string `json:"currency_code"`
}

// CartResponseDTO is the cart state plus its total in the display currency.
// DisplayTotal is omitted when a line's currency cannot be converted.
type CartResponseDTO struct {
	cart.State
	DisplayTotal   *domain.Money `json:"displayTotal,omitempty"`
	FormattedTotal string        `json:"formattedTotal,omitempty"`
}

type CheckoutResponseDTO struct {
	CheckoutURL string `json:"checkout_url"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse(s))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Product.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product", "product.id is required")
		return
	}
	if req.VariantID == "" {
		respondError(w, http.StatusBadRequest, "invalid_variant_id", "variant_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	s, ok := h.withSession(w, r, func(s *session.Session) error {
		return s.AddItem(ctx, req.Product, req.VariantID, req.Quantity)
	})
	if !ok {
		return
	}

	respondJSON(w, http.StatusCreated, h.cartResponse(s))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	variantID := chi.URLParam(r, "variant_id")

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	// zero removes the line
	if req.Quantity < 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	s, ok := h.withSession(w, r, func(s *session.Session) error {
		return s.Cart.UpdateQuantity(ctx, variantID, req.Quantity)
	})
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, h.cartResponse(s))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	variantID := chi.URLParam(r, "variant_id")

	s, ok := h.withSession(w, r, func(s *session.Session) error {
		return s.Cart.RemoveItem(ctx, variantID)
	})
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, h.cartResponse(s))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := h.withSession(w, r, func(s *session.Session) error {
		return s.Clear(ctx)
	})
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, h.cartResponse(s))
}

func (h *CartHandler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	var req SetCurrencyRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s, ok := h.withSession(w, r, func(s *session.Session) error {
		return s.Cart.SetCurrency(r.Context(), req.CurrencyCode)
	})
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, h.cartResponse(s))
}

func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := h.withSession(w, r, func(s *session.Session) error {
		return s.Cart.Refresh(ctx)
	})
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, h.cartResponse(s))
}

// Checkout pushes the cart to the remote store right away and returns the
// checkout URL. Failures are returned so the client can stay on the cart page.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var url string
	_, ok := h.withSession(w, r, func(s *session.Session) error {
		var err error
		url, err = s.Cart.CreateRemoteCartForCheckout(ctx)
		return err
	})
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, CheckoutResponseDTO{CheckoutURL: url})
}

func (h *CartHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.Inbox.Drain())
}

func (h handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	return h.withSession(w, r, func(*session.Session) error { return nil })
}

// withSession runs fn against the caller's session and writes the error
// response when it fails.
func (h handler) withSession(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) (*session.Session, bool) {
	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "missing X-Session-ID")
		return nil, false
	}
	s, err := h.sessions.Do(r.Context(), sessionID, fn)
	if err != nil {
		h.handleDomainError(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *CartHandler) cartResponse(s *session.Session) CartResponseDTO {
	resp := CartResponseDTO{State: s.Cart.State()}
	total, err := currency.DisplayTotal(resp.Items, resp.CurrencyCode)
	if err != nil {
		h.log.Warn("display total unavailable",
			slog.String("session_id", s.ID),
			slog.Any("error", err))
		return resp
	}
	resp.DisplayTotal = &total
	resp.FormattedTotal = currency.Format(total)
	return resp
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}

func (h handler) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, domain.ErrVariantNotFound), errors.Is(err, domain.ErrItemNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrUnsupportedCurrency):
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
	case errors.Is(err, domain.ErrEmptyCart):
		httpStatus = http.StatusBadRequest
		code = "empty_cart"
	case errors.Is(err, domain.ErrSyncFailed):
		httpStatus = http.StatusBadGateway
		code = "sync_failed"
	case errors.Is(err, domain.ErrRemoteRejected):
		httpStatus = http.StatusUnprocessableEntity
		code = "remote_rejected"
	case shopify.IsHTTPStatusError(err):
		httpStatus = http.StatusBadGateway
		code = "remote_error"
	case errors.Is(err, circuitbreaker.ErrOpen), errors.Is(err, cart.ErrClosed):
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		h.log.Error("request failed",
			slog.String("request_id", getRequestID(r.Context())),
			slog.String("session_id", getSessionID(r.Context())),
			slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}
