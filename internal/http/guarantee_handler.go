package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/currency"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/guarantee"
	"github.com/go-chi/chi/v5"
)

type GuaranteeHandler struct {
	handler
}

func NewGuaranteeHandler(sessions SessionProvider, timeout time.Duration, log *slog.Logger) *GuaranteeHandler {
	return &GuaranteeHandler{handler: newHandler(sessions, timeout, log)}
}

type LockPriceRequestDTO struct {
	LockedPrice   domain.Money `json:"locked_price"`
	OriginalPrice domain.Money `json:"original_price"`
}

type GuaranteeResponseDTO struct {
	domain.PriceGuarantee
	Valid            bool `json:"valid"`
	RemainingSeconds int  `json:"remainingSeconds"`
}

func (h *GuaranteeHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, guaranteesResponse(s.Guarantees))
}

func (h *GuaranteeHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	g, found := s.Guarantees.Get(productID)
	if !found {
		respondError(w, http.StatusNotFound, "not_found", "no price guarantee for product "+productID)
		return
	}

	respondJSON(w, http.StatusOK, guaranteeResponse(s.Guarantees, g))
}

// Lock records a price guarantee for the product, replacing any existing one.
func (h *GuaranteeHandler) Lock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	var req LockPriceRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if !currency.Supported(req.LockedPrice.CurrencyCode) {
		respondError(w, http.StatusBadRequest, "invalid_argument", "unsupported currency "+req.LockedPrice.CurrencyCode)
		return
	}
	if req.LockedPrice.Amount.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_argument", "locked_price must not be negative")
		return
	}
	if req.OriginalPrice.CurrencyCode == "" {
		req.OriginalPrice = req.LockedPrice
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	g := s.Guarantees.LockPrice(productID, req.LockedPrice, req.OriginalPrice)

	respondJSON(w, http.StatusCreated, guaranteeResponse(s.Guarantees, g))
}

func (h *GuaranteeHandler) Extend(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, (*guarantee.Store).Extend)
}

func (h *GuaranteeHandler) ResetTime(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, (*guarantee.Store).ResetTime)
}

func (h *GuaranteeHandler) ResetTimeForAll(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Guarantees.ResetTimeForAll()
	respondJSON(w, http.StatusOK, guaranteesResponse(s.Guarantees))
}

func (h *GuaranteeHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Guarantees.ResetAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *GuaranteeHandler) refresh(w http.ResponseWriter, r *http.Request, fn func(*guarantee.Store, string) bool) {
	productID := chi.URLParam(r, "product_id")

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !fn(s.Guarantees, productID) {
		respondError(w, http.StatusNotFound, "not_found", "no price guarantee for product "+productID)
		return
	}
	g, _ := s.Guarantees.Get(productID)

	respondJSON(w, http.StatusOK, guaranteeResponse(s.Guarantees, g))
}

func guaranteeResponse(store *guarantee.Store, g domain.PriceGuarantee) GuaranteeResponseDTO {
	return GuaranteeResponseDTO{
		PriceGuarantee:   g,
		Valid:            store.IsValid(g.ProductID),
		RemainingSeconds: store.RemainingSeconds(g.ProductID),
	}
}

func guaranteesResponse(store *guarantee.Store) []GuaranteeResponseDTO {
	all := store.All()
	out := make([]GuaranteeResponseDTO, 0, len(all))
	for _, g := range all {
		out = append(out, guaranteeResponse(store, g))
	}
	return out
}
