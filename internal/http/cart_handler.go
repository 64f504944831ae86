package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"go.uber.org/zap"
)

const (
	maxLineQuantity = 99
	maxMergeLines   = 200
)

// CartService is the part of service.CartService the handlers call.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddLine(ctx context.Context, userID, productRef string, quantity int, v *domain.Variation) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productRef string, quantity int, v *domain.Variation) (*domain.Cart, error)
	RemoveLine(ctx context.Context, userID, productRef string, v *domain.Variation) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
	MergeGuestCart(ctx context.Context, userID string, lines domain.Lines) (*service.MergeResult, error)
}

type CartHandler struct {
	svc     CartService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(svc CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{
		svc:     svc,
		timeout: timeout,
		logger:  logger,
	}
}

// LineRequestDTO is the body of POST, PUT and DELETE on cart lines.
type LineRequestDTO struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Variation *domain.Variation `json:"variation,omitempty"`
}

type MergeRequestDTO struct {
	Items domain.Lines `json:"items"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.svc.GetCart(ctx, auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := decodeLine(w, r)
	if !ok {
		return
	}
	if req.Quantity < 1 || req.Quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	cart, err := h.svc.AddLine(ctx, auth.UserIDFromContext(r.Context()), req.ProductID, req.Quantity, req.Variation)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, cart)
}

// UpdateQuantity sets a line's quantity; 0 deletes the line.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := decodeLine(w, r)
	if !ok {
		return
	}
	if req.Quantity < 0 || req.Quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	cart, err := h.svc.UpdateQuantity(ctx, auth.UserIDFromContext(r.Context()), req.ProductID, req.Quantity, req.Variation)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	req, ok := decodeLine(w, r)
	if !ok {
		return
	}

	cart, err := h.svc.RemoveLine(ctx, auth.UserIDFromContext(r.Context()), req.ProductID, req.Variation)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := auth.UserIDFromContext(r.Context())
	if err := h.svc.ClearCart(ctx, userID); err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, domain.NewCart(userID, time.Now()))
}

func (h *CartHandler) MergeGuestCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req MergeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.Items) > maxMergeLines {
		respondError(w, http.StatusBadRequest, "too_many_items", "too many guest cart lines")
		return
	}
	for _, l := range req.Items {
		if l.ProductRef == "" {
			respondError(w, http.StatusBadRequest, "invalid_product_id", "productRef is required")
			return
		}
		if l.Quantity < 1 || l.Quantity > maxLineQuantity {
			respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
			return
		}
	}

	res, err := h.svc.MergeGuestCart(ctx, auth.UserIDFromContext(r.Context()), req.Items)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if res.Skipped == nil {
		res.Skipped = []string{}
	}
	respondJSON(w, http.StatusOK, res)
}

func decodeLine(w http.ResponseWriter, r *http.Request) (LineRequestDTO, bool) {
	var req LineRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return req, false
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return req, false
	}
	return req, true
}
