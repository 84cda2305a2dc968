package httppresentation

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := h.cartService.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err)
		return
	}

	c, err := h.cartService.AddItem(r.Context(), id, req.BookID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req updateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, errors.New("quantity is required"))
		return
	}

	c, err := h.cartService.UpdateItem(r.Context(), id, chi.URLParam(r, "bookId"), *req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := h.cartService.RemoveItem(r.Context(), id, chi.URLParam(r, "bookId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := h.cartService.Clear(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}
