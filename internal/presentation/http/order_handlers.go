package httppresentation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err)
		return
	}

	o, err := h.orderService.Checkout(r.Context(), id, req.ShippingAddress)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	orders, err := h.orderService.ListAll(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderListResponse(orders))
}

func (h *Handler) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	orders, err := h.orderService.ListMine(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderListResponse(orders))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.orderService.Get(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err)
		return
	}

	o, err := h.orderService.UpdateStatus(r.Context(), id, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

func (h *Handler) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req updatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err)
		return
	}

	o, err := h.orderService.UpdatePaymentStatus(r.Context(), id, chi.URLParam(r, "id"), req.PaymentStatus)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.orderService.Cancel(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err)
		return
	}

	pi, err := h.orderService.CreatePaymentIntent(r.Context(), id, req.OrderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentIntentResponse{
		OrderID:            pi.Order.ID,
		ExternalPaymentRef: pi.Order.ExternalPaymentRef,
		Amount:             pi.Intent.Amount,
		AmountMinor:        pi.Intent.AmountMinor,
		Currency:           pi.Intent.Currency,
		Receipt:            pi.Intent.Receipt,
	})
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err)
		return
	}

	o, err := h.orderService.VerifyPayment(r.Context(), id, req.OrderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}
