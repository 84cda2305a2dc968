package httppresentation

import (
	"errors"
	"net/http"

	"github.com/Zhima-Mochi/bookstore-orders/internal/application"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/payment"
)

const (
	codeInvalidInput            = "InvalidInput"
	codeNotFound                = "NotFound"
	codeEmptyCart               = "EmptyCart"
	codeInsufficientStock       = "InsufficientStock"
	codeConflict                = "Conflict"
	codeForbidden               = "Forbidden"
	codeUnauthenticated         = "Unauthenticated"
	codeInvalidState            = "InvalidState"
	codeInvalidStatus           = "InvalidStatus"
	codePaymentAlreadyCompleted = "PaymentAlreadyCompleted"
	codePaymentUnavailable      = "PaymentUnavailable"
	codeInternal                = "InternalError"
)

type errorResponse struct {
	Error   string             `json:"error"`
	Code    string             `json:"code"`
	Details *stockErrorDetails `json:"details,omitempty"`
}

type stockErrorDetails struct {
	BookID    string `json:"bookId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var stockErr *inventory.StockError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: err.Error(),
			Code:  codeInsufficientStock,
			Details: &stockErrorDetails{
				BookID:    stockErr.BookID,
				Requested: stockErr.Requested,
				Available: stockErr.Available,
			},
		})
	case errors.Is(err, identity.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, err)
	case errors.Is(err, identity.ErrForbidden):
		writeError(w, http.StatusForbidden, codeForbidden, err)
	case errors.Is(err, inventory.ErrBookNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err)
	case errors.Is(err, cart.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, codeEmptyCart, err)
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, codeInsufficientStock, err)
	case errors.Is(err, inventory.ErrConflict),
		errors.Is(err, cart.ErrConflict),
		errors.Is(err, order.ErrConflict):
		writeError(w, http.StatusConflict, codeConflict, err)
	case errors.Is(err, order.ErrPaymentAlreadyCompleted):
		writeError(w, http.StatusBadRequest, codePaymentAlreadyCompleted, err)
	case errors.Is(err, order.ErrInvalidState):
		writeError(w, http.StatusBadRequest, codeInvalidState, err)
	case errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidPaymentStatus):
		writeError(w, http.StatusBadRequest, codeInvalidStatus, err)
	case errors.Is(err, application.ErrInvalidInput),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidBook),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidBook),
		errors.Is(err, order.ErrInvalidAddress),
		errors.Is(err, order.ErrInvalidItems),
		errors.Is(err, payment.ErrInvalidIntent):
		writeError(w, http.StatusBadRequest, codeInvalidInput, err)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, codePaymentUnavailable, err)
	default:
		// storage details stay in the logs
		writeError(w, http.StatusInternalServerError, codeInternal, errors.New("internal error"))
	}
}
