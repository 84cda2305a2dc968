package httppresentation

import (
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	"github.com/shopspring/decimal"
)

type addToCartRequest struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type checkoutRequest struct {
	ShippingAddress string `json:"shippingAddress"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updatePaymentRequest struct {
	PaymentStatus string `json:"paymentStatus"`
}

type paymentRequest struct {
	OrderID string `json:"orderId"`
}

type cartItemResponse struct {
	BookID   string          `json:"bookId"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type cartResponse struct {
	UserID      string             `json:"userId"`
	Items       []cartItemResponse `json:"items"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func newCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, cartItemResponse{BookID: it.BookID, Quantity: it.Quantity, Price: it.Price})
	}
	return cartResponse{
		UserID:      c.UserID,
		Items:       items,
		TotalAmount: c.TotalAmount,
		UpdatedAt:   c.UpdatedAt,
	}
}

type orderItemResponse struct {
	BookID        string          `json:"bookId"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"priceSnapshot"`
}

type orderResponse struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"userId"`
	Items              []orderItemResponse `json:"items"`
	TotalAmount        decimal.Decimal     `json:"totalAmount"`
	Status             string              `json:"status"`
	PaymentStatus      string              `json:"paymentStatus"`
	ShippingAddress    string              `json:"shippingAddress"`
	ExternalPaymentRef string              `json:"externalPaymentRef,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

func newOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{BookID: it.BookID, Quantity: it.Quantity, PriceSnapshot: it.Price})
	}
	return orderResponse{
		ID:                 o.ID,
		UserID:             o.UserID,
		Items:              items,
		TotalAmount:        o.TotalAmount,
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		ShippingAddress:    o.ShippingAddress,
		ExternalPaymentRef: o.ExternalPaymentRef,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func newOrderListResponse(orders []*order.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	return out
}

type paymentIntentResponse struct {
	OrderID            string          `json:"orderId"`
	ExternalPaymentRef string          `json:"externalPaymentRef"`
	Amount             decimal.Decimal `json:"amount"`
	AmountMinor        int64           `json:"amountMinor"`
	Currency           string          `json:"currency"`
	Receipt            string          `json:"receipt"`
}
