package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	appCart "github.com/Zhima-Mochi/bookstore-orders/internal/application/cart"
	appOrder "github.com/Zhima-Mochi/bookstore-orders/internal/application/order"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability/logctx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	orderService *appOrder.Service
	cartService  *appCart.Service
	log          observability.Logger
	tel          observability.Observability
	timeout      time.Duration
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	maxBodyBytes         = 1 << 20
	defaultTimeout       = 15 * time.Second
)

func NewHandler(orderSvc *appOrder.Service, cartSvc *appCart.Service, tel observability.Observability, timeout time.Duration) *Handler {
	tel = observability.OrNop(tel)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{
		orderService: orderSvc,
		cartService:  cartSvc,
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:          tel,
		timeout:      timeout,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(h.timeout))

	// Each route: Trace → ObservabilityMiddleware (request logger + metrics) → Access log → Handler
	h.handle(r, http.MethodGet, "/health", h.handleHealth)

	h.handle(r, http.MethodGet, "/cart", h.handleGetCart)
	h.handle(r, http.MethodPost, "/cart", h.handleAddToCart)
	h.handle(r, http.MethodPut, "/cart/{bookId}", h.handleUpdateCartItem)
	h.handle(r, http.MethodDelete, "/cart/{bookId}", h.handleRemoveCartItem)
	h.handle(r, http.MethodDelete, "/cart", h.handleClearCart)

	h.handle(r, http.MethodPost, "/orders", h.handleCheckout)
	h.handle(r, http.MethodGet, "/orders", h.handleListOrders)
	h.handle(r, http.MethodGet, "/orders/mine", h.handleListMyOrders)
	h.handle(r, http.MethodGet, "/orders/{id}", h.handleGetOrder)
	h.handle(r, http.MethodPut, "/orders/{id}/status", h.handleUpdateStatus)
	h.handle(r, http.MethodPut, "/orders/{id}/payment", h.handleUpdatePayment)
	h.handle(r, http.MethodPut, "/orders/{id}/cancel", h.handleCancel)

	h.handle(r, http.MethodPost, "/payment/create", h.handleCreatePayment)
	h.handle(r, http.MethodPost, "/payment/verify", h.handleVerifyPayment)

	return r
}

func (h *Handler) handle(r chi.Router, method, pattern string, handler http.HandlerFunc) {
	route := method + " " + pattern
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerUserID) },
			h.tel,
		)(
			h.withAccessLog(handler),
		),
	)
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// stable route template for low-cardinality labels
		wrapped.ServeHTTP(w, req.WithContext(contextWithRoute(req.Context(), route)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	tracer := otel.Tracer("bookstore.http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		ctxWithSpan, span := tracer.Start(parentCtx,
			route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

// callerIdentity reads the identity injected by the authenticating gateway.
func callerIdentity(r *http.Request) (identity.Identity, error) {
	return identity.New(r.Header.Get(headerUserID), r.Header.Get(headerUserRole))
}

var errEmptyBody = errors.New("request body is required")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
