package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"github.com/sony/gobreaker/v2"
)

const gatewayPeer = "payment_gateway"

// BreakerSettings configures the circuit around the gateway.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial call.
	OpenTimeout time.Duration
}

// BreakerBridge guards a payment bridge with a circuit breaker and records
// external call metrics.
type BreakerBridge struct {
	next    domain.Bridge
	create  *gobreaker.CircuitBreaker[string]
	verify  *gobreaker.CircuitBreaker[domain.Status]
	log     observability.Logger
	counter observability.Counter
	latency observability.Histogram
}

func NewBreakerBridge(next domain.Bridge, settings BreakerSettings, tel observability.Observability) *BreakerBridge {
	tel = observability.OrNop(tel)
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	log := tel.Logger().With(observability.F("component", gatewayPeer))

	st := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrInvalidIntent) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit_state_changed",
					observability.F("breaker", name),
					observability.F("from", from.String()),
					observability.F("to", to.String()),
				)
			},
		}
	}

	metrics := tel.Metrics()
	return &BreakerBridge{
		next:    next,
		create:  gobreaker.NewCircuitBreaker[string](st("payment.create_intent")),
		verify:  gobreaker.NewCircuitBreaker[domain.Status](st("payment.verify")),
		log:     log,
		counter: metrics.Counter(observability.MExternalRequests),
		latency: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

func (b *BreakerBridge) CreateIntent(ctx context.Context, intent domain.Intent) (string, error) {
	start := time.Now()
	ref, err := b.create.Execute(func() (string, error) {
		return b.next.CreateIntent(ctx, intent)
	})
	b.observe("create_intent", start, err)
	return ref, translate(err)
}

func (b *BreakerBridge) Verify(ctx context.Context, orderID, externalRef string) (domain.Status, error) {
	start := time.Now()
	st, err := b.verify.Execute(func() (domain.Status, error) {
		return b.next.Verify(ctx, orderID, externalRef)
	})
	b.observe("verify", start, err)
	return st, translate(err)
}

func (b *BreakerBridge) observe(endpoint string, start time.Time, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	b.counter.Add(1,
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	b.latency.Observe(time.Since(start).Seconds(),
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", endpoint),
	)
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}
	return err
}
