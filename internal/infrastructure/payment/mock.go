package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/payment"
)

// MockGateway stands in for the payment provider. References look like the provider's
// order ids ("order_mock<unix-nanos>"). The first Verify of a known reference settles it
// as completed with the configured success rate and as failed otherwise; later calls
// report the same outcome. Unknown references, or a reference created for another
// order, stay pending. The default rate is 1.
type MockGateway struct {
	mu          sync.Mutex
	successRate float64
	intents     map[string]*mockIntent
	now         func() time.Time
}

type mockIntent struct {
	intent  domain.Intent
	outcome domain.Status
}

func NewMockGateway(successRate float64) *MockGateway {
	g := &MockGateway{
		intents: make(map[string]*mockIntent),
		now:     time.Now,
	}
	g.SetSuccessRate(successRate)
	return g
}

// SetSuccessRate clamps rate to [0, 1].
func (g *MockGateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case rate < 0:
		rate = 0
	case rate > 1:
		rate = 1
	}
	g.successRate = rate
}

func (g *MockGateway) CreateIntent(ctx context.Context, intent domain.Intent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if intent.OrderID == "" {
		return "", domain.ErrInvalidIntent
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	ref := fmt.Sprintf("order_mock%d", g.now().UnixNano())
	// two intents within the same nanosecond
	for {
		if _, taken := g.intents[ref]; !taken {
			break
		}
		ref += "0"
	}
	g.intents[ref] = &mockIntent{intent: intent}
	return ref, nil
}

func (g *MockGateway) Verify(ctx context.Context, orderID, externalRef string) (domain.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.intents[externalRef]
	if !ok || rec.intent.OrderID != orderID {
		return domain.StatusPending, nil
	}
	if rec.outcome == "" {
		rec.outcome = domain.StatusFailed
		if rand.Float64() < g.successRate {
			rec.outcome = domain.StatusCompleted
		}
	}
	return rec.outcome, nil
}
