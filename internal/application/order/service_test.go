package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/application"
	appcart "github.com/Zhima-Mochi/bookstore-orders/internal/application/cart"
	appinventory "github.com/Zhima-Mochi/bookstore-orders/internal/application/inventory"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/identity"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/bookstore-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/memory"
	infrapayment "github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = identity.Identity{UserID: "alice", Role: identity.RoleUser}
	bob   = identity.Identity{UserID: "bob", Role: identity.RoleUser}
	admin = identity.Identity{UserID: "root", Role: identity.RoleAdmin}
)

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) NewID() string { return fmt.Sprintf("order-%03d", g.n.Add(1)) }

type capturePublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *capturePublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) named(name string) []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domoutbox.Event
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// failingOrders fails Insert with insertErr.
type failingOrders struct {
	*memory.OrderRepository
	insertErr error
}

func (r *failingOrders) Insert(ctx context.Context, o *domain.Order) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	return r.OrderRepository.Insert(ctx, o)
}

// lostAckOrders stores the first insert but reports a failure, as a timed-out write would.
type lostAckOrders struct {
	*memory.OrderRepository
	once sync.Once
}

func (r *lostAckOrders) Insert(ctx context.Context, o *domain.Order) error {
	var lost bool
	r.once.Do(func() { lost = true })
	err := r.OrderRepository.Insert(ctx, o)
	if lost && err == nil {
		return errors.New("write acknowledgement lost")
	}
	return err
}

type brokenClearer struct{ calls atomic.Int32 }

func (c *brokenClearer) RemoveOrdered(context.Context, identity.Identity, []inventory.Line) (*cart.Cart, error) {
	c.calls.Add(1)
	return nil, errors.New("cart store unavailable")
}

// stuckLedger reserves through the real ledger but cannot release.
type stuckLedger struct{ *appinventory.Ledger }

func (stuckLedger) Release(context.Context, []inventory.Line) error {
	return errors.New("ledger unavailable")
}

// gatedLedger holds every Reserve until callers have all arrived, then runs after.
type gatedLedger struct {
	*appinventory.Ledger
	arrive *sync.WaitGroup
	after  func()
}

func (l *gatedLedger) Reserve(ctx context.Context, lines []inventory.Line) error {
	if l.arrive != nil {
		l.arrive.Done()
		l.arrive.Wait()
	}
	err := l.Ledger.Reserve(ctx, lines)
	if err == nil && l.after != nil {
		l.after()
	}
	return err
}

type countingBridge struct {
	payment.Bridge
	creates  atomic.Int32
	verifies atomic.Int32
	fail     error
	status   payment.Status
}

func (b *countingBridge) CreateIntent(ctx context.Context, in payment.Intent) (string, error) {
	b.creates.Add(1)
	if b.fail != nil {
		return "", b.fail
	}
	return b.Bridge.CreateIntent(ctx, in)
}

func (b *countingBridge) Verify(ctx context.Context, orderID, ref string) (payment.Status, error) {
	b.verifies.Add(1)
	if b.fail != nil {
		return "", b.fail
	}
	if b.status != "" {
		return b.status, nil
	}
	return b.Bridge.Verify(ctx, orderID, ref)
}

type fixture struct {
	svc       *Service
	books     *memory.BookRepository
	carts     *memory.CartRepository
	orders    *memory.OrderRepository
	cartStore *appcart.Service
	ledger    *appinventory.Ledger
	bridge    *countingBridge
	events    *capturePublisher
}

func setup(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	books := memory.NewBookRepository()
	for id, b := range map[string]struct {
		price string
		stock int
	}{
		"a": {"10", 5},
		"b": {"2.50", 1},
	} {
		book, err := inventory.NewBook(id, decimal.RequireFromString(b.price), b.stock)
		require.NoError(t, err)
		require.NoError(t, books.Save(context.Background(), book))
	}

	policy := application.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	ledger := appinventory.NewLedger(books, policy, nil)
	carts := memory.NewCartRepository()
	cartStore := appcart.NewService(carts, nil, ledger, policy, nil)
	orders := memory.NewOrderRepository()
	bridge := &countingBridge{Bridge: infrapayment.NewMockGateway(1)}
	events := &capturePublisher{}

	deps := Deps{
		Orders:    orders,
		Carts:     carts,
		CartStore: cartStore,
		Ledger:    ledger,
		Bridge:    bridge,
		IDs:       &seqIDs{},
		Publisher: events,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &fixture{
		svc:       NewService(deps, Config{Retry: policy, CartClearAttempts: 2, Currency: "INR"}, nil),
		books:     books,
		carts:     carts,
		orders:    orders,
		cartStore: cartStore,
		ledger:    ledger,
		bridge:    bridge,
		events:    events,
	}
}

func (f *fixture) stock(t *testing.T, bookID string) int {
	t.Helper()
	b, err := f.books.Get(context.Background(), bookID)
	require.NoError(t, err)
	return b.Stock
}

func (f *fixture) fill(t *testing.T, who identity.Identity, lines map[string]int) {
	t.Helper()
	for bookID, qty := range lines {
		_, err := f.cartStore.AddItem(context.Background(), who, bookID, qty)
		require.NoError(t, err)
	}
}

func (f *fixture) checkout(t *testing.T, who identity.Identity, lines map[string]int) *domain.Order {
	t.Helper()
	f.fill(t, who, lines)
	o, err := f.svc.Checkout(context.Background(), who, "221B Baker Street")
	require.NoError(t, err)
	return o
}

func TestCheckout_CreatesPendingOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	o := f.checkout(t, alice, map[string]int{"a": 2, "b": 1})

	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, payment.StatusPending, o.PaymentStatus)
	assert.Equal(t, "alice", o.UserID)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("22.50")))
	assert.Equal(t, 3, f.stock(t, "a"))
	assert.Equal(t, 0, f.stock(t, "b"))

	c, err := f.cartStore.Get(ctx, alice)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	assert.Len(t, f.events.named("order.created"), 1)
	assert.Empty(t, f.events.named("cart.clear_requested"))
}

func TestCheckout_RejectsEmptyCartAndBlankAddress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, alice, "somewhere")
	assert.ErrorIs(t, err, cart.ErrEmptyCart)

	f.fill(t, alice, map[string]int{"a": 1})
	_, err = f.svc.Checkout(ctx, alice, "   ")
	assert.ErrorIs(t, err, application.ErrInvalidInput)

	_, _ = f.cartStore.Clear(ctx, alice)
	_, err = f.svc.Checkout(ctx, alice, "somewhere")
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
	assert.Equal(t, 5, f.stock(t, "a"))
}

func TestCheckout_InsufficientStockNamesTheLine(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fill(t, alice, map[string]int{"a": 4, "b": 1})

	book, err := f.books.Get(ctx, "a")
	require.NoError(t, err)
	book.Stock = 2
	require.NoError(t, f.books.Save(ctx, book))

	_, err = f.svc.Checkout(ctx, alice, "somewhere")
	var se *inventory.StockError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, "a", se.BookID)
	assert.Equal(t, 4, se.Requested)
	assert.Equal(t, 2, se.Available)

	assert.Equal(t, 2, f.stock(t, "a"))
	assert.Equal(t, 1, f.stock(t, "b"))
	orders, err := f.orders.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	c, err := f.cartStore.Get(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

func TestCheckout_SnapshotsPrices(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})

	book, err := f.books.Get(ctx, "a")
	require.NoError(t, err)
	book.Price = decimal.NewFromInt(99)
	require.NoError(t, f.books.Save(ctx, book))

	got, err := f.svc.Get(ctx, alice, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(10)))
}

func TestCheckout_LastUnitSoldOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const buyers = 10
	users := make([]identity.Identity, buyers)
	for i := range users {
		users[i] = identity.Identity{UserID: fmt.Sprintf("user-%d", i), Role: identity.RoleUser}
		f.fill(t, users[i], map[string]int{"b": 1})
	}

	var wg sync.WaitGroup
	var wins atomic.Int32
	errs := make(chan error, buyers)
	for _, u := range users {
		wg.Add(1)
		go func(u identity.Identity) {
			defer wg.Done()
			if _, err := f.svc.Checkout(ctx, u, "somewhere"); err != nil {
				errs <- err
				return
			}
			wins.Add(1)
		}(u)
	}
	wg.Wait()
	close(errs)

	assert.EqualValues(t, 1, wins.Load())
	for err := range errs {
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	}
	assert.Equal(t, 0, f.stock(t, "b"))
}

func TestCheckout_OrderWriteFailureReleasesStock(t *testing.T) {
	f := setup(t, func(d *Deps) {
		d.Orders = &failingOrders{OrderRepository: memory.NewOrderRepository(), insertErr: errors.New("disk full")}
	})
	ctx := context.Background()
	f.fill(t, alice, map[string]int{"a": 2})

	_, err := f.svc.Checkout(ctx, alice, "somewhere")
	require.ErrorIs(t, err, application.ErrRepository)

	assert.Equal(t, 5, f.stock(t, "a"))
	c, err := f.cartStore.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Quantity("a"))
	assert.Empty(t, f.events.named("order.created"))
	assert.Empty(t, f.events.named("inventory.release_requested"))
}

func TestCheckout_UnreleasableCompensationIsHandedOff(t *testing.T) {
	f := setup(t, func(d *Deps) {
		d.Orders = &failingOrders{OrderRepository: memory.NewOrderRepository(), insertErr: errors.New("disk full")}
		d.Ledger = stuckLedger{Ledger: d.Ledger.(*appinventory.Ledger)}
	})
	f.fill(t, alice, map[string]int{"a": 2})

	_, err := f.svc.Checkout(context.Background(), alice, "somewhere")
	require.ErrorIs(t, err, application.ErrRepository)

	assert.Equal(t, 3, f.stock(t, "a"))
	pending := f.events.named("inventory.release_requested")
	require.Len(t, pending, 1)
	evt := pending[0].(inventory.ReleaseRequestedEvent)
	assert.Equal(t, inventory.ReasonCheckoutCompensated, evt.Reason)
	assert.Equal(t, []inventory.Line{{BookID: "a", Quantity: 2}}, evt.Lines)
}

func TestCheckout_InsertRetryRecognisesOwnOrder(t *testing.T) {
	repo := &lostAckOrders{OrderRepository: memory.NewOrderRepository()}
	f := setup(t, func(d *Deps) { d.Orders = repo })

	o := f.checkout(t, alice, map[string]int{"a": 1})

	orders, err := repo.List(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
	assert.Equal(t, 4, f.stock(t, "a"))
}

func TestCheckout_CartClearFailureDoesNotFailCheckout(t *testing.T) {
	clearer := &brokenClearer{}
	f := setup(t, func(d *Deps) { d.CartStore = clearer })

	o := f.checkout(t, alice, map[string]int{"a": 1})

	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, 4, f.stock(t, "a"))
	assert.EqualValues(t, 2, clearer.calls.Load())

	deferred := f.events.named("cart.clear_requested")
	require.Len(t, deferred, 1)
	evt := deferred[0].(cart.ClearRequestedEvent)
	assert.Equal(t, "alice", evt.UserID)
	assert.Equal(t, o.ID, evt.OrderID)
	assert.Equal(t, []inventory.Line{{BookID: "a", Quantity: 1}}, evt.Lines)
	assert.Len(t, f.events.named("order.created"), 1)
}

func TestCheckout_SameCartOrderedOnce(t *testing.T) {
	gate := &gatedLedger{arrive: &sync.WaitGroup{}}
	gate.arrive.Add(2)
	f := setup(t, func(d *Deps) {
		gate.Ledger = d.Ledger.(*appinventory.Ledger)
		d.Ledger = gate
	})
	ctx := context.Background()
	f.fill(t, alice, map[string]int{"a": 2})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Checkout(ctx, alice, "somewhere")
		}(i)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], domain.ErrDuplicateCheckout)
	assert.ErrorIs(t, failed[0], domain.ErrConflict)

	orders, err := f.orders.List(ctx, domain.ListFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, 3, f.stock(t, "a"))
	assert.Len(t, f.events.named("order.created"), 1)

	c, err := f.cartStore.Get(ctx, alice)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestCheckout_NewCartVersionCanBeOrderedAgain(t *testing.T) {
	f := setup(t)
	first := f.checkout(t, alice, map[string]int{"a": 1})
	second := f.checkout(t, alice, map[string]int{"a": 1})

	assert.NotEqual(t, first.IdempotencyKey, second.IdempotencyKey)
	assert.Equal(t, 3, f.stock(t, "a"))
}

func TestCheckout_KeepsItemsAddedWhileRunning(t *testing.T) {
	gate := &gatedLedger{}
	f := setup(t, func(d *Deps) {
		gate.Ledger = d.Ledger.(*appinventory.Ledger)
		d.Ledger = gate
	})
	ctx := context.Background()
	f.fill(t, alice, map[string]int{"a": 2})

	var once sync.Once
	gate.after = func() {
		once.Do(func() {
			_, err := f.cartStore.AddItem(ctx, alice, "b", 1)
			assert.NoError(t, err)
		})
	}

	o, err := f.svc.Checkout(ctx, alice, "somewhere")
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "a", o.Items[0].BookID)

	c, err := f.cartStore.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Quantity("a"))
	assert.Equal(t, 1, c.Quantity("b"))
	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("2.50")))
}

func TestCheckout_StockConservedAcrossCheckoutAndCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.checkout(t, alice, map[string]int{"a": 2})
	second := f.checkout(t, bob, map[string]int{"a": 1, "b": 1})
	assert.Equal(t, 2, f.stock(t, "a"))

	_, err := f.svc.Cancel(ctx, alice, first.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, bob, second.ID)
	require.NoError(t, err)

	assert.Equal(t, 5, f.stock(t, "a"))
	assert.Equal(t, 1, f.stock(t, "b"))
}

func TestCancel_ReleasesStockExactlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 3})

	cancelled, err := f.svc.Cancel(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.stock(t, "a"))

	_, err = f.svc.Cancel(ctx, alice, o.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 5, f.stock(t, "a"))
	assert.Len(t, f.events.named("order.cancelled"), 1)
}

func TestCancel_ConcurrentCallsReleaseOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 2})

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Cancel(ctx, alice, o.ID); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.Equal(t, 5, f.stock(t, "a"))
}

func TestCancel_Ownership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})

	_, err := f.svc.Cancel(ctx, bob, o.ID)
	assert.ErrorIs(t, err, identity.ErrForbidden)
	assert.Equal(t, 4, f.stock(t, "a"))

	_, err = f.svc.Cancel(ctx, alice, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cancelled, err := f.svc.Cancel(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	evt := f.events.named("order.cancelled")[0].(domain.OrderCancelledEvent)
	assert.Equal(t, "root", evt.CancelledBy)
}

func TestCancel_PaidOrderIsRefused(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})

	_, err := f.svc.UpdatePaymentStatus(ctx, admin, o.ID, "completed")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, alice, o.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentAlreadyCompleted)
	assert.Equal(t, 4, f.stock(t, "a"))

	got, err := f.svc.Get(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestCancel_ShippedOrderIsRefused(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})

	_, err := f.svc.UpdateStatus(ctx, admin, o.ID, "shipped")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, alice, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 4, f.stock(t, "a"))
}

func TestCancel_ReleaseFailureIsHandedToWorker(t *testing.T) {
	f := setup(t, func(d *Deps) {
		d.Ledger = stuckLedger{Ledger: d.Ledger.(*appinventory.Ledger)}
	})
	o := f.checkout(t, alice, map[string]int{"a": 2})

	cancelled, err := f.svc.Cancel(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	pending := f.events.named("inventory.release_requested")
	require.Len(t, pending, 1)
	evt := pending[0].(inventory.ReleaseRequestedEvent)
	assert.Equal(t, o.ID, evt.OrderID)
	assert.Equal(t, inventory.ReasonOrderCancelled, evt.Reason)

	// the worker's retry path restores the stock
	require.NoError(t, f.ledger.Release(context.Background(), evt.Lines))
	assert.Equal(t, 5, f.stock(t, "a"))
}

func TestUpdateStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})

	_, err := f.svc.UpdateStatus(ctx, alice, o.ID, "processing")
	assert.ErrorIs(t, err, identity.ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, "teleported")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(ctx, admin, "missing", "processing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	updated, err := f.svc.UpdateStatus(ctx, admin, o.ID, "processing")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, updated.Status)

	changes := f.events.named("order.status_changed")
	require.Len(t, changes, 1)
	evt := changes[0].(domain.OrderStatusChangedEvent)
	assert.Equal(t, domain.StatusPending, evt.From)
	assert.Equal(t, domain.StatusProcessing, evt.To)

	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, "processing")
	require.NoError(t, err)
	assert.Len(t, f.events.named("order.status_changed"), 1)
}

func TestUpdateStatus_ToCancelledReleasesStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 2, "b": 1})

	cancelled, err := f.svc.UpdateStatus(ctx, admin, o.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.stock(t, "a"))
	assert.Equal(t, 1, f.stock(t, "b"))

	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, "processing")
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	assert.Equal(t, 5, f.stock(t, "a"))
}

func TestUpdatePaymentStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})

	_, err := f.svc.UpdatePaymentStatus(ctx, alice, o.ID, "completed")
	assert.ErrorIs(t, err, identity.ErrForbidden)

	_, err = f.svc.UpdatePaymentStatus(ctx, admin, o.ID, "refunded")
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentStatus)

	paid, err := f.svc.UpdatePaymentStatus(ctx, admin, o.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, paid.PaymentStatus)

	_, err = f.svc.UpdatePaymentStatus(ctx, admin, o.ID, "completed")
	require.NoError(t, err)
	assert.Len(t, f.events.named("order.paid"), 1)
}

func TestUpdatePaymentStatus_CancelledOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})
	_, err := f.svc.Cancel(ctx, alice, o.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdatePaymentStatus(ctx, admin, o.ID, "completed")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestGetAndList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	first := f.checkout(t, alice, map[string]int{"a": 1})
	time.Sleep(time.Millisecond)
	second := f.checkout(t, alice, map[string]int{"a": 1})
	theirs := f.checkout(t, bob, map[string]int{"b": 1})

	got, err := f.svc.Get(ctx, alice, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = f.svc.Get(ctx, alice, theirs.ID)
	assert.ErrorIs(t, err, identity.ErrForbidden)
	_, err = f.svc.Get(ctx, admin, theirs.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, alice, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mine, err := f.svc.ListMine(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)

	_, err = f.svc.ListAll(ctx, alice)
	assert.ErrorIs(t, err, identity.ErrForbidden)
	all, err := f.svc.ListAll(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCreatePaymentIntent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 2, "b": 1})

	_, err := f.svc.CreatePaymentIntent(ctx, bob, o.ID)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	pi, err := f.svc.CreatePaymentIntent(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Contains(t, pi.Order.ExternalPaymentRef, "order_mock")
	assert.EqualValues(t, 2250, pi.Intent.AmountMinor)
	assert.Equal(t, "INR", pi.Intent.Currency)
	assert.Equal(t, "order_rcptid_"+o.ID, pi.Intent.Receipt)

	stored, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, pi.Order.ExternalPaymentRef, stored.ExternalPaymentRef)
	assert.Equal(t, payment.StatusPending, stored.PaymentStatus)
}

func TestCreatePaymentIntent_RefusesSettledOrders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	paid := f.checkout(t, alice, map[string]int{"a": 1})
	_, err := f.svc.UpdatePaymentStatus(ctx, admin, paid.ID, "completed")
	require.NoError(t, err)

	_, err = f.svc.CreatePaymentIntent(ctx, alice, paid.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentAlreadyCompleted)

	cancelled := f.checkout(t, alice, map[string]int{"a": 1})
	_, err = f.svc.Cancel(ctx, alice, cancelled.ID)
	require.NoError(t, err)
	_, err = f.svc.CreatePaymentIntent(ctx, alice, cancelled.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)

	assert.Zero(t, f.bridge.creates.Load())
}

func TestCreatePaymentIntent_GatewayFailureLeavesOrderUnchanged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})
	before, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)

	f.bridge.fail = errors.New("connection refused")
	_, err = f.svc.CreatePaymentIntent(ctx, alice, o.ID)
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)

	after, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Empty(t, after.ExternalPaymentRef)
}

func TestVerifyPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})
	_, err := f.svc.CreatePaymentIntent(ctx, alice, o.ID)
	require.NoError(t, err)

	f.bridge.status = payment.StatusPending
	still, err := f.svc.VerifyPayment(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, still.PaymentStatus)

	f.bridge.status = ""
	paid, err := f.svc.VerifyPayment(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, paid.PaymentStatus)
	assert.Len(t, f.events.named("order.paid"), 1)

	calls := f.bridge.verifies.Load()
	again, err := f.svc.VerifyPayment(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, again.PaymentStatus)
	assert.Equal(t, calls, f.bridge.verifies.Load())
	assert.Len(t, f.events.named("order.paid"), 1)
}

func TestVerifyPayment_FailuresLeaveOrderUnpaid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.checkout(t, alice, map[string]int{"a": 1})

	f.bridge.fail = errors.New("timeout")
	_, err := f.svc.VerifyPayment(ctx, alice, o.ID)
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)

	f.bridge.fail = nil
	f.bridge.status = payment.StatusFailed
	failed, err := f.svc.VerifyPayment(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, failed.PaymentStatus)
	assert.Empty(t, f.events.named("order.paid"))

	_, err = f.svc.Cancel(ctx, alice, o.ID)
	require.NoError(t, err)
	_, err = f.svc.VerifyPayment(ctx, alice, o.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
}
