package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
)

var (
	containerOnce sync.Once
	container     *mongodb.MongoDBContainer
	containerURI  string
	containerErr  error
	dbCounter     atomic.Int32
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		_ = container.Terminate(context.Background())
	}
	os.Exit(code)
}

// withTestCommands lets tests arm server fail points.
var withTestCommands = testcontainers.CustomizeRequestOption(func(req *testcontainers.GenericContainerRequest) error {
	req.Cmd = append(req.Cmd, "--setParameter", "enableTestCommands=1")
	return nil
})

// failNextCommits makes the next n commitTransaction commands fail with an unknown outcome.
func failNextCommits(t *testing.T, db *driver.Database, n int) {
	t.Helper()
	admin := db.Client().Database("admin")
	err := admin.RunCommand(context.Background(), bson.D{
		{Key: "configureFailPoint", Value: "failCommand"},
		{Key: "mode", Value: bson.D{{Key: "times", Value: n}}},
		{Key: "data", Value: bson.D{
			{Key: "failCommands", Value: bson.A{"commitTransaction"}},
			{Key: "errorCode", Value: 91},
			{Key: "errorLabels", Value: bson.A{"UnknownTransactionCommitResult"}},
		}},
	}).Err()
	if err != nil {
		t.Skipf("failCommand fail point unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = admin.RunCommand(context.Background(), bson.D{
			{Key: "configureFailPoint", Value: "failCommand"},
			{Key: "mode", Value: "off"},
		}).Err()
	})
}

// testDatabase returns a fresh database on a shared single-node replica set.
func testDatabase(t *testing.T) *driver.Database {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	containerOnce.Do(func() {
		container, containerErr = mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"), withTestCommands)
		if containerErr != nil {
			return
		}
		containerURI, containerErr = container.ConnectionString(ctx)
	})
	require.NoError(t, containerErr)

	uri := containerURI
	if !strings.Contains(uri, "?") {
		uri = strings.TrimSuffix(uri, "/") + "/?directConnection=true"
	}
	db, err := Connect(ctx, uri, fmt.Sprintf("bookstore_test_%d", dbCounter.Add(1)), 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, EnsureIndexes(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Client().Disconnect(context.Background())
	})
	return db
}

func seedBook(t *testing.T, repo *BookRepository, id, price string, stock int) {
	t.Helper()
	b, err := inventory.NewBook(id, decimal.RequireFromString(price), stock)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), b))
}

func TestBookRepositoryRoundTripsPrice(t *testing.T) {
	repo := NewBookRepository(testDatabase(t))
	seedBook(t, repo, "b1", "19.99", 4)

	got, err := repo.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, 4, got.Stock)

	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, inventory.ErrBookNotFound)
}

func TestBookRepositoryDeductAllIsAllOrNothing(t *testing.T) {
	repo := NewBookRepository(testDatabase(t))
	ctx := context.Background()
	seedBook(t, repo, "b1", "10", 5)
	seedBook(t, repo, "b2", "10", 1)

	err := repo.DeductAll(ctx, []inventory.Line{{BookID: "b1", Quantity: 2}, {BookID: "b2", Quantity: 3}})
	var se *inventory.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "b2", se.BookID)
	assert.Equal(t, 1, se.Available)

	b1, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 5, b1.Stock)

	require.NoError(t, repo.DeductAll(ctx, []inventory.Line{{BookID: "b1", Quantity: 2}, {BookID: "b2", Quantity: 1}}))
	b1, _ = repo.Get(ctx, "b1")
	b2, _ := repo.Get(ctx, "b2")
	assert.Equal(t, 3, b1.Stock)
	assert.Equal(t, 0, b2.Stock)

	err = repo.DeductAll(ctx, []inventory.Line{{BookID: "nope", Quantity: 1}})
	assert.ErrorIs(t, err, inventory.ErrBookNotFound)
}

func TestBookRepositoryRestockAll(t *testing.T) {
	repo := NewBookRepository(testDatabase(t))
	ctx := context.Background()
	seedBook(t, repo, "b1", "10", 0)

	err := repo.RestockAll(ctx, []inventory.Line{{BookID: "b1", Quantity: 2}, {BookID: "ghost", Quantity: 1}})
	assert.ErrorIs(t, err, inventory.ErrBookNotFound)
	b1, _ := repo.Get(ctx, "b1")
	assert.Equal(t, 0, b1.Stock)

	require.NoError(t, repo.RestockAll(ctx, []inventory.Line{{BookID: "b1", Quantity: 2}}))
	b1, _ = repo.Get(ctx, "b1")
	assert.Equal(t, 2, b1.Stock)
}

func TestBookRepositoryConcurrentDeductNeverOversells(t *testing.T) {
	repo := NewBookRepository(testDatabase(t))
	ctx := context.Background()
	seedBook(t, repo, "b1", "10", 3)

	var wg sync.WaitGroup
	var sold atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.DeductAll(ctx, []inventory.Line{{BookID: "b1", Quantity: 1}}) == nil {
				sold.Add(1)
			}
		}()
	}
	wg.Wait()

	b1, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 3-int(sold.Load()), b1.Stock)
	assert.GreaterOrEqual(t, b1.Stock, 0)
	assert.LessOrEqual(t, sold.Load(), int32(3))
}

func TestBookRepositoryRetriesCommitWithUnknownOutcome(t *testing.T) {
	db := testDatabase(t)
	repo := NewBookRepository(db)
	seedBook(t, repo, "b1", "5.00", 3)
	ctx := context.Background()

	failNextCommits(t, db, 2)
	require.NoError(t, repo.DeductAll(ctx, []inventory.Line{{BookID: "b1", Quantity: 2}}))

	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	failNextCommits(t, db, 1)
	require.NoError(t, repo.RestockAll(ctx, []inventory.Line{{BookID: "b1", Quantity: 2}}))
	got, err = repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
}

func TestCartRepositoryVersioning(t *testing.T) {
	repo := NewCartRepository(testDatabase(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, cart.ErrNotFound)

	c := cart.New("u1")
	require.NoError(t, c.Add("b1", 2, decimal.RequireFromString("4.50")))
	require.NoError(t, repo.Save(ctx, c))
	assert.EqualValues(t, 1, c.Version)

	dup := cart.New("u1")
	assert.ErrorIs(t, repo.Save(ctx, dup), cart.ErrConflict)

	stale, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stale.TotalAmount.Equal(decimal.RequireFromString("9")))

	require.NoError(t, c.Add("b2", 1, decimal.RequireFromString("1")))
	require.NoError(t, repo.Save(ctx, c))
	assert.EqualValues(t, 2, c.Version)

	stale.Clear()
	assert.ErrorIs(t, repo.Save(ctx, stale), cart.ErrConflict)
}

func TestOrderRepositoryLifecycle(t *testing.T) {
	repo := NewOrderRepository(testDatabase(t))
	ctx := context.Background()

	items := []order.Item{{BookID: "b1", Quantity: 2, Price: decimal.RequireFromString("12.25")}}
	first, err := order.New("o1", "u1", "1 Main St", items)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, first))
	assert.EqualValues(t, 1, first.Version)
	assert.ErrorIs(t, repo.Insert(ctx, first), order.ErrConflict)

	second, err := order.New("o2", "u2", "2 Main St", items)
	require.NoError(t, err)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Insert(ctx, second))

	got, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("24.5")))
	assert.Equal(t, order.StatusPending, got.Status)

	require.NoError(t, got.Cancel())
	require.NoError(t, repo.Update(ctx, got))
	assert.EqualValues(t, 2, got.Version)
	assert.ErrorIs(t, repo.Update(ctx, first), order.ErrConflict)

	ghost := first.Clone()
	ghost.ID = "ghost"
	assert.ErrorIs(t, repo.Update(ctx, ghost), order.ErrNotFound)

	all, err := repo.List(ctx, order.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "o2", all[0].ID)

	mine, err := repo.List(ctx, order.ListFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, order.StatusCancelled, mine[0].Status)
}

func TestOrderRepositoryRejectsDuplicateCheckout(t *testing.T) {
	repo := NewOrderRepository(testDatabase(t))
	ctx := context.Background()
	items := []order.Item{{BookID: "b1", Quantity: 1, Price: decimal.RequireFromString("3")}}

	first, err := order.New("o1", "u1", "1 Main St", items)
	require.NoError(t, err)
	first.IdempotencyKey = order.CheckoutKey("u1", 7)
	require.NoError(t, repo.Insert(ctx, first))

	dup, err := order.New("o2", "u1", "1 Main St", items)
	require.NoError(t, err)
	dup.IdempotencyKey = order.CheckoutKey("u1", 7)
	err = repo.Insert(ctx, dup)
	assert.ErrorIs(t, err, order.ErrDuplicateCheckout)
	_, err = repo.Get(ctx, "o2")
	assert.ErrorIs(t, err, order.ErrNotFound)

	err = repo.Insert(ctx, first)
	assert.ErrorIs(t, err, order.ErrConflict)
	assert.NotErrorIs(t, err, order.ErrDuplicateCheckout)

	got, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "u1:7", got.IdempotencyKey)

	// orders without a key are not indexed
	for _, id := range []string{"o3", "o4"} {
		o, err := order.New(id, "u1", "1 Main St", items)
		require.NoError(t, err)
		require.NoError(t, repo.Insert(ctx, o))
	}
}

func TestCartRepositoryTotalFollowsItems(t *testing.T) {
	db := testDatabase(t)
	repo := NewCartRepository(db)
	ctx := context.Background()

	price, err := toDecimal128(decimal.RequireFromString("4.50"))
	require.NoError(t, err)
	wrong, err := toDecimal128(decimal.RequireFromString("999"))
	require.NoError(t, err)
	_, err = db.Collection(cartsCollection).InsertOne(ctx, cartDocument{
		UserID:      "u1",
		Items:       []cartItemDocument{{BookID: "b1", Quantity: 2, Price: price}},
		TotalAmount: wrong,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("9")), "total %s", got.TotalAmount)
}
