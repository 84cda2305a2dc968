package cart

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("cart: not found")
	ErrItemNotFound    = errors.New("cart: item not found")
	ErrEmptyCart       = errors.New("cart: cart is empty")
	ErrInvalidQuantity = errors.New("cart: quantity must be greater than zero")
	ErrInvalidBook     = errors.New("cart: book id is required")
	ErrConflict        = errors.New("cart: concurrent modification")
)

// Item is one cart line. Price is the catalog price captured when the line was last touched.
type Item struct {
	BookID   string
	Quantity int
	Price    decimal.Decimal
}

// Subtotal is price times quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the single cart owned by a user. Version increases on every persisted write.
type Cart struct {
	UserID      string
	Items       []Item
	TotalAmount decimal.Decimal
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(userID string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		UserID:      userID,
		Items:       []Item{},
		TotalAmount: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ComputeTotal is the sum of price times quantity over items.
func ComputeTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Quantity returns the quantity already in the cart for bookID, or zero.
func (c *Cart) Quantity(bookID string) int {
	if i := c.indexOf(bookID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

// Add merges quantity into an existing line or appends a new one. The line price is refreshed.
func (c *Cart) Add(bookID string, quantity int, price decimal.Decimal) error {
	if strings.TrimSpace(bookID) == "" {
		return ErrInvalidBook
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if i := c.indexOf(bookID); i >= 0 {
		c.Items[i].Quantity += quantity
		c.Items[i].Price = price
	} else {
		c.Items = append(c.Items, Item{BookID: bookID, Quantity: quantity, Price: price})
	}
	c.recompute()
	return nil
}

// Update sets the quantity of an existing line. Zero removes it.
func (c *Cart) Update(bookID string, quantity int, price decimal.Decimal) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	i := c.indexOf(bookID)
	if i < 0 {
		return ErrItemNotFound
	}
	if quantity == 0 {
		c.removeAt(i)
	} else {
		c.Items[i].Quantity = quantity
		c.Items[i].Price = price
	}
	c.recompute()
	return nil
}

func (c *Cart) Remove(bookID string) error {
	i := c.indexOf(bookID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.removeAt(i)
	c.recompute()
	return nil
}

// Subtract takes up to quantity units off bookID's line and drops the line once nothing
// is left. A missing line is ignored.
func (c *Cart) Subtract(bookID string, quantity int) {
	i := c.indexOf(bookID)
	if i < 0 || quantity <= 0 {
		return
	}
	if c.Items[i].Quantity <= quantity {
		c.removeAt(i)
	} else {
		c.Items[i].Quantity -= quantity
	}
	c.recompute()
}

func (c *Cart) Clear() {
	c.Items = []Item{}
	c.recompute()
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Items = append([]Item{}, c.Items...)
	return &clone
}

func (c *Cart) indexOf(bookID string) int {
	for i := range c.Items {
		if c.Items[i].BookID == bookID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

func (c *Cart) recompute() {
	c.TotalAmount = ComputeTotal(c.Items)
	c.UpdatedAt = time.Now().UTC()
}
