package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity caps a single cart line. Quantities are stored as INTEGER.
const MaxLineQuantity = 10000

// ValidLineQuantity reports whether qty fits on one cart line.
func ValidLineQuantity(qty int) bool {
	return qty >= 1 && qty <= MaxLineQuantity
}

// Cart is the open, mutable basket of one owner in one shop.
type Cart struct {
	ID        string
	TenantID  string
	ShopID    string
	Owner     OwnerKey
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FindLine returns the line holding the same sellable and configuration, if any.
func (c Cart) FindLine(ref SellableRef, configKey string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.Sellable == ref && item.Configuration.Key() == configKey {
			return item, true
		}
	}
	return CartItem{}, false
}

func (c Cart) Item(id string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ID == id {
			return item, true
		}
	}
	return CartItem{}, false
}

// CartItem stores Quantity in line units (packages for products). UnitPrice is the
// snapshot taken when the line was last written; summaries and checkout reprice.
type CartItem struct {
	ID            string
	CartID        string
	Sellable      SellableRef
	Configuration Configuration
	Quantity      int
	UnitPrice     decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CartLine struct {
	Item      CartItem
	Name      string
	SKU       string
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Available bool
}

// CartSummary is priced live; unavailable lines are excluded from the totals.
type CartSummary struct {
	CartID    string
	Currency  string
	Lines     []CartLine
	ItemCount int
	Subtotal  decimal.Decimal
}
