package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusRefunded      PaymentStatus = "refunded"
)

const FulfillmentUnfulfilled = "unfulfilled"

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Order is the frozen result of a committed checkout. Only the status fields
// change after creation.
type Order struct {
	ID                string
	TenantID          string
	ShopID            string
	OrderNumber       string
	Owner             OwnerKey
	IdempotencyKey    string
	Status            OrderStatus
	PaymentStatus     PaymentStatus
	FulfillmentStatus string
	PaymentMethod     string
	Currency          string
	Subtotal          decimal.Decimal
	TaxAmount         decimal.Decimal
	DiscountAmount    decimal.Decimal
	ShippingAmount    decimal.Decimal
	TotalAmount       decimal.Decimal
	ShippingAddress   Address
	BillingAddress    Address
	CustomerEmail     string
	Notes             string
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (o Order) Scope() Scope {
	return Scope{TenantID: o.TenantID, ShopID: o.ShopID}
}

// OrderItem.TotalAmount = Subtotal + TaxAmount + ShippingAmount - DiscountAmount, so the
// items of an order always sum to the order total.
type OrderItem struct {
	ID              string
	OrderID         string
	Sellable        SellableRef
	SKU             string
	Name            string
	PackagingTypeID string
	Quantity        int
	UnitPrice       decimal.Decimal
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	ShippingAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	Metadata        ItemMetadata
	Reservations    []InventoryReservation
}

// Adjustments are the order-level amounts shop pricing rules add on top of the
// line subtotal.
type Adjustments struct {
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
}
