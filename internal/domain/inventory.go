package domain

import "time"

// InventoryLocation holds base-unit stock of one product variant at one location.
// 0 <= ReservedQuantity <= Quantity after every committed transaction.
type InventoryLocation struct {
	ID               string
	TenantID         string
	ShopID           string
	ProductVariantID string
	LocationID       string
	Quantity         int
	ReservedQuantity int
}

func (l InventoryLocation) Available() int {
	return l.Quantity - l.ReservedQuantity
}

// InventoryReservation records which location an order item drew stock from.
type InventoryReservation struct {
	ID                  string
	TenantID            string
	OrderItemID         string
	InventoryLocationID string
	Quantity            int
	ReleasedAt          *time.Time
}
