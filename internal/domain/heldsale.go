package domain

import (
	"fmt"
	"time"
)

type HeldSaleStatus string

const (
	HeldSaleHeld      HeldSaleStatus = "held"
	HeldSaleRetrieved HeldSaleStatus = "retrieved"
	HeldSaleDiscarded HeldSaleStatus = "discarded"
)

// HeldSale is a parked cart snapshot, numbered from a per-shop counter.
type HeldSale struct {
	ID          string
	TenantID    string
	ShopID      string
	Reference   string
	Owner       OwnerKey
	Items       []HeldSaleItem
	Notes       string
	Status      HeldSaleStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RetrievedAt *time.Time
}

type HeldSaleItem struct {
	Kind            SellableKind    `json:"kind"`
	SellableID      string          `json:"sellable_id"`
	PackagingTypeID string          `json:"packaging_type_id,omitempty"`
	MaterialOption  MaterialOption  `json:"material_option,omitempty"`
	Addons          []SelectedAddon `json:"addons,omitempty"`
	Quantity        int             `json:"quantity"`
}

func (i HeldSaleItem) Ref() SellableRef {
	return SellableRef{Kind: i.Kind, ID: i.SellableID}
}

func (i HeldSaleItem) Configuration() Configuration {
	return Configuration{PackagingTypeID: i.PackagingTypeID, MaterialOption: i.MaterialOption, Addons: i.Addons}
}

// HeldSaleReference formats the n-th held sale number of a shop.
func HeldSaleReference(n int64) string {
	return fmt.Sprintf("HS-%06d", n)
}
