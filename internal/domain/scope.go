package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Scope identifies the tenant and shop every read and write is filtered by.
type Scope struct {
	TenantID string
	ShopID   string
}

func (s Scope) Valid() bool {
	return s.TenantID != "" && s.ShopID != ""
}

type OwnerKind string

const (
	OwnerCustomer OwnerKind = "customer"
	OwnerGuest    OwnerKind = "guest"
)

// OwnerKey identifies who a cart belongs to: an authenticated customer or an
// anonymous storefront session.
type OwnerKey struct {
	Kind OwnerKind
	ID   string
}

func CustomerOwner(customerID string) OwnerKey {
	return OwnerKey{Kind: OwnerCustomer, ID: customerID}
}

func GuestOwner(sessionToken string) OwnerKey {
	return OwnerKey{Kind: OwnerGuest, ID: sessionToken}
}

func (k OwnerKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

func (k OwnerKey) Validate() error {
	if k.ID == "" {
		return ErrInvalidOwner
	}
	switch k.Kind {
	case OwnerCustomer, OwnerGuest:
		return nil
	default:
		return ErrInvalidOwner
	}
}

// ParseOwnerKey is the inverse of OwnerKey.String.
func ParseOwnerKey(s string) (OwnerKey, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return OwnerKey{}, ErrInvalidOwner
	}
	key := OwnerKey{Kind: OwnerKind(kind), ID: id}
	if err := key.Validate(); err != nil {
		return OwnerKey{}, err
	}
	return key, nil
}

// Shop carries the per-shop settings checkout and the payment ledger depend on.
type Shop struct {
	ID               string
	TenantID         string
	Name             string
	Currency         string
	TaxRate          decimal.Decimal
	ShippingFee      decimal.Decimal
	AllowOverpayment bool
	IsActive         bool
}
