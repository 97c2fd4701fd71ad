package postgres

import (
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

// sellableColumns splits a reference into the product/service foreign key pair;
// exactly one is non-nil.
func sellableColumns(ref domain.SellableRef) (productID, serviceID *string) {
	id := ref.ID
	switch ref.Kind {
	case domain.SellableProduct:
		return &id, nil
	case domain.SellableService:
		return nil, &id
	}
	return nil, nil
}

func sellableRef(productID, serviceID string) domain.SellableRef {
	if productID != "" {
		return domain.ProductRef(productID)
	}
	return domain.ServiceRef(serviceID)
}

func addonsParam(addons []domain.SelectedAddon) any {
	if len(addons) == 0 {
		return nil
	}
	return addons
}
