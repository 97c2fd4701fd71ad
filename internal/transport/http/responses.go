package http

import (
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/app"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/shopspring/decimal"
)

type configurationDTO struct {
	PackagingTypeID string                 `json:"packaging_type_id,omitempty"`
	MaterialOption  string                 `json:"material_option,omitempty"`
	Addons          []domain.SelectedAddon `json:"addons,omitempty"`
}

func (c configurationDTO) toDomain() domain.Configuration {
	return domain.Configuration{
		PackagingTypeID: c.PackagingTypeID,
		MaterialOption:  domain.MaterialOption(c.MaterialOption),
		Addons:          c.Addons,
	}
}

func newConfigurationDTO(c domain.Configuration) configurationDTO {
	return configurationDTO{
		PackagingTypeID: c.PackagingTypeID,
		MaterialOption:  string(c.MaterialOption),
		Addons:          c.Addons,
	}
}

type cartItemResponse struct {
	ID            string           `json:"id"`
	Kind          string           `json:"kind"`
	SellableID    string           `json:"sellable_id"`
	Configuration configurationDTO `json:"configuration"`
	Quantity      int              `json:"quantity"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
}

func newCartItemResponse(item domain.CartItem) cartItemResponse {
	return cartItemResponse{
		ID:            item.ID,
		Kind:          string(item.Sellable.Kind),
		SellableID:    item.Sellable.ID,
		Configuration: newConfigurationDTO(item.Configuration),
		Quantity:      item.Quantity,
		UnitPrice:     item.UnitPrice,
	}
}

type cartLineResponse struct {
	cartItemResponse
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	LineTotal decimal.Decimal `json:"line_total"`
	Available bool            `json:"available"`
}

type cartResponse struct {
	ID        string             `json:"id,omitempty"`
	Currency  string             `json:"currency"`
	Items     []cartLineResponse `json:"items"`
	ItemCount int                `json:"item_count"`
	Subtotal  decimal.Decimal    `json:"subtotal"`
}

func newCartResponse(s domain.CartSummary) cartResponse {
	items := make([]cartLineResponse, 0, len(s.Lines))
	for _, line := range s.Lines {
		item := newCartItemResponse(line.Item)
		// Summaries are priced live; the stored snapshot may be stale.
		item.UnitPrice = line.UnitPrice
		items = append(items, cartLineResponse{
			cartItemResponse: item,
			Name:             line.Name,
			SKU:              line.SKU,
			LineTotal:        line.LineTotal,
			Available:        line.Available,
		})
	}
	return cartResponse{
		ID:        s.CartID,
		Currency:  s.Currency,
		Items:     items,
		ItemCount: s.ItemCount,
		Subtotal:  s.Subtotal,
	}
}

type orderItemResponse struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	SellableID      string          `json:"sellable_id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	PackagingTypeID string          `json:"packaging_type_id,omitempty"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingAmount  decimal.Decimal `json:"shipping_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

type orderResponse struct {
	ID                string              `json:"id"`
	OrderNumber       string              `json:"order_number"`
	Status            string              `json:"status"`
	PaymentStatus     string              `json:"payment_status"`
	FulfillmentStatus string              `json:"fulfillment_status"`
	PaymentMethod     string              `json:"payment_method"`
	Currency          string              `json:"currency"`
	Subtotal          decimal.Decimal     `json:"subtotal"`
	TaxAmount         decimal.Decimal     `json:"tax_amount"`
	DiscountAmount    decimal.Decimal     `json:"discount_amount"`
	ShippingAmount    decimal.Decimal     `json:"shipping_amount"`
	TotalAmount       decimal.Decimal     `json:"total_amount"`
	ShippingAddress   domain.Address      `json:"shipping_address"`
	BillingAddress    domain.Address      `json:"billing_address"`
	CustomerEmail     string              `json:"customer_email,omitempty"`
	Notes             string              `json:"notes,omitempty"`
	Items             []orderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"created_at"`
}

func newOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:              it.ID,
			Kind:            string(it.Sellable.Kind),
			SellableID:      it.Sellable.ID,
			SKU:             it.SKU,
			Name:            it.Name,
			PackagingTypeID: it.PackagingTypeID,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			Subtotal:        it.Subtotal,
			TaxAmount:       it.TaxAmount,
			DiscountAmount:  it.DiscountAmount,
			ShippingAmount:  it.ShippingAmount,
			TotalAmount:     it.TotalAmount,
		})
	}
	return orderResponse{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		FulfillmentStatus: o.FulfillmentStatus,
		PaymentMethod:     o.PaymentMethod,
		Currency:          o.Currency,
		Subtotal:          o.Subtotal,
		TaxAmount:         o.TaxAmount,
		DiscountAmount:    o.DiscountAmount,
		ShippingAmount:    o.ShippingAmount,
		TotalAmount:       o.TotalAmount,
		ShippingAddress:   o.ShippingAddress,
		BillingAddress:    o.BillingAddress,
		CustomerEmail:     o.CustomerEmail,
		Notes:             o.Notes,
		Items:             items,
		CreatedAt:         o.CreatedAt,
	}
}

type paymentInitResponse struct {
	AttemptID   string          `json:"attempt_id"`
	Gateway     string          `json:"gateway"`
	Reference   string          `json:"reference"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	InlineToken string          `json:"inline_token,omitempty"`
	PublicKey   string          `json:"public_key,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func newPaymentInitResponse(p app.InitiatePaymentResult) paymentInitResponse {
	return paymentInitResponse{
		AttemptID:   p.AttemptID,
		Gateway:     p.Gateway,
		Reference:   p.Reference,
		RedirectURL: p.RedirectURL,
		InlineToken: p.InlineToken,
		PublicKey:   p.PublicKey,
		Amount:      p.Amount,
		Currency:    p.Currency,
	}
}

type balanceResponse struct {
	OrderID     string          `json:"order_id"`
	Currency    string          `json:"currency"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Refunded    decimal.Decimal `json:"refunded"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Status      string          `json:"status"`
}

func newBalanceResponse(b domain.OrderBalance) balanceResponse {
	return balanceResponse{
		OrderID:     b.OrderID,
		Currency:    b.Currency,
		Total:       b.Total,
		Paid:        b.Paid,
		Refunded:    b.Refunded,
		Outstanding: b.Outstanding,
		Status:      string(b.Status),
	}
}

type ledgerEntryResponse struct {
	ID               string          `json:"id"`
	Kind             string          `json:"kind"`
	Source           string          `json:"source"`
	Amount           decimal.Decimal `json:"amount"`
	Fee              decimal.Decimal `json:"fee"`
	Method           string          `json:"method"`
	Reference        string          `json:"reference,omitempty"`
	GatewayReference string          `json:"gateway_reference,omitempty"`
	RefundOf         string          `json:"refund_of,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func newLedgerEntryResponse(p domain.OrderPayment) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:               p.ID,
		Kind:             string(p.Kind),
		Source:           string(p.Source),
		Amount:           p.Amount,
		Fee:              p.Fee,
		Method:           p.Method,
		Reference:        p.Reference,
		GatewayReference: p.GatewayReference,
		RefundOf:         p.RefundOf,
		Notes:            p.Notes,
		CreatedAt:        p.CreatedAt,
	}
}

type ledgerResultResponse struct {
	Payment ledgerEntryResponse `json:"payment"`
	Balance balanceResponse     `json:"balance"`
}

func newLedgerResultResponse(r app.LedgerResult) ledgerResultResponse {
	return ledgerResultResponse{
		Payment: newLedgerEntryResponse(r.Payment),
		Balance: newBalanceResponse(r.Balance),
	}
}

type heldSaleResponse struct {
	ID          string                `json:"id"`
	Reference   string                `json:"reference"`
	Status      string                `json:"status"`
	Notes       string                `json:"notes,omitempty"`
	Items       []domain.HeldSaleItem `json:"items"`
	ExpiresAt   time.Time             `json:"expires_at"`
	CreatedAt   time.Time             `json:"created_at"`
	RetrievedAt *time.Time            `json:"retrieved_at,omitempty"`
}

func newHeldSaleResponse(s domain.HeldSale) heldSaleResponse {
	items := s.Items
	if items == nil {
		items = []domain.HeldSaleItem{}
	}
	return heldSaleResponse{
		ID:          s.ID,
		Reference:   s.Reference,
		Status:      string(s.Status),
		Notes:       s.Notes,
		Items:       items,
		ExpiresAt:   s.ExpiresAt,
		CreatedAt:   s.CreatedAt,
		RetrievedAt: s.RetrievedAt,
	}
}
