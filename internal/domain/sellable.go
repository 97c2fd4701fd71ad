package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type SellableKind string

const (
	SellableProduct SellableKind = "product"
	SellableService SellableKind = "service"
)

// SellableRef is the (kind, id) pair a cart or order line points at.
type SellableRef struct {
	Kind SellableKind
	ID   string
}

func ProductRef(variantID string) SellableRef {
	return SellableRef{Kind: SellableProduct, ID: variantID}
}

func ServiceRef(variantID string) SellableRef {
	return SellableRef{Kind: SellableService, ID: variantID}
}

func (r SellableRef) Validate() error {
	if r.ID == "" {
		return ErrInvalidID
	}
	switch r.Kind {
	case SellableProduct, SellableService:
		return nil
	default:
		return fmt.Errorf("%w: unknown sellable kind %q", ErrInvalidConfiguration, r.Kind)
	}
}

func (r SellableRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// Quantity is an availability figure; services report Unbounded.
type Quantity struct {
	Units     int
	Unbounded bool
}

func (q Quantity) Covers(n int) bool {
	return q.Unbounded || q.Units >= n
}

type PackagingType struct {
	ID              string
	Name            string
	UnitsPerPackage int
	// Price is the package price; when unset the package costs UnitsPerPackage base units.
	Price    decimal.NullDecimal
	IsActive bool
}

type ProductVariant struct {
	ID                string
	TenantID          string
	ShopID            string
	ProductID         string
	SKU               string
	Name              string
	Price             decimal.Decimal
	ProductActive     bool
	IsActive          bool
	IsAvailableOnline bool
	Packaging         []PackagingType
}

func (v ProductVariant) IsPurchasable() bool {
	return v.ProductActive && v.IsActive && v.IsAvailableOnline
}

func (v ProductVariant) packagingType(id string) (PackagingType, error) {
	if id == "" {
		return PackagingType{Name: "unit", UnitsPerPackage: 1, IsActive: true}, nil
	}
	for _, p := range v.Packaging {
		if p.ID == id {
			if !p.IsActive {
				return PackagingType{}, fmt.Errorf("%w: packaging %s is inactive", ErrUnavailable, p.Name)
			}
			return p, nil
		}
	}
	return PackagingType{}, ErrPackagingNotFound
}

func (v ProductVariant) unitPrice(p PackagingType) decimal.Decimal {
	if p.Price.Valid {
		return p.Price.Decimal
	}
	return v.Price.Mul(decimal.NewFromInt(int64(p.UnitsPerPackage)))
}

type MaterialOption string

const (
	MaterialNone     MaterialOption = "none"
	MaterialCustomer MaterialOption = "customer_materials"
	MaterialShop     MaterialOption = "shop_materials"
)

type ServiceAddon struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	MaxQuantity int
	IsActive    bool
}

type ServiceVariant struct {
	ID                     string
	TenantID               string
	ShopID                 string
	ServiceID              string
	SKU                    string
	Name                   string
	BasePrice              decimal.Decimal
	CustomerMaterialsPrice decimal.NullDecimal
	ShopMaterialsPrice     decimal.NullDecimal
	ServiceActive          bool
	ServiceAvailableOnline bool
	IsActive               bool
	IsAvailableOnline      bool
	Addons                 []ServiceAddon
}

func (v ServiceVariant) IsPurchasable() bool {
	return v.ServiceActive && v.ServiceAvailableOnline && v.IsActive && v.IsAvailableOnline
}

func (v ServiceVariant) materialPrice(opt MaterialOption) (decimal.Decimal, error) {
	switch opt {
	case MaterialNone, "":
		return v.BasePrice, nil
	case MaterialCustomer:
		if !v.CustomerMaterialsPrice.Valid {
			return decimal.Zero, fmt.Errorf("%w: customer materials not offered", ErrInvalidConfiguration)
		}
		return v.CustomerMaterialsPrice.Decimal, nil
	case MaterialShop:
		if !v.ShopMaterialsPrice.Valid {
			return decimal.Zero, fmt.Errorf("%w: shop materials not offered", ErrInvalidConfiguration)
		}
		return v.ShopMaterialsPrice.Decimal, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown material option %q", ErrInvalidConfiguration, opt)
	}
}

func (v ServiceVariant) addon(id string) (ServiceAddon, error) {
	for _, a := range v.Addons {
		if a.ID == id {
			if !a.IsActive {
				return ServiceAddon{}, fmt.Errorf("%w: add-on %s is inactive", ErrUnavailable, a.Name)
			}
			return a, nil
		}
	}
	return ServiceAddon{}, ErrAddonNotFound
}

type SelectedAddon struct {
	AddonID  string `json:"addon_id"`
	Quantity int    `json:"quantity"`
}

// Configuration is the per-line choice a customer makes: packaging for products,
// material option and add-ons for services.
type Configuration struct {
	PackagingTypeID string
	MaterialOption  MaterialOption
	Addons          []SelectedAddon
}

// Normalized returns the configuration with add-ons sorted and the default
// material option filled in for services.
func (c Configuration) Normalized(kind SellableKind) Configuration {
	out := Configuration{PackagingTypeID: c.PackagingTypeID, MaterialOption: c.MaterialOption}
	if kind == SellableService && out.MaterialOption == "" {
		out.MaterialOption = MaterialNone
	}
	if len(c.Addons) > 0 {
		out.Addons = append([]SelectedAddon(nil), c.Addons...)
		sort.Slice(out.Addons, func(i, j int) bool { return out.Addons[i].AddonID < out.Addons[j].AddonID })
	}
	return out
}

// Key is the canonical form used to decide whether two cart lines hold the same
// configuration. Call it on a normalized configuration.
func (c Configuration) Key() string {
	var b strings.Builder
	b.WriteString("pkg=")
	b.WriteString(c.PackagingTypeID)
	b.WriteString(";mat=")
	b.WriteString(string(c.MaterialOption))
	b.WriteString(";addons=")
	for i, a := range c.Addons {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.AddonID)
		b.WriteByte('x')
		b.WriteString(strconv.Itoa(a.Quantity))
	}
	return b.String()
}

// Sellable is a tagged union over the two things a line can reference. Exactly
// one payload is set, matching Kind.
type Sellable struct {
	Kind    SellableKind
	Product *ProductVariant
	Service *ServiceVariant
}

func ProductSellable(v ProductVariant) Sellable {
	return Sellable{Kind: SellableProduct, Product: &v}
}

func ServiceSellable(v ServiceVariant) Sellable {
	return Sellable{Kind: SellableService, Service: &v}
}

func (s Sellable) Ref() SellableRef {
	switch s.Kind {
	case SellableProduct:
		return ProductRef(s.Product.ID)
	case SellableService:
		return ServiceRef(s.Service.ID)
	default:
		panic(fmt.Sprintf("unknown sellable kind %q", s.Kind))
	}
}

func (s Sellable) SKU() string {
	switch s.Kind {
	case SellableProduct:
		return s.Product.SKU
	case SellableService:
		return s.Service.SKU
	default:
		panic(fmt.Sprintf("unknown sellable kind %q", s.Kind))
	}
}

func (s Sellable) Name() string {
	switch s.Kind {
	case SellableProduct:
		return s.Product.Name
	case SellableService:
		return s.Service.Name
	default:
		panic(fmt.Sprintf("unknown sellable kind %q", s.Kind))
	}
}

func (s Sellable) ShopID() string {
	switch s.Kind {
	case SellableProduct:
		return s.Product.ShopID
	case SellableService:
		return s.Service.ShopID
	default:
		panic(fmt.Sprintf("unknown sellable kind %q", s.Kind))
	}
}

func (s Sellable) IsPurchasable() bool {
	switch s.Kind {
	case SellableProduct:
		return s.Product.IsPurchasable()
	case SellableService:
		return s.Service.IsPurchasable()
	default:
		return false
	}
}

// ResolvePrice returns the unit price for one line unit under cfg.
func (s Sellable) ResolvePrice(cfg Configuration) (decimal.Decimal, error) {
	if !s.IsPurchasable() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, s.SKU())
	}
	switch s.Kind {
	case SellableProduct:
		if cfg.MaterialOption != "" || len(cfg.Addons) > 0 {
			return decimal.Zero, fmt.Errorf("%w: products take no material option or add-ons", ErrInvalidConfiguration)
		}
		p, err := s.Product.packagingType(cfg.PackagingTypeID)
		if err != nil {
			return decimal.Zero, err
		}
		return s.Product.unitPrice(p), nil

	case SellableService:
		if cfg.PackagingTypeID != "" {
			return decimal.Zero, fmt.Errorf("%w: services take no packaging type", ErrInvalidConfiguration)
		}
		price, err := s.Service.materialPrice(cfg.MaterialOption)
		if err != nil {
			return decimal.Zero, err
		}
		seen := make(map[string]struct{}, len(cfg.Addons))
		for _, sel := range cfg.Addons {
			if _, dup := seen[sel.AddonID]; dup {
				return decimal.Zero, fmt.Errorf("%w: add-on %s selected twice", ErrInvalidConfiguration, sel.AddonID)
			}
			seen[sel.AddonID] = struct{}{}

			addon, err := s.Service.addon(sel.AddonID)
			if err != nil {
				return decimal.Zero, err
			}
			if sel.Quantity < 1 || (addon.MaxQuantity > 0 && sel.Quantity > addon.MaxQuantity) {
				return decimal.Zero, fmt.Errorf("%w: add-on %s quantity must be between 1 and %d", ErrInvalidConfiguration, addon.Name, addon.MaxQuantity)
			}
			price = price.Add(addon.Price.Mul(decimal.NewFromInt(int64(sel.Quantity))))
		}
		return price, nil

	default:
		return decimal.Zero, fmt.Errorf("%w: unknown sellable kind %q", ErrInvalidConfiguration, s.Kind)
	}
}

// BaseUnits converts a line quantity into inventory base units. Services hold no
// inventory and always return zero.
func (s Sellable) BaseUnits(quantity int, cfg Configuration) (int, error) {
	switch s.Kind {
	case SellableProduct:
		p, err := s.Product.packagingType(cfg.PackagingTypeID)
		if err != nil {
			return 0, err
		}
		return quantity * p.UnitsPerPackage, nil
	case SellableService:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unknown sellable kind %q", ErrInvalidConfiguration, s.Kind)
	}
}

// AvailableQuantity converts base units on hand into line units for cfg.
func (s Sellable) AvailableQuantity(baseUnits int, cfg Configuration) (Quantity, error) {
	switch s.Kind {
	case SellableProduct:
		p, err := s.Product.packagingType(cfg.PackagingTypeID)
		if err != nil {
			return Quantity{}, err
		}
		if baseUnits < 0 {
			baseUnits = 0
		}
		return Quantity{Units: baseUnits / p.UnitsPerPackage}, nil
	case SellableService:
		return Quantity{Unbounded: true}, nil
	default:
		return Quantity{}, fmt.Errorf("%w: unknown sellable kind %q", ErrInvalidConfiguration, s.Kind)
	}
}

// Describe freezes the configuration choices into order item metadata.
func (s Sellable) Describe(quantity int, cfg Configuration) (ItemMetadata, error) {
	meta := ItemMetadata{Kind: s.Kind}
	switch s.Kind {
	case SellableProduct:
		p, err := s.Product.packagingType(cfg.PackagingTypeID)
		if err != nil {
			return ItemMetadata{}, err
		}
		meta.Packaging = &PackagingSnapshot{ID: p.ID, Name: p.Name, UnitsPerPackage: p.UnitsPerPackage}
		meta.BaseUnits = quantity * p.UnitsPerPackage
	case SellableService:
		meta.MaterialOption = cfg.MaterialOption
		for _, sel := range cfg.Addons {
			addon, err := s.Service.addon(sel.AddonID)
			if err != nil {
				return ItemMetadata{}, err
			}
			meta.Addons = append(meta.Addons, AddonSnapshot{
				ID:        addon.ID,
				Name:      addon.Name,
				UnitPrice: addon.Price,
				Quantity:  sel.Quantity,
			})
		}
	default:
		return ItemMetadata{}, fmt.Errorf("%w: unknown sellable kind %q", ErrInvalidConfiguration, s.Kind)
	}
	return meta, nil
}

// ItemMetadata is the configuration snapshot stored on an order item.
type ItemMetadata struct {
	Kind           SellableKind       `json:"kind"`
	Packaging      *PackagingSnapshot `json:"packaging,omitempty"`
	BaseUnits      int                `json:"base_units,omitempty"`
	MaterialOption MaterialOption     `json:"material_option,omitempty"`
	Addons         []AddonSnapshot    `json:"addons,omitempty"`
}

type PackagingSnapshot struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	UnitsPerPackage int    `json:"units_per_package"`
}

type AddonSnapshot struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}
