package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProduct() ProductVariant {
	return ProductVariant{
		ID:                "pv-1",
		ShopID:            "shop-1",
		SKU:               "RICE-1KG",
		Name:              "Rice 1kg",
		Price:             decimal.RequireFromString("2.50"),
		ProductActive:     true,
		IsActive:          true,
		IsAvailableOnline: true,
		Packaging: []PackagingType{
			{ID: "case-12", Name: "Case of 12", UnitsPerPackage: 12, IsActive: true},
			{ID: "bag-5", Name: "Bag of 5", UnitsPerPackage: 5, Price: decimal.NewNullDecimal(decimal.RequireFromString("11.00")), IsActive: true},
			{ID: "old", Name: "Retired", UnitsPerPackage: 3, IsActive: false},
		},
	}
}

func testService() ServiceVariant {
	return ServiceVariant{
		ID:                     "sv-1",
		ShopID:                 "shop-1",
		SKU:                    "TAILOR-SUIT",
		Name:                   "Suit tailoring",
		BasePrice:              decimal.RequireFromString("40.00"),
		CustomerMaterialsPrice: decimal.NewNullDecimal(decimal.RequireFromString("35.00")),
		ShopMaterialsPrice:     decimal.NewNullDecimal(decimal.RequireFromString("80.00")),
		ServiceActive:          true,
		ServiceAvailableOnline: true,
		IsActive:               true,
		IsAvailableOnline:      true,
		Addons: []ServiceAddon{
			{ID: "lining", Name: "Silk lining", Price: decimal.RequireFromString("12.50"), MaxQuantity: 1, IsActive: true},
			{ID: "button", Name: "Brass buttons", Price: decimal.RequireFromString("1.25"), MaxQuantity: 10, IsActive: true},
			{ID: "monogram", Name: "Monogram", Price: decimal.RequireFromString("5"), MaxQuantity: 1, IsActive: false},
		},
	}
}

func TestSellable_ResolvePrice_Product(t *testing.T) {
	t.Parallel()

	s := ProductSellable(testProduct())

	tests := []struct {
		name    string
		cfg     Configuration
		want    string
		wantErr error
	}{
		{name: "base unit", cfg: Configuration{}, want: "2.5"},
		{name: "derived package price", cfg: Configuration{PackagingTypeID: "case-12"}, want: "30"},
		{name: "explicit package price", cfg: Configuration{PackagingTypeID: "bag-5"}, want: "11"},
		{name: "unknown packaging", cfg: Configuration{PackagingTypeID: "pallet"}, wantErr: ErrNotFound},
		{name: "inactive packaging", cfg: Configuration{PackagingTypeID: "old"}, wantErr: ErrUnavailable},
		{name: "material option rejected", cfg: Configuration{MaterialOption: MaterialShop}, wantErr: ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.ResolvePrice(tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestSellable_ResolvePrice_Service(t *testing.T) {
	t.Parallel()

	s := ServiceSellable(testService())

	tests := []struct {
		name    string
		cfg     Configuration
		want    string
		wantErr error
	}{
		{name: "no materials", cfg: Configuration{MaterialOption: MaterialNone}, want: "40"},
		{name: "customer materials", cfg: Configuration{MaterialOption: MaterialCustomer}, want: "35"},
		{name: "shop materials with add-ons", cfg: Configuration{
			MaterialOption: MaterialShop,
			Addons:         []SelectedAddon{{AddonID: "lining", Quantity: 1}, {AddonID: "button", Quantity: 4}},
		}, want: "97.5"},
		{name: "unknown material", cfg: Configuration{MaterialOption: "borrowed"}, wantErr: ErrInvalidConfiguration},
		{name: "unknown add-on", cfg: Configuration{Addons: []SelectedAddon{{AddonID: "zip", Quantity: 1}}}, wantErr: ErrNotFound},
		{name: "add-on above max", cfg: Configuration{Addons: []SelectedAddon{{AddonID: "lining", Quantity: 2}}}, wantErr: ErrInvalidConfiguration},
		{name: "inactive add-on", cfg: Configuration{Addons: []SelectedAddon{{AddonID: "monogram", Quantity: 1}}}, wantErr: ErrUnavailable},
		{name: "duplicate add-on", cfg: Configuration{Addons: []SelectedAddon{{AddonID: "button", Quantity: 1}, {AddonID: "button", Quantity: 1}}}, wantErr: ErrInvalidConfiguration},
		{name: "packaging rejected", cfg: Configuration{PackagingTypeID: "case-12"}, wantErr: ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.ResolvePrice(tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestSellable_Purchasability(t *testing.T) {
	t.Parallel()

	offline := testProduct()
	offline.IsAvailableOnline = false
	_, err := ProductSellable(offline).ResolvePrice(Configuration{})
	require.ErrorIs(t, err, ErrUnavailable)

	parentInactive := testService()
	parentInactive.ServiceActive = false
	assert.False(t, ServiceSellable(parentInactive).IsPurchasable())

	parentOffline := testService()
	parentOffline.ServiceAvailableOnline = false
	assert.False(t, ServiceSellable(parentOffline).IsPurchasable())

	assert.True(t, ServiceSellable(testService()).IsPurchasable())
}

func TestSellable_Quantities(t *testing.T) {
	t.Parallel()

	product := ProductSellable(testProduct())

	units, err := product.BaseUnits(3, Configuration{PackagingTypeID: "case-12"})
	require.NoError(t, err)
	assert.Equal(t, 36, units)

	q, err := product.AvailableQuantity(30, Configuration{PackagingTypeID: "case-12"})
	require.NoError(t, err)
	assert.Equal(t, Quantity{Units: 2}, q)
	assert.True(t, q.Covers(2))
	assert.False(t, q.Covers(3))

	service := ServiceSellable(testService())
	units, err = service.BaseUnits(5, Configuration{})
	require.NoError(t, err)
	assert.Zero(t, units)

	q, err = service.AvailableQuantity(0, Configuration{})
	require.NoError(t, err)
	assert.True(t, q.Unbounded)
	assert.True(t, q.Covers(1000))
}

func TestConfiguration_Key(t *testing.T) {
	t.Parallel()

	a := Configuration{Addons: []SelectedAddon{{AddonID: "lining", Quantity: 1}, {AddonID: "button", Quantity: 2}}}.Normalized(SellableService)
	b := Configuration{MaterialOption: MaterialNone, Addons: []SelectedAddon{{AddonID: "button", Quantity: 2}, {AddonID: "lining", Quantity: 1}}}.Normalized(SellableService)
	c := Configuration{MaterialOption: MaterialShop, Addons: []SelectedAddon{{AddonID: "button", Quantity: 2}, {AddonID: "lining", Quantity: 1}}}.Normalized(SellableService)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, "pkg=case-12;mat=;addons=", Configuration{PackagingTypeID: "case-12"}.Normalized(SellableProduct).Key())
}

func TestSellable_Describe(t *testing.T) {
	t.Parallel()

	meta, err := ProductSellable(testProduct()).Describe(2, Configuration{PackagingTypeID: "case-12"})
	require.NoError(t, err)
	require.NotNil(t, meta.Packaging)
	assert.Equal(t, "Case of 12", meta.Packaging.Name)
	assert.Equal(t, 24, meta.BaseUnits)

	meta, err = ServiceSellable(testService()).Describe(1, Configuration{
		MaterialOption: MaterialShop,
		Addons:         []SelectedAddon{{AddonID: "button", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, MaterialShop, meta.MaterialOption)
	require.Len(t, meta.Addons, 1)
	assert.Equal(t, "Brass buttons", meta.Addons[0].Name)
	assert.Equal(t, 3, meta.Addons[0].Quantity)
}
