package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeBalance(t *testing.T) {
	t.Parallel()

	d := decimal.RequireFromString
	order := Order{ID: "order-1", Currency: "NGN", TotalAmount: d("100.00")}

	tests := []struct {
		name        string
		entries     []OrderPayment
		outstanding string
		status      PaymentStatus
	}{
		{name: "no entries", outstanding: "100", status: PaymentStatusPending},
		{
			name:        "partial",
			entries:     []OrderPayment{{Kind: PaymentKindPayment, Amount: d("40")}},
			outstanding: "60",
			status:      PaymentStatusPartiallyPaid,
		},
		{
			name:        "exact",
			entries:     []OrderPayment{{Kind: PaymentKindPayment, Amount: d("60")}, {Kind: PaymentKindPayment, Amount: d("40")}},
			outstanding: "0",
			status:      PaymentStatusPaid,
		},
		{
			name: "partially refunded",
			entries: []OrderPayment{
				{Kind: PaymentKindPayment, Amount: d("100")},
				{Kind: PaymentKindRefund, Amount: d("-30")},
			},
			outstanding: "30",
			status:      PaymentStatusPartiallyPaid,
		},
		{
			name: "fully refunded",
			entries: []OrderPayment{
				{Kind: PaymentKindPayment, Amount: d("100")},
				{Kind: PaymentKindRefund, Amount: d("-100")},
			},
			outstanding: "100",
			status:      PaymentStatusRefunded,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := ComputeBalance(order, tt.entries)
			assert.True(t, d(tt.outstanding).Equal(b.Outstanding), "outstanding %s", b.Outstanding)
			assert.Equal(t, tt.status, b.Status)
		})
	}
}

func TestOwnerKey_RoundTrip(t *testing.T) {
	t.Parallel()

	key, err := ParseOwnerKey(CustomerOwner("c-1").String())
	assert.NoError(t, err)
	assert.Equal(t, CustomerOwner("c-1"), key)

	_, err = ParseOwnerKey("robot:1")
	assert.ErrorIs(t, err, ErrInvalidOwner)
	_, err = ParseOwnerKey("guest:")
	assert.ErrorIs(t, err, ErrInvalidOwner)
}
