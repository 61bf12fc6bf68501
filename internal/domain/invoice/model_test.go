package invoice

import (
	"testing"
	"time"

	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(qty, price string) *Item {
	return &Item{
		Description: "lecture",
		Quantity:    dec(qty),
		UnitPrice:   dec(price),
	}
}

func TestRecompute(t *testing.T) {
	tests := []struct {
		name      string
		items     []*Item
		discounts []string
		taxes     []string
		subtotal  string
		discount  string
		tax       string
		total     string
	}{
		{
			name:     "items only",
			items:    []*Item{item("2", "50"), item("1", "40")},
			subtotal: "140",
			discount: "0",
			tax:      "0",
			total:    "140",
		},
		{
			name:      "discount larger than subtotal clamps to zero",
			items:     []*Item{item("2", "50"), item("1", "40")},
			discounts: []string{"200"},
			subtotal:  "140",
			discount:  "200",
			tax:       "0",
			total:     "0",
		},
		{
			name:      "discounts and taxes",
			items:     []*Item{item("3", "33.33")},
			discounts: []string{"10", "5.5"},
			taxes:     []string{"8.4"},
			subtotal:  "99.99",
			discount:  "15.5",
			tax:       "8.4",
			total:     "92.89",
		},
		{
			name:     "empty invoice",
			subtotal: "0",
			discount: "0",
			tax:      "0",
			total:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := New("stu_1", "USD")
			for _, it := range tt.items {
				require.NoError(t, inv.AddItem(it))
			}
			for _, d := range tt.discounts {
				require.NoError(t, inv.AddDiscountEntry(&DiscountEntry{
					Type:          types.DiscountTypeFixedAmount,
					Value:         dec(d),
					AppliedAmount: dec(d),
					Currency:      "usd",
				}))
			}
			for _, tx := range tt.taxes {
				require.NoError(t, inv.AddTaxEntry(&TaxEntry{
					Name:          "vat",
					AppliedAmount: dec(tx),
					Currency:      "usd",
				}))
			}

			if len(tt.items)+len(tt.discounts)+len(tt.taxes) > 0 {
				assert.True(t, inv.IsDirty())
			}

			require.NoError(t, inv.Recompute())
			assert.False(t, inv.IsDirty())
			assert.True(t, dec(tt.subtotal).Equal(inv.Subtotal), "subtotal %s", inv.Subtotal)
			assert.True(t, dec(tt.discount).Equal(inv.TotalDiscounts), "discounts %s", inv.TotalDiscounts)
			assert.True(t, dec(tt.tax).Equal(inv.TotalTaxes), "taxes %s", inv.TotalTaxes)
			assert.True(t, dec(tt.total).Equal(inv.TotalAmount), "total %s", inv.TotalAmount)

			// idempotent
			before := inv.Copy()
			require.NoError(t, inv.Recompute())
			assert.True(t, before.TotalAmount.Equal(inv.TotalAmount))
			assert.True(t, before.Subtotal.Equal(inv.Subtotal))
			assert.NoError(t, inv.Validate())
		})
	}
}

func TestRecomputeMalformedItem(t *testing.T) {
	inv := New("stu_1", "usd")
	require.NoError(t, inv.AddItem(item("1", "10")))
	require.NoError(t, inv.Recompute())

	// simulate a corrupted record
	inv.Items = append(inv.Items, &Item{ID: "inv_item_bad", Quantity: dec("1"), UnitPrice: dec("-50")})
	inv.MarkDirty()

	err := inv.Recompute()
	require.Error(t, err)
	assert.True(t, ierr.IsInvariantViolation(err))
	assert.True(t, inv.IsDirty())
	assert.True(t, dec("10").Equal(inv.TotalAmount))
}

func TestAddEntriesValidation(t *testing.T) {
	inv := New("stu_1", "usd")

	err := inv.AddItem(item("-1", "10"))
	assert.True(t, ierr.IsValidation(err))

	err = inv.AddDiscountEntry(&DiscountEntry{AppliedAmount: dec("5"), Currency: "eur"})
	assert.True(t, ierr.IsValidation(err))

	err = inv.AddTaxEntry(&TaxEntry{AppliedAmount: dec("-1"), Currency: "usd"})
	assert.True(t, ierr.IsValidation(err))

	assert.Empty(t, inv.Items)
	assert.Empty(t, inv.Discounts)
	assert.Empty(t, inv.Taxes)
	assert.False(t, inv.IsDirty())
}

func TestAddToClosedInvoice(t *testing.T) {
	for _, status := range []types.InvoiceStatus{types.InvoiceStatusPaid, types.InvoiceStatusVoid} {
		inv := New("stu_1", "usd")
		inv.InvoiceStatus = status
		err := inv.AddItem(item("1", "10"))
		assert.True(t, ierr.IsInvalidOperation(err), status)
	}
}

func TestValidateStaleTotals(t *testing.T) {
	inv := New("stu_1", "usd")
	require.NoError(t, inv.AddItem(item("1", "10")))

	err := inv.Validate()
	require.Error(t, err)
	assert.True(t, ierr.IsInvariantViolation(err))

	require.NoError(t, inv.Recompute())
	require.NoError(t, inv.Validate())

	inv.TotalAmount = dec("999")
	err = inv.Validate()
	assert.True(t, ierr.IsInvariantViolation(err))
}

func TestApplyPayment(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := New("stu_1", "usd")
	inv.InvoiceStatus = types.InvoiceStatusSent
	require.NoError(t, inv.AddItem(item("1", "100")))
	require.NoError(t, inv.Recompute())

	paid, err := inv.ApplyPayment(dec("60"), now)
	require.NoError(t, err)
	assert.False(t, paid)
	assert.True(t, dec("40").Equal(inv.AmountDue()))
	assert.Equal(t, types.InvoiceStatusSent, inv.InvoiceStatus)

	paid, err = inv.ApplyPayment(dec("40"), now)
	require.NoError(t, err)
	assert.True(t, paid)
	assert.Equal(t, types.InvoiceStatusPaid, inv.InvoiceStatus)
	assert.Equal(t, now, lo.FromPtr(inv.PaidAt))
	assert.True(t, inv.AmountDue().IsZero())

	_, err = inv.ApplyPayment(dec("1"), now)
	assert.True(t, ierr.IsInvalidOperation(err))

	assert.True(t, ierr.IsInvalidOperation(inv.Void(now)))
}

func TestTaxEntryFromRate(t *testing.T) {
	entry := TaxEntryFromRate("vat", dec("7.5"), dec("133.33"), "USD")
	assert.Equal(t, "usd", entry.Currency)
	assert.True(t, dec("10").Equal(entry.AppliedAmount), entry.AppliedAmount.String())

	entry = TaxEntryFromRate("vat", dec("10"), dec("-20"), "usd")
	assert.True(t, entry.AppliedAmount.IsZero())
}

func TestCopyIsDeep(t *testing.T) {
	inv := New("stu_1", "usd")
	require.NoError(t, inv.AddItem(item("1", "10")))

	c := inv.Copy()
	c.Items[0].UnitPrice = dec("20")
	assert.True(t, dec("10").Equal(inv.Items[0].UnitPrice))
	assert.True(t, c.IsDirty())
}

func TestRemoveDiscountEntry(t *testing.T) {
	inv := New("stu_1", "usd")
	require.NoError(t, inv.AddItem(item("1", "100")))
	require.NoError(t, inv.AddDiscountEntry(&DiscountEntry{
		Code:          lo.ToPtr("SPRING"),
		Type:          types.DiscountTypeFixedAmount,
		AppliedAmount: dec("30"),
		Currency:      "usd",
	}))
	require.NoError(t, inv.Recompute())
	assert.True(t, dec("70").Equal(inv.TotalAmount))

	entry := inv.DiscountEntryByCode("SPRING")
	require.NotNil(t, entry)
	assert.Nil(t, inv.DiscountEntryByCode("OTHER"))

	removed, err := inv.RemoveDiscountEntry(entry.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, inv.IsDirty())

	require.NoError(t, inv.Recompute())
	assert.True(t, dec("100").Equal(inv.TotalAmount))

	removed, err = inv.RemoveDiscountEntry("missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRecomputeWithTaxRates(t *testing.T) {
	inv := New("stu_1", "usd")
	require.NoError(t, inv.AddItem(item("2", "50")))
	require.NoError(t, inv.Recompute())

	require.NoError(t, inv.AddTaxEntry(TaxEntryFromRate("vat", dec("10"), inv.TaxableAmount(), "usd")))
	require.NoError(t, inv.AddTaxEntry(&TaxEntry{Name: "levy", AppliedAmount: dec("1.5"), Currency: "usd"}))
	require.NoError(t, inv.RecomputeWithTaxRates())
	assert.True(t, dec("111.5").Equal(inv.TotalAmount), inv.TotalAmount.String())

	// a discount lowers the taxable amount and with it the rate based tax
	require.NoError(t, inv.AddDiscountEntry(&DiscountEntry{
		Type:          types.DiscountTypeFixedAmount,
		AppliedAmount: dec("20"),
		Currency:      "usd",
	}))
	require.NoError(t, inv.RecomputeWithTaxRates())
	assert.True(t, dec("8").Equal(inv.Taxes[0].AppliedAmount))
	assert.True(t, dec("1.5").Equal(inv.Taxes[1].AppliedAmount))
	assert.True(t, dec("89.5").Equal(inv.TotalAmount), inv.TotalAmount.String())
	assert.NoError(t, inv.Validate())
}

func TestRecomputeRederivesPercentageDiscounts(t *testing.T) {
	inv := New("stu_1", "usd")
	require.NoError(t, inv.AddItem(item("1", "100")))
	require.NoError(t, inv.AddDiscountEntry(&DiscountEntry{
		Code:          lo.ToPtr("TENOFF"),
		Type:          types.DiscountTypePercentage,
		Value:         dec("10"),
		AppliedAmount: dec("10"),
		MaxAmount:     lo.ToPtr(dec("15")),
		Currency:      "usd",
	}))
	require.NoError(t, inv.AddDiscountEntry(&DiscountEntry{
		Type:          types.DiscountTypeFixedAmount,
		Value:         dec("5"),
		AppliedAmount: dec("5"),
		Currency:      "usd",
	}))
	require.NoError(t, inv.RecomputeWithTaxRates())
	require.NoError(t, inv.AddTaxEntry(TaxEntryFromRate("vat", dec("10"), inv.TaxableAmount(), "usd")))
	require.NoError(t, inv.RecomputeWithTaxRates())
	assert.True(t, dec("93.5").Equal(inv.TotalAmount), inv.TotalAmount.String())

	// the percentage entry follows the subtotal up to its cap
	require.NoError(t, inv.AddItem(item("1", "100")))
	require.NoError(t, inv.RecomputeWithTaxRates())
	assert.True(t, dec("15").Equal(inv.Discounts[0].AppliedAmount), inv.Discounts[0].AppliedAmount.String())
	assert.True(t, dec("5").Equal(inv.Discounts[1].AppliedAmount))
	assert.True(t, dec("18").Equal(inv.Taxes[0].AppliedAmount), inv.Taxes[0].AppliedAmount.String())
	assert.True(t, dec("198").Equal(inv.TotalAmount), inv.TotalAmount.String())
	assert.NoError(t, inv.Validate())
}
