// Package pricing computes invoice totals. The calculation is a pure
// function over typed inputs so it can be tested in isolation and re-run on
// line-item edits: the same input always yields the same output.
//
// Amounts are GST-inclusive. Tax is back-calculated from the final amount,
// distributed across items proportionally to their post-discount share, and
// split into equal CGST/SGST halves when every item carries the same slab.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"jassperfumes/backend/internal/domain"
)

type Promo struct {
	Code    string
	Percent float64
}

type Input struct {
	Items            []domain.InvoiceItemInput
	Promo            *Promo
	LoyaltyCoinsUsed int
}

type Result struct {
	Items            []domain.InvoiceItem
	Subtotal         float64
	BaseValue        float64
	Discount         float64
	Tax              float64
	Cgst             float64
	Sgst             float64
	HasMixedTaxRates bool
	TaxPercentages   []float64
	Total            float64

	PromoDiscount        float64
	LoyaltyDiscount      float64
	LoyaltyCoinsConsumed int
	LoyaltyCoinsEarned   int
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
)

// Calculate recomputes every derived figure from scratch, in a fixed order:
// item discounts, then promo, then loyalty (capped at the post-promo
// amount), then proportional tax back-calculation, then coin accrual.
func Calculate(in Input) Result {
	type itemState struct {
		input         domain.InvoiceItemInput
		gross         decimal.Decimal
		discount      decimal.Decimal
		afterDiscount decimal.Decimal
	}

	states := make([]itemState, 0, len(in.Items))
	subtotal := decimal.Zero
	itemDiscounts := decimal.Zero
	afterItems := decimal.Zero

	for _, item := range in.Items {
		price := decimal.NewFromFloat(item.Price)
		qty := decimal.NewFromInt(int64(item.Quantity))
		gross := price.Mul(qty)
		disc := gross.Mul(decimal.NewFromFloat(item.Discount)).Div(hundred)
		after := gross.Sub(disc)

		subtotal = subtotal.Add(gross)
		itemDiscounts = itemDiscounts.Add(disc)
		afterItems = afterItems.Add(after)
		states = append(states, itemState{input: item, gross: gross, discount: disc, afterDiscount: after})
	}

	promoDiscount := decimal.Zero
	if in.Promo != nil {
		promoDiscount = afterItems.Mul(decimal.NewFromFloat(in.Promo.Percent)).Div(hundred)
	}
	afterPromo := afterItems.Sub(promoDiscount)

	// Loyalty redemption can never push the amount below zero: the discount
	// is capped at the post-promo amount, and only whole coins are consumed.
	loyaltyDiscount := decimal.NewFromInt(int64(in.LoyaltyCoinsUsed))
	if loyaltyDiscount.GreaterThan(afterPromo) {
		loyaltyDiscount = afterPromo
	}
	if loyaltyDiscount.IsNegative() {
		loyaltyDiscount = decimal.Zero
	}
	coinsConsumed := int(loyaltyDiscount.Floor().IntPart())

	finalAmount := afterPromo.Sub(loyaltyDiscount)

	slabSet := make(map[string]float64)
	for _, st := range states {
		slabSet[decimal.NewFromFloat(st.input.TaxSlab).String()] = st.input.TaxSlab
	}
	mixed := len(slabSet) > 1

	items := make([]domain.InvoiceItem, 0, len(states))
	totalBase := decimal.Zero
	totalTax := decimal.Zero

	for _, st := range states {
		share := decimal.Zero
		if afterItems.IsPositive() {
			share = finalAmount.Mul(st.afterDiscount).Div(afterItems)
		}
		divisor := one.Add(decimal.NewFromFloat(st.input.TaxSlab).Div(hundred))
		base := share.Div(divisor)
		tax := share.Sub(base)
		totalBase = totalBase.Add(base)
		totalTax = totalTax.Add(tax)

		item := domain.InvoiceItem{
			ProductID:      st.input.ProductID,
			Name:           st.input.Name,
			Barcode:        st.input.Barcode,
			HSN:            st.input.HSN,
			Category:       st.input.Category,
			Price:          st.input.Price,
			TaxSlab:        st.input.TaxSlab,
			Quantity:       st.input.Quantity,
			Discount:       st.input.Discount,
			BatchNumber:    st.input.BatchNumber,
			BaseValue:      round2(base),
			DiscountAmount: round2(st.discount),
			TaxAmount:      round2(tax),
			TotalAmount:    round2(share),
		}
		if !mixed {
			item.CgstAmount = round2(tax.Div(two))
			item.SgstAmount = round2(tax.Div(two))
		}
		items = append(items, item)
	}

	coinsEarned := int(totalBase.Div(hundred).Floor().IntPart())

	result := Result{
		Items:            items,
		Subtotal:         round2(subtotal),
		BaseValue:        round2(totalBase),
		Discount:         round2(itemDiscounts.Add(promoDiscount).Add(loyaltyDiscount)),
		Tax:              round2(totalTax),
		HasMixedTaxRates: mixed,
		TaxPercentages:   sortedSlabs(slabSet),
		Total:            round2(finalAmount),

		PromoDiscount:        round2(promoDiscount),
		LoyaltyDiscount:      round2(loyaltyDiscount),
		LoyaltyCoinsConsumed: coinsConsumed,
		LoyaltyCoinsEarned:   coinsEarned,
	}
	if !mixed {
		result.Cgst = round2(totalTax.Div(two))
		result.Sgst = round2(totalTax.Div(two))
	}
	return result
}

func round2(d decimal.Decimal) float64 {
	value, _ := d.Round(2).Float64()
	return value
}

func sortedSlabs(slabs map[string]float64) []float64 {
	out := make([]float64, 0, len(slabs))
	for _, slab := range slabs {
		out = append(out, slab)
	}
	sort.Float64s(out)
	return out
}
