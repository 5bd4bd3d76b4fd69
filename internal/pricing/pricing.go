package pricing

import (
	"math"

	"github.com/fjod/storefront/internal/domain"
)

const (
	TaxRate = 0.12

	// FreeShippingThreshold waives standard shipping once the discounted
	// total reaches it.
	FreeShippingThreshold = 2500.0
)

var (
	// DefaultRates apply when a tier has no remote configuration.
	DefaultRates = domain.ShippingRates{Standard: 300, Express: 1200}
	// FallbackRates apply when the remote configuration cannot be read.
	FallbackRates = domain.ShippingRates{Standard: 150, Express: 300}
)

// Breakdown is a full quote. Values keep full precision; use Round2 when
// presenting them.
type Breakdown struct {
	Subtotal              float64             `json:"subtotal"`
	Tax                   float64             `json:"tax"`
	TotalBeforeDiscount   float64             `json:"total_before_discount"`
	DiscountCode          string              `json:"discount_code,omitempty"`
	DiscountValue         float64             `json:"discount_value"`
	TotalAfterDiscount    float64             `json:"total_after_discount"`
	ShippingTier          domain.ShippingTier `json:"shipping_tier"`
	ShippingCharge        float64             `json:"shipping_charge"`
	GrandTotal            float64             `json:"grand_total"`
	FreeShippingShortfall float64             `json:"free_shipping_shortfall"`
}

// Quote prices a cart. discount may be nil. An unknown tier is priced as
// standard.
func Quote(lines []domain.CartLine, discount *domain.DiscountCode, tier domain.ShippingTier, rates domain.ShippingRates) Breakdown {
	if !tier.Valid() {
		tier = domain.ShippingStandard
	}

	var b Breakdown
	for _, l := range lines {
		b.Subtotal += l.LineTotal()
	}
	b.Tax = b.Subtotal * TaxRate
	b.TotalBeforeDiscount = b.Subtotal + b.Tax

	if discount != nil {
		b.DiscountCode = discount.Code
		b.DiscountValue = DiscountValue(*discount, b.TotalBeforeDiscount)
	}
	b.TotalAfterDiscount = math.Max(b.TotalBeforeDiscount-b.DiscountValue, 0)

	b.ShippingTier = tier
	b.ShippingCharge = ShippingCharge(tier, b.TotalAfterDiscount, rates)
	b.GrandTotal = b.TotalAfterDiscount + b.ShippingCharge

	if b.TotalAfterDiscount < FreeShippingThreshold {
		b.FreeShippingShortfall = FreeShippingThreshold - b.TotalAfterDiscount
	}
	return b
}

// DiscountValue is the amount a code takes off totalBeforeDiscount.
// Percentages apply to the taxed total; flat codes are taken as is.
func DiscountValue(d domain.DiscountCode, totalBeforeDiscount float64) float64 {
	switch d.Type {
	case domain.DiscountPercentage:
		return totalBeforeDiscount * (d.Value / 100)
	case domain.DiscountFlat:
		return d.Value
	default:
		return 0
	}
}

func ShippingCharge(tier domain.ShippingTier, totalAfterDiscount float64, rates domain.ShippingRates) float64 {
	if tier == domain.ShippingExpress {
		return rates.Express
	}
	if totalAfterDiscount >= FreeShippingThreshold {
		return 0
	}
	return rates.Standard
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Rounded returns a copy with every amount rounded to two decimals. The
// totals are rebuilt from the rounded parts so they still add up.
func (b Breakdown) Rounded() Breakdown {
	b.Subtotal = Round2(b.Subtotal)
	b.Tax = Round2(b.Tax)
	b.DiscountValue = Round2(b.DiscountValue)
	b.ShippingCharge = Round2(b.ShippingCharge)

	b.TotalBeforeDiscount = Round2(b.Subtotal + b.Tax)
	b.TotalAfterDiscount = math.Max(Round2(b.TotalBeforeDiscount-b.DiscountValue), 0)
	b.GrandTotal = Round2(b.TotalAfterDiscount + b.ShippingCharge)

	b.FreeShippingShortfall = 0
	if b.TotalAfterDiscount < FreeShippingThreshold {
		b.FreeShippingShortfall = Round2(FreeShippingThreshold - b.TotalAfterDiscount)
	}
	return b
}
