package domain

type ShippingTier string

const (
	ShippingStandard ShippingTier = "standard"
	ShippingExpress  ShippingTier = "express"
)

func (t ShippingTier) Valid() bool {
	return t == ShippingStandard || t == ShippingExpress
}

// ShippingRates holds the price of each tier as configured remotely.
type ShippingRates struct {
	Standard float64 `json:"standard"`
	Express  float64 `json:"express"`
}

func (r ShippingRates) For(t ShippingTier) float64 {
	if t == ShippingExpress {
		return r.Express
	}
	return r.Standard
}
