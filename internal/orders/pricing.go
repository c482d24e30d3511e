package orders

import "github.com/shopspring/decimal"

type Totals struct {
	Subtotal Cents `json:"subtotal"`
	Tax      Cents `json:"tax"`
	Shipping Cents `json:"shipping"`
	Total    Cents `json:"total"`
}

// CalculateTotals prices items with a single tax rate and a flat shipping fee
// that only applies to a non-empty cart.
func CalculateTotals(items []CartItem, taxRate decimal.Decimal, flatShipping Cents) Totals {
	if len(items) == 0 {
		return Totals{}
	}
	var subtotal Cents
	for _, it := range items {
		subtotal += it.Price * Cents(it.Quantity)
	}
	tax := CentsFromDecimal(subtotal.Decimal().Mul(taxRate))
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: flatShipping,
		Total:    subtotal + tax + flatShipping,
	}
}

// Calculator binds the configured tax rate and shipping fee.
type Calculator struct {
	TaxRate      decimal.Decimal
	FlatShipping Cents
	Currency     string
}

func (c Calculator) Totals(items []CartItem) Totals {
	return CalculateTotals(items, c.TaxRate, c.FlatShipping)
}
