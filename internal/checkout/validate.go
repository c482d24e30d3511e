package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
)

// Result is the outcome of one step validator. Errors is keyed by field.
type Result struct {
	IsValid bool              `json:"isValid"`
	Errors  map[string]string `json:"errors"`
	first   string
}

// FirstError is the message of the first field that failed, in check order.
func (r Result) FirstError() string { return r.first }

func valid() Result { return Result{IsValid: true, Errors: map[string]string{}} }

type fieldErrors struct {
	first string
	m     map[string]string
}

func (f *fieldErrors) add(field, msg string) {
	if f.m == nil {
		f.m = map[string]string{}
	}
	if _, dup := f.m[field]; dup {
		return
	}
	if len(f.m) == 0 {
		f.first = msg
	}
	f.m[field] = msg
}

func (f *fieldErrors) result() Result {
	if len(f.m) == 0 {
		return valid()
	}
	return Result{IsValid: false, Errors: f.m, first: f.first}
}

// Countries is the set of ISO country codes the store ships to. An empty set
// accepts any country.
type Countries map[string]struct{}

func NewCountries(codes ...string) Countries {
	c := Countries{}
	for _, code := range codes {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			c[code] = struct{}{}
		}
	}
	return c
}

func (c Countries) Supports(code string) bool {
	if len(c) == 0 {
		return true
	}
	_, ok := c[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

func ValidateCart(items []orders.CartItem) Result {
	var fe fieldErrors
	if len(items) == 0 {
		fe.add("cart", "cart is empty")
		return fe.result()
	}
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		switch {
		case strings.TrimSpace(it.ProductID) == "":
			fe.add(fmt.Sprintf("items[%d].productId", i), "product id is required")
		case seen[it.ProductID]:
			fe.add(fmt.Sprintf("items[%d].productId", i), fmt.Sprintf("product %s appears more than once", it.ProductID))
		}
		seen[it.ProductID] = true
		if it.Quantity < 1 {
			fe.add(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("quantity for %s must be at least 1", it.ProductID))
		}
		if it.Price < 0 {
			fe.add(fmt.Sprintf("items[%d].price", i), fmt.Sprintf("price for %s must not be negative", it.ProductID))
		}
	}
	return fe.result()
}

func ValidateAddress(addr orders.ShippingAddress, countries Countries) Result {
	var fe fieldErrors
	required := []struct{ field, value, label string }{
		{"street", addr.Street, "street"},
		{"city", addr.City, "city"},
		{"state", addr.State, "state"},
		{"postalCode", addr.PostalCode, "postal code"},
		{"country", addr.Country, "country"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			fe.add(r.field, r.label+" is required")
		}
	}
	if strings.TrimSpace(addr.Country) != "" && !countries.Supports(addr.Country) {
		fe.add("country", fmt.Sprintf("we do not ship to %s", strings.ToUpper(strings.TrimSpace(addr.Country))))
	}
	return fe.result()
}

// ValidatePayment checks card details entered directly. now decides whether
// the card has expired.
func ValidatePayment(m orders.PaymentMethod, now time.Time) Result {
	var fe fieldErrors
	if strings.TrimSpace(m.CardholderName) == "" {
		fe.add("cardholderName", "cardholder name is required")
	}

	digits := orders.CardDigits(m.CardNumber)
	if len(digits) < 13 || len(digits) > 19 || !allDigits(digits) {
		fe.add("cardNumber", "card number must be 13 to 19 digits")
	}

	month, year, ok := m.Expiry()
	switch {
	case !ok:
		fe.add("expiryDate", "expiry date must be MM/YY")
	case year*12+month < now.Year()*12+int(now.Month()):
		fe.add("expiryDate", "card has expired")
	}

	if cvv := strings.TrimSpace(m.CVV); len(cvv) < 3 || len(cvv) > 4 || !allDigits(cvv) {
		fe.add("cvv", "CVV must be 3 or 4 digits")
	}
	return fe.result()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
