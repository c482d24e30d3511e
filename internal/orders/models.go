package orders

import "time"

type CartItem struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Price     Cents  `json:"price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image"`
	Category  string `json:"category,omitempty"`
}

type ShippingAddress struct {
	Street        string `json:"street"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
	SaveAsDefault bool   `json:"saveAsDefault,omitempty"`
}

// PaymentMethod carries raw card data and is never stored on an Order.
type PaymentMethod struct {
	CardNumber     string `json:"cardNumber"`
	ExpiryDate     string `json:"expiryDate"` // MM/YY
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholderName"`
	IsDefault      bool   `json:"isDefault,omitempty"`
}

type Order struct {
	OrderID            string          `json:"orderId"`
	ConfirmationNumber string          `json:"confirmationNumber"`
	UserID             string          `json:"userId"`
	Items              []CartItem      `json:"items"`
	ShippingAddress    ShippingAddress `json:"shippingAddress"`
	Currency           string          `json:"currency"`
	Subtotal           Cents           `json:"subtotal"`
	Tax                Cents           `json:"tax"`
	Shipping           Cents           `json:"shipping"`
	Total              Cents           `json:"total"`
	Status             Status          `json:"status"` // lihat status.go
	PaymentReference   string          `json:"paymentReference,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	EstimatedDelivery  time.Time       `json:"estimatedDelivery"`
}

type Statistics struct {
	TotalOrders       int   `json:"totalOrders"`
	TotalSpent        Cents `json:"totalSpent"`
	AverageOrderValue Cents `json:"averageOrderValue"`
}

// CloneItems returns a copy that shares nothing with items.
func CloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

func (o Order) clone() Order {
	o.Items = CloneItems(o.Items)
	return o
}
