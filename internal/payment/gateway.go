// Package payment talks to the card gateway, either through a hosted payment
// sheet or by charging card details directly.
package payment

import (
	"context"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
)

// Mode is picked once when the service is wired: Hosted or Direct.
type Mode interface{ isMode() }

type HostedConfig struct {
	MerchantDisplayName string
	ReturnURL           string
}

// Hosted: the gateway's sheet collects the card, local card validation is skipped.
type Hosted struct{ Config HostedConfig }

// Direct: card details are validated locally and charged server-side.
type Direct struct{}

func (Hosted) isMode() {}
func (Direct) isMode() {}

func IsHosted(m Mode) bool {
	_, ok := m.(Hosted)
	return ok
}

type Intent struct {
	ClientSecret string `json:"clientSecret"`
	CustomerID   string `json:"customerId"`
	EphemeralKey string `json:"ephemeralKey"`
}

// SheetParams is handed to the presentation layer to open the payment sheet.
type SheetParams struct {
	MerchantDisplayName string `json:"merchantDisplayName"`
	ClientSecret        string `json:"clientSecret"`
	CustomerID          string `json:"customerId"`
	EphemeralKey        string `json:"ephemeralKey"`
	ReturnURL           string `json:"returnURL"`
}

func (h Hosted) SheetParams(in Intent) SheetParams {
	return SheetParams{
		MerchantDisplayName: h.Config.MerchantDisplayName,
		ClientSecret:        in.ClientSecret,
		CustomerID:          in.CustomerID,
		EphemeralKey:        in.EphemeralKey,
		ReturnURL:           h.Config.ReturnURL,
	}
}

type SheetOutcome string

const (
	SheetSuccess       SheetOutcome = "success"
	SheetUserCancelled SheetOutcome = "userCancelled"
	SheetFailed        SheetOutcome = "failed"
)

type SheetResult struct {
	Outcome SheetOutcome `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
}

type IntentStatus string

const (
	IntentRequiresPayment IntentStatus = "requires_payment_method"
	IntentProcessing      IntentStatus = "processing"
	IntentSucceeded       IntentStatus = "succeeded"
	IntentCanceled        IntentStatus = "canceled"
)

// IntentState is what the gateway itself reports for an intent. The sheet's
// own result is only a hint; this is the record of whether money moved.
type IntentState struct {
	Status IntentStatus `json:"status"`
	Amount orders.Cents `json:"amount"`
}

func (s IntentState) Succeeded() bool { return s.Status == IntentSucceeded }

type Result struct {
	Success            bool   `json:"success"`
	OrderID            string `json:"orderId,omitempty"`
	ConfirmationNumber string `json:"confirmationNumber,omitempty"`
	Error              string `json:"error,omitempty"`
}

// Gateway is one payment provider. orderID doubles as the idempotency key, so
// callers mint a new one per attempt.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, orderID string, amount orders.Cents) (Intent, error)
	ProcessPayment(ctx context.Context, method orders.PaymentMethod, amount orders.Cents, orderID string) (Result, error)
	GetPaymentIntent(ctx context.Context, orderID string) (IntentState, error)
}
