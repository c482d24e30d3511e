package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type HTTPConfig struct {
	BaseURL  string
	APIKey   string
	Currency string
	Timeout  time.Duration
}

// HTTPClient calls a REST card gateway. Requests go through a circuit breaker
// that only counts transport errors and 5xx answers as failures.
type HTTPClient struct {
	cfg HTTPConfig
	hc  *http.Client
	cb  *gobreaker.CircuitBreaker[[]byte]
	log *zap.Logger
}

func NewHTTPClient(cfg HTTPConfig, log *zap.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &HTTPClient{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var pe *Error
			if errors.As(err, &pe) {
				return !pe.Retryable
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return c
}

type intentRequest struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type intentResponse struct {
	ClientSecret string `json:"client_secret"`
	Customer     string `json:"customer"`
	EphemeralKey string `json:"ephemeral_key"`
}

type intentStatusResponse struct {
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type card struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	CVC      string `json:"cvc"`
	Name     string `json:"name"`
}

type chargeRequest struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Card     card   `json:"card"`
}

type chargeResponse struct {
	ID                 string `json:"id"`
	Status             string `json:"status"` // succeeded | failed
	ConfirmationNumber string `json:"confirmation_number"`
	FailureMessage     string `json:"failure_message"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) CreatePaymentIntent(ctx context.Context, orderID string, amount orders.Cents) (Intent, error) {
	var resp intentResponse
	err := c.post(ctx, "/v1/payment_intents", orderID, intentRequest{
		OrderID:  orderID,
		Amount:   int64(amount),
		Currency: strings.ToLower(c.cfg.Currency),
	}, &resp)
	if err != nil {
		return Intent{}, err
	}
	return Intent{
		ClientSecret: resp.ClientSecret,
		CustomerID:   resp.Customer,
		EphemeralKey: resp.EphemeralKey,
	}, nil
}

func (c *HTTPClient) GetPaymentIntent(ctx context.Context, orderID string) (IntentState, error) {
	var resp intentStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(orderID), "", nil, &resp); err != nil {
		return IntentState{}, err
	}
	return IntentState{Status: IntentStatus(resp.Status), Amount: orders.Cents(resp.Amount)}, nil
}

func (c *HTTPClient) ProcessPayment(ctx context.Context, method orders.PaymentMethod, amount orders.Cents, orderID string) (Result, error) {
	month, year, ok := method.Expiry()
	if !ok {
		return Result{}, &Error{Code: "invalid_expiry", Reason: "invalid expiration date"}
	}
	var resp chargeResponse
	err := c.post(ctx, "/v1/charges", orderID, chargeRequest{
		OrderID:  orderID,
		Amount:   int64(amount),
		Currency: strings.ToLower(c.cfg.Currency),
		Card: card{
			Number:   orders.CardDigits(method.CardNumber),
			ExpMonth: month,
			ExpYear:  year,
			CVC:      method.CVV,
			Name:     method.CardholderName,
		},
	}, &resp)
	if err != nil {
		return Result{}, err
	}
	if resp.Status != "succeeded" {
		msg := resp.FailureMessage
		if msg == "" {
			msg = "payment declined"
		}
		return Result{Success: false, OrderID: orderID, Error: msg}, nil
	}
	return Result{Success: true, OrderID: orderID, ConfirmationNumber: resp.ConfirmationNumber}, nil
}

func (c *HTTPClient) post(ctx context.Context, path, idemKey string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, idemKey, in, out)
}

// do sends one request through the breaker. in may be nil for reads; idemKey
// is only sent when set.
func (c *HTTPClient) do(ctx context.Context, method, path, idemKey string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		body = b
	}

	raw, err := c.cb.Execute(func() ([]byte, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idemKey != "" {
			req.Header.Set("Idempotency-Key", idemKey)
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		res, err := c.hc.Do(req)
		if err != nil {
			return nil, &Error{Reason: "gateway unreachable", Retryable: true, Err: err}
		}
		defer res.Body.Close()
		b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return nil, &Error{Reason: "read gateway response", Retryable: true, Err: err}
		}
		if res.StatusCode >= 300 {
			return nil, statusError(res.StatusCode, b)
		}
		return b, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Reason: "gateway temporarily unavailable", Retryable: true, Err: ErrGatewayUnavailable}
	}
	if err != nil {
		c.log.Warn("gateway call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Reason: "malformed gateway response", Retryable: true, Err: err}
	}
	return nil
}

func statusError(code int, b []byte) *Error {
	var eb errorBody
	_ = json.Unmarshal(b, &eb)
	reason := eb.Error.Message
	if reason == "" {
		reason = http.StatusText(code)
	}
	return &Error{
		Code:      eb.Error.Code,
		Reason:    reason,
		Retryable: code >= 500 || code == http.StatusTooManyRequests,
	}
}
