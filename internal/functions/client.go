// Package functions calls the remote order functions: payment order
// creation, invoice rendering and confirmation mail.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	PathCreatePaymentOrder      = "/createPaymentOrder"
	PathGenerateInvoice         = "/generateInvoicePDF"
	PathSendOrderConfirmation   = "/sendOrderConfirmation"
	PathSendContactConfirmation = "/sendContactConfirmation"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

var (
	ErrBadResponse = errors.New("unexpected response from remote function")
	ErrUnavailable = errors.New("remote functions unavailable")
)

// StatusError is returned when a function answers with a non-2xx status.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Path, e.Status, e.Body)
}

type PaymentOrderRequest struct {
	Amount  float64 `json:"amount"`
	Receipt string  `json:"receipt"`
}

// PaymentOrder is the gateway order a client pays against. Amount is in the
// currency's minor unit.
type PaymentOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Client struct {
	baseURL  string
	http     *http.Client
	settings gobreaker.Settings
	// one breaker per path; a failing mail or invoice function must not
	// stop payment order creation
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
	log      *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithBreakerSettings replaces the circuit breaker configuration used for
// every path. The breaker name gets the path appended.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(cl *Client) { cl.settings = st }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		settings: gobreaker.Settings{
			Name:        "functions",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breakers = make(map[string]*gobreaker.CircuitBreaker[[]byte])
	for _, path := range []string{PathCreatePaymentOrder, PathGenerateInvoice, PathSendOrderConfirmation, PathSendContactConfirmation} {
		st := c.settings
		st.Name = c.settings.Name + path
		c.breakers[path] = gobreaker.NewCircuitBreaker[[]byte](st)
	}
	return c
}

func (c *Client) CreatePaymentOrder(ctx context.Context, req PaymentOrderRequest) (*PaymentOrder, error) {
	body, err := c.call(ctx, PathCreatePaymentOrder, req)
	if err != nil {
		return nil, err
	}

	id := gjson.GetBytes(body, "id")
	if !id.Exists() || id.String() == "" {
		return nil, fmt.Errorf("%w: payment order without id", ErrBadResponse)
	}
	return &PaymentOrder{
		ID:       id.String(),
		Amount:   gjson.GetBytes(body, "amount").Int(),
		Currency: gjson.GetBytes(body, "currency").String(),
	}, nil
}

// GenerateInvoice renders the order's invoice and returns where it was
// stored. An empty path means the function produced nothing.
func (c *Client) GenerateInvoice(ctx context.Context, order *domain.Order) (string, error) {
	body, err := c.call(ctx, PathGenerateInvoice, map[string]interface{}{"orderDetails": order})
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "storagePath").String(), nil
}

func (c *Client) SendOrderConfirmation(ctx context.Context, order *domain.Order) error {
	_, err := c.call(ctx, PathSendOrderConfirmation, map[string]interface{}{"orderDetails": order})
	return err
}

func (c *Client) SendContactConfirmation(ctx context.Context, q *domain.ContactQuery) error {
	_, err := c.call(ctx, PathSendContactConfirmation, map[string]interface{}{"formDetails": q})
	return err
}

func (c *Client) call(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	body, err := c.breakers[path].Execute(func() ([]byte, error) {
		return c.post(ctx, path, reqBody)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	if err != nil {
		c.log.Warn("remote function failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Path: path, Status: resp.StatusCode, Body: string(body)}
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s body is not JSON", ErrBadResponse, path)
	}
	return body, nil
}
