package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/invoice"
	"github.com/kiwari-pos/fulfillment/internal/order"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when the internal API answers 404.
var ErrNotFound = errors.New("not found upstream")

const maxErrorBody = 16 << 10

// RejectedError means the internal API refused an authoritative call.
// Message is the server's own explanation, kept verbatim for display.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// Client talks to the internal order, invoice, shipping and customer endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client. Every call is bounded by timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetOrder fetches an order with its line items, packages, addresses and totals.
func (c *Client) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	var dto orderDTO
	if err := c.do(ctx, http.MethodGet, "/salesorders/"+url.PathEscape(id), nil, &dto); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return dto.toDomain()
}

// UpdateOrder applies a partial update and returns the server's copy of the order.
func (c *Client) UpdateOrder(ctx context.Context, id string, patch OrderPatch) (*order.Order, error) {
	var dto orderDTO
	if err := c.do(ctx, http.MethodPut, "/salesorders/"+url.PathEscape(id), patch, &dto); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "update order %s", id)
	}
	return dto.toDomain()
}

// PackingResult is the shipping service's answer to send-to-packing.
type PackingResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SendToPacking asks the shipping service to start packing the order.
// A result with Success false is returned without error.
func (c *Client) SendToPacking(ctx context.Context, id string) (PackingResult, error) {
	var res PackingResult
	body := map[string]string{"order_id": id}
	if err := c.do(ctx, http.MethodPost, "/shipping/send-to-packing", body, &res); err != nil {
		return PackingResult{}, errors.Wrapf(err, "send order %s to packing", id)
	}
	return res, nil
}

// ListInvoices returns every invoice of the customer.
func (c *Client) ListInvoices(ctx context.Context, customerID string) ([]invoice.Invoice, error) {
	var resp struct {
		Invoices []invoiceDTO `json:"invoices"`
	}
	path := "/invoices?customer_id=" + url.QueryEscape(customerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "list invoices for customer %s", customerID)
	}
	out := make([]invoice.Invoice, 0, len(resp.Invoices))
	for _, dto := range resp.Invoices {
		inv, err := dto.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

// CreateInvoice invoices the sales order known to the system of record as externalID.
func (c *Client) CreateInvoice(ctx context.Context, externalID, agentID string) (invoice.Invoice, error) {
	var dto invoiceDTO
	body := map[string]string{"salesorder_id": externalID, "agent_id": agentID}
	if err := c.do(ctx, http.MethodPost, "/invoices", body, &dto); err != nil {
		return invoice.Invoice{}, errors.Wrapf(err, "create invoice for %s", externalID)
	}
	return dto.toDomain()
}

// Customer is the customer record as currently stored, independent of
// the addresses captured on an order.
type Customer struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Email           string        `json:"email"`
	Phone           string        `json:"phone"`
	Status          string        `json:"status"`
	BillingAddress  order.Address `json:"billing_address"`
	ShippingAddress order.Address `json:"shipping_address"`
}

// GetCustomer fetches a customer by id.
func (c *Client) GetCustomer(ctx context.Context, id string) (Customer, error) {
	var cust Customer
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &cust); err != nil {
		return Customer{}, errors.Wrapf(err, "get customer %s", id)
	}
	return cust, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RejectedError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// errorMessage extracts the server's explanation from an error body.
// JSON bodies carry it under "error" or "message"; anything else is used as is.
func errorMessage(status int, raw []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &env) == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}
