package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const maxResponseBody = 4 << 10

// Sender delivers one operation to the system of record.
type Sender interface {
	Send(ctx context.Context, op SyncOperation) (Ack, error)
}

// WebhookSender posts operation payloads to the order-of-record webhook.
type WebhookSender struct {
	url     string
	secret  string
	timeout time.Duration
	client  *http.Client
}

// NewWebhookSender creates a sender for url. A non-empty secret signs each body
// with HMAC-SHA256 in the X-Webhook-Signature header.
func NewWebhookSender(url, secret string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		url:     url,
		secret:  secret,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send posts the payload. 2xx is an Ack; anything else is a *SyncError,
// and an exceeded deadline is a *TimeoutError.
func (s *WebhookSender) Send(ctx context.Context, op SyncOperation) (Ack, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(op.Payload))
	if err != nil {
		return Ack{}, &SyncError{Message: "build request", Err: errors.Wrap(err, "new webhook request")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", op.IdempotencyKey.String())
	req.Header.Set("X-Sync-Operation", op.ID.String())
	if s.secret != "" {
		req.Header.Set("X-Webhook-Signature", "sha256="+Sign(s.secret, op.Payload))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return Ack{}, &TimeoutError{After: s.timeout, Err: err}
		}
		return Ack{}, &SyncError{Message: err.Error(), Err: errors.Wrap(err, "post webhook")}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Ack{}, &SyncError{StatusCode: resp.StatusCode, Message: msg}
	}
	return Ack{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
