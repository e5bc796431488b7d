package audit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Webhook delivery headers.
const (
	SignatureHeader = "X-Webhook-Signature"
	TimestampHeader = "X-Webhook-Timestamp"
	EventIDHeader   = "X-Webhook-Event-ID"
)

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by SignPayload. The optional
// "sha256=" prefix sent on the wire is accepted.
func VerifySignature(payload []byte, secret, signature string) bool {
	const prefix = "sha256="
	if len(signature) > len(prefix) && signature[:len(prefix)] == prefix {
		signature = signature[len(prefix):]
	}
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

type WebhookOption func(*WebhookSink)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

// WithRetryDelays sets the pause before each retry. Its length is the number
// of retries.
func WithRetryDelays(delays ...time.Duration) WebhookOption {
	return func(s *WebhookSink) { s.retryDelays = delays }
}

// WebhookSink POSTs each event, signed with a shared secret, to every
// configured endpoint. Non-2xx responses and transport errors are retried.
type WebhookSink struct {
	endpoints   []string
	secret      string
	client      *http.Client
	retryDelays []time.Duration
}

func NewWebhookSink(endpoints []string, secret string, opts ...WebhookOption) (*WebhookSink, error) {
	for _, raw := range endpoints {
		if err := validateWebhookURL(raw); err != nil {
			return nil, err
		}
	}
	s := &WebhookSink{
		endpoints:   endpoints,
		secret:      secret,
		client:      &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{500 * time.Millisecond, 2 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid webhook url %q", raw)
	}
	return nil
}

func (s *WebhookSink) Record(ctx context.Context, e Event) error {
	payload, err := EncodeEvent(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	var errs []error
	for _, endpoint := range s.endpoints {
		if err := s.deliver(ctx, endpoint, e, payload); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", endpoint, err))
		}
	}
	return errors.Join(errs...)
}

func (s *WebhookSink) deliver(ctx context.Context, endpoint string, e Event, payload []byte) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = s.post(ctx, endpoint, e, payload); err == nil {
			return nil
		}
		if attempt >= len(s.retryDelays) {
			return err
		}
		select {
		case <-time.After(s.retryDelays[attempt]):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
	}
}

func (s *WebhookSink) post(ctx context.Context, endpoint string, e Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+SignPayload(payload, s.secret))
	req.Header.Set(TimestampHeader, time.Now().UTC().Format(time.RFC3339))
	req.Header.Set(EventIDHeader, e.ID.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain a little so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}
