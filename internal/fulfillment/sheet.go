package fulfillment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-blinds/internal/order"
	"github.com/noah-isme/backend-blinds/internal/pricing"
	"github.com/noah-isme/backend-blinds/internal/resilience"
)

// ErrNotificationFailed wraps every failure to hand an order to the factory
// sheet. The order itself is unaffected; the task is retried and eventually
// dead-lettered.
var ErrNotificationFailed = errors.New("fulfillment: notification failed")

// Doer sends a request with retries. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// SheetClient posts orders to the production spreadsheet endpoint.
type SheetClient struct {
	URL    string
	Secret string
	HTTP   Doer
	Now    func() time.Time
}

// NewHTTPClient builds the retrying, breaker-guarded client used for the
// sheet, with tracing on the transport.
func NewHTTPClient(timeout time.Duration, maxAttempts int, base time.Duration, jitter float64, breaker *resilience.Breaker) resilience.HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resilience.HTTPClient{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Breaker:     breaker,
		BaseBackoff: base,
		MaxAttempts: maxAttempts,
		Jitter:      jitter,
		Timeout:     timeout,
	}
}

// SheetRow is one manufacturable line as the factory sees it.
type SheetRow struct {
	LineID      string `json:"lineId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	pricing.LineSpecification
}

// SheetPayload is the JSON document posted per order.
type SheetPayload struct {
	OrderID    string                 `json:"orderId"`
	PlacedAt   time.Time              `json:"placedAt"`
	Customer   order.Customer         `json:"customer"`
	CouponCode string                 `json:"couponCode,omitempty"`
	Totals     pricing.CheckoutTotals `json:"totals"`
	Lines      []SheetRow             `json:"lines"`
}

// BuildPayload projects an order onto the sheet document.
func BuildPayload(o order.Order) SheetPayload {
	rows := make([]SheetRow, 0, len(o.Lines))
	for _, l := range o.Lines {
		rows = append(rows, SheetRow{
			LineID:            l.ID,
			ProductName:       l.ProductName,
			Quantity:          l.Quantity,
			LineSpecification: l.Specification,
		})
	}
	return SheetPayload{
		OrderID:    o.ID,
		PlacedAt:   o.CreatedAt,
		Customer:   o.Customer,
		CouponCode: o.CouponCode,
		Totals:     o.Totals,
		Lines:      rows,
	}
}

// Notify posts the order. Any non-2xx answer is a failure.
func (c SheetClient) Notify(ctx context.Context, o order.Order) error {
	ctx, span := otel.Tracer("fulfillment.SheetClient").Start(ctx, "SheetClient.Notify")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Int("order.lines", len(o.Lines)))

	if c.HTTP == nil {
		return fmt.Errorf("%w: http client not configured", ErrNotificationFailed)
	}
	if err := validateURL(c.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	body, err := json.Marshal(BuildPayload(o))
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrNotificationFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	ts := c.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "blinds-fulfillment/1.0")
	req.Header.Set("X-Idempotency-Key", o.ID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	if c.Secret != "" {
		req.Header.Set("X-Signature", Sign(c.Secret, ts, body))
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sheet responded %s", ErrNotificationFailed, resp.Status)
	}
	return nil
}

func (c SheetClient) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Sign is HMAC-SHA256 over "<ts>.<body>" with the shared secret.
func Sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid sheet url: %w", err)
	}
	if parsed.Host == "" {
		return errors.New("sheet url must include host")
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host == "localhost" || host == "127.0.0.1" {
			return nil
		}
		return errors.New("plain http sheet url only allowed for localhost")
	}
	return errors.New("sheet url must be http or https")
}
