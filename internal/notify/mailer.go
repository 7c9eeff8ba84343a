package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// DefaultBrevoURL is the Brevo API base URL.
const DefaultBrevoURL = "https://api.brevo.com"

// BankDetails are the offline payment instructions included in every
// order email.
type BankDetails struct {
	BankName      string
	AccountName   string
	AccountNumber string
}

// MailerConfig configures a Mailer.
type MailerConfig struct {
	BaseURL   string
	APIKey    string
	FromName  string
	FromEmail string
	AdminName string
	Bank      BankDetails
	Timeout   time.Duration
}

// Mailer sends order emails through the Brevo transactional email API. Calls
// go through a circuit breaker so that an unavailable provider fails fast.
type Mailer struct {
	cfg    MailerConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker[struct{}]
	lg     *zap.Logger
}

var (
	_ Sender   = (*Mailer)(nil)
	_ Splitter = (*Mailer)(nil)
)

// NewMailer creates a Mailer. A nil client gets an instrumented default.
func NewMailer(cfg MailerConfig, client *http.Client, lg *zap.Logger) *Mailer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBrevoURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	m := &Mailer{cfg: cfg, client: client, lg: lg}
	m.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "brevo",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// Rejected requests say nothing about provider health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return m
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brevo: status %d: %s", e.StatusCode, e.Body)
}

type recipient struct {
	Name  string
	Email string
}

type message struct {
	To      recipient
	Subject string
	HTML    string
	Text    string
}

// NotifyOrderPlaced emails the customer and, when configured, the shop
// administrator. Both are attempted even if the first fails.
func (m *Mailer) NotifyOrderPlaced(ctx context.Context, p order.Placed) error {
	return sendAll(ctx, m.Deliveries(p))
}

// Deliveries implements Splitter with one delivery per recipient.
func (m *Mailer) Deliveries(p order.Placed) []Delivery {
	var out []Delivery
	if p.CustomerEmail != "" {
		msg := m.customerMessage(p)
		out = append(out, Delivery{
			Channel: "email:customer",
			Send:    func(ctx context.Context) error { return m.deliver(ctx, p.Order.ID, msg) },
		})
	}
	if p.AdminEmail != "" {
		msg := m.adminMessage(p)
		out = append(out, Delivery{
			Channel: "email:admin",
			Send:    func(ctx context.Context) error { return m.deliver(ctx, p.Order.ID, msg) },
		})
	}
	return out
}

func (m *Mailer) deliver(ctx context.Context, orderID string, msg message) error {
	_, err := m.cb.Execute(func() (struct{}, error) {
		return struct{}{}, m.post(ctx, msg)
	})
	if err != nil {
		return &NotificationError{Channel: "email:" + msg.To.Email, OrderID: orderID, Err: err}
	}
	return nil
}

func (m *Mailer) post(ctx context.Context, msg message) error {
	body := m.encode(msg)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(m.cfg.BaseURL, "/")+"/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("api-key", m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (m *Mailer) encode(msg message) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.Field("sender", func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("name", func(e *jx.Encoder) { e.Str(m.cfg.FromName) })
		e.Field("email", func(e *jx.Encoder) { e.Str(m.cfg.FromEmail) })
		e.ObjEnd()
	})
	e.Field("to", func(e *jx.Encoder) {
		e.ArrStart()
		e.ObjStart()
		e.Field("email", func(e *jx.Encoder) { e.Str(msg.To.Email) })
		if msg.To.Name != "" {
			e.Field("name", func(e *jx.Encoder) { e.Str(msg.To.Name) })
		}
		e.ObjEnd()
		e.ArrEnd()
	})
	e.Field("subject", func(e *jx.Encoder) { e.Str(msg.Subject) })
	e.Field("htmlContent", func(e *jx.Encoder) { e.Str(msg.HTML) })
	e.Field("textContent", func(e *jx.Encoder) { e.Str(msg.Text) })
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

func (m *Mailer) customerMessage(p order.Placed) message {
	o := p.Order
	var text, body strings.Builder

	fmt.Fprintf(&text, "Hi %s,\n\nThank you for your order %s.\n\n", o.Customer.Name, o.ID)
	fmt.Fprintf(&body, "<p>Hi %s,</p><p>Thank you for your order <b>%s</b>.</p>",
		html.EscapeString(o.Customer.Name), html.EscapeString(o.ID))

	writeSummary(&text, &body, o)

	b := m.cfg.Bank
	if b.AccountNumber != "" {
		fmt.Fprintf(&text, "\nPlease pay %s by bank transfer:\nBank: %s\nAccount name: %s\nAccount number: %s\nReference: %s\n",
			o.TotalPrice.StringFixed(2), b.BankName, b.AccountName, b.AccountNumber, o.ID)
		fmt.Fprintf(&body, "<p>Please pay <b>$%s</b> by bank transfer:</p><ul><li>Bank: %s</li><li>Account name: %s</li><li>Account number: %s</li><li>Reference: %s</li></ul>",
			o.TotalPrice.StringFixed(2), html.EscapeString(b.BankName), html.EscapeString(b.AccountName),
			html.EscapeString(b.AccountNumber), html.EscapeString(o.ID))
	}

	return message{
		To:      recipient{Name: o.Customer.Name, Email: p.CustomerEmail},
		Subject: "Your order " + o.ID,
		HTML:    body.String(),
		Text:    text.String(),
	}
}

func (m *Mailer) adminMessage(p order.Placed) message {
	o := p.Order
	c := o.Customer
	var text, body strings.Builder

	fmt.Fprintf(&text, "New order %s from %s <%s>, phone %s.\nDelivery: %s %s\n\n",
		o.ID, c.Name, c.Email, c.ContactPhone, c.DeliveryMethod, c.ShippingAddress)
	fmt.Fprintf(&body, "<p>New order <b>%s</b> from %s &lt;%s&gt;, phone %s.</p><p>Delivery: %s %s</p>",
		html.EscapeString(o.ID), html.EscapeString(c.Name), html.EscapeString(c.Email),
		html.EscapeString(c.ContactPhone), html.EscapeString(string(c.DeliveryMethod)),
		html.EscapeString(c.ShippingAddress))

	writeSummary(&text, &body, o)

	return message{
		To:      recipient{Name: m.cfg.AdminName, Email: p.AdminEmail},
		Subject: "New order " + o.ID,
		HTML:    body.String(),
		Text:    text.String(),
	}
}

func writeSummary(text, body *strings.Builder, o order.Order) {
	body.WriteString("<table><tr><th>Item</th><th>Qty</th><th>Unit</th><th>Total</th></tr>")
	for _, it := range o.Items {
		fmt.Fprintf(text, "%d x %s @ $%s = $%s\n",
			it.Quantity, it.ProductName, it.UnitPrice.StringFixed(2), it.LineTotal().StringFixed(2))
		fmt.Fprintf(body, "<tr><td>%s</td><td>%d</td><td>$%s</td><td>$%s</td></tr>",
			html.EscapeString(it.ProductName), it.Quantity, it.UnitPrice.StringFixed(2), it.LineTotal().StringFixed(2))
	}
	body.WriteString("</table>")

	fmt.Fprintf(text, "\nSubtotal: $%s\nDiscount: $%s\nTotal: $%s\n",
		o.Subtotal.StringFixed(2), o.Discount.StringFixed(2), o.TotalPrice.StringFixed(2))
	fmt.Fprintf(body, "<p>Subtotal: $%s<br>Discount: $%s<br><b>Total: $%s</b></p>",
		o.Subtotal.StringFixed(2), o.Discount.StringFixed(2), o.TotalPrice.StringFixed(2))
}
