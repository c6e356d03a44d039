package sender

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"checkout-service/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// OrderMail carries what the confirmation and payment-request mails render.
type OrderMail struct {
	To           string
	CustomerName string
	OrderID      string
	Items        []models.ProductDetail
	ShippingFee  int64
	Total        int64
	Currency     string
	CardBrand    string
	PaymentURL   string
}

type SubscriptionMail struct {
	To             string
	CustomerName   string
	SubscriptionID string
	Status         string
	Items          []models.ProductDetail
	Currency       string
	PaymentURL     string
}

const (
	tmplOrderConfirmation   = "order_confirmation.html"
	tmplPaymentRequest      = "payment_request.html"
	tmplSubscriptionPayment = "subscription_payment_request.html"
)

var subjects = map[string]string{
	tmplOrderConfirmation:   "Thank you for your order",
	tmplPaymentRequest:      "Payment required to complete your order",
	tmplSubscriptionPayment: "Action needed: subscription payment",
}

// Mailer renders the checkout mails and hands them to an EmailSender.
type Mailer struct {
	sender    EmailSender
	templates *template.Template
}

func NewMailer(s EmailSender) (*Mailer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"money": FormatAmount,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Mailer{sender: s, templates: tmpl}, nil
}

func (m *Mailer) SendOrderConfirmation(ctx context.Context, mail OrderMail) error {
	return m.send(ctx, mail.To, tmplOrderConfirmation, mail)
}

func (m *Mailer) SendPaymentRequest(ctx context.Context, mail OrderMail) error {
	return m.send(ctx, mail.To, tmplPaymentRequest, mail)
}

func (m *Mailer) SendSubscriptionPaymentRequest(ctx context.Context, mail SubscriptionMail) error {
	return m.send(ctx, mail.To, tmplSubscriptionPayment, mail)
}

func (m *Mailer) send(ctx context.Context, to, name string, data interface{}) error {
	if to == "" {
		return fmt.Errorf("%s: no recipient", name)
	}
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	if _, err := m.sender.SendEmail(ctx, to, subjects[name], buf.String()); err != nil {
		return err
	}
	return nil
}

var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// FormatAmount renders a minor-unit amount, e.g. 4500 jpy -> "4,500 JPY",
// 1999 usd -> "19.99 USD".
func FormatAmount(amount int64, currency string) string {
	cur := strings.ToLower(currency)
	neg := amount < 0
	if neg {
		amount = -amount
	}
	var s string
	if zeroDecimal[cur] {
		s = groupThousands(amount)
	} else {
		s = fmt.Sprintf("%s.%02d", groupThousands(amount/100), amount%100)
	}
	if neg {
		s = "-" + s
	}
	return s + " " + strings.ToUpper(cur)
}

func groupThousands(n int64) string {
	digits := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
