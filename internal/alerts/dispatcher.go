package alerts

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"pricetracker/internal/lib/pricing"
	"pricetracker/internal/models"
)

type MailSender interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

// DeliveryError marks a send failure for an alert that has already
// been marked triggered. The trigger is never rolled back.
type DeliveryError struct {
	AlertID int64
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("alert %d: delivery failed: %v", e.AlertID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

const alertBody = `<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="color: #2563eb;">Price Drop Alert!</h1>
	<div style="background: #f3f4f6; padding: 20px; border-radius: 10px; margin: 20px 0;">
		<h2 style="margin: 0 0 10px 0; color: #1f2937;">%s</h2>
		<p style="font-size: 24px; margin: 10px 0;">%s</p>
		<p style="color: #059669; font-weight: bold;">It's now below your target of %s!</p>
	</div>
	<a href="%s" style="display: inline-block; background: #2563eb; color: white; padding: 15px 30px; text-decoration: none; border-radius: 8px; font-weight: bold;">Buy Now</a>
	<p style="text-align: center;"><a href="%s" style="color: #94a3b8; font-size: 11px;">Stop receiving these alerts</a></p>
</body>
</html>`

const confirmationBody = `<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #1f2937;">
	<h1 style="color: #2563eb;">Price Alert Set!</h1>
	<p>We've started tracking the price of <strong>%s</strong> for you.</p>
	<div style="background: #f3f4f6; padding: 20px; border-radius: 10px; margin: 20px 0;">
		<p style="margin: 0; font-size: 16px;">We'll email you immediately when the price drops to or below:</p>
		<p style="font-size: 28px; font-weight: bold; margin: 10px 0; color: #10b981;">%s</p>
	</div>
	<a href="%s" style="display: inline-block; background: #2563eb; color: white; padding: 12px 24px; text-decoration: none; border-radius: 8px; font-weight: bold;">View Product</a>
	<p style="text-align: center;"><a href="%s" style="color: #94a3b8; font-size: 11px;">Remove this alert</a></p>
</body>
</html>`

// Dispatcher renders alert mail and hands it to the configured sender.
type Dispatcher struct {
	sender  MailSender
	baseURL string
}

func NewDispatcher(sender MailSender, baseURL string) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// DispatchAlert sends the price-drop notification for a triggered alert.
func (d *Dispatcher) DispatchAlert(ctx context.Context, alert models.PriceAlert, product models.Product) error {
	price := formatUSD(product.CurrentPrice.Decimal)

	priceLine := fmt.Sprintf(`<span style="color: #059669; font-weight: bold;">%s</span>`, price)
	if pricing.IsOnSale(product.CurrentPrice, product.ListPrice) {
		priceLine = fmt.Sprintf(
			`<span style="color: #6b7280; text-decoration: line-through; font-size: 18px;">%s</span> %s`,
			formatUSD(product.ListPrice.Decimal), priceLine,
		)
	}

	msg := models.EmailMessage{
		To:      alert.Email,
		Subject: fmt.Sprintf("Price Alert: %s is now %s!", product.Name, price),
		Body: fmt.Sprintf(alertBody,
			html.EscapeString(product.Name),
			priceLine,
			formatUSD(alert.TargetPrice),
			product.URL,
			d.unsubscribeLink(alert.Token),
		),
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return &DeliveryError{AlertID: alert.ID, Err: err}
	}

	return nil
}

// DispatchConfirmation sends the "alert set" mail after an alert is
// created or its target updated.
func (d *Dispatcher) DispatchConfirmation(ctx context.Context, alert models.PriceAlert, product models.Product) error {
	msg := models.EmailMessage{
		To:      alert.Email,
		Subject: fmt.Sprintf("Alert Set: Tracking %s", product.Name),
		Body: fmt.Sprintf(confirmationBody,
			html.EscapeString(product.Name),
			formatUSD(alert.TargetPrice),
			product.URL,
			d.unsubscribeLink(alert.Token),
		),
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return &DeliveryError{AlertID: alert.ID, Err: err}
	}

	return nil
}

func (d *Dispatcher) unsubscribeLink(token string) string {
	return d.baseURL + "/unsubscribe/" + token
}

func formatUSD(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
