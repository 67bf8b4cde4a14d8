package service

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	eventDomain "github.com/sakashimaa/storefront/pkg/domain"
	"github.com/sakashimaa/storefront/services/notification/internal/domain"
	"github.com/shopspring/decimal"
)

var emailLayout = template.Must(template.New("email").Funcs(template.FuncMap{
	"money": money,
}).Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2>{{.Heading}}</h2>
<p>Hi {{.Name}},</p>
{{range .Lines}}<p>{{.}}</p>
{{end}}{{if .Items}}<table style="width: 100%; border-collapse: collapse;">
<tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th></tr>
{{range .Items}}<tr><td>{{.Name}}</td><td align="center">{{.Quantity}}</td><td align="right">₹{{money .Price}}</td></tr>
{{end}}</table>
{{end}}<p>Order number: <strong>{{.OrderNumber}}</strong></p>
</div>`))

type emailView struct {
	Heading     string
	Name        string
	OrderNumber string
	Lines       []string
	Items       []eventDomain.OrderItem
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func render(to eventDomain.Recipient, subject string, view emailView) (domain.Email, error) {
	view.Name = to.Name
	if view.Name == "" {
		view.Name = "there"
	}

	var buf bytes.Buffer
	if err := emailLayout.Execute(&buf, view); err != nil {
		return domain.Email{}, fmt.Errorf("render %q: %w", subject, err)
	}

	return domain.Email{To: to.Email, Subject: subject, HTML: buf.String()}, nil
}

// statusTitle turns "return_requested" into "Return Requested".
func statusTitle(status string) string {
	words := strings.Split(status, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func orderCreatedEmail(e eventDomain.OrderCreatedEvent) (domain.Email, error) {
	return render(e.Recipient, "Order Confirmation - "+e.OrderNumber, emailView{
		Heading:     "Thank you for your order!",
		OrderNumber: e.OrderNumber,
		Items:       e.Items,
		Lines: []string{
			"We have received your order and will start processing it soon.",
			"Total: ₹" + money(e.Total),
			"Payment method: " + e.PaymentMethod,
			"Estimated delivery: " + e.EstimatedDelivery.Format("02 Jan 2006"),
		},
	})
}

func orderCancelledEmail(e eventDomain.OrderCancelledEvent) (domain.Email, error) {
	lines := []string{"Your order has been cancelled."}
	if e.Reason != "" {
		lines = append(lines, "Reason: "+e.Reason)
	}
	lines = append(lines, "Any payment made will be refunded within 5-7 business days.")

	return render(e.Recipient, "Order Cancelled - "+e.OrderNumber, emailView{
		Heading:     "Order cancelled",
		OrderNumber: e.OrderNumber,
		Items:       e.Items,
		Lines:       lines,
	})
}

func statusChangedEmail(e eventDomain.OrderStatusChangedEvent) (domain.Email, error) {
	title := statusTitle(e.Status)
	lines := []string{"Your order status is now: " + title + "."}
	if e.TrackingNumber != "" {
		lines = append(lines, fmt.Sprintf("Tracking number: %s (%s)", e.TrackingNumber, e.Carrier))
	}
	if e.Note != "" {
		lines = append(lines, e.Note)
	}

	return render(e.Recipient, "Order "+title+" - "+e.OrderNumber, emailView{
		Heading:     "Order update",
		OrderNumber: e.OrderNumber,
		Lines:       lines,
	})
}

func returnRequestedEmail(e eventDomain.ReturnRequestedEvent) (domain.Email, error) {
	return render(e.Recipient, "Return Request Received - "+e.OrderNumber, emailView{
		Heading:     "We received your return request",
		OrderNumber: e.OrderNumber,
		Lines: []string{
			"Reason: " + e.Reason,
			"We will review it and get back to you shortly.",
		},
	})
}

func exchangeRequestedEmail(e eventDomain.ExchangeRequestedEvent) (domain.Email, error) {
	lines := []string{"Reason: " + e.Reason}
	switch {
	case e.PriceDifference.IsPositive():
		lines = append(lines, "Amount payable for the new item: ₹"+money(e.PriceDifference))
	case e.PriceDifference.IsNegative():
		lines = append(lines, "Amount to be refunded: ₹"+money(e.PriceDifference.Abs()))
	}
	lines = append(lines, "We will review it and get back to you shortly.")

	return render(e.Recipient, "Exchange Request Received - "+e.OrderNumber, emailView{
		Heading:     "We received your exchange request",
		OrderNumber: e.OrderNumber,
		Lines:       lines,
	})
}

func paymentCompletedEmail(e eventDomain.PaymentCompletedEvent) (domain.Email, error) {
	return render(e.Recipient, "Payment Successful - "+e.OrderNumber, emailView{
		Heading:     "Payment received",
		OrderNumber: e.OrderNumber,
		Lines: []string{
			"Amount paid: ₹" + money(e.Amount),
			"Payment ID: " + e.PaymentID,
			"Invoice number: " + e.InvoiceNumber,
		},
	})
}

func paymentFailedEmail(e eventDomain.PaymentFailedEvent) (domain.Email, error) {
	return render(e.Recipient, "Payment Failed - "+e.OrderNumber, emailView{
		Heading:     "Payment failed",
		OrderNumber: e.OrderNumber,
		Lines: []string{
			"We could not process your payment: " + e.Reason,
			"Your items have been released. You can place the order again at any time.",
		},
	})
}

func refundProcessedEmail(e eventDomain.RefundProcessedEvent) (domain.Email, error) {
	return render(e.Recipient, "Refund Processed - "+e.OrderNumber, emailView{
		Heading:     "Refund processed",
		OrderNumber: e.OrderNumber,
		Lines: []string{
			"Refund amount: ₹" + money(e.Amount),
			"Refund ID: " + e.RefundID,
			"It may take 5-7 business days to reflect in your account.",
		},
	})
}

func orderCreatedSMS(e eventDomain.OrderCreatedEvent) domain.SMS {
	return domain.SMS{
		To:   e.Recipient.Phone,
		Body: fmt.Sprintf("Your order %s has been placed. Total: ₹%s.", e.OrderNumber, money(e.Total)),
	}
}

func paymentCompletedSMS(e eventDomain.PaymentCompletedEvent) domain.SMS {
	return domain.SMS{
		To:   e.Recipient.Phone,
		Body: fmt.Sprintf("Your order %s has been confirmed! We'll notify you when it ships.", e.OrderNumber),
	}
}

func shippedSMS(e eventDomain.OrderStatusChangedEvent) domain.SMS {
	tracking := "Check your email for tracking details."
	if e.TrackingNumber != "" {
		tracking = "Tracking: " + e.TrackingNumber
	}

	return domain.SMS{
		To:   e.Recipient.Phone,
		Body: fmt.Sprintf("Great news! Your order %s has been shipped. %s", e.OrderNumber, tracking),
	}
}
