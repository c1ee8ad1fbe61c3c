// Package notify sends order confirmation email. It runs as an event listener:
// failures are contained at the dispatcher and never affect the checkout.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/niltonstano/storefront-orderflow/internal/events"
	"github.com/niltonstano/storefront-orderflow/internal/orders"
)

// SMTPConfig carries the sending account.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailListener sends an order confirmation for every order-created event.
type EmailListener struct {
	cfg SMTPConfig

	// send is injectable for tests; the default dials SMTP via go-mail.
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewEmailListener builds the listener.
func NewEmailListener(cfg SMTPConfig) *EmailListener {
	l := &EmailListener{cfg: cfg}
	l.send = l.dialAndSend
	return l
}

// Handle implements events.Handler for order-created.
func (l *EmailListener) Handle(ctx context.Context, ev events.Event) error {
	order, ok := ev.Payload.(orders.Order)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for event %s", ev.Payload, ev.Name)
	}

	msg := mail.NewMsg()
	if err := msg.From(l.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(order.CustomerEmail); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(fmt.Sprintf("Order confirmation %s", order.OrderID))
	msg.SetBodyString(mail.TypeTextHTML, confirmationHTML(order))

	return l.send(ctx, msg)
}

func (l *EmailListener) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(l.cfg.Host,
		mail.WithPort(l.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(l.cfg.Username),
		mail.WithPassword(l.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// confirmationHTML renders the order summary table.
func confirmationHTML(order orders.Order) string {
	var rows strings.Builder
	for _, item := range order.Items {
		fmt.Fprintf(&rows, `
			<tr>
				<td>%s</td>
				<td>%d</td>
				<td>%.2f</td>
				<td>%.2f</td>
			</tr>`, item.ProductID, item.Quantity, item.UnitPrice, item.UnitPrice*float64(item.Quantity))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
	<h2>Your order is confirmed</h2>
	<p>Order <strong>%s</strong> was created and is awaiting payment.</p>
	<table border="1" cellpadding="6" cellspacing="0">
		<thead>
			<tr><th>Product</th><th>Qty</th><th>Unit price</th><th>Line total</th></tr>
		</thead>
		<tbody>%s</tbody>
	</table>
	<p>Shipping: %s (%s), %.2f, delivery within %d days.</p>
	<p><strong>Total: %.2f</strong></p>
</body>
</html>`,
		order.OrderID, rows.String(),
		order.Shipping.Service, order.Shipping.Company, order.Shipping.Price, order.Shipping.DeadlineDays,
		order.Total)
}
