package notifications

import (
	"fmt"

	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
)

func renderSubject(kind enums.NotificationKind, orderNumber string) string {
	switch kind {
	case enums.NotificationKindOrderConfirmation:
		return fmt.Sprintf("Order %s received", orderNumber)
	case enums.NotificationKindPaymentSuccess:
		return fmt.Sprintf("Payment received for order %s", orderNumber)
	case enums.NotificationKindOrderCancelled:
		return fmt.Sprintf("Order %s cancelled", orderNumber)
	default:
		return fmt.Sprintf("Update on order %s", orderNumber)
	}
}

func renderBody(msg Message) string {
	switch msg.Kind {
	case enums.NotificationKindOrderConfirmation:
		return fmt.Sprintf(
			"Thank you for your order. We have received order %s and will let you know as soon as it is confirmed.",
			msg.OrderNumber,
		)
	case enums.NotificationKindPaymentSuccess:
		body := fmt.Sprintf("We have received your payment for order %s.", msg.OrderNumber)
		if ref := msg.Data["gateway_reference"]; ref != "" {
			body += fmt.Sprintf(" Payment reference: %s.", ref)
		}
		return body + " Your order is now confirmed and will be prepared shortly."
	case enums.NotificationKindOrderCancelled:
		body := fmt.Sprintf("Order %s has been cancelled.", msg.OrderNumber)
		if reason := msg.Data["reason"]; reason != "" {
			body += fmt.Sprintf(" Reason: %s.", reason)
		}
		return body
	default:
		body := fmt.Sprintf("Order %s has a new status", msg.OrderNumber)
		if status := msg.Data["status"]; status != "" {
			body += fmt.Sprintf(": %s", status)
		}
		body += "."
		if tracking := msg.Data["tracking_number"]; tracking != "" {
			body += fmt.Sprintf(" Tracking number: %s.", tracking)
		}
		return body
	}
}
