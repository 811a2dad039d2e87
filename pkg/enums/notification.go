package enums

// NotificationKind classifies outbound customer emails.
type NotificationKind string

const (
	NotificationKindOrderConfirmation NotificationKind = "order_confirmation"
	NotificationKindPaymentSuccess    NotificationKind = "payment_success"
	NotificationKindOrderCancelled    NotificationKind = "order_cancelled"
	NotificationKindStatusChange      NotificationKind = "status_change"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOrderConfirmation,
	NotificationKindPaymentSuccess,
	NotificationKindOrderCancelled,
	NotificationKindStatusChange,
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}
