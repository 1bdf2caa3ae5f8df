package enums

import "fmt"

// NotificationKind identifies the fact carried by an emitted notification.
type NotificationKind string

const (
	NotificationKindOrderCreated         NotificationKind = "order_created"
	NotificationKindOrderStatusChanged   NotificationKind = "order_status_changed"
	NotificationKindPrescriptionRejected NotificationKind = "prescription_rejected"
	NotificationKindLowStock             NotificationKind = "low_stock"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOrderCreated,
	NotificationKindOrderStatusChanged,
	NotificationKindPrescriptionRejected,
	NotificationKindLowStock,
}

// String implements fmt.Stringer.
func (k NotificationKind) String() string {
	return string(k)
}

// IsValid checks whether the given kind matches the canonical enum.
func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
