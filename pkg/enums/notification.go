package enums

import "fmt"

// NotificationKind selects the message template sent to a recipient.
type NotificationKind string

const (
	NotificationKindRegistrationConfirm NotificationKind = "registration_confirm"
	NotificationKindOrderPlaced         NotificationKind = "order_placed"
	NotificationKindOrderStateChanged   NotificationKind = "order_state_changed"
	NotificationKindPasswordReset       NotificationKind = "password_reset"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindRegistrationConfirm,
	NotificationKindOrderPlaced,
	NotificationKindOrderStateChanged,
	NotificationKindPasswordReset,
}

// IsValid checks whether the given kind matches a known template.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
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
