package enums

import "fmt"

// DeliveryMethod is how the consumer receives the order.
type DeliveryMethod string

const (
	DeliveryMethodDelivery DeliveryMethod = "delivery"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

// IsValid reports whether the value is a known DeliveryMethod.
func (m DeliveryMethod) IsValid() bool {
	return m == DeliveryMethodDelivery || m == DeliveryMethodPickup
}

// ParseDeliveryMethod converts raw input into a DeliveryMethod. Empty input
// defaults to delivery.
func ParseDeliveryMethod(value string) (DeliveryMethod, error) {
	if value == "" {
		return DeliveryMethodDelivery, nil
	}
	m := DeliveryMethod(value)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid delivery method %q", value)
	}
	return m, nil
}

// OrderStatus is the payment-facing order lifecycle.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPaid,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// BatchStatus tracks a driver's delivery batch.
type BatchStatus string

const (
	BatchStatusAssigned   BatchStatus = "assigned"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// IsValid reports whether the value is a known BatchStatus.
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusAssigned, BatchStatusInProgress, BatchStatusCompleted, BatchStatusCancelled:
		return true
	}
	return false
}
