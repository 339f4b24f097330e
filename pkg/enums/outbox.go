package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateFarmerPayout   OutboxAggregateType = "farmer_payout"
	AggregateDriverEarnings OutboxAggregateType = "driver_earnings"
	AggregateReferral       OutboxAggregateType = "referral"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateFarmerPayout,
	AggregateDriverEarnings,
	AggregateReferral,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a ledger event.
type OutboxEventType string

const (
	EventOrderPaymentSettled       OutboxEventType = "order_payment_settled"
	EventFarmerPayoutCreated       OutboxEventType = "farmer_payout_created"
	EventFarmerPayoutStatusChanged OutboxEventType = "farmer_payout_status_changed"
	EventDriverEarningsPaid        OutboxEventType = "driver_earnings_paid"
	EventReferralProcessed         OutboxEventType = "referral_processed"
	EventReferralRewardGranted     OutboxEventType = "referral_reward_granted"
	EventFreeDeliveryApplied       OutboxEventType = "free_delivery_applied"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaymentSettled,
	EventFarmerPayoutCreated,
	EventFarmerPayoutStatusChanged,
	EventDriverEarningsPaid,
	EventReferralProcessed,
	EventReferralRewardGranted,
	EventFreeDeliveryApplied,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
