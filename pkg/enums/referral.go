package enums

import "fmt"

// ReferralType is the referrer role crossed with the referred role.
type ReferralType string

const (
	ReferralConsumerToConsumer ReferralType = "consumer_to_consumer"
	ReferralConsumerToFarmer   ReferralType = "consumer_to_farmer"
	ReferralFarmerToConsumer   ReferralType = "farmer_to_consumer"
	ReferralFarmerToFarmer     ReferralType = "farmer_to_farmer"
)

var validReferralTypes = []ReferralType{
	ReferralConsumerToConsumer,
	ReferralConsumerToFarmer,
	ReferralFarmerToConsumer,
	ReferralFarmerToFarmer,
}

// ClassifyReferral derives the referral type for a referrer/referred pair.
// Only consumers and farmers take part in the program.
func ClassifyReferral(referrer, referred UserRole) (ReferralType, error) {
	switch {
	case referrer == UserRoleConsumer && referred == UserRoleConsumer:
		return ReferralConsumerToConsumer, nil
	case referrer == UserRoleConsumer && referred == UserRoleFarmer:
		return ReferralConsumerToFarmer, nil
	case referrer == UserRoleFarmer && referred == UserRoleConsumer:
		return ReferralFarmerToConsumer, nil
	case referrer == UserRoleFarmer && referred == UserRoleFarmer:
		return ReferralFarmerToFarmer, nil
	}
	return "", fmt.Errorf("roles %q -> %q cannot take part in referrals", referrer, referred)
}

func (t ReferralType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ReferralType.
func (t ReferralType) IsValid() bool {
	for _, candidate := range validReferralTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ReferredConsumer reports whether the referred side is a consumer, which makes
// the referral earn free deliveries rather than farmer cashback.
func (t ReferralType) ReferredConsumer() bool {
	return t == ReferralConsumerToConsumer || t == ReferralFarmerToConsumer
}

// ParseReferralType converts raw input into a ReferralType.
func ParseReferralType(value string) (ReferralType, error) {
	for _, candidate := range validReferralTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid referral type %q", value)
}

// ReferralStatus tracks a user's referral lifecycle: pending -> active -> completed.
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusActive    ReferralStatus = "active"
	ReferralStatusCompleted ReferralStatus = "completed"
)

var referralStatusOrder = map[ReferralStatus]int{
	ReferralStatusPending:   0,
	ReferralStatusActive:    1,
	ReferralStatusCompleted: 2,
}

func (s ReferralStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReferralStatus.
func (s ReferralStatus) IsValid() bool {
	_, ok := referralStatusOrder[s]
	return ok
}

// CanTransitionTo allows forward moves only; skipping active is permitted.
func (s ReferralStatus) CanTransitionTo(next ReferralStatus) bool {
	from, ok := referralStatusOrder[s]
	if !ok {
		return false
	}
	to, ok := referralStatusOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// ParseReferralStatus converts raw input into a ReferralStatus.
func ParseReferralStatus(value string) (ReferralStatus, error) {
	status := ReferralStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid referral status %q", value)
	}
	return status, nil
}

// RewardType records what a referral history row paid out.
type RewardType string

const (
	RewardFreeDelivery RewardType = "free_delivery"
	RewardCashback     RewardType = "cashback"
)

func (r RewardType) IsValid() bool {
	return r == RewardFreeDelivery || r == RewardCashback
}
