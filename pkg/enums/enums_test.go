package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyReferral(t *testing.T) {
	cases := []struct {
		referrer, referred UserRole
		want               ReferralType
	}{
		{UserRoleConsumer, UserRoleConsumer, ReferralConsumerToConsumer},
		{UserRoleConsumer, UserRoleFarmer, ReferralConsumerToFarmer},
		{UserRoleFarmer, UserRoleConsumer, ReferralFarmerToConsumer},
		{UserRoleFarmer, UserRoleFarmer, ReferralFarmerToFarmer},
	}
	for _, tc := range cases {
		got, err := ClassifyReferral(tc.referrer, tc.referred)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := ClassifyReferral(UserRoleDriver, UserRoleConsumer)
	require.Error(t, err)

	require.True(t, ReferralFarmerToConsumer.ReferredConsumer())
	require.False(t, ReferralConsumerToFarmer.ReferredConsumer())
}

func TestReferralStatusNeverRegresses(t *testing.T) {
	require.True(t, ReferralStatusPending.CanTransitionTo(ReferralStatusActive))
	require.True(t, ReferralStatusPending.CanTransitionTo(ReferralStatusCompleted))
	require.True(t, ReferralStatusActive.CanTransitionTo(ReferralStatusCompleted))
	require.False(t, ReferralStatusCompleted.CanTransitionTo(ReferralStatusActive))
	require.False(t, ReferralStatusActive.CanTransitionTo(ReferralStatusActive))
	require.False(t, ReferralStatus("bogus").CanTransitionTo(ReferralStatusCompleted))
}

func TestPayoutStatusTransitions(t *testing.T) {
	require.True(t, PayoutStatusPending.CanTransitionTo(PayoutStatusProcessing))
	require.False(t, PayoutStatusPending.CanTransitionTo(PayoutStatusCompleted))
	require.True(t, PayoutStatusProcessing.CanTransitionTo(PayoutStatusFailed))
	require.False(t, PayoutStatusCompleted.CanTransitionTo(PayoutStatusProcessing))
	require.True(t, PayoutStatusFailed.IsTerminal())

	_, err := ParsePayoutStatus("settled")
	require.Error(t, err)
}

func TestParseDeliveryMethodDefaults(t *testing.T) {
	m, err := ParseDeliveryMethod("")
	require.NoError(t, err)
	require.Equal(t, DeliveryMethodDelivery, m)

	_, err = ParseDeliveryMethod("drone")
	require.Error(t, err)
}
