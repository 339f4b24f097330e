package users

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/internal/testdb"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/stripe"
)

type fakeProvider struct {
	created   int
	links     int
	createErr error
}

func (f *fakeProvider) CreateConnectAccount(_ context.Context, req stripe.ConnectAccountRequest) (*stripe.ConnectAccountResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &stripe.ConnectAccountResult{AccountID: "acct_" + req.Metadata["role"], OnboardingURL: "https://onboard/new"}, nil
}

func (f *fakeProvider) OnboardingLink(_ context.Context, accountID, _, _ string) (string, error) {
	f.links++
	return "https://onboard/" + accountID, nil
}

func seedUser(t *testing.T, repo *Repository, role enums.UserRole, code string) *models.User {
	t.Helper()
	user, err := repo.Create(context.Background(), &models.User{
		Email:        code + "@example.com",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		ReferralCode: code,
	})
	require.NoError(t, err)
	return user
}

func TestConnectPayoutAccountCreatesOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testdb.Open(t))
	provider := &fakeProvider{}
	svc, err := NewService(repo, provider)
	require.NoError(t, err)

	farmer := seedUser(t, repo, enums.UserRoleFarmer, "FARM01")

	first, err := svc.ConnectPayoutAccount(ctx, farmer.ID, "https://r", "https://b")
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, "acct_farmer", first.AccountID)

	second, err := svc.ConnectPayoutAccount(ctx, farmer.ID, "https://r", "https://b")
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, "https://onboard/acct_farmer", second.OnboardingURL)
	require.Equal(t, 1, provider.created)
	require.Equal(t, 1, provider.links)

	dest, err := svc.PayoutDestination(ctx, farmer.ID)
	require.NoError(t, err)
	require.Equal(t, "acct_farmer", dest)
}

func TestConnectPayoutAccountRejectsConsumers(t *testing.T) {
	repo := NewRepository(testdb.Open(t))
	svc, err := NewService(repo, &fakeProvider{})
	require.NoError(t, err)

	consumer := seedUser(t, repo, enums.UserRoleConsumer, "CONS01")
	_, err = svc.ConnectPayoutAccount(context.Background(), consumer.ID, "https://r", "https://b")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestConnectPayoutAccountProviderFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testdb.Open(t))
	providerErr := pkgerrors.Wrap(pkgerrors.CodeProviderError, errors.New("boom"), "stripe account creation failed")
	svc, err := NewService(repo, &fakeProvider{createErr: providerErr})
	require.NoError(t, err)

	driver := seedUser(t, repo, enums.UserRoleDriver, "DRV001")
	_, err = svc.ConnectPayoutAccount(ctx, driver.ID, "https://r", "https://b")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProviderError))

	_, err = svc.PayoutDestination(ctx, driver.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestFindByReferralCodeMatchesBothSlots(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testdb.Open(t))
	user := seedUser(t, repo, enums.UserRoleConsumer, "GEN123")
	custom := "GREENS"
	require.NoError(t, repo.db.Model(&models.User{}).Where("id = ?", user.ID).
		UpdateColumn("custom_referral_code", custom).Error)

	byGenerated, err := repo.FindByReferralCode(ctx, "GEN123")
	require.NoError(t, err)
	require.Equal(t, user.ID, byGenerated.ID)

	byCustom, err := repo.FindByReferralCode(ctx, " GREENS ")
	require.NoError(t, err)
	require.Equal(t, user.ID, byCustom.ID)

	_, err = repo.FindByReferralCode(ctx, "NOPE")
	require.Error(t, err)

	_, err = NewService(repo, &fakeProvider{})
	require.NoError(t, err)
	require.Error(t, repo.SetStripeAccountID(ctx, uuid.New(), "acct_x"))
}
